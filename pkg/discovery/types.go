package discovery

import (
	"errors"
	"time"

	"github.com/AdianComits/netopeer2/pkg/version"
)

// Service constants.
const (
	// ServiceType is the DNS-SD service type of subscription agents.
	ServiceType = "_subnotif._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the control port advertised when none is given.
	DefaultPort = 8830

	// ProtocolVersion is advertised in the v TXT record.
	ProtocolVersion = version.CurrentMajor
)

// TXT record keys.
const (
	TXTKeyVersion    = "v"
	TXTKeyAgentID    = "id"
	TXTKeyStreams    = "st"
	TXTKeyReplay     = "rp"
	TXTKeyDatastores = "ds"
)

const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// DefaultTTL is the DNS record TTL used by DefaultAdvertiserConfig.
	DefaultTTL = 120 * time.Second

	// DefaultBrowseTimeout bounds FindAgent when the context has no deadline.
	DefaultBrowseTimeout = 10 * time.Second
)

// Discovery errors.
var (
	ErrNotFound            = errors.New("service not found")
	ErrNotAdvertising      = errors.New("not advertising")
	ErrMissingRequired     = errors.New("missing required TXT record")
	ErrInstanceNameTooLong = errors.New("instance name too long")
)

// AgentInfo is what an agent advertises.
type AgentInfo struct {
	// InstanceName defaults to "subnotif-<AgentID>".
	InstanceName string
	AgentID      string
	Port         uint16
	Streams      []string
	Replay       []string
	Datastores   []string
}

// AgentService is an agent found by browsing.
type AgentService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	Version    string
	AgentID    string
	Streams    []string
	Replay     []string
	Datastores []string
}

func (a *AgentInfo) instanceName() string {
	name := a.InstanceName
	if name == "" {
		name = "subnotif-" + a.AgentID
	}
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}
