package discovery

import (
	"context"
	"time"
)

// Browser finds agents on the network.
type Browser interface {
	// BrowseAgents streams agents as they are found. The channel is closed
	// when ctx is done.
	BrowseAgents(ctx context.Context) (<-chan *AgentService, error)

	// FindAgent returns the first agent with the given id.
	FindAgent(ctx context.Context, agentID string) (*AgentService, error)

	// Stop stops all active browsing operations.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds FindAgent when ctx has no deadline.
	// Default: 10 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{BrowseTimeout: DefaultBrowseTimeout}
}

// ServiceEntry is a resolved DNS-SD entry, independent of the mDNS
// library.
type ServiceEntry struct {
	Instance string
	Service  string
	Domain   string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// ToAgentService converts a ServiceEntry to an AgentService.
func (e *ServiceEntry) ToAgentService() (*AgentService, error) {
	svc, err := DecodeAgentTXT(StringsToTXTRecords(e.Text))
	if err != nil {
		return nil, err
	}
	svc.InstanceName = e.Instance
	svc.Host = e.Host
	svc.Port = e.Port
	svc.Addresses = append([]string(nil), e.Addrs...)
	return svc, nil
}
