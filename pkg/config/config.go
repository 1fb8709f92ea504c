// Package config loads the agent configuration file.
//
// The file is YAML. Every field is optional; Default supplies values for
// anything left out.
//
//	listen: ":8830"
//	limits:
//	  max-subscriptions: 1000
//	  drain-timeout: 2s
//	streams:
//	  - name: NETCONF
//	    replay: true
//	    history-size: 1024
//	filters:
//	  - name: majors
//	    xpath: "/alarm[severity='major']"
//	access:
//	  default: permit
//	  rules:
//	    - name: hide-keys
//	      path: /keys
//	      action: deny
//	privileged:
//	  users: [admin]
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AdianComits/netopeer2/pkg/access"
	"github.com/AdianComits/netopeer2/pkg/datastore"
	"github.com/AdianComits/netopeer2/pkg/filter"
	"github.com/AdianComits/netopeer2/pkg/push"
	"github.com/AdianComits/netopeer2/pkg/subscription"
	"github.com/AdianComits/netopeer2/pkg/transport"
	"github.com/AdianComits/netopeer2/pkg/tree"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the agent configuration.
type Config struct {
	Listen     string      `yaml:"listen"`
	Limits     Limits      `yaml:"limits"`
	Datastores []string    `yaml:"datastores"`
	Streams    []Stream    `yaml:"streams"`
	Filters    []Filter    `yaml:"filters"`
	Access     Access      `yaml:"access"`
	Privileged Privileged  `yaml:"privileged"`
	Metrics    Metrics     `yaml:"metrics"`
	Capture    Capture     `yaml:"capture"`
	MDNS       MDNS        `yaml:"mdns"`
	Console    bool        `yaml:"console"`
	LogLevel   string      `yaml:"log-level"`
	Seed       []SeedValue `yaml:"seed,omitempty"`
}

// Limits bounds subscriptions and messages.
type Limits struct {
	MaxSubscriptions int           `yaml:"max-subscriptions"`
	DrainTimeout     time.Duration `yaml:"drain-timeout"`
	MinPeriod        time.Duration `yaml:"min-period"`
	MaxDampening     time.Duration `yaml:"max-dampening"`
	MaxMessageSize   uint32        `yaml:"max-message-size"`
}

// Stream declares an event stream.
type Stream struct {
	Name        string `yaml:"name"`
	Replay      bool   `yaml:"replay"`
	HistorySize int    `yaml:"history-size"`

	// History preloads the replay history from a capture file.
	History string `yaml:"history,omitempty"`
}

// Filter is a named filter. Exactly one of XPath and Subtree is set.
type Filter struct {
	Name    string    `yaml:"name"`
	XPath   string    `yaml:"xpath,omitempty"`
	Subtree yaml.Node `yaml:"subtree,omitempty"`
}

// Access configures the rule-based access checker.
type Access struct {
	Default access.Action `yaml:"default"`
	Rules   []access.Rule `yaml:"rules"`
}

// Privileged lists identities allowed to kill and modify any subscription.
type Privileged struct {
	Users  []string `yaml:"users"`
	Groups []string `yaml:"groups"`
}

// Metrics configures the Prometheus endpoint. An empty address disables it.
type Metrics struct {
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
}

// Capture configures the protocol capture log. An empty path disables it.
type Capture struct {
	Path string `yaml:"path"`
}

// MDNS configures service advertisement.
type MDNS struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// SeedValue is a leaf written to a datastore at startup.
type SeedValue struct {
	Datastore string `yaml:"datastore"`
	Path      string `yaml:"path"`
	Value     any    `yaml:"value"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen: transport.DefaultAddress,
		Limits: Limits{
			MaxSubscriptions: subscription.DefaultMaxSubscriptions,
			DrainTimeout:     subscription.DefaultDrainTimeout,
			MinPeriod:        push.DefaultMinPeriod,
			MaxDampening:     push.DefaultMaxDampening,
			MaxMessageSize:   transport.DefaultMaxMessageSize,
		},
		Datastores: []string{datastore.Running, datastore.Operational},
		Streams: []Stream{
			{Name: datastore.NETCONF, Replay: true, HistorySize: datastore.DefaultHistorySize},
		},
		Access:   Access{Default: access.ActionPermit},
		LogLevel: "info",
	}
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Validate checks the configuration for values no component accepts.
func (c *Config) Validate() error {
	if c.Limits.MaxSubscriptions <= 0 {
		return fmt.Errorf("%w: max-subscriptions must be positive", ErrInvalidConfig)
	}
	if c.Limits.DrainTimeout <= 0 || c.Limits.MinPeriod <= 0 || c.Limits.MaxDampening < 0 {
		return fmt.Errorf("%w: limits must be positive durations", ErrInvalidConfig)
	}
	if len(c.Datastores) == 0 {
		return fmt.Errorf("%w: at least one datastore required", ErrInvalidConfig)
	}

	seen := make(map[string]bool)
	for _, s := range c.Streams {
		if s.Name == "" || seen[s.Name] {
			return fmt.Errorf("%w: stream name %q empty or repeated", ErrInvalidConfig, s.Name)
		}
		seen[s.Name] = true
		if s.HistorySize < 0 {
			return fmt.Errorf("%w: stream %q: negative history-size", ErrInvalidConfig, s.Name)
		}
	}

	names := make(map[string]bool)
	for _, f := range c.Filters {
		if f.Name == "" || names[f.Name] {
			return fmt.Errorf("%w: filter name %q empty or repeated", ErrInvalidConfig, f.Name)
		}
		names[f.Name] = true
		if _, err := f.Build(); err != nil {
			return fmt.Errorf("%w: filter %q: %w", ErrInvalidConfig, f.Name, err)
		}
	}

	if _, err := c.AccessChecker(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	for _, v := range c.Seed {
		if !slices.Contains(c.Datastores, v.Datastore) {
			return fmt.Errorf("%w: seed value for unknown datastore %q", ErrInvalidConfig, v.Datastore)
		}
	}
	return nil
}

// Build parses the filter.
func (f *Filter) Build() (*filter.Filter, error) {
	hasSubtree := f.Subtree.Kind != 0
	switch {
	case f.XPath != "" && hasSubtree:
		return nil, fmt.Errorf("%w: xpath and subtree are mutually exclusive", filter.ErrInvalidFilter)
	case f.XPath != "":
		return filter.NewPath(f.XPath)
	case hasSubtree:
		root, err := subtreeNode(&f.Subtree)
		if err != nil {
			return nil, err
		}
		return filter.NewSubtree(root)
	default:
		return nil, fmt.Errorf("%w: xpath or subtree required", filter.ErrInvalidFilter)
	}
}

// subtreeNode converts a YAML mapping with a single top-level key into a
// subtree. Mapping keys keep their order; scalars become content-match
// leaves and null values selection nodes.
func subtreeNode(n *yaml.Node) (*tree.Node, error) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return nil, fmt.Errorf("%w: line %d: subtree must have one root", filter.ErrInvalidFilter, n.Line)
	}
	return yamlNode(n.Content[0].Value, n.Content[1])
}

func yamlNode(name string, v *yaml.Node) (*tree.Node, error) {
	switch v.Kind {
	case yaml.ScalarNode:
		if v.Tag == "!!null" {
			return tree.New(name), nil
		}
		return tree.Leaf(name, v.Value), nil
	case yaml.MappingNode:
		out := tree.New(name)
		for i := 0; i+1 < len(v.Content); i += 2 {
			c, err := yamlNode(v.Content[i].Value, v.Content[i+1])
			if err != nil {
				return nil, err
			}
			out.Add(c)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: line %d: unsupported subtree value", filter.ErrInvalidFilter, v.Line)
	}
}

// FilterStore builds a filter store holding every named filter.
func (c *Config) FilterStore() (*filter.Store, error) {
	store := filter.NewStore()
	for i := range c.Filters {
		f, err := c.Filters[i].Build()
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", c.Filters[i].Name, err)
		}
		if err := store.Register(c.Filters[i].Name, f); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// AccessChecker builds the access checker. Without rules it permits
// everything unless the default denies.
func (c *Config) AccessChecker() (access.Checker, error) {
	if len(c.Access.Rules) == 0 && (c.Access.Default == "" || c.Access.Default == access.ActionPermit) {
		return access.PermitAll{}, nil
	}
	return access.NewRules(c.Access.Rules, c.Access.Default)
}

// Identity resolves a client's identity, marking it privileged when the
// user or one of its groups is listed.
func (c *Config) Identity(user string, groups []string) access.Identity {
	id := access.Identity{User: user, Groups: groups}
	if slices.Contains(c.Privileged.Users, user) {
		id.Privileged = true
	}
	for _, g := range c.Privileged.Groups {
		if id.InGroup(g) {
			id.Privileged = true
		}
	}
	return id
}

// MemoryConfig returns the in-memory datastore configuration.
func (c *Config) MemoryConfig() datastore.MemoryConfig {
	mc := datastore.MemoryConfig{Datastores: slices.Clone(c.Datastores)}
	for _, s := range c.Streams {
		mc.Streams = append(mc.Streams, datastore.StreamConfig{Name: s.Name, Replay: s.Replay, HistorySize: s.HistorySize})
	}
	return mc
}

// ManagerConfig returns the subscription manager limits. Collaborators
// (access, metrics, capture, logger) are filled in by the caller.
func (c *Config) ManagerConfig() subscription.Config {
	mc := subscription.DefaultConfig()
	mc.MaxSubscriptions = c.Limits.MaxSubscriptions
	mc.DrainTimeout = c.Limits.DrainTimeout
	return mc
}

// PushConfig returns the push discipline limits.
func (c *Config) PushConfig() push.Config {
	return push.Config{MinPeriod: c.Limits.MinPeriod, MaxDampening: c.Limits.MaxDampening}
}
