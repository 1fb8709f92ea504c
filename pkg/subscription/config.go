package subscription

import (
	"log/slog"
	"time"

	"github.com/AdianComits/netopeer2/pkg/access"
	"github.com/AdianComits/netopeer2/pkg/log"
	"github.com/AdianComits/netopeer2/pkg/metrics"
)

// Default limits.
const (
	DefaultMaxSubscriptions = 1000
	DefaultDrainTimeout     = 2 * time.Second
)

// Config holds Manager configuration.
type Config struct {
	// MaxSubscriptions bounds the registry.
	MaxSubscriptions int

	// DrainTimeout bounds how long terminate waits for in-flight
	// deliveries before destroying discipline state.
	DrainTimeout time.Duration

	// Access decides per payload whether the owner may receive it.
	Access access.Checker

	// Metrics receives lifecycle and delivery counters.
	Metrics metrics.Collector

	// Capture receives lifecycle state changes (optional).
	Capture log.Logger

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// Now overrides the clock (tests).
	Now func() time.Time
}

// DefaultConfig returns the default configuration: permit-all access and
// no metrics.
func DefaultConfig() Config {
	return Config{
		MaxSubscriptions: DefaultMaxSubscriptions,
		DrainTimeout:     DefaultDrainTimeout,
		Access:           access.PermitAll{},
	}
}

func (c *Config) applyDefaults() {
	if c.MaxSubscriptions <= 0 {
		c.MaxSubscriptions = DefaultMaxSubscriptions
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.Access == nil {
		c.Access = access.PermitAll{}
	}
	c.Metrics = metrics.OrNop(c.Metrics)
	c.Capture = log.OrNoop(c.Capture)
	if c.Now == nil {
		c.Now = time.Now
	}
}
