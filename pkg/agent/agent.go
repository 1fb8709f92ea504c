package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/AdianComits/netopeer2/pkg/access"
	"github.com/AdianComits/netopeer2/pkg/filter"
	"github.com/AdianComits/netopeer2/pkg/log"
	"github.com/AdianComits/netopeer2/pkg/subscription"
	"github.com/AdianComits/netopeer2/pkg/transport"
)

// ErrNotServing is returned by Stop when Serve was never called.
var ErrNotServing = errors.New("agent is not serving")

// Config configures an Agent.
type Config struct {
	// Manager owns the subscriptions (required).
	Manager *subscription.Manager

	// Filters holds named filters. Defaults to an empty store.
	Filters *filter.Store

	// Identify turns hello credentials into an identity. Defaults to an
	// unprivileged identity carrying the given user and groups.
	Identify func(user string, groups []string) access.Identity

	// MaxMessageSize bounds incoming frames (default: transport default).
	MaxMessageSize uint32

	// Capture receives protocol messages and session state (optional).
	Capture log.Logger

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// Agent serves control sessions.
type Agent struct {
	config  Config
	manager *subscription.Manager
	filters *filter.Store
	capture log.Logger
	logger  *slog.Logger

	mu       sync.Mutex
	ctx      context.Context
	server   *transport.Server
	sessions map[string]*Session
	unwatch  func()
}

// New creates an agent.
func New(config Config) (*Agent, error) {
	if config.Manager == nil {
		return nil, fmt.Errorf("agent: manager is required")
	}
	if config.Filters == nil {
		config.Filters = filter.NewStore()
	}
	if config.Identify == nil {
		config.Identify = func(user string, groups []string) access.Identity {
			return access.Identity{User: user, Groups: groups}
		}
	}
	return &Agent{
		config:   config,
		manager:  config.Manager,
		filters:  config.Filters,
		capture:  log.OrNoop(config.Capture),
		logger:   config.Logger,
		sessions: make(map[string]*Session),
	}, nil
}

func (a *Agent) debugLog(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}

// Manager returns the subscription manager.
func (a *Agent) Manager() *subscription.Manager {
	return a.manager
}

// Filters returns the named filter store.
func (a *Agent) Filters() *filter.Store {
	return a.filters
}

// Serve accepts control sessions on ln until ctx is done or Stop is
// called. It returns once accepting has started.
func (a *Agent) Serve(ctx context.Context, ln net.Listener) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return fmt.Errorf("agent: already serving")
	}

	server, err := transport.NewServer(transport.ServerConfig{
		Listener:       ln,
		MaxMessageSize: a.config.MaxMessageSize,
		Logger:         a.config.Capture,
		OnConnect:      a.onConnect,
		OnDisconnect:   a.onDisconnect,
		OnMessage:      a.onMessage,
		OnError: func(conn *transport.Conn, err error) {
			if conn == nil {
				a.debugLog("accept failed", "error", err)
				return
			}
			a.debugLog("session read failed", "session", conn.SessionID(), "error", err)
		},
	})
	if err != nil {
		return err
	}
	if err := server.Start(ctx); err != nil {
		return err
	}
	a.ctx = ctx
	a.server = server
	a.unwatch = a.filters.Watch(a.filterChanged)
	a.debugLog("agent serving", "address", ln.Addr().String())
	return nil
}

// Addr returns the listen address, or nil before Serve.
func (a *Agent) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return nil
	}
	return a.server.Addr()
}

// Stop closes every session, which terminates their subscriptions, and
// stops accepting.
func (a *Agent) Stop() error {
	a.mu.Lock()
	server := a.server
	unwatch := a.unwatch
	a.server = nil
	a.unwatch = nil
	a.mu.Unlock()

	if server == nil {
		return ErrNotServing
	}
	unwatch()
	return server.Stop()
}

// SessionCount returns the number of open sessions.
func (a *Agent) SessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// Sessions returns the open sessions.
func (a *Agent) Sessions() []*Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Session, 0, len(a.sessions))
	for _, s := range a.sessions {
		out = append(out, s)
	}
	return out
}

func (a *Agent) context() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

func (a *Agent) onConnect(conn *transport.Conn) {
	s := newSession(a, conn)
	a.mu.Lock()
	a.sessions[conn.SessionID()] = s
	a.mu.Unlock()
	a.debugLog("session opened", "session", conn.SessionID(), "remote", conn.RemoteAddr().String())
}

func (a *Agent) onDisconnect(conn *transport.Conn) {
	a.mu.Lock()
	s := a.sessions[conn.SessionID()]
	delete(a.sessions, conn.SessionID())
	a.mu.Unlock()

	n := a.manager.TerminateSession(conn.SessionID())
	if s != nil {
		s.close()
	}
	a.debugLog("session closed", "session", conn.SessionID(), "subscriptions", n)
}

func (a *Agent) onMessage(conn *transport.Conn, msg []byte) {
	a.mu.Lock()
	s := a.sessions[conn.SessionID()]
	a.mu.Unlock()
	if s == nil {
		a.debugLog("message for unknown session", "session", conn.SessionID())
		return
	}
	s.handleMessage(msg)
}

func (a *Agent) filterChanged(c filter.Change) {
	ev := &log.StateChangeEvent{
		Entity:   log.StateEntityFilter,
		NewState: c.Op.String(),
		Name:     c.Name,
	}
	if c.Filter != nil {
		ev.Reason = c.Filter.String()
	}
	a.capture.Log(log.Event{
		Timestamp:   time.Now(),
		Layer:       log.LayerSubscription,
		Category:    log.CategoryState,
		StateChange: ev,
	})
	a.debugLog("filter configuration changed", "name", c.Name, "op", c.Op.String())
}
