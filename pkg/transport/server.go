package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AdianComits/netopeer2/pkg/log"
)

// DefaultAddress is the default control-session listen address.
const DefaultAddress = ":8830"

// ServerConfig configures a control-session server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8830" or "127.0.0.1:8830").
	Address string

	// Listener, when set, is used instead of listening on Address.
	Listener net.Listener

	// MaxMessageSize is the maximum message size (default: 1 MB).
	MaxMessageSize uint32

	// Logger captures frames and connection state (optional).
	Logger log.Logger

	// OnConnect is called when a new connection is accepted, before any
	// message from it is delivered.
	OnConnect func(conn *Conn)

	// OnDisconnect is called after the connection's read loop ended.
	OnDisconnect func(conn *Conn)

	// OnMessage is called for every frame, sequentially per connection.
	OnMessage func(conn *Conn, msg []byte)

	// OnError is called for accept and read errors. conn is nil for
	// accept errors.
	OnError func(conn *Conn, err error)
}

// Server accepts control-session connections.
type Server struct {
	config   ServerConfig
	listener net.Listener

	conns   map[*Conn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server. It does not listen until Start.
func NewServer(config ServerConfig) (*Server, error) {
	if config.OnMessage == nil {
		return nil, fmt.Errorf("OnMessage is required")
	}
	if config.Address == "" {
		config.Address = DefaultAddress
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	return &Server{
		config: config,
		conns:  make(map[*Conn]struct{}),
	}, nil
}

// Start begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	listener := s.config.Listener
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", s.config.Address)
		if err != nil {
			return fmt.Errorf("failed to listen: %w", err)
		}
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every connection, then waits for their
// disconnect callbacks to finish.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	s.listener.Close()

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			if s.config.OnError != nil {
				s.config.OnError(nil, fmt.Errorf("accept error: %w", err))
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(nc net.Conn) {
	defer s.wg.Done()

	sessionID := uuid.New().String()
	framer := NewFramerWithMaxSize(nc, s.config.MaxMessageSize)
	if s.config.Logger != nil {
		framer.SetLogger(s.config.Logger, sessionID)
	}

	conn := &Conn{
		conn:       nc,
		framer:     framer,
		server:     s,
		closeCh:    make(chan struct{}),
		remoteAddr: nc.RemoteAddr(),
		sessionID:  sessionID,
	}

	s.logState(conn, "", "CONNECTED")

	s.connsMu.Lock()
	if !s.running.Load() {
		s.connsMu.Unlock()
		nc.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()

	if s.config.OnConnect != nil {
		s.config.OnConnect(conn)
	}

	conn.readLoop()
	conn.Close()

	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()

	s.logState(conn, "CONNECTED", "DISCONNECTED")

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(conn)
	}
}

func (s *Server) logState(conn *Conn, oldState, newState string) {
	if s.config.Logger == nil {
		return
	}
	s.config.Logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  conn.sessionID,
		Layer:      log.LayerTransport,
		Category:   log.CategoryState,
		RemoteAddr: conn.remoteAddr.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: oldState,
			NewState: newState,
		},
	})
}

// Conn is one accepted control-session connection.
type Conn struct {
	conn       net.Conn
	framer     *Framer
	server     *Server
	closeCh    chan struct{}
	closeOnce  sync.Once
	remoteAddr net.Addr
	sessionID  string
}

// RemoteAddr returns the remote address of the client.
func (c *Conn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// SessionID returns the unique session identifier.
func (c *Conn) SessionID() string {
	return c.sessionID
}

// Send writes one message frame to the client.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return net.ErrClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Done is closed when the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.closeCh
}

// Close closes the connection. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

func (c *Conn) readLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		case <-c.server.ctx.Done():
			return
		default:
		}

		data, err := c.framer.ReadFrame()
		if err != nil {
			if c.server.config.OnError != nil && c.server.running.Load() && !errors.Is(err, net.ErrClosed) && err != io.EOF {
				select {
				case <-c.closeCh:
				default:
					c.server.config.OnError(c, err)
				}
			}
			return
		}
		c.server.config.OnMessage(c, data)
	}
}
