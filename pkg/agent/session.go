package agent

import (
	"errors"
	"sync"
	"time"

	"github.com/AdianComits/netopeer2/pkg/access"
	"github.com/AdianComits/netopeer2/pkg/log"
	"github.com/AdianComits/netopeer2/pkg/transport"
	"github.com/AdianComits/netopeer2/pkg/wire"
)

var errSessionClosed = errors.New("session closed")

// Session is one control session.
type Session struct {
	agent *Agent
	conn  *transport.Conn

	mu         sync.RWMutex
	identity   access.Identity
	identified bool
	closed     bool
}

func newSession(a *Agent, conn *transport.Conn) *Session {
	return &Session{agent: a, conn: conn}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.conn.SessionID()
}

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// Identity returns the identity presented in hello, and whether hello has
// been received.
func (s *Session) Identity() (access.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.identified
}

// Close closes the connection. Its subscriptions are terminated once the
// connection is gone.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Session) user() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.User
}

func (s *Session) handleMessage(data []byte) {
	received := time.Now()

	req, err := wire.DecodeRequest(data)
	if err != nil {
		// Answer requests with a usable message id; anything else has
		// nobody to answer to.
		var raw wire.Request
		if wire.Unmarshal(data, &raw) != nil || raw.MessageID == wire.NotificationMessageID {
			s.agent.debugLog("dropping undecodable message", "session", s.ID(), "error", err)
			s.logError("decode request", err)
			return
		}
		s.writeResponse(&raw, wire.ErrorResponse(raw.MessageID, wire.StatusUnsupported, "unsupported operation"), received)
		return
	}
	s.logRequest(req)

	resp, after := s.HandleRequest(req)

	s.agent.debugLog("request handled",
		"session", s.ID(),
		"messageID", req.MessageID,
		"operation", req.Operation,
		"status", resp.Status)

	s.writeResponse(req, resp, received)
	if after != nil {
		after()
	}
}

func (s *Session) writeResponse(req *wire.Request, resp *wire.Response, received time.Time) {
	data, err := wire.EncodeResponse(resp)
	if err != nil {
		s.agent.debugLog("encode response failed", "session", s.ID(), "messageID", req.MessageID, "error", err)
		resp = wire.ErrorResponse(req.MessageID, wire.StatusInternal, "failed to encode response")
		if data, err = wire.EncodeResponse(resp); err != nil {
			return
		}
	}
	if err := s.conn.Send(data); err != nil {
		s.agent.debugLog("send response failed", "session", s.ID(), "messageID", req.MessageID, "error", err)
		return
	}
	s.logResponse(resp, time.Since(received))
}

// sendNotification writes one notification to the session.
func (s *Session) sendNotification(n wire.Notification) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return errSessionClosed
	}
	data, err := wire.EncodeNotification(&n)
	if err != nil {
		return err
	}
	if err := s.conn.Send(data); err != nil {
		return err
	}
	s.logNotification(n)
	return nil
}

func (s *Session) logRequest(req *wire.Request) {
	op := req.Operation
	s.agent.capture.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  s.ID(),
		Direction:  log.DirectionIn,
		Layer:      log.LayerWire,
		Category:   log.CategoryMessage,
		RemoteAddr: s.RemoteAddr(),
		User:       s.user(),
		Message: &log.MessageEvent{
			Type:      log.MessageTypeRequest,
			MessageID: req.MessageID,
			Operation: &op,
			Payload:   req.Payload,
		},
	})
}

func (s *Session) logResponse(resp *wire.Response, took time.Duration) {
	status := resp.Status
	s.agent.capture.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  s.ID(),
		Direction:  log.DirectionOut,
		Layer:      log.LayerWire,
		Category:   log.CategoryMessage,
		RemoteAddr: s.RemoteAddr(),
		User:       s.user(),
		Message: &log.MessageEvent{
			Type:           log.MessageTypeResponse,
			MessageID:      resp.MessageID,
			Status:         &status,
			Payload:        resp.Payload,
			ProcessingTime: &took,
		},
	})
}

func (s *Session) logNotification(n wire.Notification) {
	kind := n.Kind
	s.agent.capture.Log(log.Event{
		Timestamp:      time.Now(),
		SessionID:      s.ID(),
		Direction:      log.DirectionOut,
		Layer:          log.LayerWire,
		Category:       log.CategoryMessage,
		RemoteAddr:     s.RemoteAddr(),
		User:           s.user(),
		SubscriptionID: n.SubscriptionID,
		Message: &log.MessageEvent{
			Type:    log.MessageTypeNotification,
			Kind:    &kind,
			Payload: n.Body,
		},
	})
}

func (s *Session) logError(context string, err error) {
	s.agent.capture.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  s.ID(),
		Direction:  log.DirectionIn,
		Layer:      log.LayerWire,
		Category:   log.CategoryError,
		RemoteAddr: s.RemoteAddr(),
		Error: &log.ErrorEventData{
			Layer:   log.LayerWire,
			Message: err.Error(),
			Context: context,
		},
	})
}

func (s *Session) logIdentified(identity access.Identity) {
	reason := ""
	if identity.Privileged {
		reason = "privileged"
	}
	s.agent.capture.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  s.ID(),
		Layer:      log.LayerWire,
		Category:   log.CategoryState,
		RemoteAddr: s.RemoteAddr(),
		User:       identity.User,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: "CONNECTED",
			NewState: "IDENTIFIED",
			Reason:   reason,
		},
	})
}

// deferredSender holds back a subscription's notifications until its
// establish reply has been written.
type deferredSender struct {
	session *Session

	mu    sync.Mutex
	ready bool
	queue []wire.Notification
}

func newDeferredSender(s *Session) *deferredSender {
	return &deferredSender{session: s}
}

// Send implements subscription.Sender.
func (d *deferredSender) Send(n wire.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		d.queue = append(d.queue, n)
		return nil
	}
	return d.session.sendNotification(n)
}

// release writes the queued notifications in order and switches to direct
// delivery.
func (d *deferredSender) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range d.queue {
		if err := d.session.sendNotification(n); err != nil {
			d.session.agent.debugLog("send queued notification failed",
				"session", d.session.ID(), "id", n.SubscriptionID, "kind", n.Kind.String(), "error", err)
		}
	}
	d.queue = nil
	d.ready = true
}
