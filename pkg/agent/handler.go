package agent

import (
	"errors"
	"fmt"

	"github.com/AdianComits/netopeer2/pkg/filter"
	"github.com/AdianComits/netopeer2/pkg/subscription"
	"github.com/AdianComits/netopeer2/pkg/tree"
	"github.com/AdianComits/netopeer2/pkg/version"
	"github.com/AdianComits/netopeer2/pkg/wire"
)

// HandleRequest processes one request and returns the response. The
// returned function, when non-nil, must run after the response is written.
func (s *Session) HandleRequest(req *wire.Request) (*wire.Response, func()) {
	if !req.Operation.IsValid() {
		return wire.ErrorResponse(req.MessageID, wire.StatusUnsupported, "unsupported operation"), nil
	}
	if _, ok := s.Identity(); !ok && req.Operation != wire.OpHello {
		return wire.ErrorResponse(req.MessageID, wire.StatusNotAuthorized, "hello required"), nil
	}

	switch req.Operation {
	case wire.OpHello:
		return s.handleHello(req), nil
	case wire.OpEstablish:
		return s.handleEstablish(req)
	case wire.OpModify:
		return s.handleModify(req), nil
	case wire.OpDelete:
		return s.handleDelete(req), nil
	case wire.OpKill:
		return s.handleKill(req), nil
	case wire.OpGetState:
		return s.handleGetState(req), nil
	case wire.OpConfigureFilter:
		return s.handleConfigureFilter(req), nil
	default:
		return wire.ErrorResponse(req.MessageID, wire.StatusUnsupported, "unsupported operation"), nil
	}
}

func (s *Session) handleHello(req *wire.Request) *wire.Response {
	var p wire.HelloPayload
	if err := wire.DecodePayload(req.Payload, &p); err != nil {
		return wire.ErrorResponse(req.MessageID, wire.StatusInvalidParameter, err.Error())
	}
	if p.User == "" {
		return wire.ErrorResponse(req.MessageID, wire.StatusInvalidParameter, "user is required")
	}
	ver, err := version.Negotiate(p.Version)
	if err != nil {
		return wire.ErrorResponse(req.MessageID, wire.StatusUnsupported, err.Error())
	}

	s.mu.Lock()
	if s.identified {
		s.mu.Unlock()
		return wire.ErrorResponse(req.MessageID, wire.StatusInvalidParameter, "session already identified")
	}
	identity := s.agent.config.Identify(p.User, p.Groups)
	s.identity = identity
	s.identified = true
	s.mu.Unlock()

	s.logIdentified(identity)
	s.agent.debugLog("session identified", "session", s.ID(), "user", identity.User, "privileged", identity.Privileged)

	return s.success(req, &wire.HelloResponsePayload{
		SessionID:  s.ID(),
		Privileged: identity.Privileged,
		Version:    ver.String(),
	})
}

func (s *Session) handleEstablish(req *wire.Request) (*wire.Response, func()) {
	var p wire.EstablishPayload
	if err := wire.DecodePayload(req.Payload, &p); err != nil {
		return wire.ErrorResponse(req.MessageID, wire.StatusInvalidParameter, err.Error()), nil
	}
	tag, params, err := establishParams(&p)
	if err != nil {
		return s.failure(req, err), nil
	}

	identity, _ := s.Identity()
	out := newDeferredSender(s)
	res, err := s.agent.manager.Establish(s.agent.context(), subscription.EstablishRequest{
		Identity: identity,
		Session:  s.ID(),
		StopTime: timeOf(p.StopTime),
		Tag:      tag,
		Params:   params,
		Sender:   out,
	})
	if err != nil {
		return s.failure(req, err), nil
	}

	reply := &wire.EstablishResponsePayload{SubscriptionID: res.ID}
	if !res.ReplayStartRevision.IsZero() {
		revision := res.ReplayStartRevision
		reply.ReplayStartTimeRevision = &revision
	}
	return s.success(req, reply), out.release
}

func (s *Session) handleModify(req *wire.Request) *wire.Response {
	var p wire.ModifyPayload
	if err := wire.DecodePayload(req.Payload, &p); err != nil {
		return wire.ErrorResponse(req.MessageID, wire.StatusInvalidParameter, err.Error())
	}
	st, err := s.agent.manager.State(p.SubscriptionID)
	if err != nil {
		return s.failure(req, err)
	}
	params, err := modifyParams(st.Tag, &p)
	if err != nil {
		return s.failure(req, err)
	}

	identity, _ := s.Identity()
	err = s.agent.manager.Modify(s.agent.context(), subscription.ModifyRequest{
		ID:       p.SubscriptionID,
		Identity: identity,
		StopTime: timeOf(p.StopTime),
		Params:   params,
	})
	if err != nil {
		return s.failure(req, err)
	}
	return s.success(req, nil)
}

func (s *Session) handleDelete(req *wire.Request) *wire.Response {
	var p wire.DeletePayload
	if err := wire.DecodePayload(req.Payload, &p); err != nil {
		return wire.ErrorResponse(req.MessageID, wire.StatusInvalidParameter, err.Error())
	}
	identity, _ := s.Identity()
	if err := s.agent.manager.Delete(p.SubscriptionID, identity); err != nil {
		return s.failure(req, err)
	}
	return s.success(req, nil)
}

func (s *Session) handleKill(req *wire.Request) *wire.Response {
	var p wire.DeletePayload
	if err := wire.DecodePayload(req.Payload, &p); err != nil {
		return wire.ErrorResponse(req.MessageID, wire.StatusInvalidParameter, err.Error())
	}
	identity, _ := s.Identity()
	if err := s.agent.manager.Kill(p.SubscriptionID, identity); err != nil {
		return s.failure(req, err)
	}
	return s.success(req, nil)
}

func (s *Session) handleGetState(req *wire.Request) *wire.Response {
	var p wire.GetStatePayload
	if err := wire.DecodePayload(req.Payload, &p); err != nil {
		return wire.ErrorResponse(req.MessageID, wire.StatusInvalidParameter, err.Error())
	}
	var out *tree.Node
	if p.SubscriptionID == 0 {
		out = s.agent.manager.StatesTree()
	} else {
		st, err := s.agent.manager.State(p.SubscriptionID)
		if err != nil {
			return s.failure(req, err)
		}
		out = st.Tree()
	}
	return s.success(req, out)
}

func (s *Session) handleConfigureFilter(req *wire.Request) *wire.Response {
	var p wire.ConfigureFilterPayload
	if err := wire.DecodePayload(req.Payload, &p); err != nil {
		return wire.ErrorResponse(req.MessageID, wire.StatusInvalidParameter, err.Error())
	}
	identity, _ := s.Identity()
	if !identity.Privileged {
		return wire.ErrorResponse(req.MessageID, wire.StatusWrongOwner, "filter configuration requires a privileged identity")
	}

	var op filter.Op
	switch p.Operation {
	case wire.FilterCreate:
		op = filter.OpCreated
	case wire.FilterModify:
		op = filter.OpModified
	case wire.FilterDelete:
		op = filter.OpDeleted
	default:
		return wire.ErrorResponse(req.MessageID, wire.StatusInvalidParameter, fmt.Sprintf("unknown filter operation %d", p.Operation))
	}

	var f *filter.Filter
	if op != filter.OpDeleted {
		if p.Filter == nil {
			return wire.ErrorResponse(req.MessageID, wire.StatusInvalidParameter, "filter expression is required")
		}
		ref := filterRef(p.Filter)
		if ref.Name != "" || ref.IsZero() {
			return wire.ErrorResponse(req.MessageID, wire.StatusInvalidParameter, "named filters need a subtree or xpath expression")
		}
		var err error
		if f, err = filter.Parse(ref); err != nil {
			return s.failure(req, err)
		}
	}
	if err := s.agent.filters.OnConfigChange(p.Name, f, op); err != nil {
		return s.failure(req, err)
	}
	return s.success(req, nil)
}

func (s *Session) success(req *wire.Request, payload any) *wire.Response {
	resp := &wire.Response{MessageID: req.MessageID, Status: wire.StatusSuccess}
	if payload == nil {
		return resp
	}
	raw, err := wire.EncodePayload(payload)
	if err != nil {
		return wire.ErrorResponse(req.MessageID, wire.StatusInternal, err.Error())
	}
	resp.Payload = raw
	return resp
}

func (s *Session) failure(req *wire.Request, err error) *wire.Response {
	status := StatusFromError(err)
	if status == wire.StatusInternal {
		s.logError(req.Operation.String(), err)
	}
	return wire.ErrorResponse(req.MessageID, status, err.Error())
}

// StatusFromError maps subscription and filter errors to a wire status.
func StatusFromError(err error) wire.Status {
	switch {
	case err == nil:
		return wire.StatusSuccess
	case errors.Is(err, subscription.ErrInvalidParameter),
		errors.Is(err, filter.ErrInvalidFilter),
		errors.Is(err, filter.ErrFilterExists):
		return wire.StatusInvalidParameter
	case errors.Is(err, subscription.ErrNotFound),
		errors.Is(err, filter.ErrFilterNotFound):
		return wire.StatusNotFound
	case errors.Is(err, subscription.ErrWrongOwner):
		return wire.StatusWrongOwner
	case errors.Is(err, subscription.ErrResourceExhausted),
		errors.Is(err, subscription.ErrClosed):
		return wire.StatusResourceExhausted
	default:
		return wire.StatusInternal
	}
}
