package subscription

import (
	"time"

	"github.com/AdianComits/netopeer2/pkg/datastore"
	"github.com/AdianComits/netopeer2/pkg/tree"
)

// OperationalState is a point-in-time view of one subscription.
type OperationalState struct {
	ID       uint32
	Owner    string
	Session  string
	Tag      Tag
	State    State
	Created  time.Time
	StopTime time.Time
	Filter   string
	Excluded uint64
	Sent     uint64
	Handles  []datastore.Handle

	// Discipline holds the discipline-specific fields, under a node named
	// after the discipline.
	Discipline *tree.Node
}

// Tree renders the state as a "subscription" node.
func (s OperationalState) Tree() *tree.Node {
	n := tree.New("subscription",
		tree.Leaf("id", s.ID),
		tree.Leaf("owner", s.Owner),
		tree.Leaf("state", s.State.String()),
		tree.Leaf("created", s.Created.Format(time.RFC3339Nano)),
	)
	if !s.StopTime.IsZero() {
		n.Add(tree.Leaf("stop-time", s.StopTime.Format(time.RFC3339Nano)))
	}
	if s.Filter != "" {
		n.Add(tree.Leaf("filter", s.Filter))
	}
	n.Add(
		tree.Leaf("excluded-event-records", s.Excluded),
		tree.Leaf("sent-event-records", s.Sent),
	)
	if s.Discipline != nil {
		n.Add(s.Discipline.Clone())
	}
	return n
}

// State returns the operational state of one subscription.
func (m *Manager) State(id uint32) (OperationalState, error) {
	m.registry.mu.Lock()
	defer m.registry.mu.Unlock()

	rec, err := m.activeLocked(id)
	if err != nil {
		return OperationalState{}, err
	}
	return m.snapshotLocked(rec), nil
}

// States returns the operational state of every active subscription in id
// order.
func (m *Manager) States() []OperationalState {
	m.registry.mu.Lock()
	defer m.registry.mu.Unlock()

	var out []OperationalState
	m.registry.forEachLocked(func(rec *Record) bool {
		if rec.State() == StateActive {
			out = append(out, m.snapshotLocked(rec))
		}
		return true
	})
	return out
}

// StatesTree renders States as a "subscriptions" node.
func (m *Manager) StatesTree() *tree.Node {
	root := tree.New("subscriptions")
	for _, s := range m.States() {
		root.Add(s.Tree())
	}
	return root
}

func (m *Manager) snapshotLocked(rec *Record) OperationalState {
	disc := tree.New(rec.Tag.String())
	m.disciplines[rec.Tag].AppendOperational(rec, disc)
	return OperationalState{
		ID:         rec.ID,
		Owner:      rec.Owner.User,
		Session:    rec.Session,
		Tag:        rec.Tag,
		State:      rec.State(),
		Created:    rec.Created,
		StopTime:   rec.stopTime,
		Filter:     rec.FilterRef().Identity(),
		Excluded:   rec.Excluded(),
		Sent:       rec.Sent(),
		Handles:    rec.Handles(),
		Discipline: disc,
	}
}
