package subscription

import (
	"fmt"
	"sort"
	"sync"

	"github.com/AdianComits/netopeer2/pkg/datastore"
)

// Registry holds every live record, indexed by id and by backing handle.
// One mutex guards both indexes; the Manager holds it across lifecycle
// transitions and uses the *Locked methods.
type Registry struct {
	mu       sync.Mutex
	byID     map[uint32]*Record
	byHandle map[datastore.Handle]*Record
	lastID   uint32
	limit    int
}

// NewRegistry creates a registry holding at most limit records.
func NewRegistry(limit int) *Registry {
	if limit <= 0 {
		limit = DefaultMaxSubscriptions
	}
	return &Registry{
		byID:     make(map[uint32]*Record),
		byHandle: make(map[datastore.Handle]*Record),
		limit:    limit,
	}
}

// Insert assigns rec a fresh id and adds it.
func (g *Registry) Insert(rec *Record) (uint32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.insertLocked(rec)
}

func (g *Registry) insertLocked(rec *Record) (uint32, error) {
	if len(g.byID) >= g.limit {
		return 0, fmt.Errorf("%w: %d subscriptions", ErrResourceExhausted, len(g.byID))
	}
	// The limit keeps free ids available, so the scan ends.
	id := g.lastID
	for {
		id++
		if id == 0 {
			continue
		}
		if _, taken := g.byID[id]; !taken {
			break
		}
	}
	g.lastID = id
	rec.ID = id
	g.byID[id] = rec
	return id, nil
}

// Find returns the record with id.
func (g *Registry) Find(id uint32) (*Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.findLocked(id)
}

func (g *Registry) findLocked(id uint32) (*Record, error) {
	rec, ok := g.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return rec, nil
}

// FindByHandle returns the record a handle feeds.
func (g *Registry) FindByHandle(h datastore.Handle) (*Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.byHandle[h]
	if !ok {
		return nil, fmt.Errorf("%w: handle %v", ErrNotFound, h)
	}
	return rec, nil
}

// Remove deletes the record with id and its handle entries.
func (g *Registry) Remove(id uint32) (*Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeLocked(id)
}

func (g *Registry) removeLocked(id uint32) (*Record, error) {
	rec, ok := g.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	g.unbindLocked(rec)
	delete(g.byID, id)
	return rec, nil
}

// ForEach visits records in id order with the lock held until fn returns
// false. fn must not call back into the registry.
func (g *Registry) ForEach(fn func(*Record) bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forEachLocked(fn)
}

func (g *Registry) forEachLocked(fn func(*Record) bool) {
	ids := make([]uint32, 0, len(g.byID))
	for id := range g.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if !fn(g.byID[id]) {
			return
		}
	}
}

// Len returns the number of records.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.byID)
}

// bindLocked replaces rec's handles. A handle already feeding another
// record is an invariant violation.
func (g *Registry) bindLocked(rec *Record, handles []datastore.Handle) error {
	for _, h := range handles {
		if owner, ok := g.byHandle[h]; ok && owner != rec {
			return fmt.Errorf("%w: handle %v already feeds subscription %d", ErrInternal, h, owner.ID)
		}
	}
	g.unbindLocked(rec)
	for _, h := range handles {
		g.byHandle[h] = rec
	}
	rec.handles = handles
	return nil
}

func (g *Registry) unbindLocked(rec *Record) {
	for _, h := range rec.handles {
		if g.byHandle[h] == rec {
			delete(g.byHandle, h)
		}
	}
	rec.handles = nil
}
