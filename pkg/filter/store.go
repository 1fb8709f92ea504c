package filter

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
)

// Op is a configuration change applied to a named filter.
type Op uint8

const (
	OpCreated  Op = 1
	OpModified Op = 2
	OpDeleted  Op = 3
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpCreated:
		return "created"
	case OpModified:
		return "modified"
	case OpDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is one entry of the filter configuration diff stream.
// Filter is nil for OpDeleted.
type Change struct {
	Name   string
	Op     Op
	Filter *Filter
}

// Store holds named filters. Resolve is lock-free; changes are serialized
// so watchers see them in the order they were applied.
type Store struct {
	filters *xsync.Map[string, *Filter]

	mu       sync.Mutex
	watchers *xsync.Map[uint64, func(Change)]
	nextID   atomic.Uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		filters:  xsync.NewMap[string, *Filter](),
		watchers: xsync.NewMap[uint64, func(Change)](),
	}
}

// Register adds a named filter. It fails with ErrFilterExists if the name
// is taken.
func (s *Store) Register(name string, f *Filter) error {
	return s.OnConfigChange(name, f, OpCreated)
}

// Unregister removes a named filter.
func (s *Store) Unregister(name string) error {
	return s.OnConfigChange(name, nil, OpDeleted)
}

// Resolve returns the filter stored under name.
func (s *Store) Resolve(name string) (*Filter, error) {
	if f, ok := s.filters.Load(name); ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrFilterNotFound, name)
}

// ResolveRef returns the filter a ref selects: nil for the zero ref, the
// stored filter for a name, or a freshly parsed inline filter.
func (s *Store) ResolveRef(r Ref) (*Filter, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	if r.Name != "" {
		return s.Resolve(r.Name)
	}
	return Parse(r)
}

// OnConfigChange applies a create, modify or delete of a named filter and
// reports it to watchers. Subscriptions that already resolved the filter
// keep their copy.
func (s *Store) OnConfigChange(name string, f *Filter, op Op) error {
	if name == "" {
		return fmt.Errorf("%w: filter name is empty", ErrInvalidFilter)
	}
	if op != OpDeleted && f == nil {
		return fmt.Errorf("%w: filter %q has no expression", ErrInvalidFilter, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.filters.Load(name)
	switch op {
	case OpCreated:
		if exists {
			return fmt.Errorf("%w: %q", ErrFilterExists, name)
		}
		s.filters.Store(name, f)
	case OpModified:
		if !exists {
			return fmt.Errorf("%w: %q", ErrFilterNotFound, name)
		}
		s.filters.Store(name, f)
	case OpDeleted:
		if !exists {
			return fmt.Errorf("%w: %q", ErrFilterNotFound, name)
		}
		s.filters.Delete(name)
		f = nil
	default:
		return fmt.Errorf("%w: unknown operation %d", ErrInvalidFilter, op)
	}

	change := Change{Name: name, Op: op, Filter: f}
	s.watchers.Range(func(_ uint64, fn func(Change)) bool {
		fn(change)
		return true
	})
	return nil
}

// Watch registers fn for every subsequent change. fn runs while the store
// serializes changes and must not modify the store. The returned function
// stops the watch.
func (s *Store) Watch(fn func(Change)) (cancel func()) {
	id := s.nextID.Add(1)
	s.watchers.Store(id, fn)
	return func() { s.watchers.Delete(id) }
}

// Names returns the names of all stored filters in no particular order.
func (s *Store) Names() []string {
	names := make([]string, 0, s.filters.Size())
	s.filters.Range(func(name string, _ *Filter) bool {
		names = append(names, name)
		return true
	})
	return names
}

// Len returns the number of stored filters.
func (s *Store) Len() int {
	return s.filters.Size()
}
