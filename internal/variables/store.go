package variables

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownVariable is returned by Set for a name that was never defined.
var ErrUnknownVariable = errors.New("unknown variable")

// Reader resolves variables by name.
type Reader interface {
	Get(name string) (Value, bool)
}

// Store is the read/write contract the sequencer needs from a variable store.
type Store interface {
	Reader
	Set(name, raw string) error
	Subscribe(fn func(Change)) (unsubscribe func())
}

// Change describes a single variable write.
type Change struct {
	Name string
	Old  Value
	New  Value
}

// MemoryStore is an in-process Store. Writes are serialized and observers are
// notified in write order, outside the cell lock.
type MemoryStore struct {
	writeMu sync.Mutex

	mu     sync.RWMutex
	cells  map[string]Value
	subs   map[int]func(Change)
	nextID int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cells: make(map[string]Value),
		subs:  make(map[int]func(Change)),
	}
}

// Define declares a cell of the given kind with a default value parsed from raw.
// An empty raw default yields the zero value of the kind.
func (s *MemoryStore) Define(name string, kind Kind, raw string) error {
	v := Value{Kind: kind}
	if raw != "" {
		parsed, err := Parse(kind, raw)
		if err != nil {
			return fmt.Errorf("define %s: %w", name, err)
		}
		v = parsed
	} else if _, err := ParseKind(string(kind)); err != nil {
		return fmt.Errorf("define %s: %w", name, err)
	}

	s.mu.Lock()
	s.cells[name] = v
	s.mu.Unlock()
	return nil
}

// Get returns the current value of a cell.
func (s *MemoryStore) Get(name string) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cells[name]
	return v, ok
}

// Set parses raw according to the cell's declared kind and stores it.
func (s *MemoryStore) Set(name, raw string) error {
	s.mu.RLock()
	cur, ok := s.cells[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	v, err := Parse(cur.Kind, raw)
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return s.SetValue(name, v)
}

// SetValue stores a typed value. The value kind must match the cell kind.
func (s *MemoryStore) SetValue(name string, v Value) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	old, ok := s.cells[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	if old.Kind != v.Kind {
		s.mu.Unlock()
		return fmt.Errorf("set %s: kind %s does not match %s", name, v.Kind, old.Kind)
	}
	s.cells[name] = v
	subs := make([]func(Change), 0, len(s.subs))
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}
	s.mu.Unlock()

	change := Change{Name: name, Old: old, New: v}
	for _, fn := range subs {
		fn(change)
	}
	return nil
}

// Subscribe registers fn for every subsequent write. Observers must not write
// to the store from inside fn.
func (s *MemoryStore) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// SubscriberCount returns the number of active observers.
func (s *MemoryStore) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Snapshot copies all cells.
func (s *MemoryStore) Snapshot() map[string]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Value, len(s.cells))
	for k, v := range s.cells {
		out[k] = v
	}
	return out
}
