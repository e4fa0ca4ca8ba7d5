package patient

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Common errors returned by the Store.
var (
	ErrDuplicateID = errors.New("case with this id already exists")
	ErrNotFound    = errors.New("case not found")
)

// Store holds the authoritative ordered list of cases for the lifetime of the
// process. All mutation, whether user-initiated or engine-driven, goes through
// Update, which applies the change under the store lock. Reads return deep
// copies.
type Store struct {
	mu    sync.RWMutex
	cases map[uuid.UUID]*Case
	order []uuid.UUID
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{cases: make(map[uuid.UUID]*Case)}
}

// Add appends a new case. The id must not already be present.
func (s *Store) Add(c *Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cases[c.ID]; ok {
		return ErrDuplicateID
	}
	s.cases[c.ID] = c.Clone()
	s.order = append(s.order, c.ID)
	return nil
}

// Get returns a copy of the case with the given id.
func (s *Store) Get(id uuid.UUID) (*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

// Replace atomically swaps the stored record for id with newCase. It is a
// whole-record replacement, never a merge.
func (s *Store) Replace(id uuid.UUID, newCase *Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cases[id]; !ok {
		return ErrNotFound
	}
	s.cases[id] = newCase.Clone()
	return nil
}

// Update applies fn to the current record for id while holding the store
// lock, then commits the result. fn receives a private copy of the latest
// record; returning an error abandons the change. This is the
// read-modify-write path: a caller that Gets, mutates and Replaces instead
// can overwrite a write that landed in between.
func (s *Store) Update(id uuid.UUID, fn func(*Case) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[id]
	if !ok {
		return ErrNotFound
	}
	next := c.Clone()
	if err := fn(next); err != nil {
		return err
	}
	s.cases[id] = next
	return nil
}

// All returns a snapshot of every case in insertion order.
func (s *Store) All() []*Case {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Case, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.cases[id].Clone())
	}
	return result
}

// Filter returns a snapshot of the cases matching pred, in insertion order.
// An empty store yields an empty slice, not nil.
func (s *Store) Filter(pred func(*Case) bool) []*Case {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Case, 0)
	for _, id := range s.order {
		if c := s.cases[id]; pred(c) {
			result = append(result, c.Clone())
		}
	}
	return result
}

// Len returns the number of cases held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cases)
}
