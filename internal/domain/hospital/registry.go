// Package hospital holds the in-memory hospital capacity registry consulted
// when requesting resource plans.
package hospital

import (
	"errors"
	"sync"
)

// ErrNotFound is returned when a hospital id is unknown.
var ErrNotFound = errors.New("hospital not found")

// Hospital is a receiving site with live bed capacity.
type Hospital struct {
	ID              string `json:"hospital_id"`
	Name            string `json:"name"`
	CurrentCapacity int    `json:"current_capacity"`
	MaxCapacity     int    `json:"max_capacity"`
}

// Registry is a thread-safe in-memory hospital directory.
type Registry struct {
	mu        sync.RWMutex
	hospitals map[string]*Hospital
	order     []string
}

// NewRegistry creates a registry pre-loaded with the given hospitals.
func NewRegistry(seed []Hospital) *Registry {
	r := &Registry{hospitals: make(map[string]*Hospital, len(seed))}
	for _, h := range seed {
		hospital := h
		r.hospitals[h.ID] = &hospital
		r.order = append(r.order, h.ID)
	}
	return r
}

// DefaultHospitals returns the demo seed data.
func DefaultHospitals() []Hospital {
	return []Hospital{
		{ID: "H001", Name: "St. Mary's General Hospital", CurrentCapacity: 42, MaxCapacity: 50},
		{ID: "H002", Name: "Royal Victoria Infirmary", CurrentCapacity: 61, MaxCapacity: 80},
		{ID: "H003", Name: "Queen's Medical Centre", CurrentCapacity: 55, MaxCapacity: 60},
	}
}

// Get returns the hospital with the given id.
func (r *Registry) Get(id string) (*Hospital, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.hospitals[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *h
	return &copy, nil
}

// List returns all hospitals in registration order.
func (r *Registry) List() []Hospital {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Hospital, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, *r.hospitals[id])
	}
	return result
}

// Admit increments the occupied capacity for a hospital, up to its maximum.
func (r *Registry) Admit(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hospitals[id]
	if !ok {
		return ErrNotFound
	}
	if h.CurrentCapacity < h.MaxCapacity {
		h.CurrentCapacity++
	}
	return nil
}
