package session

import (
	"context"
	"sync"
)

// Static is a Provider whose state is set programmatically
type Static struct {
	mu     sync.Mutex
	active bool
	notify func(bool)
}

// NewStatic creates a provider with the given initial state
func NewStatic(active bool) *Static {
	return &Static{active: active}
}

// Start returns the current state and remembers notify
func (s *Static) Start(ctx context.Context, notify func(active bool)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = notify
	return s.active, nil
}

// SetActive changes the state and notifies a started gate
func (s *Static) SetActive(active bool) {
	s.mu.Lock()
	s.active = active
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		notify(active)
	}
}

// Active returns the current state
func (s *Static) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
