package simulations

import (
	"context"
	"sync"

	"github.com/elys-network/fundmanager/internal/types"
)

// RecordingSink keeps published events in memory.
type RecordingSink struct {
	mu     sync.Mutex
	events []types.Event
}

func (s *RecordingSink) Publish(_ context.Context, events []types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *RecordingSink) Events() []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Event(nil), s.events...)
}

// Kinds returns the kinds of the recorded events in order.
func (s *RecordingSink) Kinds() []types.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]types.EventKind, len(s.events))
	for i, e := range s.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func (s *RecordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
