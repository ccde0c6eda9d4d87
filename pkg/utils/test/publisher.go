package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/strata/pkg/eventstream"
)

// MockPublisher records published events.
type MockPublisher struct {
	mu     sync.Mutex
	events []*eventstream.MemoryEvent
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(_ context.Context, event *eventstream.MemoryEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

// Events returns the recorded events.
func (m *MockPublisher) Events() []*eventstream.MemoryEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*eventstream.MemoryEvent(nil), m.events...)
}

// EventTypes returns the recorded event types in publish order.
func (m *MockPublisher) EventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	types := make([]string, len(m.events))
	for i, e := range m.events {
		types[i] = e.EventType
	}
	return types
}
