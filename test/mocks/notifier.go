package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/frekv/gatekeeper/internal/notifier"
)

var errDeliveryFailed = errors.New("delivery failed")

// SentNotification is one recorded Notify call.
type SentNotification struct {
	PlatformID string
	Event      notifier.Event
}

// MockNotifier is an in-memory mock implementation of the Notifier
// interface, recording every delivered event for assertions.
type MockNotifier struct {
	Sent    []SentNotification
	FailAll bool
	mu      sync.Mutex
}

// NewMockNotifier creates a new mock notifier instance
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// Notify records an event delivery
func (m *MockNotifier) Notify(ctx context.Context, platformID string, event notifier.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAll {
		return errDeliveryFailed
	}
	m.Sent = append(m.Sent, SentNotification{PlatformID: platformID, Event: event})
	return nil
}

// SentTo returns the events delivered to one platform identity
func (m *MockNotifier) SentTo(platformID string) []notifier.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var events []notifier.Event
	for _, s := range m.Sent {
		if s.PlatformID == platformID {
			events = append(events, s.Event)
		}
	}
	return events
}
