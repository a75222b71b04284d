package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ignite/sequence-engine/internal/domain"
)

type eventKey struct {
	messageID string
	kind      domain.EventKind
}

// EventStore is an append-only in-memory delivery event log.
type EventStore struct {
	mu     sync.Mutex
	events []domain.DeliveryEvent
	seen   map[eventKey]struct{}
}

// NewEventStore creates an empty event log.
func NewEventStore() *EventStore {
	return &EventStore{seen: make(map[eventKey]struct{})}
}

func (s *EventStore) Append(_ context.Context, ev *domain.DeliveryEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *ev)
	k := eventKey{messageID: ev.MessageID, kind: ev.Kind}
	if _, dup := s.seen[k]; dup {
		return false, nil
	}
	s.seen[k] = struct{}{}
	return true, nil
}

// ListByMessageIDs returns every stored event for the given messages,
// ordered by occurrence.
func (s *EventStore) ListByMessageIDs(_ context.Context, messageIDs []string) ([]domain.DeliveryEvent, error) {
	want := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		want[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DeliveryEvent
	for _, ev := range s.events {
		if _, ok := want[ev.MessageID]; ok {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

// Len returns the number of stored events, duplicates included.
func (s *EventStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
