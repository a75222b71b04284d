package enrollment

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/sequence-engine/internal/domain"
)

// Service provides the operator actions.
type Service struct {
	repo   Repository
	events EventReader
}

// NewService creates an enrollment service.
func NewService(repo Repository, events EventReader) *Service {
	return &Service{repo: repo, events: events}
}

// Get returns one enrollment.
func (s *Service) Get(ctx context.Context, id string) (*domain.Enrollment, error) {
	return s.repo.Get(ctx, id)
}

// History is an enrollment's sent messages and the events they received.
type History struct {
	Messages []domain.SentMessage    `json:"messages"`
	Events   []domain.DeliveryEvent `json:"events"`
}

// History returns every message the enrollment sent and its events.
func (s *Service) History(ctx context.Context, id string) (*History, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	msgs, err := s.repo.Messages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	h := &History{Messages: msgs, Events: []domain.DeliveryEvent{}}
	if len(msgs) == 0 {
		return h, nil
	}

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.MessageID
	}
	evs, err := s.events.ListByMessageIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if evs != nil {
		h.Events = evs
	}
	return h, nil
}

// Pause stops sends for an active enrollment.
func (s *Service) Pause(ctx context.Context, id string) (*domain.Enrollment, error) {
	return s.move(ctx, id, domain.EnrollmentActive, domain.EnrollmentPaused)
}

// Resume re-activates a paused enrollment. Steps whose delay elapsed while
// paused are sent on the next run.
func (s *Service) Resume(ctx context.Context, id string) (*domain.Enrollment, error) {
	return s.move(ctx, id, domain.EnrollmentPaused, domain.EnrollmentActive)
}

func (s *Service) move(ctx context.Context, id string, from, to domain.EnrollmentStatus) (*domain.Enrollment, error) {
	err := s.repo.Transition(ctx, id, []domain.EnrollmentStatus{from}, to, "")
	if errors.Is(err, domain.ErrStaleEnrollment) {
		e, gerr := s.repo.Get(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		if e.Status == to {
			return e, nil
		}
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, e.Status)
	}
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}
