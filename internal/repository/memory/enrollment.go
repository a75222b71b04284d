package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/sequence-engine/internal/domain"
	"github.com/ignite/sequence-engine/internal/service/sequence"
)

type enrollmentRecord struct {
	e          domain.Enrollment
	claimToken string
	claimUntil time.Time
}

// EnrollmentStore keeps enrollments and the message index in memory.
type EnrollmentStore struct {
	mu       sync.Mutex
	records  map[string]*enrollmentRecord
	messages map[string]domain.SentMessage
	now      func() time.Time
}

// NewEnrollmentStore creates an empty store.
func NewEnrollmentStore() *EnrollmentStore {
	return &EnrollmentStore{
		records:  make(map[string]*enrollmentRecord),
		messages: make(map[string]domain.SentMessage),
		now:      time.Now,
	}
}

// Put inserts or replaces an enrollment. Enrollment creation belongs to the
// caller; the engine itself never creates enrollments.
func (s *EnrollmentStore) Put(e domain.Enrollment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Status == "" {
		e.Status = domain.EnrollmentActive
	}
	s.records[e.ID] = &enrollmentRecord{e: e}
}

func (s *EnrollmentStore) ListActive(_ context.Context) ([]domain.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Enrollment
	for _, r := range s.records {
		if r.e.Status == domain.EnrollmentActive {
			out = append(out, r.e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *EnrollmentStore) Get(_ context.Context, id string) (*domain.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, domain.ErrEnrollmentNotFound
	}
	cp := r.e
	return &cp, nil
}

func (s *EnrollmentStore) ClaimStep(_ context.Context, c sequence.StepClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[c.EnrollmentID]
	if !ok {
		return domain.ErrEnrollmentNotFound
	}
	if r.e.Status != domain.EnrollmentActive || r.e.CurrentStep != c.StepIndex {
		return domain.ErrStaleEnrollment
	}
	if r.claimToken != "" && c.Now.Before(r.claimUntil) {
		return domain.ErrStaleEnrollment
	}
	r.claimToken = c.Token
	r.claimUntil = c.Until
	return nil
}

func (s *EnrollmentStore) ReleaseClaim(_ context.Context, enrollmentID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[enrollmentID]; ok && r.claimToken == token {
		r.claimToken = ""
		r.claimUntil = time.Time{}
	}
	return nil
}

func (s *EnrollmentStore) CommitStep(_ context.Context, c sequence.StepCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[c.EnrollmentID]
	if !ok {
		return domain.ErrEnrollmentNotFound
	}
	if r.e.CurrentStep != c.StepIndex || r.claimToken != c.Token {
		return domain.ErrStaleEnrollment
	}

	sentAt := c.SentAt
	r.e.CurrentStep++
	r.e.LastSentAt = &sentAt
	r.e.LastMessageID = c.MessageID
	if c.Complete && r.e.Status == domain.EnrollmentActive {
		r.e.Status = domain.EnrollmentCompleted
	}
	r.e.Version++
	r.e.UpdatedAt = s.now()
	r.claimToken = ""
	r.claimUntil = time.Time{}

	s.messages[c.MessageID] = domain.SentMessage{
		MessageID:    c.MessageID,
		EnrollmentID: c.EnrollmentID,
		StepIndex:    c.StepIndex,
		SentAt:       sentAt,
	}
	return nil
}

func (s *EnrollmentStore) Transition(_ context.Context, id string, from []domain.EnrollmentStatus, to domain.EnrollmentStatus, reason domain.ExitReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return domain.ErrEnrollmentNotFound
	}
	if !containsStatus(from, r.e.Status) {
		return domain.ErrStaleEnrollment
	}
	r.e.Status = to
	if to == domain.EnrollmentExited {
		r.e.ExitReason = reason
	}
	r.e.Version++
	r.e.UpdatedAt = s.now()
	return nil
}

func (s *EnrollmentStore) FindByMessageID(_ context.Context, messageID string) (*domain.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return nil, domain.ErrEnrollmentNotFound
	}
	r, ok := s.records[m.EnrollmentID]
	if !ok {
		return nil, domain.ErrEnrollmentNotFound
	}
	cp := r.e
	return &cp, nil
}

func (s *EnrollmentStore) RecordEngagement(_ context.Context, id string, kind domain.EventKind, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return domain.ErrEnrollmentNotFound
	}
	switch kind {
	case domain.EventOpened:
		r.e.OpenCount++
	case domain.EventClicked:
		r.e.ClickCount++
	default:
		return nil
	}
	if r.e.LastEngagedAt == nil || at.After(*r.e.LastEngagedAt) {
		t := at
		r.e.LastEngagedAt = &t
	}
	return nil
}

// Messages returns the message index rows for one enrollment, oldest first.
func (s *EnrollmentStore) Messages(_ context.Context, enrollmentID string) ([]domain.SentMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SentMessage
	for _, m := range s.messages {
		if m.EnrollmentID == enrollmentID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepIndex < out[j].StepIndex })
	return out, nil
}

func containsStatus(set []domain.EnrollmentStatus, s domain.EnrollmentStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
