package reconcile

import (
	"context"
	"time"

	"github.com/ignite/sequence-engine/internal/domain"
)

// EventRepository is the append-only delivery event store.
type EventRepository interface {
	// Append stores ev unconditionally and reports whether it is the first
	// event recorded for its (MessageID, Kind) pair.
	Append(ctx context.Context, ev *domain.DeliveryEvent) (bool, error)
}

// EnrollmentRepository is the subset of the enrollment store the
// reconciler writes through.
type EnrollmentRepository interface {
	// FindByMessageID resolves a provider message id to the enrollment that
	// sent it, or returns domain.ErrEnrollmentNotFound.
	FindByMessageID(ctx context.Context, messageID string) (*domain.Enrollment, error)

	// Transition moves the enrollment to status if its current status is
	// one of from, and returns domain.ErrStaleEnrollment otherwise.
	Transition(ctx context.Context, id string, from []domain.EnrollmentStatus, to domain.EnrollmentStatus, reason domain.ExitReason) error

	// RecordEngagement bumps the open or click counter.
	RecordEngagement(ctx context.Context, id string, kind domain.EventKind, at time.Time) error
}
