package enrollment

import (
	"context"

	"github.com/ignite/sequence-engine/internal/domain"
)

// Repository is the enrollment data the operator service reads and writes.
type Repository interface {
	Get(ctx context.Context, id string) (*domain.Enrollment, error)
	Messages(ctx context.Context, enrollmentID string) ([]domain.SentMessage, error)
	Transition(ctx context.Context, id string, from []domain.EnrollmentStatus, to domain.EnrollmentStatus, reason domain.ExitReason) error
}

// EventReader lists stored delivery events.
type EventReader interface {
	ListByMessageIDs(ctx context.Context, messageIDs []string) ([]domain.DeliveryEvent, error)
}
