package sequence

import (
	"context"
	"time"

	"github.com/ignite/sequence-engine/internal/domain"
)

// EnrollmentRepository is the data access contract the scheduler needs.
// Every write is a single atomic compare-and-set on one enrollment; a lost
// race returns domain.ErrStaleEnrollment. Implementations must be safe for
// concurrent use.
type EnrollmentRepository interface {
	// ListActive returns every enrollment with status active.
	ListActive(ctx context.Context) ([]domain.Enrollment, error)

	// Get returns one enrollment or domain.ErrEnrollmentNotFound.
	Get(ctx context.Context, id string) (*domain.Enrollment, error)

	// ClaimStep reserves step for dispatch. It succeeds only while the
	// enrollment is active, still at step, and holds no unexpired claim.
	ClaimStep(ctx context.Context, c StepClaim) error

	// ReleaseClaim drops a claim held under token. Releasing a claim that
	// is no longer held is not an error.
	ReleaseClaim(ctx context.Context, enrollmentID, token string) error

	// CommitStep records a successful send: advances the step, stores the
	// message id and its index row, and clears the claim. It succeeds only
	// while the enrollment is still at the claimed step under token, even
	// if its status changed since the claim; a non-active status is kept.
	CommitStep(ctx context.Context, c StepCommit) error

	// Transition moves the enrollment to status if its current status is
	// one of from. A held claim survives so an in-flight send can still
	// commit its step and message index.
	Transition(ctx context.Context, id string, from []domain.EnrollmentStatus, to domain.EnrollmentStatus, reason domain.ExitReason) error
}

// SequenceRepository loads immutable sequence definitions.
type SequenceRepository interface {
	// Get returns the sequence or domain.ErrSequenceNotFound.
	Get(ctx context.Context, id string) (*domain.Sequence, error)
}

// StepClaim reserves one step of one enrollment for a single dispatcher.
type StepClaim struct {
	EnrollmentID string
	StepIndex    int
	Token        string
	Now          time.Time
	Until        time.Time
}

// StepCommit is the write that follows a successful send. Complete marks
// the enrollment completed when StepIndex was the final step and the
// enrollment is still active.
type StepCommit struct {
	EnrollmentID string
	StepIndex    int
	Token        string
	MessageID    string
	SentAt       time.Time
	Complete     bool
}
