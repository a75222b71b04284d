package domain

import "time"

// EnrollmentStatus enumerates the lifecycle states of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentPaused    EnrollmentStatus = "paused"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentExited    EnrollmentStatus = "exited"
)

// ExitReason records why an enrollment left its sequence early.
type ExitReason string

const (
	ExitReplied    ExitReason = "replied"
	ExitBounced    ExitReason = "bounced"
	ExitComplained ExitReason = "complained"
	ExitSendFailed ExitReason = "send_failed"
)

// Enrollment is one contact's progress through one sequence.
//
// CurrentStep counts the steps already sent, so it is also the index of the
// next step to send. Version increases on every committed write and is the
// compare-and-set token for status transitions.
type Enrollment struct {
	ID            string           `json:"id" db:"id"`
	SequenceID    string           `json:"sequence_id" db:"sequence_id"`
	ContactID     string           `json:"contact_id" db:"contact_id"`
	Email         string           `json:"email" db:"email"`
	CurrentStep   int              `json:"current_step" db:"current_step"`
	Status        EnrollmentStatus `json:"status" db:"status"`
	ExitReason    ExitReason       `json:"exit_reason,omitempty" db:"exit_reason"`
	LastSentAt    *time.Time       `json:"last_sent_at" db:"last_sent_at"`
	LastMessageID string           `json:"last_message_id,omitempty" db:"last_message_id"`
	Version       int64            `json:"version" db:"version"`

	// Engagement counters, updated by the reconciler only.
	OpenCount     int        `json:"open_count" db:"open_count"`
	ClickCount    int        `json:"click_count" db:"click_count"`
	LastEngagedAt *time.Time `json:"last_engaged_at" db:"last_engaged_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the enrollment will never send again.
func (e *Enrollment) IsTerminal() bool {
	return e.Status == EnrollmentCompleted || e.Status == EnrollmentExited
}

// SentMessage links a provider message id to the enrollment step that
// produced it. It is written when a step commits and never changes.
type SentMessage struct {
	MessageID    string    `json:"message_id" db:"message_id"`
	EnrollmentID string    `json:"enrollment_id" db:"enrollment_id"`
	StepIndex    int       `json:"step_index" db:"step_index"`
	SentAt       time.Time `json:"sent_at" db:"sent_at"`
}
