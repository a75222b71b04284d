package domain

import (
	"errors"
	"fmt"
	"time"
)

// DelayAnchor selects the reference time a step's delay is measured from.
type DelayAnchor string

const (
	// AnchorEnrollment measures the delay from the enrollment's creation.
	AnchorEnrollment DelayAnchor = "enrollment"
	// AnchorPrevious measures the delay from the previous step's send.
	AnchorPrevious DelayAnchor = "previous"
)

// Step is one scheduled email within a sequence.
type Step struct {
	Position   int           `json:"position" db:"position"`
	Delay      time.Duration `json:"delay" db:"delay_seconds"`
	Anchor     DelayAnchor   `json:"anchor" db:"anchor"`
	ContentRef string        `json:"content_ref" db:"content_ref"`
}

// Sequence is an immutable drip-campaign template. Steps are ordered by
// Position, which starts at 0 and has no gaps.
type Sequence struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	Steps          []Step    `json:"steps"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// ErrInvalidSequence is returned by Sequence.Validate.
var ErrInvalidSequence = errors.New("invalid sequence definition")

// Validate checks that steps form a total order starting at position 0.
func (s *Sequence) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("%w: sequence %s has no steps", ErrInvalidSequence, s.ID)
	}
	for i, st := range s.Steps {
		if st.Position != i {
			return fmt.Errorf("%w: step %d has position %d", ErrInvalidSequence, i, st.Position)
		}
		if st.Delay < 0 {
			return fmt.Errorf("%w: step %d has negative delay", ErrInvalidSequence, i)
		}
		switch st.Anchor {
		case AnchorEnrollment, AnchorPrevious, "":
		default:
			return fmt.Errorf("%w: step %d has unknown anchor %q", ErrInvalidSequence, i, st.Anchor)
		}
	}
	return nil
}

// Len returns the number of steps.
func (s *Sequence) Len() int { return len(s.Steps) }

// IsLast reports whether index is the final step.
func (s *Sequence) IsLast(index int) bool { return index == len(s.Steps)-1 }
