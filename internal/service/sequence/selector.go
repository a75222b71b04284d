package sequence

import (
	"time"

	"github.com/ignite/sequence-engine/internal/domain"
)

// SelectionKind is the outcome of SelectStep.
type SelectionKind int

const (
	NoStepDue SelectionKind = iota
	StepDue
	SequenceComplete
)

func (k SelectionKind) String() string {
	switch k {
	case StepDue:
		return "step_due"
	case SequenceComplete:
		return "sequence_complete"
	default:
		return "no_step_due"
	}
}

// Selection is the result of SelectStep. Index and DueAt describe the next
// step for StepDue and NoStepDue; both are zero for SequenceComplete.
type Selection struct {
	Kind  SelectionKind
	Index int
	DueAt time.Time
}

// SelectStep decides what the scheduler should do with an enrollment at now.
// It is pure and safe to call any number of times.
//
// Step 0 is anchored on the enrollment's creation. Later steps are anchored
// on the previous send unless the step asks for the enrollment anchor.
func SelectStep(now time.Time, e *domain.Enrollment, seq *domain.Sequence) Selection {
	idx := e.CurrentStep
	if idx < 0 {
		idx = 0
	}
	if idx >= len(seq.Steps) {
		return Selection{Kind: SequenceComplete}
	}

	step := seq.Steps[idx]
	dueAt := anchorFor(e, step, idx).Add(step.Delay)
	if now.Before(dueAt) {
		return Selection{Kind: NoStepDue, Index: idx, DueAt: dueAt}
	}
	return Selection{Kind: StepDue, Index: idx, DueAt: dueAt}
}

func anchorFor(e *domain.Enrollment, step domain.Step, idx int) time.Time {
	if idx == 0 || step.Anchor == domain.AnchorEnrollment {
		return e.CreatedAt
	}
	if e.LastSentAt == nil {
		// A later step without a recorded send only happens with imported
		// data; fall back to the enrollment anchor.
		return e.CreatedAt
	}
	return *e.LastSentAt
}
