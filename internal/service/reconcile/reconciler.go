package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/sequence-engine/internal/domain"
	"github.com/ignite/sequence-engine/internal/pkg/logger"
)

// Outcome describes what Apply did with one webhook.
type Outcome string

const (
	OutcomeIgnored    Outcome = "ignored"    // unknown event kind
	OutcomeUnresolved Outcome = "unresolved" // no enrollment for the message
	OutcomeExited     Outcome = "exited"     // enrollment stopped
	OutcomeEngaged    Outcome = "engaged"    // counters updated
	OutcomeNoop       Outcome = "noop"       // duplicate, terminal, or swallowed failure
)

// Result is returned by Apply for logging and tests.
type Result struct {
	Kind         domain.EventKind `json:"kind"`
	Outcome      Outcome          `json:"outcome"`
	First        bool             `json:"first"`
	EnrollmentID string           `json:"enrollment_id,omitempty"`
}

// Reconciler applies delivery events to enrollments. It is safe for
// concurrent use with itself and with the scheduler.
type Reconciler struct {
	events      EventRepository
	enrollments EnrollmentRepository
	now         func() time.Time
	log         *logger.Logger
}

// NewReconciler creates a reconciler. A nil log uses the default logger.
func NewReconciler(events EventRepository, enrollments EnrollmentRepository, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.Default()
	}
	return &Reconciler{
		events:      events,
		enrollments: enrollments,
		now:         time.Now,
		log:         log.With("component", "reconciler"),
	}
}

// WithClock overrides the time source. Intended for tests.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Handle parses and applies a raw webhook body. Only ErrValidation and
// ErrEventStore are returned; everything after the append is best effort.
func (r *Reconciler) Handle(ctx context.Context, body []byte) (Result, error) {
	w, err := ParseWebhook(body)
	if err != nil {
		return Result{}, err
	}
	return r.Apply(ctx, w)
}

// Apply records and applies one parsed webhook.
func (r *Reconciler) Apply(ctx context.Context, w *Webhook) (Result, error) {
	res := Result{Kind: w.Kind}
	if !w.Kind.Known() {
		r.log.Info("ignoring unhandled event type", "type", w.RawKind)
		res.Outcome = OutcomeIgnored
		return res, nil
	}

	now := r.now()
	occurred := w.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}

	ev := &domain.DeliveryEvent{
		ID:         uuid.New().String(),
		MessageID:  w.MessageID,
		Kind:       w.Kind,
		RawKind:    w.RawKind,
		OccurredAt: occurred,
		ReceivedAt: now,
		Payload:    w.Raw,
	}
	first, err := r.events.Append(ctx, ev)
	if err != nil {
		r.log.Error("append delivery event failed", "message_id", w.MessageID, "kind", w.Kind, "error", err)
		return res, fmt.Errorf("%w: %v", ErrEventStore, err)
	}
	res.First = first

	log := r.log.With("message_id", w.MessageID, "kind", string(w.Kind))

	e, err := r.enrollments.FindByMessageID(ctx, w.MessageID)
	if errors.Is(err, domain.ErrEnrollmentNotFound) {
		log.Debug("no enrollment for message")
		res.Outcome = OutcomeUnresolved
		return res, nil
	}
	if err != nil {
		log.Error("resolve enrollment failed", "error", err)
		res.Outcome = OutcomeNoop
		return res, nil
	}
	res.EnrollmentID = e.ID
	log = log.With("enrollment_id", e.ID)

	if reason, exits := w.Kind.ExitReason(); exits {
		res.Outcome = r.exit(ctx, log, e, reason)
		return res, nil
	}

	if !first {
		res.Outcome = OutcomeNoop
		return res, nil
	}
	if err := r.enrollments.RecordEngagement(ctx, e.ID, w.Kind, occurred); err != nil {
		log.Error("record engagement failed", "error", err)
		res.Outcome = OutcomeNoop
		return res, nil
	}
	res.Outcome = OutcomeEngaged
	return res, nil
}

// exit stops future sends. Completed and exited enrollments stay as they are.
func (r *Reconciler) exit(ctx context.Context, log *logger.Logger, e *domain.Enrollment, reason domain.ExitReason) Outcome {
	if e.IsTerminal() {
		return OutcomeNoop
	}
	err := r.enrollments.Transition(ctx, e.ID,
		[]domain.EnrollmentStatus{domain.EnrollmentActive, domain.EnrollmentPaused},
		domain.EnrollmentExited, reason)
	switch {
	case err == nil:
		log.Info("enrollment exited", "reason", string(reason))
		return OutcomeExited
	case errors.Is(err, domain.ErrStaleEnrollment):
		return OutcomeNoop
	default:
		log.Error("exit enrollment failed", "error", err)
		return OutcomeNoop
	}
}
