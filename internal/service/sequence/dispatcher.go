package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ignite/sequence-engine/internal/domain"
)

// Message is one fully resolved email ready for a Sender.
type Message struct {
	To             string
	Subject        string
	HTMLContent    string
	TextContent    string
	ContentRef     string
	IdempotencyKey string
	Tags           map[string]string
}

// Sender delivers a message through an email provider and returns the
// provider-assigned message id. Errors that implement
// interface{ Temporary() bool } and report false are treated as permanent;
// every other error is treated as transient.
type Sender interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// Content is the rendered body a content reference points to.
type Content struct {
	Subject     string
	HTMLContent string
	TextContent string
}

// ContentResolver turns a step's content reference into sendable content.
type ContentResolver interface {
	Resolve(ctx context.Context, ref string) (*Content, error)
}

// Dispatcher sends one step of one enrollment. It never writes enrollment
// state; the scheduler commits only after Dispatch returns a message id.
type Dispatcher struct {
	sender  Sender
	content ContentResolver
}

// NewDispatcher creates a dispatcher over the given sender and resolver.
func NewDispatcher(sender Sender, content ContentResolver) *Dispatcher {
	return &Dispatcher{sender: sender, content: content}
}

// IdempotencyKey identifies one step of one enrollment across retries.
func IdempotencyKey(enrollmentID string, step int) string {
	return enrollmentID + "/" + strconv.Itoa(step)
}

// Dispatch sends step index of seq to the enrollment's contact. Failures are
// wrapped in ErrTransientDispatch or ErrPermanentDispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, e *domain.Enrollment, seq *domain.Sequence, index int) (string, error) {
	if index < 0 || index >= len(seq.Steps) {
		return "", fmt.Errorf("%w: step %d out of range for sequence %s", ErrPermanentDispatch, index, seq.ID)
	}
	if e.Email == "" {
		return "", fmt.Errorf("%w: enrollment %s has no recipient", ErrPermanentDispatch, e.ID)
	}
	step := seq.Steps[index]

	content, err := d.content.Resolve(ctx, step.ContentRef)
	if err != nil {
		// A missing template can be fixed by an operator, so it is retried.
		return "", fmt.Errorf("%w: resolve content %q: %v", ErrTransientDispatch, step.ContentRef, err)
	}

	msg := &Message{
		To:             e.Email,
		Subject:        content.Subject,
		HTMLContent:    content.HTMLContent,
		TextContent:    content.TextContent,
		ContentRef:     step.ContentRef,
		IdempotencyKey: IdempotencyKey(e.ID, index),
		Tags: map[string]string{
			"enrollment_id": e.ID,
			"sequence_id":   seq.ID,
			"step":          strconv.Itoa(index),
		},
	}

	messageID, err := d.sender.Send(ctx, msg)
	if err != nil {
		if isPermanent(err) {
			return "", fmt.Errorf("%w: %v", ErrPermanentDispatch, err)
		}
		return "", fmt.Errorf("%w: %v", ErrTransientDispatch, err)
	}
	if messageID == "" {
		return "", fmt.Errorf("%w: provider returned no message id", ErrTransientDispatch)
	}
	return messageID, nil
}

func isPermanent(err error) bool {
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return !t.Temporary()
	}
	return false
}
