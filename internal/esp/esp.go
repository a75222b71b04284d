// Package esp adapts email service providers to sequence.Sender.
//
// Each adapter returns the provider's message id on success. Failures are
// returned as *SendError, whose Temporary method tells the dispatcher
// whether the step should be retried on a later run.
package esp

import (
	"fmt"

	"github.com/ignite/sequence-engine/internal/service/sequence"
)

// SendError is a classified provider failure.
type SendError struct {
	Provider  string
	Status    int
	Message   string
	Transient bool
}

func (e *SendError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Temporary reports whether retrying the send may succeed.
func (e *SendError) Temporary() bool { return e.Transient }

var (
	_ sequence.Sender = (*ResendSender)(nil)
	_ sequence.Sender = (*SESSender)(nil)
)
