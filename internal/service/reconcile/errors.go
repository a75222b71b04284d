package reconcile

import "errors"

// Sentinel errors for the reconcile service layer.
var (
	// ErrValidation marks a webhook payload that can never be applied.
	ErrValidation = errors.New("invalid webhook payload")
	// ErrEventStore means the event could not be recorded; the provider
	// should retry the delivery.
	ErrEventStore = errors.New("event store unavailable")
)
