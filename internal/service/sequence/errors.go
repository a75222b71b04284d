package sequence

import "errors"

// Sentinel errors for the sequence service layer.
var (
	// ErrTransientDispatch marks a send that may succeed on a later tick.
	ErrTransientDispatch = errors.New("transient dispatch failure")
	// ErrPermanentDispatch marks a send the provider will never accept.
	ErrPermanentDispatch = errors.New("permanent dispatch failure")
	// ErrPersistence aborts a whole scheduler run during its read phase.
	ErrPersistence = errors.New("enrollment store unavailable")
)
