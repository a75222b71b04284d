package enrollment

import "errors"

// ErrInvalidTransition is returned when pause or resume does not apply to
// the enrollment's current status.
var ErrInvalidTransition = errors.New("invalid status transition")
