package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// EventKind is the closed set of delivery event kinds the engine acts on.
// Anything else parses to EventUnknown and keeps its raw type string.
type EventKind string

const (
	EventOpened     EventKind = "opened"
	EventClicked    EventKind = "clicked"
	EventReplied    EventKind = "replied"
	EventBounced    EventKind = "bounced"
	EventComplained EventKind = "complained"
	EventUnknown    EventKind = "unknown"
)

// ParseEventKind maps a provider webhook type ("email.opened") to an
// EventKind. The "email." prefix is optional.
func ParseEventKind(raw string) EventKind {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), "email.") {
	case "opened":
		return EventOpened
	case "clicked":
		return EventClicked
	case "replied":
		return EventReplied
	case "bounced":
		return EventBounced
	case "complained":
		return EventComplained
	default:
		return EventUnknown
	}
}

// Known reports whether the engine has a handler for the kind.
func (k EventKind) Known() bool { return k != EventUnknown && k != "" }

// ExitReason returns the reason an event of this kind terminates an
// enrollment, or false if the kind only updates engagement.
func (k EventKind) ExitReason() (ExitReason, bool) {
	switch k {
	case EventReplied:
		return ExitReplied, true
	case EventBounced:
		return ExitBounced, true
	case EventComplained:
		return ExitComplained, true
	}
	return "", false
}

// DeliveryEvent is an immutable fact reported by the email provider. The
// same (MessageID, Kind) pair may be stored more than once.
type DeliveryEvent struct {
	ID         string          `json:"id" db:"id"`
	MessageID  string          `json:"message_id" db:"message_id"`
	Kind       EventKind       `json:"kind" db:"kind"`
	RawKind    string          `json:"raw_kind" db:"raw_kind"`
	OccurredAt time.Time       `json:"occurred_at" db:"occurred_at"`
	ReceivedAt time.Time       `json:"received_at" db:"received_at"`
	Payload    json.RawMessage `json:"payload" db:"payload"`
}
