package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/sequence-engine/internal/domain"
)

// Webhook is a parsed provider callback.
type Webhook struct {
	Kind       domain.EventKind
	RawKind    string
	MessageID  string
	OccurredAt time.Time
	Raw        json.RawMessage
}

// envelope is decoded first so that unrecognized types never reach the
// typed decode of data.
type envelope struct {
	Type      json.RawMessage `json:"type"`
	CreatedAt json.RawMessage `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

type emailData struct {
	EmailID   json.RawMessage `json:"email_id"`
	CreatedAt json.RawMessage `json:"created_at"`
}

// ParseWebhook decodes `{type, created_at?, data: {email_id, created_at?}}`.
// Unknown types parse successfully with Kind EventUnknown whatever their
// data looks like. A zero OccurredAt means the payload carried no usable
// timestamp; malformed timestamps are ignored.
func ParseWebhook(body []byte) (*Webhook, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrValidation)
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	kind, ok := jsonString(env.Type)
	if !ok || kind == "" {
		return nil, fmt.Errorf("%w: missing type", ErrValidation)
	}

	w := &Webhook{
		Kind:    domain.ParseEventKind(kind),
		RawKind: kind,
		Raw:     json.RawMessage(trimmed),
	}
	if !w.Kind.Known() {
		return w, nil
	}

	var data emailData
	if d := bytes.TrimSpace(env.Data); len(d) == 0 || d[0] != '{' || json.Unmarshal(d, &data) != nil {
		return nil, fmt.Errorf("%w: %s without a data object", ErrValidation, kind)
	}
	id, ok := jsonString(data.EmailID)
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: %s without data.email_id", ErrValidation, kind)
	}
	w.MessageID = id

	for _, raw := range []json.RawMessage{env.CreatedAt, data.CreatedAt} {
		if t, ok := parseTimestamp(raw); ok {
			w.OccurredAt = t
			break
		}
	}
	return w, nil
}

// jsonString returns the trimmed value of a JSON string literal.
func jsonString(raw json.RawMessage) (string, bool) {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}

func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	s, ok := jsonString(raw)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999-07", "2006-01-02 15:04:05.999999+00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
