package domain

import (
	"errors"
	"testing"
	"time"
)

func TestSequenceValidate(t *testing.T) {
	tests := []struct {
		name    string
		steps   []Step
		wantErr bool
	}{
		{
			name:  "two ordered steps",
			steps: []Step{{Position: 0}, {Position: 1, Delay: 24 * time.Hour, Anchor: AnchorPrevious}},
		},
		{name: "no steps", wantErr: true},
		{
			name:    "duplicate position",
			steps:   []Step{{Position: 0}, {Position: 0}},
			wantErr: true,
		},
		{
			name:    "gap in positions",
			steps:   []Step{{Position: 0}, {Position: 2}},
			wantErr: true,
		},
		{
			name:    "negative delay",
			steps:   []Step{{Position: 0, Delay: -time.Second}},
			wantErr: true,
		},
		{
			name:    "unknown anchor",
			steps:   []Step{{Position: 0, Anchor: "tomorrow"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Sequence{ID: "seq-1", Steps: tt.steps}
			err := s.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSequence) {
					t.Fatalf("Validate() = %v, want ErrInvalidSequence", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestParseEventKind(t *testing.T) {
	tests := map[string]EventKind{
		"email.opened":     EventOpened,
		"email.clicked":    EventClicked,
		"email.replied":    EventReplied,
		"email.bounced":    EventBounced,
		"email.complained": EventComplained,
		"Email.Opened":     EventOpened,
		"replied":          EventReplied,
		"email.unknown":    EventUnknown,
		"email.delivered":  EventUnknown,
		"":                 EventUnknown,
	}
	for raw, want := range tests {
		if got := ParseEventKind(raw); got != want {
			t.Errorf("ParseEventKind(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestEventKindExitReason(t *testing.T) {
	if r, ok := EventReplied.ExitReason(); !ok || r != ExitReplied {
		t.Errorf("replied: got (%s, %v)", r, ok)
	}
	if _, ok := EventOpened.ExitReason(); ok {
		t.Error("opened must not exit an enrollment")
	}
	if _, ok := EventClicked.ExitReason(); ok {
		t.Error("clicked must not exit an enrollment")
	}
	if EventUnknown.Known() {
		t.Error("unknown kind reported as known")
	}
}

func TestEnrollmentIsTerminal(t *testing.T) {
	for status, want := range map[EnrollmentStatus]bool{
		EnrollmentActive:    false,
		EnrollmentPaused:    false,
		EnrollmentCompleted: true,
		EnrollmentExited:    true,
	} {
		e := &Enrollment{Status: status}
		if got := e.IsTerminal(); got != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", status, got, want)
		}
	}
}
