package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ignite/sequence-engine/internal/domain"
	"github.com/ignite/sequence-engine/internal/service/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestClaimStep(t *testing.T) {
	ctx := context.Background()
	s := NewEnrollmentStore()
	s.Put(domain.Enrollment{ID: "e1", SequenceID: "s1"})

	claim := sequence.StepClaim{EnrollmentID: "e1", StepIndex: 0, Token: "a", Now: t0, Until: t0.Add(time.Minute)}
	require.NoError(t, s.ClaimStep(ctx, claim))

	other := claim
	other.Token = "b"
	assert.ErrorIs(t, s.ClaimStep(ctx, other), domain.ErrStaleEnrollment, "unexpired claim blocks")

	other.Now = t0.Add(time.Minute)
	other.Until = other.Now.Add(time.Minute)
	require.NoError(t, s.ClaimStep(ctx, other), "expired claim can be taken over")

	// The first holder lost its claim and cannot commit.
	err := s.CommitStep(ctx, sequence.StepCommit{EnrollmentID: "e1", StepIndex: 0, Token: "a", MessageID: "m1", SentAt: t0})
	assert.ErrorIs(t, err, domain.ErrStaleEnrollment)

	wrongStep := other
	wrongStep.StepIndex = 1
	assert.ErrorIs(t, s.ClaimStep(ctx, wrongStep), domain.ErrStaleEnrollment)

	missing := claim
	missing.EnrollmentID = "nope"
	assert.ErrorIs(t, s.ClaimStep(ctx, missing), domain.ErrEnrollmentNotFound)
}

func TestReleaseClaimOnlyByHolder(t *testing.T) {
	ctx := context.Background()
	s := NewEnrollmentStore()
	s.Put(domain.Enrollment{ID: "e1"})
	require.NoError(t, s.ClaimStep(ctx, sequence.StepClaim{EnrollmentID: "e1", Token: "a", Now: t0, Until: t0.Add(time.Hour)}))

	require.NoError(t, s.ReleaseClaim(ctx, "e1", "b"))
	assert.Error(t, s.ClaimStep(ctx, sequence.StepClaim{EnrollmentID: "e1", Token: "c", Now: t0, Until: t0.Add(time.Hour)}))

	require.NoError(t, s.ReleaseClaim(ctx, "e1", "a"))
	assert.NoError(t, s.ClaimStep(ctx, sequence.StepClaim{EnrollmentID: "e1", Token: "c", Now: t0, Until: t0.Add(time.Hour)}))
}

func TestCommitStepIndexesMessage(t *testing.T) {
	ctx := context.Background()
	s := NewEnrollmentStore()
	s.Put(domain.Enrollment{ID: "e1", CreatedAt: t0})

	for step, id := range []string{"m1", "m2"} {
		require.NoError(t, s.ClaimStep(ctx, sequence.StepClaim{EnrollmentID: "e1", StepIndex: step, Token: id, Now: t0, Until: t0.Add(time.Minute)}))
		require.NoError(t, s.CommitStep(ctx, sequence.StepCommit{
			EnrollmentID: "e1", StepIndex: step, Token: id, MessageID: id,
			SentAt: t0.Add(time.Duration(step) * time.Hour), Complete: step == 1,
		}))
	}

	e, err := s.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 2, e.CurrentStep)
	assert.Equal(t, domain.EnrollmentCompleted, e.Status)
	assert.Equal(t, "m2", e.LastMessageID)
	assert.Equal(t, int64(2), e.Version)

	byFirst, err := s.FindByMessageID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "e1", byFirst.ID)

	msgs, err := s.Messages(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].MessageID)

	_, err = s.FindByMessageID(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrEnrollmentNotFound)
}

func TestListActiveReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewEnrollmentStore()
	s.Put(domain.Enrollment{ID: "late", CreatedAt: t0.Add(time.Hour)})
	s.Put(domain.Enrollment{ID: "early", CreatedAt: t0})
	s.Put(domain.Enrollment{ID: "paused", Status: domain.EnrollmentPaused})

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "early", active[0].ID)

	active[0].CurrentStep = 9
	e, _ := s.Get(ctx, "early")
	assert.Zero(t, e.CurrentStep)
}

func TestRecordEngagement(t *testing.T) {
	ctx := context.Background()
	s := NewEnrollmentStore()
	s.Put(domain.Enrollment{ID: "e1"})

	require.NoError(t, s.RecordEngagement(ctx, "e1", domain.EventClicked, t0.Add(time.Hour)))
	require.NoError(t, s.RecordEngagement(ctx, "e1", domain.EventOpened, t0))
	require.NoError(t, s.RecordEngagement(ctx, "e1", domain.EventReplied, t0.Add(2*time.Hour)))

	e, _ := s.Get(ctx, "e1")
	assert.Equal(t, 1, e.OpenCount)
	assert.Equal(t, 1, e.ClickCount)
	assert.True(t, e.LastEngagedAt.Equal(t0.Add(time.Hour)))
}

func TestEventStoreFirsts(t *testing.T) {
	ctx := context.Background()
	s := NewEventStore()

	first, err := s.Append(ctx, &domain.DeliveryEvent{ID: "1", MessageID: "m1", Kind: domain.EventOpened, OccurredAt: t0.Add(time.Minute)})
	require.NoError(t, err)
	assert.True(t, first)

	first, _ = s.Append(ctx, &domain.DeliveryEvent{ID: "2", MessageID: "m1", Kind: domain.EventOpened, OccurredAt: t0})
	assert.False(t, first)

	first, _ = s.Append(ctx, &domain.DeliveryEvent{ID: "3", MessageID: "m1", Kind: domain.EventClicked, OccurredAt: t0})
	assert.True(t, first)

	assert.Equal(t, 3, s.Len())
	evs, err := s.ListByMessageIDs(ctx, []string{"m1", "m9"})
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.Equal(t, "2", evs[0].ID)
}

func TestSequenceStore(t *testing.T) {
	ctx := context.Background()
	s := NewSequenceStore()

	assert.ErrorIs(t, s.Put(domain.Sequence{ID: "empty"}), domain.ErrInvalidSequence)
	require.NoError(t, s.Put(domain.Sequence{ID: "s1", Steps: []domain.Step{{ContentRef: "welcome"}}}))

	seq, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, seq.Len())

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSequenceNotFound)

	s.PutContent("welcome", sequence.Content{Subject: "Hi"})
	c, err := s.Resolve(ctx, "welcome")
	require.NoError(t, err)
	assert.Equal(t, "Hi", c.Subject)

	_, err = s.Resolve(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrContentNotFound)
}
