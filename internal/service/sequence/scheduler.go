package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/sequence-engine/internal/domain"
	"github.com/ignite/sequence-engine/internal/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConcurrency bounds the number of enrollments processed at once.
	DefaultConcurrency = 16
	// DefaultClaimTTL is how long a dispatch claim blocks other runs. A run
	// that crashes between send and commit is retried after this much time.
	DefaultClaimTTL = 5 * time.Minute
)

// Summary is the outcome of one scheduler run.
type Summary struct {
	Processed int       `json:"processed"`
	Sent      int       `json:"sent"`
	Errored   int       `json:"errored"`
	Completed int       `json:"completed"`
	Skipped   int       `json:"skipped"`
	Timestamp time.Time `json:"timestamp"`
}

// Options tunes a Scheduler. Zero values select the defaults.
type Options struct {
	Concurrency int
	ClaimTTL    time.Duration
	Now         func() time.Time
	Logger      *logger.Logger
}

// Scheduler advances active enrollments through their sequences. A run is a
// stateless unit of work; overlapping runs are safe because every write is a
// compare-and-set on a single enrollment.
type Scheduler struct {
	enrollments EnrollmentRepository
	sequences   SequenceRepository
	dispatcher  *Dispatcher
	concurrency int
	claimTTL    time.Duration
	now         func() time.Time
	newToken    func() string
	log         *logger.Logger
}

// NewScheduler creates a scheduler over the given stores and dispatcher.
func NewScheduler(enrollments EnrollmentRepository, sequences SequenceRepository, dispatcher *Dispatcher, opts Options) *Scheduler {
	s := &Scheduler{
		enrollments: enrollments,
		sequences:   sequences,
		dispatcher:  dispatcher,
		concurrency: opts.Concurrency,
		claimTTL:    opts.ClaimTTL,
		now:         opts.Now,
		newToken:    func() string { return uuid.New().String() },
		log:         opts.Logger,
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	if s.claimTTL <= 0 {
		s.claimTTL = DefaultClaimTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = logger.Default()
	}
	s.log = s.log.With("component", "scheduler")
	return s
}

type runCounters struct {
	sent, errored, completed, skipped int64
}

// RunOnce loads every active enrollment and processes each independently on
// a bounded pool of workers. Only a failure to load enrollments aborts the
// run; per-enrollment failures are counted and logged.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	runAt := s.now()

	active, err := s.enrollments.ListActive(ctx)
	if err != nil {
		s.log.Error("load active enrollments failed", "error", err)
		return Summary{Timestamp: runAt}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	var (
		c     runCounters
		cache = newSequenceMemo(s.sequences)
		g     errgroup.Group
	)
	g.SetLimit(s.concurrency)
	for i := range active {
		e := active[i]
		g.Go(func() error {
			s.process(ctx, &e, runAt, cache, &c)
			return nil
		})
	}
	_ = g.Wait()

	sum := Summary{
		Processed: len(active),
		Sent:      int(atomic.LoadInt64(&c.sent)),
		Errored:   int(atomic.LoadInt64(&c.errored)),
		Completed: int(atomic.LoadInt64(&c.completed)),
		Skipped:   int(atomic.LoadInt64(&c.skipped)),
		Timestamp: runAt,
	}
	s.log.Info("run finished",
		"processed", sum.Processed, "sent", sum.Sent, "errored", sum.Errored,
		"completed", sum.Completed, "skipped", sum.Skipped,
		"duration", s.now().Sub(runAt).String())
	return sum, nil
}

func (s *Scheduler) process(ctx context.Context, e *domain.Enrollment, runAt time.Time, seqs *sequenceMemo, c *runCounters) {
	log := s.log.With("enrollment_id", e.ID, "sequence_id", e.SequenceID)

	// ListActive may race with a status change; never act on anything else.
	if e.Status != domain.EnrollmentActive {
		atomic.AddInt64(&c.skipped, 1)
		return
	}

	seq, err := seqs.get(ctx, e.SequenceID)
	if err != nil {
		atomic.AddInt64(&c.errored, 1)
		log.Error("load sequence failed", "error", err)
		return
	}

	sel := SelectStep(runAt, e, seq)
	switch sel.Kind {
	case NoStepDue:
		atomic.AddInt64(&c.skipped, 1)

	case SequenceComplete:
		err := s.enrollments.Transition(ctx, e.ID,
			[]domain.EnrollmentStatus{domain.EnrollmentActive}, domain.EnrollmentCompleted, "")
		switch {
		case err == nil:
			atomic.AddInt64(&c.completed, 1)
			log.Info("enrollment completed", "steps", seq.Len())
		case errors.Is(err, domain.ErrStaleEnrollment):
			atomic.AddInt64(&c.skipped, 1)
		default:
			atomic.AddInt64(&c.errored, 1)
			log.Error("complete enrollment failed", "error", err)
		}

	case StepDue:
		s.advance(ctx, log, e, seq, sel.Index, c)
	}
}

// advance claims, sends and commits one step. The claim makes concurrent
// runs skip the step while it is in flight; the commit happens strictly
// after a successful send.
func (s *Scheduler) advance(ctx context.Context, log *logger.Logger, e *domain.Enrollment, seq *domain.Sequence, index int, c *runCounters) {
	log = log.With("step", index)
	now := s.now()
	token := s.newToken()

	err := s.enrollments.ClaimStep(ctx, StepClaim{
		EnrollmentID: e.ID,
		StepIndex:    index,
		Token:        token,
		Now:          now,
		Until:        now.Add(s.claimTTL),
	})
	if errors.Is(err, domain.ErrStaleEnrollment) {
		atomic.AddInt64(&c.skipped, 1)
		log.Debug("step already claimed or advanced")
		return
	}
	if err != nil {
		atomic.AddInt64(&c.errored, 1)
		log.Error("claim step failed", "error", err)
		return
	}

	messageID, err := s.dispatcher.Dispatch(ctx, e, seq, index)
	if err != nil {
		atomic.AddInt64(&c.errored, 1)
		if errors.Is(err, ErrPermanentDispatch) {
			log.Warn("permanent send failure, exiting enrollment", "error", err)
			if terr := s.enrollments.Transition(ctx, e.ID,
				[]domain.EnrollmentStatus{domain.EnrollmentActive}, domain.EnrollmentExited, domain.ExitSendFailed); terr != nil && !errors.Is(terr, domain.ErrStaleEnrollment) {
				log.Error("exit enrollment failed", "error", terr)
			}
			if rerr := s.enrollments.ReleaseClaim(ctx, e.ID, token); rerr != nil {
				log.Error("release claim failed", "error", rerr)
			}
			return
		}
		log.Warn("transient send failure, will retry next run", "error", err)
		if rerr := s.enrollments.ReleaseClaim(ctx, e.ID, token); rerr != nil {
			log.Error("release claim failed", "error", rerr)
		}
		return
	}

	commit := StepCommit{
		EnrollmentID: e.ID,
		StepIndex:    index,
		Token:        token,
		MessageID:    messageID,
		SentAt:       s.now(),
		Complete:     seq.IsLast(index),
	}
	if err := s.enrollments.CommitStep(ctx, commit); err != nil {
		atomic.AddInt64(&c.errored, 1)
		// The claim stays until it expires; the retry reuses the same
		// idempotency key so the provider can drop the duplicate.
		log.Error("step sent but commit failed", "message_id", messageID, "error", err)
		return
	}

	atomic.AddInt64(&c.sent, 1)
	if commit.Complete {
		atomic.AddInt64(&c.completed, 1)
	}
	log.Info("step sent", "message_id", messageID, "final", commit.Complete)
}

// sequenceMemo caches sequence lookups for the duration of one run.
type sequenceMemo struct {
	repo SequenceRepository
	mu   sync.Mutex
	seqs map[string]*domain.Sequence
}

func newSequenceMemo(repo SequenceRepository) *sequenceMemo {
	return &sequenceMemo{repo: repo, seqs: make(map[string]*domain.Sequence)}
}

func (m *sequenceMemo) get(ctx context.Context, id string) (*domain.Sequence, error) {
	m.mu.Lock()
	seq, ok := m.seqs[id]
	m.mu.Unlock()
	if ok {
		return seq, nil
	}

	seq, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := seq.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.seqs[id] = seq
	m.mu.Unlock()
	return seq, nil
}
