package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ignite/sequence-engine/internal/api"
	"github.com/ignite/sequence-engine/internal/domain"
	"github.com/ignite/sequence-engine/internal/pkg/logger"
	"github.com/ignite/sequence-engine/internal/pkg/webhookauth"
	"github.com/ignite/sequence-engine/internal/repository/memory"
	"github.com/ignite/sequence-engine/internal/service/enrollment"
	"github.com/ignite/sequence-engine/internal/service/reconcile"
	"github.com/ignite/sequence-engine/internal/service/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "cron-secret"

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type countingSender struct {
	mu sync.Mutex
	n  int
}

func (s *countingSender) Send(context.Context, *sequence.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("msg-%d", s.n), nil
}

type env struct {
	handler     http.Handler
	enrollments *memory.EnrollmentStore
	events      *memory.EventStore
	sender      *countingSender
	now         time.Time
}

func newEnv(t *testing.T, webhookSecret string) *env {
	t.Helper()
	e := &env{
		enrollments: memory.NewEnrollmentStore(),
		events:      memory.NewEventStore(),
		sender:      &countingSender{},
		now:         t0,
	}
	seqs := memory.NewSequenceStore()
	require.NoError(t, seqs.Put(domain.Sequence{ID: "onboarding", Steps: []domain.Step{
		{Position: 0, ContentRef: "welcome"},
		{Position: 1, Delay: 24 * time.Hour, ContentRef: "follow-up"},
	}}))
	seqs.PutContent("welcome", sequence.Content{Subject: "Welcome"})
	seqs.PutContent("follow-up", sequence.Content{Subject: "Still there?"})

	clock := func() time.Time { return e.now }
	sched := sequence.NewScheduler(e.enrollments, seqs, sequence.NewDispatcher(e.sender, seqs),
		sequence.Options{Now: clock, Logger: logger.Discard()})
	rec := reconcile.NewReconciler(e.events, e.enrollments, logger.Discard()).WithClock(clock)

	e.handler = api.NewRouter(api.Deps{
		Scheduler:      sched,
		Reconciler:     rec,
		Enrollments:    enrollment.NewService(e.enrollments, e.events),
		TriggerSecret:  secret,
		WebhookSecret:  webhookSecret,
		AllowedOrigins: []string{"https://ops.example.com"},
		Logger:         logger.Discard(),
	})
	e.enrollments.Put(domain.Enrollment{ID: "e1", SequenceID: "onboarding", Email: "ada@example.com", CreatedAt: t0})
	return e
}

func (e *env) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func bearer(s string) map[string]string { return map[string]string{"Authorization": "Bearer " + s} }

func decodeSummary(t *testing.T, rec *httptest.ResponseRecorder) sequence.Summary {
	t.Helper()
	var sum sequence.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	return sum
}

func TestTriggerRequiresSecret(t *testing.T) {
	e := newEnv(t, "")

	for _, h := range []map[string]string{nil, bearer("wrong"), {"Authorization": secret}} {
		rec := e.do(http.MethodPost, "/cron/sequences", "", h)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	assert.Equal(t, 0, e.sender.n)
}

func TestTriggerRunsScheduler(t *testing.T) {
	e := newEnv(t, "")

	rec := e.do(http.MethodGet, "/cron/sequences", "", bearer(secret))
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decodeSummary(t, rec)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 1, sum.Sent)
	assert.True(t, sum.Timestamp.Equal(t0))

	rec = e.do(http.MethodPost, "/cron/sequences", "", bearer(secret))
	require.Equal(t, http.StatusOK, rec.Code)
	sum = decodeSummary(t, rec)
	assert.Equal(t, 0, sum.Sent)
	assert.Equal(t, 1, sum.Skipped)
}

type ctxRunner struct {
	err    error
	ctxErr error
}

func (r *ctxRunner) RunOnce(ctx context.Context) (sequence.Summary, error) {
	r.ctxErr = ctx.Err()
	return sequence.Summary{}, r.err
}

func TestTriggerDetachesFromRequestContext(t *testing.T) {
	runner := &ctxRunner{}
	h := api.NewRouter(api.Deps{Scheduler: runner, TriggerSecret: secret, Logger: logger.Discard()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/cron/sequences", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+secret)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, runner.ctxErr)
}

func TestTriggerPersistenceFailure(t *testing.T) {
	runner := &ctxRunner{err: fmt.Errorf("%w: connection refused", sequence.ErrPersistence)}
	h := api.NewRouter(api.Deps{Scheduler: runner, TriggerSecret: secret, Logger: logger.Discard()})

	req := httptest.NewRequest(http.MethodPost, "/cron/sequences", nil)
	req.Header.Set("Authorization", "Bearer "+secret)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestWebhookReplyStopsSequence(t *testing.T) {
	e := newEnv(t, "")

	rec := e.do(http.MethodPost, "/cron/sequences", "", bearer(secret))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodPost, "/webhooks/email", `{"type":"email.replied","data":{"email_id":"msg-1"}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outcome":"exited"`)

	e.now = t0.Add(48 * time.Hour)
	rec = e.do(http.MethodPost, "/cron/sequences", "", bearer(secret))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeSummary(t, rec).Processed)
	assert.Equal(t, 1, e.sender.n)
}

func TestWebhookUnknownTypeIsAccepted(t *testing.T) {
	e := newEnv(t, "")

	rec := e.do(http.MethodPost, "/webhooks/email", `{"type":"email.unknown","data":{"email_id":"x"}}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outcome":"ignored"`)
	assert.Equal(t, 0, e.events.Len())
}

func TestWebhookUnknownTypesAreAcknowledged(t *testing.T) {
	e := newEnv(t, "")

	for _, body := range []string{
		`{"type":"email.unknown","data":[]}`,
		`{"type":"contact.created","data":"x"}`,
		`{"type":"domain.updated","created_at":1700000000,"data":{}}`,
		`{"type":"email.delivered","data":{"email_id":42}}`,
	} {
		rec := e.do(http.MethodPost, "/webhooks/email", body, nil)
		assert.Equal(t, http.StatusOK, rec.Code, body)
		assert.Contains(t, rec.Body.String(), `"outcome":"ignored"`, body)
	}
	assert.Equal(t, 0, e.events.Len())
}

func TestWebhookMalformedBody(t *testing.T) {
	e := newEnv(t, "")

	for _, body := range []string{`{`, `[]`, `{"type":"email.opened"}`} {
		rec := e.do(http.MethodPost, "/webhooks/email", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

type failingEvents struct{}

func (failingEvents) Handle(context.Context, []byte) (reconcile.Result, error) {
	return reconcile.Result{}, fmt.Errorf("%w: disk full", reconcile.ErrEventStore)
}

func TestWebhookStoreFailureAsksForRedelivery(t *testing.T) {
	h := api.NewRouter(api.Deps{Reconciler: failingEvents{}, Logger: logger.Discard()})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/email", strings.NewReader(`{"type":"email.opened","data":{"email_id":"m"}}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func signedHeaders(t *testing.T, secret, body string) map[string]string {
	t.Helper()
	v, err := webhookauth.New(secret)
	require.NoError(t, err)
	h, err := v.Headers("msg_1", time.Now(), []byte(body))
	require.NoError(t, err)
	out := make(map[string]string)
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func TestWebhookSignature(t *testing.T) {
	const signing = "whsec_dGVzdC1zaWduaW5nLWtleQ=="
	e := newEnv(t, signing)
	body := `{"type":"email.opened","data":{"email_id":"nobody"}}`

	rec := e.do(http.MethodPost, "/webhooks/email", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(http.MethodPost, "/webhooks/email", body, signedHeaders(t, "whsec_b3RoZXIta2V5", body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(http.MethodPost, "/webhooks/email", body, signedHeaders(t, signing, body))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, e.events.Len())
}

func TestWebhookUnusableSecretRejectsEverything(t *testing.T) {
	e := newEnv(t, "not-a-svix-secret")
	body := `{"type":"email.opened","data":{"email_id":"nobody"}}`

	rec := e.do(http.MethodPost, "/webhooks/email", body, signedHeaders(t, "whsec_dGVzdC1zaWduaW5nLWtleQ==", body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, e.events.Len())
}

func TestEnrollmentRoutes(t *testing.T) {
	e := newEnv(t, "")

	rec := e.do(http.MethodGet, "/api/v1/enrollments/e1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(http.MethodGet, "/api/v1/enrollments/e1", "", bearer(secret))
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Enrollment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.EnrollmentActive, got.Status)

	rec = e.do(http.MethodGet, "/api/v1/enrollments/missing", "", bearer(secret))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(http.MethodPost, "/api/v1/enrollments/e1/pause", "", bearer(secret))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"paused"`)

	// A paused enrollment is not processed.
	rec = e.do(http.MethodPost, "/cron/sequences", "", bearer(secret))
	assert.Equal(t, 0, decodeSummary(t, rec).Processed)

	rec = e.do(http.MethodPost, "/api/v1/enrollments/e1/resume", "", bearer(secret))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodPost, "/cron/sequences", "", bearer(secret))
	assert.Equal(t, 1, decodeSummary(t, rec).Sent)

	e.do(http.MethodPost, "/webhooks/email", `{"type":"email.opened","data":{"email_id":"msg-1"}}`, nil)
	rec = e.do(http.MethodGet, "/api/v1/enrollments/e1/events", "", bearer(secret))
	require.Equal(t, http.StatusOK, rec.Code)
	var hist enrollment.History
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	assert.Len(t, hist.Messages, 1)
	assert.Len(t, hist.Events, 1)
}

func TestEnrollmentRoutesConflict(t *testing.T) {
	e := newEnv(t, "")
	require.NoError(t, e.enrollments.Transition(context.Background(), "e1",
		[]domain.EnrollmentStatus{domain.EnrollmentActive}, domain.EnrollmentExited, domain.ExitReplied))

	rec := e.do(http.MethodPost, "/api/v1/enrollments/e1/resume", "", bearer(secret))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOperatorCORS(t *testing.T) {
	e := newEnv(t, "")
	h := map[string]string{"Authorization": "Bearer " + secret, "Origin": "https://ops.example.com"}

	rec := e.do(http.MethodGet, "/api/v1/enrollments/e1", "", h)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	h["Origin"] = "https://evil.example.com"
	rec = e.do(http.MethodGet, "/api/v1/enrollments/e1", "", h)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestOperatorCORSDisabledWithoutOrigins(t *testing.T) {
	store := memory.NewEnrollmentStore()
	store.Put(domain.Enrollment{ID: "e1", SequenceID: "onboarding", Email: "ada@example.com", CreatedAt: t0})
	h := api.NewRouter(api.Deps{
		Enrollments:   enrollment.NewService(store, memory.NewEventStore()),
		TriggerSecret: secret,
		Logger:        logger.Discard(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/enrollments/e1", nil)
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("Origin", "https://anywhere.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

type recordingCache struct {
	ids []string
	err error
}

func (c *recordingCache) Invalidate(_ context.Context, id string) error {
	c.ids = append(c.ids, id)
	return c.err
}

func TestSequenceCacheInvalidateRoute(t *testing.T) {
	cache := &recordingCache{}
	h := api.NewRouter(api.Deps{SequenceCache: cache, TriggerSecret: secret, Logger: logger.Discard()})

	do := func(auth map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/sequences/onboarding/cache", nil)
		for k, v := range auth {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, do(nil).Code)
	assert.Empty(t, cache.ids)

	rec := do(bearer(secret))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"invalidated":true`)
	assert.Equal(t, []string{"onboarding"}, cache.ids)

	cache.err = fmt.Errorf("redis down")
	assert.Equal(t, http.StatusInternalServerError, do(bearer(secret)).Code)
}

func TestHealthWithoutChecker(t *testing.T) {
	h := api.NewRouter(api.Deps{Logger: logger.Discard()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	h := api.NewRouter(api.Deps{Logger: logger.Discard()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
