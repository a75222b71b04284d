package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ignite/sequence-engine/internal/domain"
	"github.com/ignite/sequence-engine/internal/pkg/logger"
	"github.com/ignite/sequence-engine/internal/pkg/webhookauth"
	"github.com/ignite/sequence-engine/internal/service/enrollment"
	"github.com/ignite/sequence-engine/internal/service/reconcile"
	"github.com/ignite/sequence-engine/internal/service/sequence"
)

// Runner executes one scheduler run.
type Runner interface {
	RunOnce(ctx context.Context) (sequence.Summary, error)
}

// EventHandler applies one raw provider webhook.
type EventHandler interface {
	Handle(ctx context.Context, body []byte) (reconcile.Result, error)
}

// EnrollmentService backs the operator routes.
type EnrollmentService interface {
	Get(ctx context.Context, id string) (*domain.Enrollment, error)
	History(ctx context.Context, id string) (*enrollment.History, error)
	Pause(ctx context.Context, id string) (*domain.Enrollment, error)
	Resume(ctx context.Context, id string) (*domain.Enrollment, error)
}

// Deps are the services the router exposes. Nil services leave their
// routes unregistered.
type Deps struct {
	Scheduler      Runner
	Reconciler     EventHandler
	Enrollments    EnrollmentService
	Health         *HealthChecker
	SequenceCache  SequenceCache
	TriggerSecret  string
	WebhookSecret  string
	AllowedOrigins []string
	Logger         *logger.Logger
}

// NewRouter wires every route:
//
//	GET|POST /cron/sequences            scheduler trigger (bearer)
//	POST     /webhooks/email            provider events (optional signature)
//	GET      /api/v1/enrollments/{id}   operator API (bearer)
//	DELETE   /api/v1/sequences/{id}/cache
//	GET      /health
func NewRouter(d Deps) *chi.Mux {
	if d.Logger == nil {
		d.Logger = logger.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if d.Health != nil {
		r.Get("/health", d.Health.HandleHealth)
		r.Get("/health/ready", d.Health.HandleReadiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}

	auth := bearerAuth(d.TriggerSecret)

	if d.Scheduler != nil {
		h := &triggerHandler{runner: d.Scheduler, log: d.Logger.With("component", "trigger")}
		r.With(auth).Get("/cron/sequences", h.ServeHTTP)
		r.With(auth).Post("/cron/sequences", h.ServeHTTP)
	}

	if d.Reconciler != nil {
		h := &webhookHandler{
			events: d.Reconciler,
			signed: d.WebhookSecret != "",
			log:    d.Logger.With("component", "webhook"),
		}
		if h.signed {
			v, err := webhookauth.New(d.WebhookSecret)
			if err != nil {
				h.log.Error("invalid webhook signing secret", "error", err)
			}
			h.verifier = v
		}
		r.Post("/webhooks/email", h.ServeHTTP)
	}

	if d.Enrollments != nil || d.SequenceCache != nil {
		r.Route("/api/v1", func(r chi.Router) {
			// cors treats an empty origin list as "*", so browsers get no
			// CORS headers at all unless origins are configured.
			if len(d.AllowedOrigins) > 0 {
				r.Use(cors.Handler(cors.Options{
					AllowedOrigins: d.AllowedOrigins,
					AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
					AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
					MaxAge:         300,
				}))
			}
			r.Use(auth)
			if d.Enrollments != nil {
				h := &enrollmentHandlers{svc: d.Enrollments}
				r.Get("/enrollments/{id}", h.get)
				r.Get("/enrollments/{id}/events", h.events)
				r.Post("/enrollments/{id}/pause", h.pause)
				r.Post("/enrollments/{id}/resume", h.resume)
			}
			if d.SequenceCache != nil {
				h := &sequenceHandlers{cache: d.SequenceCache}
				r.Delete("/sequences/{id}/cache", h.invalidate)
			}
		})
	}

	return r
}
