package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/sequence-engine/internal/domain"
	"github.com/ignite/sequence-engine/internal/pkg/httputil"
	"github.com/ignite/sequence-engine/internal/service/enrollment"
)

type enrollmentHandlers struct {
	svc EnrollmentService
}

func (h *enrollmentHandlers) get(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, e)
}

func (h *enrollmentHandlers) events(w http.ResponseWriter, r *http.Request) {
	hist, err := h.svc.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, hist)
}

func (h *enrollmentHandlers) pause(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Pause(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, e)
}

func (h *enrollmentHandlers) resume(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, e)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEnrollmentNotFound):
		httputil.NotFound(w, "enrollment not found")
	case errors.Is(err, enrollment.ErrInvalidTransition):
		httputil.Conflict(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
