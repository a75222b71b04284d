package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/sequence-engine/internal/pkg/httputil"
)

// SequenceCache drops cached sequence definitions after an edit.
type SequenceCache interface {
	Invalidate(ctx context.Context, id string) error
}

type sequenceHandlers struct {
	cache SequenceCache
}

type invalidateResponse struct {
	SequenceID  string `json:"sequence_id"`
	Invalidated bool   `json:"invalidated"`
}

func (h *sequenceHandlers) invalidate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.cache.Invalidate(r.Context(), id); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, invalidateResponse{SequenceID: id, Invalidated: true})
}
