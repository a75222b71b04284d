package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/ignite/sequence-engine/internal/pkg/httputil"
	"github.com/ignite/sequence-engine/internal/pkg/logger"
	"github.com/ignite/sequence-engine/internal/pkg/webhookauth"
	"github.com/ignite/sequence-engine/internal/service/reconcile"
)

const maxWebhookBody = 1 << 20

// webhookHandler checks signatures when signed is set. A nil verifier
// with signed set rejects every request.
type webhookHandler struct {
	events   EventHandler
	signed   bool
	verifier *webhookauth.Verifier
	log      *logger.Logger
}

type webhookResponse struct {
	Received bool              `json:"received"`
	Outcome  reconcile.Outcome `json:"outcome"`
}

func (h *webhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		httputil.BadRequest(w, "unreadable body")
		return
	}

	if h.signed {
		if h.verifier == nil {
			h.log.Error("webhook signing secret is unusable; rejecting event", "svix_id", r.Header.Get(webhookauth.HeaderID))
			httputil.Unauthorized(w)
			return
		}
		if err := h.verifier.Verify(body, r.Header); err != nil {
			h.log.Warn("rejected webhook signature", "error", err, "svix_id", r.Header.Get(webhookauth.HeaderID))
			httputil.Unauthorized(w)
			return
		}
	}

	res, err := h.events.Handle(r.Context(), body)
	switch {
	case errors.Is(err, reconcile.ErrValidation):
		httputil.BadRequest(w, err.Error())
		return
	case err != nil:
		// A 5xx makes the provider redeliver the event.
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, webhookResponse{Received: true, Outcome: res.Outcome})
}
