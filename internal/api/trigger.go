package api

import (
	"context"
	"net/http"

	"github.com/ignite/sequence-engine/internal/pkg/httputil"
	"github.com/ignite/sequence-engine/internal/pkg/logger"
)

type triggerHandler struct {
	runner Runner
	log    *logger.Logger
}

// ServeHTTP runs the scheduler once and reports the summary. The run is
// detached from the request so a dropped connection cannot stop it halfway.
func (h *triggerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sum, err := h.runner.RunOnce(context.WithoutCancel(r.Context()))
	if err != nil {
		h.log.Error("scheduler run failed", "error", err)
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, sum)
}
