package api

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// Health reports liveness plus the reachability of the record store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	httpStatus := http.StatusOK
	services := map[string]string{}
	if h.Store != nil {
		if err := h.Store.Ping(ctx); err != nil {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			services["store"] = err.Error()
		} else {
			services["store"] = "ok"
		}
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":   status,
		"services": services,
	})
}
