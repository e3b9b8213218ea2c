package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/flipdesk/flipquery/internal/cache"
	"github.com/flipdesk/flipquery/internal/executor"
	"github.com/flipdesk/flipquery/internal/models"
	"github.com/flipdesk/flipquery/internal/processor"
)

// Version is reported by /health; set at build time by the CLI.
var Version = "dev"

const healthProbeKey = "health-probe"

// HealthHandler handles GET /health with dependency checks
type HealthHandler struct {
	proc  *processor.Processor
	exec  executor.Executor
	cache cache.Cache
}

func NewHealthHandler(proc *processor.Processor, exec executor.Executor, c cache.Cache) *HealthHandler {
	return &HealthHandler{proc: proc, exec: exec, cache: c}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"server": "ok"}
	overallStatus := "healthy"

	// Use a short timeout for health checks so they don't block
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.proc != nil && h.proc.Initialized() {
		checks["processor"] = "ok"
	} else {
		checks["processor"] = "not initialized"
		overallStatus = "degraded"
	}

	if h.exec != nil {
		if _, err := h.exec.Query(ctx, "SELECT 1"); err != nil {
			checks["executor"] = "unavailable: " + err.Error()
			overallStatus = "degraded"
		} else {
			checks["executor"] = "ok"
		}
	} else {
		checks["executor"] = "disabled"
	}

	if h.cache != nil {
		if _, _, err := h.cache.Get(ctx, healthProbeKey); err != nil {
			checks["cache"] = "unavailable: " + err.Error()
			overallStatus = "degraded"
		} else {
			checks["cache"] = "ok"
		}
	} else {
		checks["cache"] = "disabled"
	}

	statusCode := http.StatusOK
	if overallStatus == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	models.WriteJSON(w, statusCode, models.HealthResponse{
		Status:  overallStatus,
		Version: Version,
		Checks:  checks,
	})
}
