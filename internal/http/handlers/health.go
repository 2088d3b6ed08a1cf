package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ReadinessCheck is one dependency /readyz pings.
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

type HealthHandler struct {
	checks  []ReadinessCheck
	timeout time.Duration
}

func NewHealthHandler(checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: time.Second}
}

// Healthz is liveness: the process answers.
func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz pings every dependency and fails if any of them is down.
func (h *HealthHandler) Readyz(ctx *gin.Context) {
	results := make(map[string]string, len(h.checks))
	ready := true

	for _, c := range h.checks {
		cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
		err := c.Ping(cctx)
		cancel()

		if err != nil {
			ready = false
			results[c.Name] = "error: " + err.Error()
			continue
		}
		results[c.Name] = "ok"
	}

	if !ready {
		RespondServiceUnavailable(ctx, "Dependencies not ready", results)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ready", "checks": results})
}
