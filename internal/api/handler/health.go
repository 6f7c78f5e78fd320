package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const readinessTimeout = 2 * time.Second

// Checker is a dependency that can report whether it is reachable.
type Checker interface {
	Ping(ctx context.Context) error
}

type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checkers map[string]Checker
	logger   *slog.Logger
}

// NewHealthHandler creates a HealthHandler. Readiness pings every checker by name.
func NewHealthHandler(checkers map[string]Checker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checkers: checkers, logger: logger}
}

// Live handles GET /health
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string, len(h.checkers)),
	}
	status := http.StatusOK

	for name, c := range h.checkers {
		if err := c.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed",
				slog.String("component", name),
				slog.String("error", err.Error()),
			)
			resp.Components[name] = "unavailable"
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "ok"
	}

	JSON(w, status, resp)
}
