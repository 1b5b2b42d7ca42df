package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker is a dependency checked by the readiness endpoint
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks map[string]HealthChecker
}

// NewHealthHandler creates a new HealthHandler. Nil checkers are reported as "not configured".
func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	if checks == nil {
		checks = map[string]HealthChecker{}
	}
	return &HealthHandler{checks: checks}
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadyResponse represents readiness check response
type ReadyResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components"`
}

// Health returns a simple health check (liveness)
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready returns a readiness check (readiness)
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	components := make(map[string]string, len(names))
	allHealthy := true
	for _, name := range names {
		check := h.checks[name]
		if check == nil {
			components[name] = "not configured"
			continue
		}
		if err := check.HealthCheck(ctx); err != nil {
			components[name] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			components[name] = "healthy"
		}
	}

	response := ReadyResponse{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: components,
	}

	if allHealthy {
		response.Status = "ready"
		c.JSON(http.StatusOK, response)
	} else {
		response.Status = "not ready"
		c.JSON(http.StatusServiceUnavailable, response)
	}
}
