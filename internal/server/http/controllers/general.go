package controllers

import (
	"context"
	"net/http"
)

// HealthFunc reports whether the broker can serve traffic.
type HealthFunc func(ctx context.Context) error

// GeneralController serves the plain HTTP endpoints next to the websocket
// endpoint: health checks and the version.
type GeneralController struct {
	version string
	health  HealthFunc
}

// NewGeneralController creates a new general controller. health may be nil,
// in which case the broker is always reported healthy.
func NewGeneralController(version string, health HealthFunc) *GeneralController {
	return &GeneralController{version: version, health: health}
}

// RegisterRoutes registers general routes with the given mux.
//
// This method sets up HTTP endpoints for:
// - Liveness (/health/), answered with "OK"
// - Readiness (/v1/healthz), which also checks the log stores
// - Version (/version/)
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health/", c.handleHealth)
	mux.HandleFunc("/v1/healthz", c.handleReady)
	mux.HandleFunc("/version/", c.handleVersion)
}

func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "OK")
}

// handleReady returns 200 OK with {"status": "ok"} if the log stores answer,
// 503 Service Unavailable otherwise.
func (c *GeneralController) handleReady(w http.ResponseWriter, r *http.Request) {
	if c.health != nil {
		if err := c.health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "not_serving")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (c *GeneralController) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, c.version)
}
