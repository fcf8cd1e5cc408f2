package controllers

import (
	"net/http"
)

// Controller owns a group of routes.
type Controller interface {
	RegisterRoutes(mux *http.ServeMux)
}

// ControllerRegistry mounts controllers on a mux in the order given.
type ControllerRegistry struct {
	controllers []Controller
}

func NewControllerRegistry(cs ...Controller) *ControllerRegistry {
	return &ControllerRegistry{controllers: cs}
}

// RegisterAllRoutes registers every controller's routes with mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	for _, c := range r.controllers {
		c.RegisterRoutes(mux)
	}
}
