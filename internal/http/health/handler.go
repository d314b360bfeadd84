// Package health exposes the liveness probe. It is a plain chi route and is
// left out of the OpenAPI document.
package health

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	applog "github.com/janisto/swarm-rest-example/internal/platform/logging"
)

// Path is where the probe is mounted.
const Path = "/health"

// StatusHealthy is the only status the probe reports; a process that cannot serve it is not running.
const StatusHealthy = "healthy"

// Response is the payload for the health endpoint.
type Response struct {
	Status string `json:"status"`
}

// Register mounts the probe on router.
func Register(router chi.Router) {
	router.Get(Path, Handler)
}

// Handler is a plain HTTP handler for the health check endpoint.
func Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(Response{Status: StatusHealthy}); err != nil {
		applog.LogError(r.Context(), "failed to write health response", err)
	}
}
