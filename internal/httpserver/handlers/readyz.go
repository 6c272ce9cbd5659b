package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/apicatalog/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready    bool `json:"ready"`
	Degraded bool `json:"degraded"`
}

// Readyz reports ready once the cache bootstrap has finished, degraded or not.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := readyzResponse{
			Ready:    d.Bootstrap.Done(),
			Degraded: d.Bootstrap.Degraded(),
		}
		status := http.StatusOK
		if !resp.Ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
