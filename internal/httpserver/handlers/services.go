package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/apicatalog/internal/domain"
	"github.com/MrSnakeDoc/apicatalog/internal/httpserver/deps"
)

// Service returns the raw registry view of one service. The id is case-insensitive.
func Service(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serviceID := domain.NormalizeServiceID(chi.URLParam(r, "serviceId"))
		app, ok := d.Services.Get(serviceID)
		if !ok {
			writeError(w, http.StatusNotFound, "service "+serviceID+" not found")
			return
		}
		writeJSON(w, http.StatusOK, app)
	}
}
