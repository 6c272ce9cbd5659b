package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/apicatalog/internal/httpserver/deps"
	"github.com/MrSnakeDoc/apicatalog/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/apicatalog/internal/httpserver/mw"
)

func init() { Register(registerProbes) }

func registerProbes(r chi.Router, d deps.Deps) {
	r.Get("/healthz", handlers.Healthz(d))

	guarded := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	guarded.Get("/readyz", handlers.Readyz(d))
	guarded.Get("/infra", handlers.Infra(d))
	if d.Metrics != nil {
		guarded.Handle("/metrics", d.Metrics)
	}
}
