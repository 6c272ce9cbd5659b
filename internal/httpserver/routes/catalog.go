package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/apicatalog/internal/httpserver/deps"
	"github.com/MrSnakeDoc/apicatalog/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/apicatalog/internal/httpserver/mw"
)

func init() { Register(registerCatalog) }

func registerCatalog(r chi.Router, d deps.Deps) {
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(mw.EnforceHost(d.AllowedHosts, d.Logger))
		api.Use(mw.RateLimit(mw.RateLimitConfig{
			RPS:        d.RateLimitRPS,
			Burst:      d.RateLimitBurst,
			MaxEntries: 10000,
			TrustProxy: d.TrustProxy,
		}))

		api.Get("/containers", handlers.Containers(d))
		api.Get("/containers/events", handlers.ContainerEvents(d))
		api.Get("/containers/events/history", handlers.EventHistory(d))
		api.Get("/containers/{id}", handlers.Container(d))
		api.Get("/services/{serviceId}", handlers.Service(d))
	})
}
