package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/apicatalog/internal/httpserver/deps"
)

const timeLayout = "2006-01-02 15:04:05"

type componentStatus struct {
	OK         bool   `json:"ok"`
	Mode       string `json:"mode,omitempty"`
	Containers *int   `json:"containers,omitempty"`
	Services   *int   `json:"services,omitempty"`
	LastUpdate string `json:"last_update,omitempty"`
	Watermark  string `json:"watermark,omitempty"`
	Impact     string `json:"impact,omitempty"`
	Error      string `json:"error,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

// Infra reports the state of the registry link, the caches and the event store.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]componentStatus{
			"registry":  checkRegistry(d),
			"bootstrap": checkBootstrap(d),
			"cache":     checkCache(d),
			"redis":     checkRedis(r.Context(), d),
		}
		writeJSON(w, http.StatusOK, infraResponse{
			Mode:       determineMode(components),
			Components: components,
		})
	}
}

// determineMode is "critical" when the catalog cannot serve data,
// "degraded" when a supporting component is down and "optimal" otherwise.
func determineMode(components map[string]componentStatus) string {
	if !components["bootstrap"].OK || !components["cache"].OK {
		return "critical"
	}
	for _, c := range components {
		if !c.OK {
			return "degraded"
		}
	}
	return "optimal"
}

func checkRegistry(d deps.Deps) componentStatus {
	if d.Registry == nil {
		return componentStatus{OK: false, Error: "client not initialized"}
	}
	state := d.Registry.BreakerState()
	if state == "open" {
		return componentStatus{OK: false, Mode: state, Impact: "refresh-suspended"}
	}
	return componentStatus{OK: true, Mode: state}
}

func checkBootstrap(d deps.Deps) componentStatus {
	switch {
	case !d.Bootstrap.Done():
		return componentStatus{OK: false, Mode: "starting"}
	case d.Bootstrap.Degraded():
		return componentStatus{OK: true, Mode: "degraded", Impact: "catalog-filled-by-refresh"}
	default:
		return componentStatus{OK: true, Mode: "seeded"}
	}
}

func checkCache(d deps.Deps) componentStatus {
	services := d.Services.Count()
	st := componentStatus{
		OK:         true,
		Services:   &services,
		LastUpdate: "never",
		Watermark:  string(d.Services.Watermark()),
	}
	if d.ContainerCount != nil {
		containers := d.ContainerCount()
		st.Containers = &containers
	}
	if last := d.Services.GetLastUpdate(); !last.IsZero() {
		st.LastUpdate = last.Format(timeLayout)
	}
	return st
}

func checkRedis(ctx context.Context, d deps.Deps) componentStatus {
	if d.RedisClient == nil {
		return componentStatus{
			OK:     true,
			Mode:   "disabled",
			Impact: "event-publication-disabled",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.RedisClient.Ping(ctx).Err(); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "event-publication-failing",
			Error:  err.Error(),
		}
	}
	return componentStatus{OK: true, Mode: "optimal"}
}
