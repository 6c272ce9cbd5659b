package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/apicatalog/internal/domain"
	"github.com/MrSnakeDoc/apicatalog/internal/httpserver/deps"
	"github.com/MrSnakeDoc/apicatalog/internal/logger"
)

const (
	defaultHistoryCount = 100
	maxHistoryCount     = 1000
)

// Containers lists every catalog container with its derived status.
func Containers(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		containers := d.Catalog.Snapshot()
		if containers == nil {
			containers = []*domain.Container{}
		}
		writeJSON(w, http.StatusOK, containers)
	}
}

// Container returns one container by product-family id.
func Container(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		c, ok := d.Catalog.Container(id)
		if !ok {
			writeError(w, http.StatusNotFound, "container "+id+" not found")
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// ContainerEvents returns the events of the recently updated containers.
func ContainerEvents(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events := d.Catalog.RecentEvents()
		if events == nil {
			events = []domain.ContainerEvent{}
		}
		writeJSON(w, http.StatusOK, events)
	}
}

// EventHistory returns the latest published events, newest first.
// ?count= bounds the result (default 100, max 1000).
func EventHistory(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Events == nil {
			writeError(w, http.StatusServiceUnavailable, "event publication is disabled")
			return
		}

		count := int64(defaultHistoryCount)
		if raw := r.URL.Query().Get("count"); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "count must be a positive integer")
				return
			}
			count = min(n, maxHistoryCount)
		}

		events, err := d.Events.History(r.Context(), count)
		if err != nil {
			d.Logger.Warn("failed to read event history", logger.Error(err))
			writeError(w, http.StatusServiceUnavailable, "event history unavailable")
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}
