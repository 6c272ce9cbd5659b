package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/apicatalog/internal/httpserver/deps"
	"github.com/MrSnakeDoc/apicatalog/internal/logger"
)

type refreshResponse struct {
	Triggered bool   `json:"triggered"`
	Message   string `json:"message"`
}

// Refresh triggers an out-of-schedule delta fetch.
// It answers 429 when throttled or when a trigger is already pending.
func Refresh(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.RefreshLimiter != nil && !d.RefreshLimiter.Allow() {
			d.Logger.Warn("manual refresh throttled", logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusTooManyRequests, refreshResponse{Message: "refresh requested too often, please wait"})
			return
		}

		select {
		case d.RefreshTrigger <- struct{}{}:
			d.Logger.Info("manual refresh triggered via endpoint", logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusAccepted, refreshResponse{Triggered: true, Message: "refresh triggered"})
		default:
			d.Logger.Warn("refresh already pending", logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusTooManyRequests, refreshResponse{Message: "refresh already pending, please wait"})
		}
	}
}
