package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rickgao/realtime-feed/internal/connection"
	"github.com/rickgao/realtime-feed/internal/gapfill"
	"github.com/rickgao/realtime-feed/internal/market"
	"github.com/rickgao/realtime-feed/internal/sink"
)

// healthSources are the components reported on /health. Nil entries are
// omitted.
type healthSources struct {
	manager  *connection.Manager
	queue    *sink.Queued
	filler   *gapfill.Filler
	snapshot *market.Snapshot
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(src healthSources, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		stats := src.manager.Stats()
		switch stats.State {
		case connection.StateAcknowledged:
		case connection.StateConnecting, connection.StateOpen:
			health.Status = "degraded"
		default:
			health.Status = "unhealthy"
		}
		conn := map[string]any{
			"state":            stats.State.String(),
			"subscriptions":    stats.Subscriptions,
			"started":          stats.Started,
			"pending":          stats.Pending,
			"errored":          stats.Errored,
			"frames_received":  stats.FramesReceived,
			"frames_unhandled": stats.FramesUnhandled,
			"events_delivered": stats.EventsDelivered,
			"attempts":         stats.ConnectionAttempts,
		}
		if err := src.manager.Err(); err != nil {
			conn["error"] = err.Error()
		}
		health.Components["connection"] = conn

		if src.queue != nil {
			health.Components["event_queue"] = src.queue.Stats()
		}
		if src.filler != nil {
			health.Components["gap_fill"] = src.filler.Stats()
		}
		if src.snapshot != nil {
			health.Components["snapshot"] = src.snapshot.Stats()
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Debug("health response failed", "error", err)
		}
	})

	mux.HandleFunc("/debug/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		type subView struct {
			ID    string `json:"id"`
			Field string `json:"field,omitempty"`
			State string `json:"state"`
			Error string `json:"error,omitempty"`
		}

		subs := src.manager.Subscriptions()
		views := make([]subView, 0, len(subs))
		for _, s := range subs {
			v := subView{ID: s.ID, Field: s.Field, State: s.State.String()}
			if s.Err != nil {
				v.Error = s.Err.Error()
			}
			views = append(views, v)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":         len(views),
			"subscriptions": views,
		})
	})

	return mux
}
