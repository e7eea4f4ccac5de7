package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rickgao/realtime-feed/internal/auth"
	"github.com/rickgao/realtime-feed/internal/connection"
	"github.com/rickgao/realtime-feed/internal/logging"
	"github.com/rickgao/realtime-feed/internal/market"
	"github.com/rickgao/realtime-feed/internal/sink"
	"github.com/rickgao/realtime-feed/internal/subscription"
)

func TestHealthHandler(t *testing.T) {
	logger := logging.Nop()
	endpoint := auth.Endpoint{Host: "example.com", Token: "key"}
	m := connection.NewManager(connection.DefaultManagerConfig(), endpoint, logger)
	defer m.Close()

	if _, err := m.Subscribe("subscription { onUpdate { id } }", sink.HandlerFuncs{}, subscription.WithID("s1")); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	handler := createHealthHandler(healthSources{manager: m, snapshot: market.NewSnapshot(logger)}, logger)

	t.Run("health reports disconnected as unhealthy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
		var body struct {
			Status     string                    `json:"status"`
			Components map[string]map[string]any `json:"components"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Status != "unhealthy" {
			t.Errorf("status = %q, want unhealthy", body.Status)
		}
		if body.Components["connection"]["state"] != connection.StateDisconnected.String() {
			t.Errorf("connection = %v", body.Components["connection"])
		}
		if body.Components["connection"]["pending"] != float64(1) {
			t.Errorf("pending = %v, want 1", body.Components["connection"]["pending"])
		}
		if _, ok := body.Components["snapshot"]; !ok {
			t.Error("snapshot component missing")
		}
		if _, ok := body.Components["gap_fill"]; ok {
			t.Error("gap_fill should be omitted when disabled")
		}
	})

	t.Run("debug subscriptions", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/subscriptions", nil))

		var body struct {
			Count         int `json:"count"`
			Subscriptions []struct {
				ID    string `json:"id"`
				Field string `json:"field"`
				State string `json:"state"`
			} `json:"subscriptions"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Count != 1 || body.Subscriptions[0].ID != "s1" || body.Subscriptions[0].Field != "onUpdate" {
			t.Errorf("body = %+v", body)
		}
		if body.Subscriptions[0].State != subscription.Pending.String() {
			t.Errorf("state = %q, want pending", body.Subscriptions[0].State)
		}
	})
}
