package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestQuery(t *testing.T) {
	t.Run("posts the operation", func(t *testing.T) {
		var got Request
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/graphql" {
				t.Errorf("path = %q, want /graphql", r.URL.Path)
			}
			if r.Header.Get("Authorization") != "da2-key" {
				t.Errorf("Authorization = %q, want da2-key", r.Header.Get("Authorization"))
			}
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode request: %v", err)
			}
			w.Write([]byte(`{"data":{"marketLineUpdates":[{"leagueId":3}]}}`))
		}))
		defer server.Close()

		c := NewClient(server.URL+"/graphql", "da2-key")
		req := Request{
			Query:     "query MarketLineUpdates($since: Float) { marketLineUpdates(since: $since) { leagueId } }",
			Variables: map[string]any{"since": float64(1700000000000)},
		}
		resp, err := c.Query(context.Background(), req)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}

		if diff := cmp.Diff(req, got); diff != "" {
			t.Errorf("request mismatch (-want +got):\n%s", diff)
		}
		if string(resp.Data) != `{"marketLineUpdates":[{"leagueId":3}]}` {
			t.Errorf("Data = %s", resp.Data)
		}
		if !resp.HasData() {
			t.Error("HasData() = false, want true")
		}
	})

	t.Run("errors without data", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":null,"errors":[{"errorType":"ValidationError","message":"bad field"}]}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		_, err := c.Query(context.Background(), Request{Query: "query { x }"})

		var qErr *QueryError
		if !errors.As(err, &qErr) {
			t.Fatalf("error = %v, want *QueryError", err)
		}
		if got := qErr.Error(); got != "graphql: ValidationError: bad field" {
			t.Errorf("Error() = %q", got)
		}
	})

	t.Run("partial data keeps errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":{"a":1},"errors":[{"message":"b failed"}]}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		resp, err := c.Query(context.Background(), Request{Query: "query { a b }"})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(resp.Errors) != 1 || resp.Errors[0].Message != "b failed" {
			t.Errorf("Errors = %+v", resp.Errors)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		c := NewClient("http://127.0.0.1:0", "key")
		if _, err := c.Query(context.Background(), Request{Query: "  "}); err == nil {
			t.Error("expected error for empty query")
		}
	})

	t.Run("http error is not a query error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(0, time.Millisecond))
		_, err := c.Query(context.Background(), Request{Query: "query { x }"})

		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
			t.Errorf("error = %v, want 403 APIError", err)
		}
	})
}

func TestGetSnapshot(t *testing.T) {
	t.Run("decodes odds and lastUpdated", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != DefaultSnapshotPath {
				t.Errorf("path = %q, want %q", r.URL.Path, DefaultSnapshotPath)
			}
			if r.Header.Get("x-api-key") != "data-key" {
				t.Errorf("x-api-key = %q, want data-key", r.Header.Get("x-api-key"))
			}
			w.Write([]byte(`{"data":{"odds":{"g1":{"m1":{"price":110}}},"lastUpdated":1700000000000}}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "data-key", WithAuthHeader(HeaderAPIKey))
		snap, err := c.GetSnapshot(context.Background(), "")
		if err != nil {
			t.Fatalf("GetSnapshot failed: %v", err)
		}
		if snap.LastUpdated != 1700000000000 {
			t.Errorf("LastUpdated = %d", snap.LastUpdated)
		}
		if string(snap.Odds) != `{"g1":{"m1":{"price":110}}}` {
			t.Errorf("Odds = %s", snap.Odds)
		}
	})

	t.Run("missing data", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/custom" {
				t.Errorf("path = %q, want /custom", r.URL.Path)
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		snap, err := c.GetSnapshot(context.Background(), "/custom")
		if err != nil {
			t.Fatalf("GetSnapshot failed: %v", err)
		}
		if snap.LastUpdated != 0 || len(snap.Odds) != 0 {
			t.Errorf("snapshot = %+v, want zero", snap)
		}
	})

	t.Run("bad json", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		if _, err := c.GetSnapshot(context.Background(), ""); err == nil {
			t.Error("expected unmarshal error")
		}
	})
}
