package gapfill

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rickgao/realtime-feed/internal/api"
	"github.com/rickgao/realtime-feed/internal/sink"
)

const updatesQuery = `query MarketLineUpdates($since: Float) {
  marketLineUpdates(leagueIds: [3], since: $since) { marketLines { marketLineKey } }
}`

// collector is a sink.Handler that records deliveries.
type collector struct {
	mu     sync.Mutex
	events []sink.Event
	errs   []error
}

func (c *collector) OnEvent(e sink.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *collector) snapshot() ([]sink.Event, []error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sink.Event(nil), c.events...), append([]error(nil), c.errs...)
}

// querierFunc adapts a function to Querier.
type querierFunc func(ctx context.Context, req api.Request) (*api.Response, error)

func (f querierFunc) Query(ctx context.Context, req api.Request) (*api.Response, error) {
	return f(ctx, req)
}

func TestFiller_RunAgainstServer(t *testing.T) {
	var got api.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "da2-key" {
			t.Errorf("Authorization = %q, want da2-key", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"data":{"marketLineUpdates":[{"marketLines":[{"marketLineKey":"a.b"}]}]}}`))
	}))
	defer server.Close()

	client := api.NewClient(server.URL, "da2-key", api.WithRetries(0, time.Millisecond))
	c := &collector{}
	cfg := DefaultConfig()
	cfg.Queries = []Query{{
		Name:      "lines",
		Query:     updatesQuery,
		Variables: map[string]any{"leagueIds": []any{3}},
	}}

	f := New(cfg, client, c, func() int64 { return 1700000000000 }, nil)
	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	wantVars := map[string]any{"leagueIds": []any{float64(3)}, "since": float64(1700000000000)}
	if diff := cmp.Diff(wantVars, got.Variables); diff != "" {
		t.Errorf("variables mismatch (-want +got):\n%s", diff)
	}

	events, errs := c.snapshot()
	if len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	e := events[0]
	if e.Kind != sink.KindGapFill || e.SubscriptionID != "lines" || e.Field != "marketLineUpdates" || e.Raw {
		t.Errorf("event = %+v", e)
	}
	if string(e.Data) != `[{"marketLines":[{"marketLineKey":"a.b"}]}]` {
		t.Errorf("Data = %s", e.Data)
	}

	// The configured variables are not mutated.
	if _, ok := cfg.Queries[0].Variables[SinceVariable]; ok {
		t.Error("since leaked into the configured variables")
	}
}

func TestFiller_SinceOmittedWhenZero(t *testing.T) {
	var vars map[string]any
	q := querierFunc(func(ctx context.Context, req api.Request) (*api.Response, error) {
		vars = req.Variables
		return &api.Response{Data: json.RawMessage(`{"x":1}`)}, nil
	})

	f := New(Config{Queries: []Query{{Name: "x", Query: "query { x }"}}}, q, &collector{}, nil, nil)
	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if vars != nil {
		t.Errorf("Variables = %v, want nil", vars)
	}
}

func TestFiller_FieldFallback(t *testing.T) {
	q := querierFunc(func(ctx context.Context, req api.Request) (*api.Response, error) {
		return &api.Response{Data: json.RawMessage(`{"other":1}`)}, nil
	})
	c := &collector{}

	cfg := Config{Queries: []Query{{Name: "x", Query: "query { x }", Field: "missing"}}}
	if err := New(cfg, q, c, nil, nil).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	events, _ := c.snapshot()
	if len(events) != 1 || !events[0].Raw || string(events[0].Data) != `{"other":1}` {
		t.Errorf("events = %+v, want raw data", events)
	}
}

func TestFiller_ErrorsReachHandler(t *testing.T) {
	boom := errors.New("boom")
	q := querierFunc(func(ctx context.Context, req api.Request) (*api.Response, error) {
		if req.Query == "query { bad }" {
			return nil, boom
		}
		return &api.Response{Data: json.RawMessage(`{"good":true}`)}, nil
	})
	c := &collector{}

	cfg := Config{Queries: []Query{
		{Name: "bad", Query: "query { bad }"},
		{Name: "good", Query: "query { good }"},
	}}
	f := New(cfg, q, c, nil, nil)

	err := f.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("Run = %v, want wrapped boom", err)
	}

	events, errs := c.snapshot()
	if len(events) != 1 || string(events[0].Data) != "true" {
		t.Errorf("events = %+v, want the good result", events)
	}
	if len(errs) != 1 || !errors.Is(errs[0], boom) {
		t.Errorf("errs = %v, want [boom]", errs)
	}

	stats := f.Stats()
	if stats.Runs != 1 || stats.Delivered != 1 || stats.Failed != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestFiller_Concurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	q := querierFunc(func(ctx context.Context, req api.Request) (*api.Response, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return &api.Response{Data: json.RawMessage(`{}`)}, nil
	})

	cfg := Config{Concurrency: 2}
	for i := 0; i < 6; i++ {
		cfg.Queries = append(cfg.Queries, Query{Name: "q", Query: "query { q }"})
	}
	if err := New(cfg, q, &collector{}, nil, nil).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

func TestFiller_Timeout(t *testing.T) {
	q := querierFunc(func(ctx context.Context, req api.Request) (*api.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c := &collector{}

	cfg := Config{Queries: []Query{{Name: "slow", Query: "query { slow }"}}, Timeout: 20 * time.Millisecond}
	err := New(cfg, q, c, nil, nil).Run(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v, want DeadlineExceeded", err)
	}
	if _, errs := c.snapshot(); len(errs) != 1 {
		t.Errorf("errs = %v, want the timeout reported", errs)
	}
}

func TestFiller_TriggerCancelsPrevious(t *testing.T) {
	started := make(chan struct{}, 2)
	var cancelled atomic.Int32
	q := querierFunc(func(ctx context.Context, req api.Request) (*api.Response, error) {
		started <- struct{}{}
		select {
		case <-ctx.Done():
			cancelled.Add(1)
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
			return &api.Response{Data: json.RawMessage(`{"q":1}`)}, nil
		}
	})
	c := &collector{}

	f := New(Config{Queries: []Query{{Name: "q", Query: "query { q }"}}}, q, c, nil, nil)
	f.Start(context.Background())

	f.Trigger()
	<-started
	f.Trigger()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	deadline := time.Now().Add(time.Second)
	for {
		events, _ := c.snapshot()
		if len(events) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("events = %d, want 1", len(events))
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := f.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if n := cancelled.Load(); n != 1 {
		t.Errorf("cancelled = %d, want 1", n)
	}
	// A cancelled fill is not reported as a subscription error.
	if _, errs := c.snapshot(); len(errs) != 0 {
		t.Errorf("errs = %v, want none", errs)
	}
}

func TestFiller_TriggerBeforeStart(t *testing.T) {
	f := New(Config{}, querierFunc(nil), &collector{}, nil, nil)
	if err := f.trigger(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("trigger() = %v, want ErrNotStarted", err)
	}
}

func TestFieldFromQuery(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{updatesQuery, "marketLineUpdates"},
		{"query { items { id } }", "items"},
		{"{ items { id } }", "items"},
		{"subscription s { onUpdate { id } }", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := fieldFromQuery(tt.query); got != tt.want {
			t.Errorf("fieldFromQuery(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}
