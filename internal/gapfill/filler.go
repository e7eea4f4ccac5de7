package gapfill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/realtime-feed/internal/api"
	"github.com/rickgao/realtime-feed/internal/sink"
)

// SinceVariable is the variable the catch-up timestamp is passed in.
const SinceVariable = "since"

// ErrNotStarted is returned by Trigger before Start.
var ErrNotStarted = errors.New("gap filler not started")

// Query is one catch-up query.
type Query struct {
	Name      string
	Query     string
	Field     string // Root field delivered; derived from Query when empty
	Variables map[string]any
}

// Config holds gap filler configuration.
type Config struct {
	Queries     []Query
	Timeout     time.Duration // Per-query timeout (default: 30s)
	Concurrency int           // Max concurrent queries (default: 4)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:     30 * time.Second,
		Concurrency: 4,
	}
}

// Querier runs a GraphQL query over HTTP. *api.Client implements it.
type Querier interface {
	Query(ctx context.Context, req api.Request) (*api.Response, error)
}

// SinceFunc returns the ms timestamp to catch up from. Zero leaves the
// since variable unset.
type SinceFunc func() int64

// Stats counts fills.
type Stats struct {
	Runs      int64
	Delivered int64
	Failed    int64
}

// Filler runs the catch-up queries.
type Filler struct {
	cfg     Config
	client  Querier
	handler sink.Handler
	since   SinceFunc
	logger  *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc // Cancels the fill in flight
	wg     sync.WaitGroup

	runs      atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

// New creates a Filler. since may be nil.
func New(cfg Config, client Querier, handler sink.Handler, since SinceFunc, logger *slog.Logger) *Filler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if since == nil {
		since = func() int64 { return 0 }
	}
	return &Filler{
		cfg:     cfg,
		client:  client,
		handler: handler,
		since:   since,
		logger:  logger,
	}
}

// Start sets the context background fills run under.
func (f *Filler) Start(ctx context.Context) {
	f.mu.Lock()
	f.ctx = ctx
	f.mu.Unlock()

	f.logger.Info("gap filler started",
		"queries", len(f.cfg.Queries),
		"concurrency", f.cfg.Concurrency,
	)
}

// Trigger starts a fill in the background and returns immediately. A fill
// still in flight is cancelled first. Trigger is meant to be registered as
// the connection manager's ack hook.
func (f *Filler) Trigger() {
	if err := f.trigger(); err != nil {
		f.logger.Warn("gap fill not triggered", "error", err)
	}
}

func (f *Filler) trigger() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ctx == nil {
		return ErrNotStarted
	}
	if err := f.ctx.Err(); err != nil {
		return err
	}
	if f.cancel != nil {
		f.cancel()
	}

	ctx, cancel := context.WithCancel(f.ctx)
	f.cancel = cancel

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer cancel()
		if err := f.Run(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn("gap fill failed", "error", err)
		}
	}()

	return nil
}

// Stop cancels the fill in flight and waits for it.
func (f *Filler) Stop(ctx context.Context) error {
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		f.logger.Info("gap filler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes every query once, at most Concurrency at a time, and
// returns the first error. Every query is attempted even if one fails.
func (f *Filler) Run(ctx context.Context) error {
	start := time.Now()
	since := f.since()
	f.runs.Add(1)

	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)

	var delivered, failed atomic.Int64
	for _, q := range f.cfg.Queries {
		g.Go(func() error {
			if err := f.runQuery(ctx, q, since); err != nil {
				failed.Add(1)
				return err
			}
			delivered.Add(1)
			return nil
		})
	}
	err := g.Wait()

	f.delivered.Add(delivered.Load())
	f.failed.Add(failed.Load())

	f.logger.Info("gap fill complete",
		"queries", len(f.cfg.Queries),
		"delivered", delivered.Load(),
		"errors", failed.Load(),
		"since", since,
		"duration", time.Since(start),
	)

	return err
}

// runQuery runs q and delivers its result.
func (f *Filler) runQuery(ctx context.Context, q Query, since int64) error {
	qctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	vars := maps.Clone(q.Variables)
	if since > 0 {
		if vars == nil {
			vars = make(map[string]any, 1)
		}
		vars[SinceVariable] = since
	}

	resp, err := f.client.Query(qctx, api.Request{Query: q.Query, Variables: vars})
	if err != nil {
		err = fmt.Errorf("gap fill %s: %w", q.Name, err)
		// A superseded or stopped fill is not a subscription error.
		if ctx.Err() == nil {
			f.handler.OnError(err)
		}
		return err
	}
	for _, ge := range resp.Errors {
		f.logger.Warn("gap fill partial result",
			"query", q.Name,
			"error_type", ge.ErrorType,
			"message", ge.Message,
		)
	}

	field := q.Field
	if field == "" {
		field = fieldFromQuery(q.Query)
	}
	f.handler.OnEvent(resultEvent(q.Name, field, resp.Data))

	return nil
}

// resultEvent takes data.<field> out of a response. When the field is
// missing the whole data object is delivered with Raw set.
func resultEvent(name, field string, data json.RawMessage) sink.Event {
	e := sink.Event{
		SubscriptionID: name,
		Kind:           sink.KindGapFill,
		Field:          field,
		Data:           data,
		Raw:            true,
		ReceivedAt:     time.Now(),
	}
	if field == "" {
		return e
	}

	doc, err := oj.Parse(data)
	if err != nil {
		return e
	}
	if found := jp.C(field).Get(doc); len(found) > 0 {
		e.Data = json.RawMessage(oj.JSON(found[0]))
		e.Raw = false
	}
	return e
}

// Stats returns counters across all fills.
func (f *Filler) Stats() Stats {
	return Stats{
		Runs:      f.runs.Load(),
		Delivered: f.delivered.Load(),
		Failed:    f.failed.Load(),
	}
}
