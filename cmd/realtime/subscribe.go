package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/realtime-feed/internal/api"
	"github.com/rickgao/realtime-feed/internal/config"
	"github.com/rickgao/realtime-feed/internal/connection"
	"github.com/rickgao/realtime-feed/internal/gapfill"
	"github.com/rickgao/realtime-feed/internal/market"
	"github.com/rickgao/realtime-feed/internal/sink"
	"github.com/rickgao/realtime-feed/internal/version"
)

var (
	verbose      bool
	snapshotMode bool
	healthAddr   string
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe [query-file...]",
	Short: "Start subscriptions and print updates until interrupted",
	Long: `subscribe opens one graphql-ws connection, starts every configured
subscription plus one per query file argument, and prints each update.

With --snapshot the initial odds document is fetched from the data API and
updates are applied to it by marketLineKey; changed lines are printed and
the final document is printed on exit.`,
	RunE: runSubscribe,
}

func init() {
	subscribeCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print delivery metadata with each update")
	subscribeCmd.Flags().BoolVar(&snapshotMode, "snapshot", false, "maintain the odds snapshot instead of printing raw updates")
	subscribeCmd.Flags().StringVar(&healthAddr, "health-addr", "", "serve /health on this address (overrides health.addr)")
	rootCmd.AddCommand(subscribeCmd)
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if snapshotMode {
		cfg.Snapshot.Enabled = true
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if healthAddr != "" {
		cfg.Health.Addr = healthAddr
	}

	logger := newLogger(cfg.Logging, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	logger.Info("starting realtime",
		"version", version.Version,
		"commit", version.Commit,
		"host", cfg.Endpoint.Host,
	)

	endpoint, err := endpointFromConfig(cfg.Endpoint)
	if err != nil {
		return err
	}
	specs, err := subscriptionSpecs(cfg.Subscriptions, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), verbose)

	// Events are handed to a queue so a slow terminal never stalls the
	// receive loop.
	var handler sink.Handler = out
	var snap *market.Snapshot
	if cfg.Snapshot.Enabled {
		snap, err = seedSnapshot(ctx, cfg, logger)
		if err != nil {
			return err
		}
		handler = snap
	}
	queue := sink.NewQueued(handler, cfg.Connection.BufferSize, logger)
	defer queue.Close()

	var opts []connection.ManagerOption
	var filler *gapfill.Filler
	if cfg.GapFill.Enabled {
		var since gapfill.SinceFunc
		if snap != nil {
			since = snap.LastUpdated
		}
		filler = gapfill.New(gapFillConfig(cfg.GapFill), graphQLClient(cfg, endpoint, api.WithLogger(logger)), queue, since, logger)
		filler.Start(ctx)
		opts = append(opts, connection.WithAckHook(filler.Trigger))
	}

	m := connection.NewManager(managerConfig(cfg.Connection), endpoint, logger, opts...)
	defer m.Close()

	for _, spec := range specs {
		id, err := m.Subscribe(spec.query, queue, spec.opts...)
		if err != nil {
			return err
		}
		logger.Debug("subscription registered", "sub_id", id)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runConnection(gctx, m, cfg.Reconnect, logger)
	})

	if snap != nil {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case c := <-snap.Changes():
					out.printChange(c)
				}
			}
		})
	}

	if cfg.Health.Addr != "" {
		healthServer := &http.Server{
			Addr:    cfg.Health.Addr,
			Handler: createHealthHandler(healthSources{manager: m, queue: queue, filler: filler, snapshot: snap}, logger),
		}
		g.Go(func() error {
			logger.Info("starting health server", "addr", cfg.Health.Addr)
			if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return healthServer.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()

	logger.Info("shutting down...")
	m.Close()
	if filler != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		filler.Stop(shutdownCtx)
		cancel()
	}
	queue.Close()
	if snap != nil {
		out.printDocument(snap.JSON(2))
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("realtime stopped", "stats", m.Stats())
	return nil
}

// runConnection drives the manager until ctx ends. Without reconnect the
// first session end is returned as an error.
func runConnection(ctx context.Context, m *connection.Manager, rc config.ReconnectConfig, logger *slog.Logger) error {
	if rc.Enabled {
		err := connection.NewSupervisor(m, reconnectConfig(rc), logger).Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if err := m.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	select {
	case <-ctx.Done():
		return nil
	case <-m.Done():
		if ctx.Err() != nil {
			return nil
		}
		if err := m.Err(); err != nil {
			return err
		}
		return errors.New("connection closed")
	}
}

// seedSnapshot fetches the odds document from the data API.
func seedSnapshot(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*market.Snapshot, error) {
	snap := market.NewSnapshot(logger)

	logger.Info("fetching initial snapshot", "url", cfg.Snapshot.URL+cfg.Snapshot.Path)
	data, err := dataClient(cfg, api.WithLogger(logger)).GetSnapshot(ctx, cfg.Snapshot.Path)
	if err != nil {
		return nil, err
	}

	lastUpdated := data.LastUpdated
	if lastUpdated == 0 {
		lastUpdated = time.Now().UnixMilli()
	}
	if err := snap.Seed(data.Odds, lastUpdated); err != nil {
		return nil, err
	}
	return snap, nil
}
