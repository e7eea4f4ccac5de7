package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/rickgao/realtime-feed/internal/auth"
)

// Supervisor reconnects a Manager after transport failures. Subscriptions
// lost with the connection are restarted, in registration order, on the
// next acknowledged session. Their handlers have already seen the
// ErrConnectionLost error by then.
type Supervisor struct {
	m      *Manager
	cfg    ReconnectConfig
	logger *slog.Logger

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSupervisor creates a Supervisor for m.
func NewSupervisor(m *Manager, cfg ReconnectConfig, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultReconnectConfig()
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}

	return &Supervisor{
		m:      m,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Run connects and keeps reconnecting until ctx is done, the Manager is
// closed, a non-retryable error occurs, or MaxAttempts consecutive attempts
// fail. It returns nil when the Manager was closed and ctx.Err() when ctx
// ended the run.
func (s *Supervisor) Run(ctx context.Context) error {
	wait := s.cfg.BaseDelay
	failures := 0

	for {
		err := s.m.Connect(ctx)
		if err == nil {
			failures = 0
			wait = s.cfg.BaseDelay

			select {
			case <-s.m.Done():
			case <-ctx.Done():
				<-s.m.Done()
			}
			err = s.m.Err()
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.m.State() == StateClosed {
			return nil
		}
		if !retryable(err) {
			return err
		}

		failures++
		if s.cfg.MaxAttempts > 0 && failures >= s.cfg.MaxAttempts {
			return fmt.Errorf("giving up after %d attempts: %w", failures, err)
		}

		requeued := s.m.requeueLost()
		delay := jitter(wait)
		s.logger.Warn("reconnecting",
			"error", err,
			"attempt", failures,
			"backoff", delay,
			"requeued", requeued,
		)

		if err := s.sleep(ctx, delay); err != nil {
			return err
		}

		wait *= 2
		if wait > s.cfg.MaxDelay {
			wait = s.cfg.MaxDelay
		}
	}
}

// retryable reports whether a session error may be cured by reconnecting.
func retryable(err error) bool {
	var cfgErr *auth.ConfigError
	switch {
	case err == nil:
		return true
	case errors.As(err, &cfgErr):
		return false
	case errors.Is(err, ErrProtocolNegotiation), errors.Is(err, ErrAlreadyClosed):
		return false
	default:
		return true
	}
}

// jitter returns d * (0.5 to 1.5).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int64N(int64(d)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
