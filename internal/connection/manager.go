package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/realtime-feed/internal/auth"
	"github.com/rickgao/realtime-feed/internal/protocol"
	"github.com/rickgao/realtime-feed/internal/sink"
	"github.com/rickgao/realtime-feed/internal/subscription"
)

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithDiagnostics routes unhandled frames to d instead of the logger.
func WithDiagnostics(d sink.Diagnostics) ManagerOption {
	return func(m *Manager) {
		m.diag = d
	}
}

// WithAckHook registers fn to run after every connection_ack, once pending
// subscriptions have been started. fn runs on the receive goroutine and
// must not block.
func WithAckHook(fn func()) ManagerOption {
	return func(m *Manager) {
		m.onAck = append(m.onAck, fn)
	}
}

// withClientFactory replaces the WebSocket client constructor.
func withClientFactory(fn func(ClientConfig, *slog.Logger) Client) ManagerOption {
	return func(m *Manager) {
		m.newClient = fn
	}
}

// Manager owns one graphql-ws connection and the subscriptions carried on it.
type Manager struct {
	cfg       ManagerConfig
	endpoint  auth.Endpoint
	registry  *subscription.Registry
	diag      sink.Diagnostics
	onAck     []func()
	logger    *slog.Logger
	newClient func(ClientConfig, *slog.Logger) Client

	mu        sync.Mutex
	state     State
	client    Client
	err       error         // Terminal error of the last session
	done      chan struct{} // Closed when the session's receive loop exits
	stop      chan struct{} // Closed by Close
	keepalive time.Duration // Effective keepalive for the current session

	framesReceived  atomic.Int64
	framesUnhandled atomic.Int64
	eventsDelivered atomic.Int64
	startsSent      atomic.Int64
	attempts        atomic.Int64
}

// NewManager creates a Connection Manager in the Disconnected state.
func NewManager(cfg ManagerConfig, endpoint auth.Endpoint, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MessageBufferSize < 1 {
		cfg.MessageBufferSize = DefaultManagerConfig().MessageBufferSize
	}

	done := make(chan struct{})
	close(done)

	m := &Manager{
		cfg:       cfg,
		endpoint:  endpoint,
		registry:  subscription.NewRegistry(logger),
		logger:    logger,
		newClient: NewClient,
		done:      done,
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.diag == nil {
		m.diag = sink.LogDiagnostics(logger)
	}
	return m
}

// Connect opens the socket and sends connection_init. It returns once the
// handshake completes; connection_ack is awaited asynchronously. ctx bounds
// the whole session: cancelling it tears the connection down and fails
// every live subscription with ErrCancelled.
func (m *Manager) Connect(ctx context.Context) error {
	if err := m.endpoint.Validate(); err != nil {
		return err
	}
	url := m.cfg.URL
	if url == "" {
		var err error
		if url, err = m.endpoint.RealtimeURL(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return ErrAlreadyClosed
	case StateConnecting, StateOpen, StateAcknowledged:
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.state = StateConnecting
	m.err = nil
	m.keepalive = m.cfg.KeepaliveTimeout
	m.mu.Unlock()

	attempt := m.attempts.Add(1)
	m.logger.Info("connecting", "host", m.endpoint.Host, "attempt", attempt)

	c := m.newClient(ClientConfig{
		URL:              url,
		Subprotocol:      protocol.Subprotocol,
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		PingInterval:     m.cfg.PingInterval,
		BufferSize:       m.cfg.MessageBufferSize,
	}, m.logger)

	if err := c.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
			m.teardown(c, StateClosed, err, true)
			return err
		}
		m.setFailed(err)
		return fmt.Errorf("connect: %w", err)
	}

	init, err := protocol.EncodeInit(m.endpoint.InitPayload())
	if err != nil {
		c.Close()
		m.setFailed(err)
		return fmt.Errorf("encode connection_init: %w", err)
	}
	if err := c.Send(init); err != nil {
		c.Close()
		m.setFailed(err)
		return fmt.Errorf("send connection_init: %w", err)
	}

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		c.Close()
		return ErrAlreadyClosed
	}
	m.client = c
	m.state = StateOpen
	done := make(chan struct{})
	m.done = done
	stop := m.stop
	m.mu.Unlock()

	m.logger.Info("connection open, awaiting ack")

	go m.run(ctx, c, stop, done)
	return nil
}

// Subscribe registers a subscription. It is started immediately when the
// connection is acknowledged, otherwise on the next connection_ack.
func (m *Manager) Subscribe(query string, h sink.Handler, opts ...subscription.Option) (string, error) {
	if m.State() == StateClosed {
		return "", ErrAlreadyClosed
	}

	id, err := m.registry.Register(query, h, opts...)
	if err != nil {
		return "", err
	}
	m.logger.Debug("subscription registered", "sub_id", id)

	m.mu.Lock()
	if m.state == StateClosed {
		// Close ran after the check above.
		m.registry.Remove(id)
		m.mu.Unlock()
		return "", ErrAlreadyClosed
	}
	var failed []failure
	if m.state == StateAcknowledged {
		failed = m.flushLocked()
	}
	m.mu.Unlock()

	notifyAll(failed)
	return id, nil
}

// Unsubscribe stops and forgets a subscription. A stop frame is sent when
// the subscription is running on an acknowledged connection.
func (m *Manager) Unsubscribe(id string) error {
	m.mu.Lock()
	sub, ok := m.registry.Lookup(id)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSubscription, id)
	}

	var sendErr error
	if sub.State == subscription.Started && m.state == StateAcknowledged && m.client != nil {
		sendErr = m.sendStop(m.client, id)
	}
	m.registry.MarkStopped(id)
	m.registry.Remove(id)
	m.mu.Unlock()

	m.logger.Debug("subscription removed", "sub_id", id)

	if sendErr != nil {
		return fmt.Errorf("send stop: %w", sendErr)
	}
	return nil
}

// Close shuts the connection down. Pending and Started subscriptions move
// to Stopped without callbacks. Close is idempotent; a closed Manager
// cannot be reconnected.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	prev := m.state
	m.state = StateClosed
	c := m.client
	m.client = nil
	close(m.stop)
	m.mu.Unlock()

	if c != nil && prev == StateAcknowledged && m.cfg.SendStopOnClose {
		for _, sub := range m.registry.All() {
			if sub.State != subscription.Started {
				continue
			}
			if err := m.sendStop(c, sub.ID); err != nil {
				m.logger.Debug("failed to send stop", "sub_id", sub.ID, "error", err)
			}
		}
	}

	for _, sub := range m.registry.All() {
		if sub.State == subscription.Pending || sub.State == subscription.Started {
			m.registry.MarkStopped(sub.ID)
		}
	}

	var err error
	if c != nil {
		err = c.Close()
	}

	m.logger.Info("connection closed", "previous_state", prev)
	return err
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Done is closed when the current session ends. Before the first Connect
// it is already closed.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Err returns the error that ended the last session, or nil.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Subscription returns a copy of the subscription with the given id.
func (m *Manager) Subscription(id string) (subscription.Subscription, bool) {
	return m.registry.Lookup(id)
}

// Subscriptions returns copies of all subscriptions in registration order.
func (m *Manager) Subscriptions() []subscription.Subscription {
	return m.registry.All()
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	counts := m.registry.Counts()
	return ManagerStats{
		State:              m.State(),
		Subscriptions:      m.registry.Len(),
		Started:            counts[subscription.Started],
		Pending:            counts[subscription.Pending],
		Errored:            counts[subscription.Errored],
		FramesReceived:     m.framesReceived.Load(),
		FramesUnhandled:    m.framesUnhandled.Load(),
		EventsDelivered:    m.eventsDelivered.Load(),
		StartsSent:         m.startsSent.Load(),
		ConnectionAttempts: m.attempts.Load(),
	}
}

// requeueLost moves subscriptions that failed with ErrConnectionLost back
// to Pending so the next acknowledged session starts them again.
func (m *Manager) requeueLost() int {
	n := 0
	for _, sub := range m.registry.All() {
		if sub.State != subscription.Errored || !errors.Is(sub.Err, ErrConnectionLost) {
			continue
		}
		if m.registry.Requeue(sub.ID) {
			n++
		}
	}
	return n
}

// run is the single receive goroutine of a session. Every inbound frame is
// interpreted here, in arrival order.
func (m *Manager) run(ctx context.Context, c Client, stop, done chan struct{}) {
	defer close(done)

	var (
		timer   *time.Timer
		timeout <-chan time.Time
	)
	resetTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timeout = nil
		if d := m.deadline(); d > 0 {
			timer = time.NewTimer(d)
			timeout = timer.C
		}
	}
	resetTimer()
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-stop:
			return

		case <-ctx.Done():
			m.teardown(c, StateClosed, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err()), true)
			return

		case err := <-c.Errors():
			// Frames read before the failure are applied first.
			if !m.drain(c) {
				return
			}
			m.teardown(c, StateFailed, &LostError{Cause: err}, false)
			return

		case msg := <-c.Messages():
			if !m.process(msg) {
				return
			}
			resetTimer()

		case <-timeout:
			cause := ErrKeepaliveTimeout
			if m.State() == StateOpen {
				cause = ErrAckTimeout
			}
			m.teardown(c, StateFailed, &LostError{Cause: cause}, false)
			return
		}
	}
}

// drain applies buffered frames. It returns false if one of them ended the
// session.
func (m *Manager) drain(c Client) bool {
	for {
		select {
		case msg := <-c.Messages():
			if !m.process(msg) {
				return false
			}
		default:
			return true
		}
	}
}

// process decodes and applies one frame. It returns false once the session
// has ended.
func (m *Manager) process(msg TimestampedMessage) bool {
	m.framesReceived.Add(1)

	f, err := protocol.Decode(msg.Data)
	if err != nil {
		m.unhandled(sink.Unhandled{
			Reason:     "parse_error",
			Frame:      msg.Data,
			Err:        err,
			ReceivedAt: msg.ReceivedAt,
		})
		return true
	}

	m.handleFrame(f, msg.ReceivedAt)

	switch m.State() {
	case StateOpen, StateAcknowledged:
		return true
	default:
		return false
	}
}

// deadline is the longest the receive loop may wait for the next frame.
func (m *Manager) deadline() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateOpen:
		return m.cfg.AckTimeout
	case StateAcknowledged:
		return m.keepalive
	default:
		return 0
	}
}

// fail ends the current session with err. It is a no-op once the session
// has already ended.
func (m *Manager) fail(err error) {
	m.mu.Lock()
	c := m.client
	m.mu.Unlock()
	if c == nil {
		return
	}
	m.teardown(c, StateFailed, err, false)
}

// teardown closes c, records err and moves live subscriptions to Errored.
// Pending subscriptions are only invalidated when includePending is set;
// otherwise they stay queued for the next session.
func (m *Manager) teardown(c Client, to State, err error, includePending bool) {
	m.mu.Lock()
	if m.state == StateClosed || m.state == StateFailed {
		m.mu.Unlock()
		return
	}
	m.state = to
	m.err = err
	m.client = nil
	m.mu.Unlock()

	c.Close()

	var affected []subscription.Subscription
	if includePending {
		affected = m.registry.InvalidateAll(err)
	} else {
		affected = m.registry.InvalidateStarted(err)
	}

	m.logger.Warn("connection ended",
		"state", to,
		"error", err,
		"subscriptions", len(affected),
	)

	for _, sub := range affected {
		sub.Handler.OnError(err)
	}
}

func (m *Manager) setFailed(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateConnecting {
		m.state = StateFailed
		m.err = err
	}
}

// failure is a start that could not be sent.
type failure struct {
	handler sink.Handler
	err     error
}

func notifyAll(failed []failure) {
	for _, f := range failed {
		f.handler.OnError(f.err)
	}
}

// flushLocked sends start for every Pending subscription in registration
// order. Callers hold m.mu and must report the returned failures after
// releasing it.
func (m *Manager) flushLocked() []failure {
	var failed []failure
	for _, sub := range m.registry.TakePending() {
		if !m.registry.MarkStarted(sub.ID) {
			continue
		}
		if err := m.sendStart(m.client, sub); err != nil {
			err = fmt.Errorf("send start %s: %w", sub.ID, err)
			if m.registry.MarkErrored(sub.ID, err) {
				failed = append(failed, failure{handler: sub.Handler, err: err})
			}
			continue
		}
		m.startsSent.Add(1)
		m.logger.Debug("subscription started", "sub_id", sub.ID, "field", sub.Field)
	}
	return failed
}

func (m *Manager) sendStart(c Client, sub subscription.Subscription) error {
	if c == nil {
		return ErrNotConnected
	}
	data, err := protocol.EncodeStart(sub.ID, protocol.Operation{
		Query:     sub.Query,
		Variables: sub.Variables,
	}, m.endpoint.SubscriptionExtensions())
	if err != nil {
		return err
	}
	return c.Send(data)
}

func (m *Manager) sendStop(c Client, id string) error {
	data, err := protocol.EncodeStop(id)
	if err != nil {
		return err
	}
	return c.Send(data)
}

func (m *Manager) unhandled(u sink.Unhandled) {
	m.framesUnhandled.Add(1)
	m.diag.OnUnhandled(u)
}
