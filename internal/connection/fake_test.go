package connection

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/realtime-feed/internal/auth"
	"github.com/rickgao/realtime-feed/internal/sink"
)

var testEndpoint = auth.Endpoint{
	Host:   "example.appsync-api.us-east-1.amazonaws.com",
	Region: "us-east-1",
	Token:  "da2-test",
}

// fakeClient is an in-memory Client driven by the test.
type fakeClient struct {
	connectErr error
	sendErr    func(data []byte) error

	mu     sync.Mutex
	sent   [][]byte
	closed bool

	messages chan TimestampedMessage
	errs     chan error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		messages: make(chan TimestampedMessage, 100),
		errs:     make(chan error, 1),
	}
}

func (f *fakeClient) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.connectErr
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeClient) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrNotConnected
	}
	if f.sendErr != nil {
		if err := f.sendErr(data); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeClient) Messages() <-chan TimestampedMessage { return f.messages }
func (f *fakeClient) Errors() <-chan error                { return f.errs }

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeClient) isClosed() bool {
	return !f.IsConnected()
}

// push delivers an inbound frame.
func (f *fakeClient) push(frame string) {
	f.messages <- TimestampedMessage{Data: []byte(frame), ReceivedAt: time.Now()}
}

// frames decodes every frame sent so far.
func (f *fakeClient) frames(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]map[string]any, 0, len(f.sent))
	for _, data := range f.sent {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("sent invalid JSON %q: %v", data, err)
		}
		out = append(out, m)
	}
	return out
}

// waitFrames waits until at least n frames were sent.
func (f *fakeClient) waitFrames(t *testing.T, n int) []map[string]any {
	t.Helper()
	waitFor(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.sent) >= n
	})
	return f.frames(t)
}

// fakeDialer hands out a new fakeClient per connection attempt.
type fakeDialer struct {
	connectErrs []error // Per attempt; attempts beyond the slice succeed
	configure   func(*fakeClient)

	mu      sync.Mutex
	clients []*fakeClient
	configs []ClientConfig
}

func (d *fakeDialer) newClient(cfg ClientConfig, _ *slog.Logger) Client {
	d.mu.Lock()
	defer d.mu.Unlock()

	fc := newFakeClient()
	if i := len(d.clients); i < len(d.connectErrs) {
		fc.connectErr = d.connectErrs[i]
	}
	if d.configure != nil {
		d.configure(fc)
	}
	d.clients = append(d.clients, fc)
	d.configs = append(d.configs, cfg)
	return fc
}

// client waits for the i-th client to be created.
func (d *fakeDialer) client(t *testing.T, i int) *fakeClient {
	t.Helper()
	waitFor(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.clients) > i
	})
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clients[i]
}

func (d *fakeDialer) attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

// recorder is a sink.Handler that buffers what it receives.
type recorder struct {
	events chan sink.Event
	errs   chan error
}

func newRecorder() *recorder {
	return &recorder{
		events: make(chan sink.Event, 100),
		errs:   make(chan error, 100),
	}
}

func (r *recorder) OnEvent(e sink.Event) { r.events <- e }
func (r *recorder) OnError(err error)    { r.errs <- err }

func (r *recorder) nextEvent(t *testing.T) sink.Event {
	t.Helper()
	select {
	case e := <-r.events:
		return e
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return sink.Event{}
	}
}

func (r *recorder) nextError(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.errs:
		return err
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for error")
		return nil
	}
}

func (r *recorder) expectQuiet(t *testing.T) {
	t.Helper()
	select {
	case e := <-r.events:
		t.Errorf("unexpected event %+v", e)
	case err := <-r.errs:
		t.Errorf("unexpected error %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

// diagRecorder collects unhandled frames.
type diagRecorder struct {
	ch chan sink.Unhandled
}

func newDiagRecorder() *diagRecorder {
	return &diagRecorder{ch: make(chan sink.Unhandled, 100)}
}

func (d *diagRecorder) OnUnhandled(u sink.Unhandled) { d.ch <- u }

func (d *diagRecorder) next(t *testing.T) sink.Unhandled {
	t.Helper()
	select {
	case u := <-d.ch:
		return u
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for unhandled frame")
		return sink.Unhandled{}
	}
}

func (d *diagRecorder) expectQuiet(t *testing.T) {
	t.Helper()
	select {
	case u := <-d.ch:
		t.Errorf("unexpected unhandled frame: %s %s", u.Reason, u.Frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want %v", m.State(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// testManager wires a Manager to a fakeDialer and a diagRecorder.
func testManager(t *testing.T, cfg ManagerConfig, opts ...ManagerOption) (*Manager, *fakeDialer, *diagRecorder) {
	t.Helper()
	d := &fakeDialer{}
	diag := newDiagRecorder()
	opts = append([]ManagerOption{withClientFactory(d.newClient), WithDiagnostics(diag)}, opts...)
	m := NewManager(cfg, testEndpoint, nil, opts...)
	t.Cleanup(func() { m.Close() })
	return m, d, diag
}

// connectAndAck connects and acknowledges the first session.
func connectAndAck(t *testing.T, m *Manager, d *fakeDialer) *fakeClient {
	t.Helper()
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	fc := d.client(t, d.attempts()-1)
	fc.push(`{"type":"connection_ack","payload":{"connectionTimeoutMs":300000}}`)
	waitState(t, m, StateAcknowledged)
	return fc
}

// startData decodes the stringified operation of a start frame.
func startData(t *testing.T, frame map[string]any) map[string]any {
	t.Helper()
	payload, ok := frame["payload"].(map[string]any)
	if !ok {
		t.Fatalf("start frame has no payload: %v", frame)
	}
	s, ok := payload["data"].(string)
	if !ok {
		t.Fatalf("start payload.data is not a string: %v", payload["data"])
	}
	var op map[string]any
	if err := json.Unmarshal([]byte(s), &op); err != nil {
		t.Fatalf("start payload.data is not JSON: %v", err)
	}
	return op
}
