package connection

import (
	"encoding/json"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/rickgao/realtime-feed/internal/protocol"
	"github.com/rickgao/realtime-feed/internal/sink"
	"github.com/rickgao/realtime-feed/internal/subscription"
)

// handleFrame applies one decoded frame to the connection and subscription
// state. It runs only on the receive goroutine. Handlers are never called
// with m.mu held.
func (m *Manager) handleFrame(f protocol.Frame, at time.Time) {
	switch f.Type {
	case protocol.TypeConnectionAck:
		m.onConnectionAck(f, at)
	case protocol.TypeStartAck:
		m.onStartAck(f, at)
	case protocol.TypeKeepAlive:
		// Liveness only; the receive loop resets its deadline on every frame.
	case protocol.TypeData:
		m.onData(f, at)
	case protocol.TypeError:
		m.onError(f, at)
	case protocol.TypeComplete:
		m.onComplete(f, at)
	case protocol.TypeConnectionError:
		m.onConnectionError(f)
	default:
		m.unhandledFrame(f, "unknown_type", at)
	}
}

func (m *Manager) onConnectionAck(f protocol.Frame, at time.Time) {
	m.mu.Lock()
	switch m.state {
	case StateOpen:
	case StateAcknowledged:
		m.mu.Unlock()
		m.logger.Debug("ignoring repeated connection_ack")
		return
	default:
		m.mu.Unlock()
		m.unhandledFrame(f, "unexpected_state", at)
		return
	}

	ack, err := f.Ack()
	if err != nil {
		m.logger.Debug("connection_ack payload ignored", "error", err)
	}
	if m.cfg.HonorServerTimeout && ack.ConnectionTimeoutMs > 0 {
		m.keepalive = time.Duration(ack.ConnectionTimeoutMs) * time.Millisecond
	}
	m.state = StateAcknowledged
	keepalive := m.keepalive
	failed := m.flushLocked()
	hooks := m.onAck
	m.mu.Unlock()

	m.logger.Info("connection acknowledged", "keepalive", keepalive)

	notifyAll(failed)
	for _, fn := range hooks {
		fn()
	}
}

func (m *Manager) onStartAck(f protocol.Frame, at time.Time) {
	sub, ok := m.registry.Lookup(f.ID)
	if !ok {
		m.unhandledFrame(f, "unknown_subscription", at)
		return
	}
	if sub.State != subscription.Started {
		m.unhandledFrame(f, "unexpected_state", at)
		return
	}
	m.logger.Debug("subscription acknowledged", "sub_id", sub.ID)
}

func (m *Manager) onData(f protocol.Frame, at time.Time) {
	sub, ok := m.registry.Lookup(f.ID)
	if !ok {
		m.unhandledFrame(f, "unknown_subscription", at)
		return
	}
	if sub.State != subscription.Started {
		m.unhandledFrame(f, "unexpected_state", at)
		return
	}

	m.eventsDelivered.Add(1)
	sub.Handler.OnEvent(dataEvent(sub, f, at))
}

// dataEvent extracts payload.data.<field>. When the field is missing or
// empty (null, false, 0, "", {} or []) the whole frame is delivered and the
// event is marked Raw.
func dataEvent(sub subscription.Subscription, f protocol.Frame, at time.Time) sink.Event {
	ev := sink.Event{
		SubscriptionID: sub.ID,
		Kind:           sink.KindData,
		Field:          sub.Field,
		ReceivedAt:     at,
	}

	if sub.Field != "" && len(f.Payload) > 0 {
		if doc, err := oj.Parse(f.Payload); err == nil {
			results := jp.C("data").C(sub.Field).Get(doc)
			if len(results) > 0 && !empty(results[0]) {
				ev.Data = json.RawMessage(oj.JSON(results[0]))
				return ev
			}
		}
	}

	ev.Data = json.RawMessage(f.Raw)
	ev.Raw = true
	return ev
}

func empty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case int64:
		return x == 0
	case float64:
		return x == 0
	case string:
		return x == ""
	case map[string]any:
		return len(x) == 0
	case []any:
		return len(x) == 0
	}
	return false
}

func (m *Manager) onError(f protocol.Frame, at time.Time) {
	if f.ID == "" {
		m.fail(&LostError{Cause: &ServerError{
			Type:   f.Name,
			Errors: f.Errors(),
			Frame:  f.Raw,
		}})
		return
	}

	sub, ok := m.registry.Lookup(f.ID)
	if !ok {
		m.unhandledFrame(f, "unknown_subscription", at)
		return
	}

	err := &SubscriptionError{ID: sub.ID, Errors: f.Errors(), Frame: f.Raw}
	if sub.State == subscription.Errored || !m.registry.MarkErrored(sub.ID, err) {
		m.unhandledFrame(f, "unexpected_state", at)
		return
	}

	m.logger.Warn("subscription error", "sub_id", sub.ID, "error", err)
	sub.Handler.OnError(err)
}

func (m *Manager) onComplete(f protocol.Frame, at time.Time) {
	sub, ok := m.registry.Lookup(f.ID)
	if !ok {
		m.unhandledFrame(f, "unknown_subscription", at)
		return
	}
	if sub.State != subscription.Started || !m.registry.MarkStopped(sub.ID) {
		m.unhandledFrame(f, "unexpected_state", at)
		return
	}

	m.logger.Debug("subscription completed", "sub_id", sub.ID)
	sub.Handler.OnEvent(sink.Event{
		SubscriptionID: sub.ID,
		Kind:           sink.KindComplete,
		Field:          sub.Field,
		Data:           f.Payload,
		ReceivedAt:     at,
	})
}

func (m *Manager) onConnectionError(f protocol.Frame) {
	m.fail(&LostError{Cause: &ServerError{
		Type:   f.Name,
		Errors: f.Errors(),
		Frame:  f.Raw,
	}})
}

func (m *Manager) unhandledFrame(f protocol.Frame, reason string, at time.Time) {
	m.unhandled(sink.Unhandled{
		Reason:     reason,
		Type:       f.Name,
		ID:         f.ID,
		Frame:      f.Raw,
		ReceivedAt: at,
	})
}
