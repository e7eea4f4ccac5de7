// Package sink defines how decoded subscription events reach the caller.
//
// The connection package never blocks on, or recovers from, anything a
// caller does with an event beyond invoking its Handler. Callers that do
// slow work per event should wrap their handler in a Queued.
package sink

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Kind classifies an Event.
type Kind int

const (
	KindData     Kind = iota // payload.data.<field> or the raw frame
	KindComplete             // server completed the subscription
	KindGapFill              // result of a catch-up query
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindComplete:
		return "complete"
	case KindGapFill:
		return "gap_fill"
	default:
		return "unknown"
	}
}

// Event is one decoded delivery for a subscription.
type Event struct {
	SubscriptionID string
	Kind           Kind
	Field          string          // Subscription field the data was taken from
	Data           json.RawMessage // Inner object, or the whole frame when Raw is set
	Raw            bool            // Field was absent; Data holds the frame as received
	ReceivedAt     time.Time
}

// Handler receives events and errors for one subscription.
type Handler interface {
	OnEvent(Event)
	OnError(error)
}

// HandlerFuncs adapts a pair of functions to Handler. Nil funcs are skipped.
type HandlerFuncs struct {
	Event func(Event)
	Error func(error)
}

func (h HandlerFuncs) OnEvent(e Event) {
	if h.Event != nil {
		h.Event(e)
	}
}

func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

// Unhandled describes a frame the client received but did not apply.
type Unhandled struct {
	Reason     string // "parse_error", "unknown_type", "unknown_subscription", "unexpected_state"
	Type       string // Wire type, empty if the frame could not be parsed
	ID         string
	Frame      []byte
	Err        error
	ReceivedAt time.Time
}

// Diagnostics receives unhandled frames.
type Diagnostics interface {
	OnUnhandled(Unhandled)
}

// DiagnosticsFunc adapts a function to Diagnostics.
type DiagnosticsFunc func(Unhandled)

func (f DiagnosticsFunc) OnUnhandled(u Unhandled) {
	f(u)
}

// LogDiagnostics logs unhandled frames at warn level.
func LogDiagnostics(logger *slog.Logger) Diagnostics {
	if logger == nil {
		logger = slog.Default()
	}
	return DiagnosticsFunc(func(u Unhandled) {
		attrs := []any{
			"reason", u.Reason,
			"type", u.Type,
			"frame", string(u.Frame),
		}
		if u.ID != "" {
			attrs = append(attrs, "sub_id", u.ID)
		}
		if u.Err != nil {
			attrs = append(attrs, "error", u.Err)
		}
		logger.Warn("unhandled frame", attrs...)
	})
}
