package connection

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rickgao/realtime-feed/internal/protocol"
)

// Errors
var (
	ErrNotConnected         = errors.New("not connected")
	ErrAlreadyClosed        = errors.New("already closed")
	ErrAlreadyConnected     = errors.New("already connected")
	ErrProtocolNegotiation  = errors.New("server did not select graphql-ws subprotocol")
	ErrConnectionLost       = errors.New("connection lost")
	ErrCancelled            = errors.New("cancelled")
	ErrKeepaliveTimeout     = errors.New("no frame received within keepalive timeout")
	ErrAckTimeout           = errors.New("no connection_ack received")
	ErrUnknownSubscription  = errors.New("unknown subscription")
	ErrSubscriptionInactive = errors.New("subscription is not active")
)

// LostError reports a transport failure. errors.Is(err, ErrConnectionLost)
// is true; Unwrap also exposes the underlying cause.
type LostError struct {
	Cause error
}

func (e *LostError) Error() string {
	if e.Cause == nil {
		return ErrConnectionLost.Error()
	}
	return fmt.Sprintf("%s: %v", ErrConnectionLost, e.Cause)
}

func (e *LostError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrConnectionLost}
	}
	return []error{ErrConnectionLost, e.Cause}
}

// SubscriptionError is a server-reported error for one subscription.
type SubscriptionError struct {
	ID     string
	Errors []protocol.GraphQLError
	Frame  []byte
}

func (e *SubscriptionError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("subscription %s: server error: %s", e.ID, e.Frame)
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, ge := range e.Errors {
		if ge.ErrorType != "" {
			msgs = append(msgs, ge.ErrorType+": "+ge.Message)
		} else {
			msgs = append(msgs, ge.Message)
		}
	}
	return fmt.Sprintf("subscription %s: %s", e.ID, strings.Join(msgs, "; "))
}

// ServerError is a connection-level error frame (error without an id, or
// connection_error).
type ServerError struct {
	Type   string
	Errors []protocol.GraphQLError
	Frame  []byte
}

func (e *ServerError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("%s: %s", e.Type, e.Frame)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Errors[0].Message)
}

// State is the lifecycle state of a connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateAcknowledged
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateAcknowledged:
		return "acknowledged"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // wss://<host>/graphql/realtime?header=...&payload=...
	Subprotocol      string        // Required subprotocol, default graphql-ws
	HandshakeTimeout time.Duration // WebSocket upgrade timeout
	WriteTimeout     time.Duration // Write deadline for sends
	PingInterval     time.Duration // WebSocket ping interval, 0 disables
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Subprotocol:      protocol.Subprotocol,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	URL                string        // Overrides the endpoint's realtime URL (tests, proxies)
	HandshakeTimeout   time.Duration // WebSocket upgrade timeout
	WriteTimeout       time.Duration // Write deadline for sends
	PingInterval       time.Duration // WebSocket ping interval, 0 disables
	AckTimeout         time.Duration // Max wait for connection_ack, 0 disables
	KeepaliveTimeout   time.Duration // Max silence once acknowledged, 0 disables
	HonorServerTimeout bool          // Use connection_ack's connectionTimeoutMs when present
	SendStopOnClose    bool          // Send stop for started subscriptions on Close
	MessageBufferSize  int           // Inbound message buffer
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		HandshakeTimeout:   10 * time.Second,
		WriteTimeout:       5 * time.Second,
		AckTimeout:         30 * time.Second,
		HonorServerTimeout: true,
		MessageBufferSize:  1000,
	}
}

// ReconnectConfig configures the Supervisor.
type ReconnectConfig struct {
	BaseDelay   time.Duration // First wait after a failure
	MaxDelay    time.Duration // Backoff ceiling
	MaxAttempts int           // Consecutive failed attempts before giving up, 0 = unlimited
}

// DefaultReconnectConfig returns sensible defaults.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		BaseDelay: 1 * time.Second,
		MaxDelay:  60 * time.Second,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State              State
	Subscriptions      int
	Started            int
	Pending            int
	Errored            int
	FramesReceived     int64
	FramesUnhandled    int64
	EventsDelivered    int64
	StartsSent         int64
	ConnectionAttempts int64
}
