package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Subprotocol is the WebSocket subprotocol AppSync requires.
const Subprotocol = "graphql-ws"

// Errors
var (
	ErrEmptyFrame  = errors.New("empty frame")
	ErrMissingType = errors.New("frame has no type")
)

// FrameType identifies an inbound frame.
type FrameType int

const (
	TypeUnknown FrameType = iota
	TypeConnectionAck
	TypeStartAck
	TypeKeepAlive
	TypeData
	TypeError
	TypeComplete
	TypeConnectionError
)

// Wire names.
const (
	NameConnectionInit  = "connection_init"
	NameConnectionAck   = "connection_ack"
	NameConnectionError = "connection_error"
	NameStart           = "start"
	NameStartAck        = "start_ack"
	NameSubscriptionAck = "subscription_ack" // start_ack on some server variants
	NameKeepAlive       = "ka"
	NameData            = "data"
	NameError           = "error"
	NameStop            = "stop"
	NameComplete        = "complete"
)

var frameTypes = map[string]FrameType{
	NameConnectionAck:   TypeConnectionAck,
	NameStartAck:        TypeStartAck,
	NameSubscriptionAck: TypeStartAck,
	NameKeepAlive:       TypeKeepAlive,
	NameData:            TypeData,
	NameError:           TypeError,
	NameComplete:        TypeComplete,
	NameConnectionError: TypeConnectionError,
}

// ParseFrameType maps a wire type string to a FrameType.
func ParseFrameType(name string) FrameType {
	if t, ok := frameTypes[name]; ok {
		return t
	}
	return TypeUnknown
}

func (t FrameType) String() string {
	switch t {
	case TypeConnectionAck:
		return NameConnectionAck
	case TypeStartAck:
		return NameStartAck
	case TypeKeepAlive:
		return NameKeepAlive
	case TypeData:
		return NameData
	case TypeError:
		return NameError
	case TypeComplete:
		return NameComplete
	case TypeConnectionError:
		return NameConnectionError
	default:
		return "unknown"
	}
}

// Frame is a decoded inbound message.
type Frame struct {
	Type    FrameType
	Name    string          // Type string as received
	ID      string          // Subscription id, empty for connection-level frames
	Payload json.RawMessage // Nil when absent
	Raw     []byte          // Full frame as received
}

// envelope is the wire shape shared by all frames.
type envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode parses a text frame. Malformed JSON and frames without a type are
// errors; unknown type strings are not.
func Decode(data []byte) (Frame, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Frame{}, ErrEmptyFrame
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if env.Type == "" {
		return Frame{}, ErrMissingType
	}

	return Frame{
		Type:    ParseFrameType(env.Type),
		Name:    env.Type,
		ID:      env.ID,
		Payload: env.Payload,
		Raw:     data,
	}, nil
}

// AckPayload is the payload of connection_ack.
type AckPayload struct {
	ConnectionTimeoutMs int64 `json:"connectionTimeoutMs"`
}

// GraphQLError is one entry of an error payload.
type GraphQLError struct {
	ErrorType string `json:"errorType,omitempty"`
	ErrorCode int    `json:"errorCode,omitempty"`
	Message   string `json:"message"`
}

// ErrorPayload is the payload of error and connection_error frames.
type ErrorPayload struct {
	Errors []GraphQLError `json:"errors"`
}

// Ack decodes a connection_ack payload. A missing payload yields zero values.
func (f Frame) Ack() (AckPayload, error) {
	var p AckPayload
	if len(f.Payload) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return AckPayload{}, fmt.Errorf("decode ack payload: %w", err)
	}
	return p, nil
}

// Errors decodes an error payload. Payloads that do not match the
// {"errors": [...]} shape return nil.
func (f Frame) Errors() []GraphQLError {
	if len(f.Payload) == 0 {
		return nil
	}
	var p ErrorPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return nil
	}
	return p.Errors
}
