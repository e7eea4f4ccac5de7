package protocol

import (
	"encoding/json"
	"fmt"
)

// InitFrame is the connection_init message.
type InitFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// StartFrame is the start message for one subscription.
type StartFrame struct {
	ID      string       `json:"id"`
	Type    string       `json:"type"`
	Payload StartPayload `json:"payload"`
}

// StartPayload carries the operation as a JSON string plus authorization.
type StartPayload struct {
	Data       string `json:"data"`
	Extensions any    `json:"extensions"`
}

// StopFrame ends one subscription.
type StopFrame struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Operation is the GraphQL request embedded, stringified, in StartPayload.Data.
type Operation struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// EncodeInit builds a connection_init frame.
func EncodeInit(payload any) ([]byte, error) {
	data, err := json.Marshal(InitFrame{Type: NameConnectionInit, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode connection_init: %w", err)
	}
	return data, nil
}

// EncodeStart builds a start frame. The operation is JSON-encoded and then
// embedded as a string, which AppSync requires verbatim.
func EncodeStart(id string, op Operation, extensions any) ([]byte, error) {
	opData, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("encode operation: %w", err)
	}

	data, err := json.Marshal(StartFrame{
		ID:   id,
		Type: NameStart,
		Payload: StartPayload{
			Data:       string(opData),
			Extensions: extensions,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode start: %w", err)
	}
	return data, nil
}

// EncodeStop builds a stop frame.
func EncodeStop(id string) ([]byte, error) {
	data, err := json.Marshal(StopFrame{ID: id, Type: NameStop})
	if err != nil {
		return nil, fmt.Errorf("encode stop: %w", err)
	}
	return data, nil
}
