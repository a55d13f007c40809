// Package protocol defines message types for dispatcher-executor
// communication. Messages flow as JSON text frames over a persistent
// WebSocket connection, exactly one request in flight per connection.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/hochfrequenz/worksim/internal/domain"
)

// Envelope wraps all messages with a type discriminator.
// When marshaling, Payload can be any message struct.
// When unmarshaling, use EnvelopeRaw for type-based dispatch.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// EnvelopeRaw is used for receiving messages where the payload
// needs to be unmarshaled based on the message type.
type EnvelopeRaw struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalEnvelope creates an envelope with the given type and payload
func MarshalEnvelope(msgType string, payload interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Type: msgType, Payload: payload})
}

// Dispatcher -> Executor messages

// HelloMessage is sent once after connecting. The executor uses WorkerID to
// namespace the worker's remote working directory.
type HelloMessage struct {
	WorkerID string `json:"worker_id"`
}

// ActionMessage carries one action request.
type ActionMessage struct {
	ID          string            `json:"id"`
	Kind        string            `json:"action_kind"`
	Target      string            `json:"target,omitempty"`
	Params      map[string]string `json:"parameters,omitempty"`
	DurationMin int               `json:"duration_minutes,omitempty"`
}

// Executor -> Dispatcher messages

// ResultMessage carries the outcome of an action. ID echoes the request id
// unchanged so the dispatcher can detect request/response mismatches.
type ResultMessage struct {
	ID         string            `json:"id"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	DurationMs int64             `json:"duration_ms"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Message type constants
const (
	TypeHello  = "hello"
	TypeAction = "action"
	TypeResult = "result"
	TypePing   = "ping"
	TypePong   = "pong"
)

// FromRequest converts a domain request into its wire form.
func FromRequest(req domain.ActionRequest) ActionMessage {
	return ActionMessage{
		ID:          req.ID,
		Kind:        string(req.Kind),
		Target:      req.Target,
		Params:      req.Params,
		DurationMin: req.DurationMin,
	}
}

// ToResult converts a wire result into its domain form.
func (m ResultMessage) ToResult() domain.ActionResult {
	return domain.ActionResult{
		RequestID: m.ID,
		Success:   m.Success,
		Error:     m.Error,
		Duration:  time.Duration(m.DurationMs) * time.Millisecond,
		Metadata:  m.Metadata,
	}
}
