package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Wildcard subscribes to every inbound envelope type.
const Wildcard = "*"

// Inbound envelope types.
const (
	TypeSessionConnected    = "session_connected"
	TypeSessionDisconnected = "session_disconnected"
	TypeBeaconRegistered    = "beacon_registered"
	TypeBeaconDisconnected  = "beacon_disconnected"
	TypeJobStarted          = "job_started"
	TypeJobStopped          = "job_stopped"
	TypeTaskCompleted       = "task_completed"
	TypeCanaryTriggered     = "canary_triggered"
	TypeBuildCompleted      = "build_completed"
	TypeShellOutput         = "shell_output"
)

// Outbound envelope types.
const (
	TypePing        = "ping"
	TypeShellStart  = "shell_start"
	TypeShellInput  = "shell_input"
	TypeShellResize = "shell_resize"
	TypeShellStop   = "shell_stop"
)

// ErrMalformedEnvelope is returned when inbound bytes are not a valid envelope.
var ErrMalformedEnvelope = errors.New("realtime: malformed envelope")

// InboundTypes lists every server-to-client type the console understands.
func InboundTypes() []string {
	return []string{
		TypeSessionConnected,
		TypeSessionDisconnected,
		TypeBeaconRegistered,
		TypeBeaconDisconnected,
		TypeJobStarted,
		TypeJobStopped,
		TypeTaskCompleted,
		TypeCanaryTriggered,
		TypeBuildCompleted,
		TypeShellOutput,
	}
}

// Envelope is the only unit on the wire. Payload shape depends on Type and is
// opaque to the transport.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(msgType string, payload any) (Envelope, error) {
	if msgType == "" {
		return Envelope{}, fmt.Errorf("%w: empty type", ErrMalformedEnvelope)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}

	return Envelope{Type: msgType, Payload: raw}, nil
}

// DecodePayload unmarshals the envelope payload into v.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformedEnvelope, e.Type)
	}

	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}

	return nil
}

// Encode returns the wire form of the envelope.
func (e Envelope) Encode() ([]byte, error) {
	if e.Type == "" {
		return nil, fmt.Errorf("%w: empty type", ErrMalformedEnvelope)
	}

	payload := e.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	data, err := json.Marshal(Envelope{Type: e.Type, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", e.Type, err)
	}

	return data, nil
}

// wireEnvelope distinguishes a missing or non-string type from an empty one.
type wireEnvelope struct {
	Type    *string         `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeEnvelope parses one inbound frame. Unknown top-level fields are
// ignored and a missing payload decodes as null.
func DecodeEnvelope(data []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, fmt.Errorf("%w: not a JSON object", ErrMalformedEnvelope)
	}

	var wire wireEnvelope
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	if wire.Type == nil || *wire.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}

	payload := wire.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	return Envelope{Type: *wire.Type, Payload: payload}, nil
}
