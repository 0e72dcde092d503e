// Package event defines the porter wire envelope, the frame decoder, and the
// typed payload models delivered over the realtime connection.
//
// Every inbound frame is a JSON object of the form:
//
//	{"type": "AgentOutput", "data": {"session_id": "...", ...}}
//
// The "type" tag is an open string; "data" is an opaque JSON value whose
// shape is defined per kind. Consumers extract fields defensively: a missing
// or mistyped field is "not present", never an error.
package event

import (
	"encoding/json"
	"fmt"

	"github.com/shnupta/porter/errors"
)

// Envelope is a decoded realtime event: an open kind tag plus an opaque
// payload. The payload is kept raw so each consumer can decode only the
// fields it cares about.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode parses a raw inbound frame into an Envelope. The frame must be a
// JSON object with a non-empty string "type" field. Decode never panics on
// malformed input; it returns a classified invalid error which callers are
// expected to log and drop.
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, errors.WrapInvalid(err, "event", "Decode", "unmarshal frame")
	}

	if env.Type == "" {
		return nil, errors.WrapInvalid(
			errors.ErrMissingKind,
			"event", "Decode", "validate envelope",
		)
	}

	return &env, nil
}

// DecodeData unmarshals the envelope payload into v. It fails if the
// envelope carries no payload or the payload does not fit v.
func (e *Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("envelope %q has no data", e.Type),
			"event", "DecodeData", "check payload",
		)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return errors.WrapInvalid(err, "event", "DecodeData", "unmarshal payload")
	}
	return nil
}

// StringField extracts a top-level string field from the payload. The second
// return value reports whether the field exists and is a string; absence is
// not an error.
func (e *Envelope) StringField(name string) (string, bool) {
	if len(e.Data) == 0 {
		return "", false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(e.Data, &fields); err != nil {
		return "", false
	}

	raw, ok := fields[name]
	if !ok {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// SessionID extracts the "session_id" payload field carried by agent events.
func (e *Envelope) SessionID() (string, bool) {
	return e.StringField("session_id")
}

// SessionStatus extracts and validates the "status" payload field carried by
// AgentStatusChanged events.
func (e *Envelope) SessionStatus() (AgentStatus, bool) {
	s, ok := e.StringField("status")
	if !ok {
		return "", false
	}
	return ParseAgentStatus(s)
}
