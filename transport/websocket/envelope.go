package websocket

import (
	"encoding/json"
	"fmt"
)

// Envelope is one parsed message. Payload holds a pointer to the struct
// registered for Action (nil for local events without data).
type Envelope struct {
	Action  Action
	Payload any
	Raw     json.RawMessage
}

// As extracts a typed payload from an envelope.
func As[T any](e Envelope) (T, bool) {
	switch p := e.Payload.(type) {
	case T:
		return p, true
	case *T:
		if p != nil {
			return *p, true
		}
	}
	var zero T
	return zero, false
}

// Parse decodes an inbound frame and validates it against the known action set.
func Parse(data []byte) (Envelope, error) {
	var head struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Envelope{}, &ParseError{Err: fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)}
	}
	action := Action(head.Action)
	if action == "" {
		return Envelope{}, &ParseError{Err: ErrMissingAction}
	}

	newPayload, ok := inbound[action]
	if !ok {
		return Envelope{}, &ParseError{Action: action, Err: ErrUnknownAction}
	}
	payload := newPayload()
	if err := json.Unmarshal(data, payload); err != nil {
		return Envelope{}, &ParseError{Action: action, Err: fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)}
	}

	raw := make(json.RawMessage, len(data))
	copy(raw, data)

	return Envelope{Action: action, Payload: payload, Raw: raw}, nil
}

// encode flattens payload into a single object tagged with action. The tag
// always wins over an "action" field carried by the payload.
func encode(action Action, payload any) ([]byte, error) {
	fields := make(map[string]json.RawMessage)

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", action, err)
		}
		if string(data) != "null" {
			if err := json.Unmarshal(data, &fields); err != nil {
				return nil, fmt.Errorf("%w: %s payload is not a JSON object", ErrMalformedEnvelope, action)
			}
		}
	}

	tag, err := json.Marshal(string(action))
	if err != nil {
		return nil, err
	}
	fields["action"] = tag

	return json.Marshal(fields)
}
