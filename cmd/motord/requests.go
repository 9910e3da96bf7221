package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// IPC requests
// ============================================================================
// Requests arrive as line-delimited JSON envelopes with a type discriminator:
//   {"type": "set_input", "data": {"raw": 700}}
// ============================================================================

// Request is a marker interface for IPC requests.
type Request interface {
	requestMarker()
}

// GetStatus asks for the current Status.
type GetStatus struct{}

func (GetStatus) requestMarker() {}

// SetInput pins the potentiometer sample.
type SetInput struct {
	Raw int `json:"raw"`
}

func (SetInput) requestMarker() {}

// ClearInput releases a pinned sample.
type ClearInput struct{}

func (ClearInput) requestMarker() {}

// RequestEnvelope wraps a request with a type discriminator for JSON marshaling
type RequestEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	reqGetStatus  = "get_status"
	reqSetInput   = "set_input"
	reqClearInput = "clear_input"
)

// UnmarshalRequest deserializes a JSON envelope into a concrete Request
func UnmarshalRequest(data []byte) (Request, error) {
	var env RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case reqGetStatus:
		return GetStatus{}, nil

	case reqSetInput:
		if len(env.Data) == 0 {
			return nil, fmt.Errorf("%s requires data", reqSetInput)
		}
		var r SetInput
		if err := json.Unmarshal(env.Data, &r); err != nil {
			return nil, fmt.Errorf("unmarshal SetInput: %w", err)
		}
		return r, nil

	case reqClearInput:
		return ClearInput{}, nil

	case "":
		return nil, fmt.Errorf("missing request type")

	default:
		return nil, fmt.Errorf("unknown request type: %s", env.Type)
	}
}

// MarshalRequest serializes a Request into a JSON envelope
func MarshalRequest(r Request) ([]byte, error) {
	var env RequestEnvelope

	switch v := r.(type) {
	case GetStatus:
		env.Type = reqGetStatus
	case SetInput:
		env.Type = reqSetInput
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal SetInput: %w", err)
		}
		env.Data = data
	case ClearInput:
		env.Type = reqClearInput
	default:
		return nil, fmt.Errorf("unknown request type: %T", r)
	}

	return json.Marshal(env)
}
