// Package protocol defines the JSON messages exchanged with socket peers.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// TypeRelay is the message type for relay commands and state updates.
const TypeRelay = "relay"

// ErrUnknownType is returned for messages whose type is not handled.
var ErrUnknownType = errors.New("unknown message type")

// Relay is both the inbound command and the outbound state message.
type Relay struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	State bool   `json:"state"`
}

// NewRelay returns a relay state message.
func NewRelay(index int, on bool) Relay {
	return Relay{Type: TypeRelay, Index: index, State: on}
}

// SensorReading is the outbound per-channel sensor message. Only the fields
// relevant to the channel kind are set.
type SensorReading struct {
	Sensor      int      `json:"sensor"`
	Type        int      `json:"type"`
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Light       *float64 `json:"light,omitempty"`
	Moisture    *float64 `json:"moisture,omitempty"`
}

// Message is anything that can be sent to a peer.
type Message interface {
	Encode() ([]byte, error)
}

// Encode marshals the relay message.
func (r Relay) Encode() ([]byte, error) { return json.Marshal(r) }

// Encode marshals the sensor message.
func (s SensorReading) Encode() ([]byte, error) { return json.Marshal(s) }

// DecodeCommand parses an inbound text frame. The type is checked before the
// payload fields, so foreign messages report ErrUnknownType whatever their
// other fields hold.
func DecodeCommand(data []byte) (Relay, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Relay{}, fmt.Errorf("decode command: %w", err)
	}
	if head.Type != TypeRelay {
		return Relay{}, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}

	var body struct {
		Index *int  `json:"index"`
		State *bool `json:"state"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return Relay{}, fmt.Errorf("decode relay command: %w", err)
	}
	if body.Index == nil || body.State == nil {
		return Relay{}, errors.New("decode command: relay requires index and state")
	}
	if *body.Index < 0 {
		return Relay{}, fmt.Errorf("decode command: negative index %d", *body.Index)
	}
	return NewRelay(*body.Index, *body.State), nil
}

// Float returns a pointer to v, for building SensorReading values.
func Float(v float64) *float64 { return &v }
