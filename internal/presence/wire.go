package presence

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Wire message types exchanged with the relay.
const (
	MessageCursorUpdate      = "cursor-update"
	MessageCursorSync        = "cursor-sync"
	MessageCursorRequestSync = "cursor-request-sync"
)

// UserEntry pairs a presence snapshot with connection metadata in sync
// responses.
type UserEntry struct {
	Presence Presence       `json:"presence" cbor:"presence"`
	Metadata map[string]any `json:"metadata,omitempty" cbor:"metadata,omitempty"`
}

// Message is one presence frame. Exactly one payload field is set per type:
// cursor-update carries Presence, cursor-sync carries Users, and
// cursor-request-sync carries neither.
type Message struct {
	Type     string               `json:"type" cbor:"type"`
	Presence *Presence            `json:"presence,omitempty" cbor:"presence,omitempty"`
	Users    map[string]UserEntry `json:"users,omitempty" cbor:"users,omitempty"`
}

// EncodeMessage renders a frame in the binary wire encoding. Cursor traffic
// is high-frequency, so the compact encoding is always used for sending.
func EncodeMessage(msg Message) ([]byte, error) {
	if msg.Type == "" {
		return nil, fmt.Errorf("message type is required")
	}
	data, err := cbor.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode presence message: %w", err)
	}
	return data, nil
}

// DecodeMessage parses a frame, accepting the binary encoding first and
// falling back to JSON so plain-text clients stay interoperable.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := cbor.Unmarshal(data, &msg); err == nil && msg.Type != "" {
		return msg, nil
	}
	msg = Message{}
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode presence message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("presence message missing type")
	}
	return msg, nil
}
