package presence

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEncodeDecodeBinaryRoundTrip(t *testing.T) {
	msg := Message{
		Type: MessageCursorUpdate,
		Presence: &Presence{
			Position: Position{X: 120.5, Y: 48},
			Pointer:  PointerMouse,
			Player:   Player{ID: "player-1", Name: "Ada", Color: "#e91e63"},
			LastSeen: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}

	data, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != MessageCursorUpdate {
		t.Fatalf("expected cursor-update, got %q", decoded.Type)
	}
	if decoded.Presence == nil || decoded.Presence.Player.ID != "player-1" {
		t.Fatalf("expected presence payload, got %+v", decoded.Presence)
	}
	if decoded.Presence.Position.X != 120.5 {
		t.Fatalf("expected position to survive, got %v", decoded.Presence.Position)
	}
}

func TestDecodeAcceptsJSONFallback(t *testing.T) {
	raw, err := json.Marshal(Message{
		Type: MessageCursorSync,
		Users: map[string]UserEntry{
			"conn-1": {
				Presence: Presence{
					Position: Position{X: 1, Y: 2},
					Player:   Player{ID: "p1"},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}

	decoded, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("decode json frame: %v", err)
	}
	if decoded.Type != MessageCursorSync {
		t.Fatalf("expected cursor-sync, got %q", decoded.Type)
	}
	if entry, ok := decoded.Users["conn-1"]; !ok || entry.Presence.Player.ID != "p1" {
		t.Fatalf("expected user entry, got %+v", decoded.Users)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeMessage([]byte("not a frame")); err == nil {
		t.Fatal("expected decode error for garbage input")
	}
	if _, err := DecodeMessage([]byte(`{"presence":{}}`)); err == nil {
		t.Fatal("expected decode error for missing type")
	}
}

func TestEncodeRequiresType(t *testing.T) {
	if _, err := EncodeMessage(Message{}); err == nil {
		t.Fatal("expected encode error for missing type")
	}
}
