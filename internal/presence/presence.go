package presence

import "time"

// PointerKind distinguishes input devices in cursor broadcasts.
type PointerKind string

const (
	PointerMouse PointerKind = "mouse"
	PointerTouch PointerKind = "touch"
	PointerPen   PointerKind = "pen"
)

// Position is a cursor coordinate in page space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Player is the stable identity behind a connection. It is persisted
// locally by the client and survives reconnects, unlike the connection id.
type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Color string `json:"color,omitempty"`
}

// Presence is one user's live cursor snapshot.
type Presence struct {
	Position Position    `json:"position"`
	Pointer  PointerKind `json:"pointer"`
	Player   Player      `json:"player"`
	LastSeen time.Time   `json:"lastSeen"`
}
