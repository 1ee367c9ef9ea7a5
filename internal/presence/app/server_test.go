package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pagemesh/pagemesh/internal/presence"
	"golang.org/x/net/websocket"
)

func newWSTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler())
	t.Cleanup(srv.Close)
	return srv
}

func dialRoom(t *testing.T, srv *httptest.Server, roomID string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?room=" + roomID
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func sendMessage(t *testing.T, conn *websocket.Conn, msg presence.Message) {
	t.Helper()
	data, err := presence.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	if err := websocket.Message.Send(conn, data); err != nil {
		t.Fatalf("send message: %v", err)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) presence.Message {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var data []byte
	if err := websocket.Message.Receive(conn, &data); err != nil {
		t.Fatalf("receive message: %v", err)
	}
	msg, err := presence.DecodeMessage(data)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	return msg
}

func cursorAt(playerID string, x, y float64) presence.Presence {
	return presence.Presence{
		Position: presence.Position{X: x, Y: y},
		Pointer:  presence.PointerMouse,
		Player:   presence.Player{ID: playerID, Name: playerID},
	}
}

func TestNewServerRequiresHTTPAddr(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Fatal("expected error for empty HTTP address")
	}
}

func TestNewHandlerUpEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/up", nil)

	NewHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestWSEndpointRequiresRoom(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)

	NewHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCursorUpdateBroadcastsToRoomPeers(t *testing.T) {
	srv := newWSTestServer(t)
	sender := dialRoom(t, srv, "example.com-gallery")
	receiver := dialRoom(t, srv, "example.com-gallery")

	// Receiver requests a sync first so both joins have settled server-side.
	sendMessage(t, receiver, presence.Message{Type: presence.MessageCursorRequestSync})
	readMessage(t, receiver)

	update := cursorAt("player-a", 120, 80)
	sendMessage(t, sender, presence.Message{
		Type:     presence.MessageCursorUpdate,
		Presence: &update,
	})

	got := readMessage(t, receiver)
	if got.Type != presence.MessageCursorUpdate {
		t.Fatalf("frame type = %q, want cursor-update", got.Type)
	}
	if got.Presence == nil {
		t.Fatal("broadcast frame carries no presence")
	}
	if got.Presence.Player.ID != "player-a" {
		t.Errorf("player id = %q, want player-a", got.Presence.Player.ID)
	}
	if got.Presence.Position.X != 120 || got.Presence.Position.Y != 80 {
		t.Errorf("position = %+v, want (120, 80)", got.Presence.Position)
	}
	if got.Presence.LastSeen.IsZero() {
		t.Error("broadcast presence has no LastSeen stamp")
	}
}

func TestCursorUpdateDoesNotCrossRooms(t *testing.T) {
	srv := newWSTestServer(t)
	sender := dialRoom(t, srv, "example.com-gallery")
	other := dialRoom(t, srv, "example.com-about")

	update := cursorAt("player-a", 10, 10)
	sendMessage(t, sender, presence.Message{
		Type:     presence.MessageCursorUpdate,
		Presence: &update,
	})

	// The other room sees an empty snapshot, not the update.
	sendMessage(t, other, presence.Message{Type: presence.MessageCursorRequestSync})
	got := readMessage(t, other)
	if got.Type != presence.MessageCursorSync {
		t.Fatalf("frame type = %q, want cursor-sync", got.Type)
	}
	if len(got.Users) != 0 {
		t.Errorf("foreign room snapshot has %d users, want 0", len(got.Users))
	}
}

func TestRequestSyncReturnsSnapshot(t *testing.T) {
	srv := newWSTestServer(t)
	first := dialRoom(t, srv, "example.com-gallery")
	second := dialRoom(t, srv, "example.com-gallery")

	// Settle the second join before the first peer publishes.
	sendMessage(t, second, presence.Message{Type: presence.MessageCursorRequestSync})
	readMessage(t, second)

	firstUpdate := cursorAt("player-a", 1, 2)
	sendMessage(t, first, presence.Message{
		Type:     presence.MessageCursorUpdate,
		Presence: &firstUpdate,
	})
	// The broadcast to second doubles as a write barrier before syncing.
	readMessage(t, second)

	sendMessage(t, second, presence.Message{Type: presence.MessageCursorRequestSync})
	got := readMessage(t, second)
	if got.Type != presence.MessageCursorSync {
		t.Fatalf("frame type = %q, want cursor-sync", got.Type)
	}
	if len(got.Users) != 1 {
		t.Fatalf("snapshot has %d users, want 1", len(got.Users))
	}
	for _, entry := range got.Users {
		if entry.Presence.Player.ID != "player-a" {
			t.Errorf("snapshot player = %q, want player-a", entry.Presence.Player.ID)
		}
	}
}

func TestDisconnectClearsPresenceFromNextSync(t *testing.T) {
	srv := newWSTestServer(t)
	leaver := dialRoom(t, srv, "example.com-gallery")
	stayer := dialRoom(t, srv, "example.com-gallery")

	sendMessage(t, stayer, presence.Message{Type: presence.MessageCursorRequestSync})
	readMessage(t, stayer)

	leaverUpdate := cursorAt("player-leaver", 5, 5)
	sendMessage(t, leaver, presence.Message{
		Type:     presence.MessageCursorUpdate,
		Presence: &leaverUpdate,
	})
	readMessage(t, stayer)

	if err := leaver.Close(); err != nil {
		t.Fatalf("close leaver: %v", err)
	}

	// Poll until the server observes the disconnect.
	deadline := time.Now().Add(2 * time.Second)
	for {
		sendMessage(t, stayer, presence.Message{Type: presence.MessageCursorRequestSync})
		got := readMessage(t, stayer)
		if got.Type != presence.MessageCursorSync {
			t.Fatalf("frame type = %q, want cursor-sync", got.Type)
		}
		if len(got.Users) == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("disconnected presence still in snapshot: %d users", len(got.Users))
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestJSONFramesAccepted(t *testing.T) {
	srv := newWSTestServer(t)
	sender := dialRoom(t, srv, "example.com-gallery")
	receiver := dialRoom(t, srv, "example.com-gallery")

	sendMessage(t, receiver, presence.Message{Type: presence.MessageCursorRequestSync})
	readMessage(t, receiver)

	update := cursorAt("player-json", 42, 24)
	data, err := json.Marshal(presence.Message{
		Type:     presence.MessageCursorUpdate,
		Presence: &update,
	})
	if err != nil {
		t.Fatalf("marshal JSON frame: %v", err)
	}
	if err := websocket.Message.Send(sender, data); err != nil {
		t.Fatalf("send JSON frame: %v", err)
	}

	got := readMessage(t, receiver)
	if got.Presence == nil || got.Presence.Player.ID != "player-json" {
		t.Errorf("JSON-origin update not relayed: %+v", got)
	}
}

func TestMalformedFramesDropConnectionAfterLimit(t *testing.T) {
	srv := newWSTestServer(t)
	conn := dialRoom(t, srv, "example.com-gallery")

	for i := 0; i < maxDecodeErrorsPerConn; i++ {
		if err := websocket.Message.Send(conn, []byte("garbage")); err != nil {
			t.Fatalf("send garbage frame %d: %v", i, err)
		}
	}

	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var data []byte
	if err := websocket.Message.Receive(conn, &data); err == nil {
		t.Error("connection still open after repeated malformed frames")
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := NewServer(Config{HTTPAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe(ctx)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop on cancel")
	}
}
