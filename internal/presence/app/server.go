// Package server hosts the presence WebSocket relay.
//
// Each room gets an in-memory hub relaying cursor frames between the
// connections joined to it. Presence is ephemeral by contract: a
// disconnect removes the peer's entry, and the next sync snapshot no
// longer carries it.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pagemesh/pagemesh/internal/platform/id"
	"github.com/pagemesh/pagemesh/internal/platform/timeouts"
	"github.com/pagemesh/pagemesh/internal/presence"
	"golang.org/x/net/websocket"
)

const (
	// Cursor traffic runs at animation-frame rates, so the ceiling sits
	// above 60 frames per second before a connection is dropped.
	maxFramesPerSecond     = 80
	maxFramePayloadBytes   = 8 * 1024
	maxDecodeErrorsPerConn = 3
)

// Config defines the inputs for the presence relay boundary.
type Config struct {
	HTTPAddr          string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the presence HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
}

// wsPeer serializes frame writes to one connection.
type wsPeer struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	connectionID string
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{
		conn:         conn,
		connectionID: id.MustNewID(),
	}
}

func (p *wsPeer) writeFrame(msg presence.Message) error {
	data, err := presence.EncodeMessage(msg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return websocket.Message.Send(p.conn, data)
}

// roomHub owns the per-room presence state.
type roomHub struct {
	mu    sync.Mutex
	rooms map[string]*cursorRoom
}

func newRoomHub() *roomHub {
	return &roomHub{rooms: make(map[string]*cursorRoom)}
}

func (h *roomHub) room(roomID string) *cursorRoom {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[roomID]
	if ok {
		return room
	}
	room = newCursorRoom(roomID)
	h.rooms[roomID] = room
	return room
}

// removeIfEmpty drops a room once its last peer left, so abandoned
// rooms do not accumulate.
func (h *roomHub) removeIfEmpty(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[roomID]
	if ok && room.empty() {
		delete(h.rooms, roomID)
	}
}

type cursorRoom struct {
	mu        sync.Mutex
	roomID    string
	peers     map[*wsPeer]struct{}
	presences map[string]presence.Presence
}

func newCursorRoom(roomID string) *cursorRoom {
	return &cursorRoom{
		roomID:    roomID,
		peers:     make(map[*wsPeer]struct{}),
		presences: make(map[string]presence.Presence),
	}
}

func (r *cursorRoom) join(peer *wsPeer) {
	r.mu.Lock()
	r.peers[peer] = struct{}{}
	r.mu.Unlock()
}

func (r *cursorRoom) leave(peer *wsPeer) {
	r.mu.Lock()
	delete(r.peers, peer)
	delete(r.presences, peer.connectionID)
	r.mu.Unlock()
}

func (r *cursorRoom) empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers) == 0
}

// setPresence records a peer's presence and returns the other peers to
// broadcast to.
func (r *cursorRoom) setPresence(peer *wsPeer, p presence.Presence) []*wsPeer {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.presences[peer.connectionID] = p
	others := make([]*wsPeer, 0, len(r.peers))
	for member := range r.peers {
		if member != peer {
			others = append(others, member)
		}
	}
	return others
}

// snapshot returns every live presence keyed by connection id.
func (r *cursorRoom) snapshot() map[string]presence.UserEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make(map[string]presence.UserEntry, len(r.presences))
	for connectionID, p := range r.presences {
		users[connectionID] = presence.UserEntry{Presence: p}
	}
	return users
}

// NewHandler creates the presence relay routes.
func NewHandler() http.Handler {
	hub := newRoomHub()
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, hub)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if strings.TrimSpace(r.URL.Query().Get("room")) == "" {
			http.Error(w, "room query parameter is required", http.StatusBadRequest)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	return mux
}

func handleWSConn(conn *websocket.Conn, hub *roomHub) {
	defer func() {
		_ = conn.Close()
	}()

	roomID := strings.TrimSpace(conn.Request().URL.Query().Get("room"))
	if roomID == "" {
		return
	}

	peer := newWSPeer(conn)
	room := hub.room(roomID)
	room.join(peer)
	defer func() {
		room.leave(peer)
		hub.removeIfEmpty(roomID)
	}()

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			if !stderrors.Is(err, io.EOF) {
				log.Printf("presence: receive frame room=%q: %v", roomID, err)
			}
			return
		}
		if len(data) > maxFramePayloadBytes {
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			log.Printf("presence: rate limit exceeded room=%q connection=%s", roomID, peer.connectionID)
			return
		}

		msg, err := presence.DecodeMessage(data)
		if err != nil {
			decodeErrors++
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		switch msg.Type {
		case presence.MessageCursorUpdate:
			handleCursorUpdate(room, peer, msg)
		case presence.MessageCursorRequestSync:
			handleRequestSync(room, peer)
		default:
			// Unknown types are dropped; the wire format may grow.
		}
	}
}

func handleCursorUpdate(room *cursorRoom, peer *wsPeer, msg presence.Message) {
	if msg.Presence == nil {
		return
	}

	update := *msg.Presence
	update.LastSeen = time.Now().UTC()
	others := room.setPresence(peer, update)

	frame := presence.Message{
		Type:     presence.MessageCursorUpdate,
		Presence: &update,
	}
	for _, other := range others {
		if err := other.writeFrame(frame); err != nil {
			log.Printf("presence: broadcast to connection=%s: %v", other.connectionID, err)
		}
	}
}

func handleRequestSync(room *cursorRoom, peer *wsPeer) {
	err := peer.writeFrame(presence.Message{
		Type:  presence.MessageCursorSync,
		Users: room.snapshot(),
	})
	if err != nil {
		log.Printf("presence: sync to connection=%s: %v", peer.connectionID, err)
	}
}

// NewServer builds a configured presence server.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, stderrors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           NewHandler(),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
	}, nil
}

// Run creates and serves a presence server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init presence server: %w", err)
	}

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve presence: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return stderrors.New("presence server is nil")
	}
	if ctx == nil {
		return stderrors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("presence server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
