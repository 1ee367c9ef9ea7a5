// Package server hosts the broker HTTP side-channel.
//
// The side-channel is a plain JSON POST API dispatched on a message type
// field, matching the envelope the rooms already speak. Element data
// itself never lives here: snapshots and updates travel through the
// relay, and this process only keeps the registry and subscription set.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pagemesh/pagemesh/internal/broker"
	"github.com/pagemesh/pagemesh/internal/broker/storage/sqlite"
	"github.com/pagemesh/pagemesh/internal/platform/errors"
	"github.com/pagemesh/pagemesh/internal/platform/timeouts"
)

const maxRequestBodyBytes = 64 * 1024

// Config defines the inputs for the broker side-channel boundary.
type Config struct {
	HTTPAddr          string
	StoragePath       string
	RelayBaseURL      string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the broker HTTP process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	store           *sqlite.Store
}

type requestEnvelope struct {
	Type string `json:"type"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type registerResponse struct {
	Success bool `json:"success"`
}

type accessResponse struct {
	Success        bool                   `json:"success"`
	SharedElements []broker.SharedElement `json:"sharedElements"`
}

type propagateRequest struct {
	Domain    string          `json:"domain"`
	ElementID string          `json:"elementId"`
	Data      json.RawMessage `json:"data"`
}

// relayClient resolves snapshot fetches and update pushes against the
// hosted relay's HTTP surface.
type relayClient struct {
	baseURL    string
	httpClient *http.Client
}

func newRelayClient(baseURL string) *relayClient {
	return &relayClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{
			Timeout: timeouts.CrossRoomFetch,
		},
	}
}

type snapshotRequest struct {
	RoomID    string `json:"roomId"`
	ElementID string `json:"elementId"`
}

type snapshotResponse struct {
	Data json.RawMessage `json:"data"`
}

type pushRequest struct {
	RoomID     string          `json:"roomId"`
	ElementKey string          `json:"elementKey"`
	Data       json.RawMessage `json:"data"`
}

// FetchSnapshot asks the relay for the current value of an element in
// its source room.
func (c *relayClient) FetchSnapshot(ctx context.Context, roomID, elementID string) (json.RawMessage, error) {
	if c.baseURL == "" {
		return nil, errors.New(errors.CodeTransportUnavailable, "relay base url is not configured")
	}

	body, err := json.Marshal(snapshotRequest{RoomID: roomID, ElementID: elementID})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot request: %w", err)
	}
	resp, err := c.post(ctx, "/snapshot", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay snapshot status %d", resp.StatusCode)
	}
	var payload snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode snapshot response: %w", err)
	}
	return payload.Data, nil
}

// PushUpdate delivers an element update to one subscriber room through
// the relay.
func (c *relayClient) PushUpdate(ctx context.Context, roomID, elementKey string, data json.RawMessage) error {
	if c.baseURL == "" {
		return errors.New(errors.CodeTransportUnavailable, "relay base url is not configured")
	}

	body, err := json.Marshal(pushRequest{RoomID: roomID, ElementKey: elementKey, Data: data})
	if err != nil {
		return fmt.Errorf("encode push request: %w", err)
	}
	resp, err := c.post(ctx, "/update", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay push status %d", resp.StatusCode)
	}
	return nil
}

func (c *relayClient) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call relay %s: %w", path, err)
	}
	return resp, nil
}

// NewHandler creates the side-channel routes for a broker.
func NewHandler(b *broker.Broker) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		dispatch(w, r, b)
	})
	return mux
}

func dispatch(w http.ResponseWriter, r *http.Request, b *broker.Broker) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		writeError(w, errors.New(errors.CodeBrokerMalformedRequest, "read request body"))
		return
	}

	var envelope requestEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		writeError(w, errors.New(errors.CodeBrokerMalformedRequest, "request body is not valid JSON"))
		return
	}

	switch envelope.Type {
	case "register-shared-elements":
		handleRegister(w, r, b, body)
	case "request-shared-access":
		handleRequestAccess(w, r, b, body)
	case "propagate-update":
		handlePropagate(w, r, b, body)
	default:
		writeError(w, errors.WithMetadata(errors.CodeBrokerMalformedRequest, "unsupported message type", map[string]string{
			"type": envelope.Type,
		}))
	}
}

func handleRegister(w http.ResponseWriter, r *http.Request, b *broker.Broker, body []byte) {
	var req broker.RegistrationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, errors.New(errors.CodeBrokerMalformedRequest, "invalid registration payload"))
		return
	}
	if err := b.Register(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{Success: true})
}

func handleRequestAccess(w http.ResponseWriter, r *http.Request, b *broker.Broker, body []byte) {
	var req broker.AccessRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, errors.New(errors.CodeBrokerMalformedRequest, "invalid access payload"))
		return
	}
	granted, err := b.RequestAccess(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accessResponse{Success: true, SharedElements: granted})
}

func handlePropagate(w http.ResponseWriter, r *http.Request, b *broker.Broker, body []byte) {
	var req propagateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, errors.New(errors.CodeBrokerMalformedRequest, "invalid propagate payload"))
		return
	}
	if req.Domain == "" {
		writeError(w, errors.New(errors.CodeBrokerEmptyDomain, "propagate requires a domain"))
		return
	}
	if req.ElementID == "" {
		writeError(w, errors.New(errors.CodeBrokerEmptyElementID, "propagate requires an element id"))
		return
	}
	if err := b.PropagateUpdate(r.Context(), req.Domain, req.ElementID, req.Data); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{Success: true})
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeUnknown
	var domainErr *errors.Error
	if stderrors.As(err, &domainErr) {
		code = domainErr.Code
	}
	writeJSON(w, code.HTTPStatus(), struct {
		Success bool      `json:"success"`
		Error   errorBody `json:"error"`
	}{
		Success: false,
		Error: errorBody{
			Code:    string(code),
			Message: err.Error(),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("broker: encode response: %v", err)
	}
}

// NewServer builds a configured broker server with its SQLite store and
// relay transport.
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

	store, err := sqlite.Open(config.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open broker store: %w", err)
	}

	relay := newRelayClient(config.RelayBaseURL)
	core := broker.New(store, store, relay, relay)

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           NewHandler(core),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
		store:           store,
	}, nil
}

// Run creates and serves a broker server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init broker server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve broker: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return stderrors.New("broker server is nil")
	}
	if ctx == nil {
		return stderrors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("broker server listening on %s", s.httpAddr)
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

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close broker store: %v", err)
	}
}
