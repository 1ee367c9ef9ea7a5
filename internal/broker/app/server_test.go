package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/pagemesh/pagemesh/internal/broker"
	"github.com/pagemesh/pagemesh/internal/broker/storage/sqlite"
)

// newRelayStub serves the relay surface the broker depends on: snapshot
// lookups and subscriber pushes.
func newRelayStub(t *testing.T, snapshots map[string]json.RawMessage) (*httptest.Server, *[]pushRequest) {
	t.Helper()

	var pushes []pushRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		var req snapshotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		data, ok := snapshots[req.RoomID+"/"+req.ElementID]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snapshotResponse{Data: data})
	})
	mux.HandleFunc("/update", func(w http.ResponseWriter, r *http.Request) {
		var req pushRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		pushes = append(pushes, req)
		w.WriteHeader(http.StatusOK)
	})

	relay := httptest.NewServer(mux)
	t.Cleanup(relay.Close)
	return relay, &pushes
}

func newTestHandler(t *testing.T, relayBaseURL string) http.Handler {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "broker.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	relay := newRelayClient(relayBaseURL)
	return NewHandler(broker.New(store, store, relay, relay))
}

func postJSON(t *testing.T, handler http.Handler, payload any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestHandler(t, "")

	req := httptest.NewRequest(http.MethodGet, "/up", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("/up status = %d, want 200", recorder.Code)
	}
}

func TestRegisterAndRequestAccess(t *testing.T) {
	relay, _ := newRelayStub(t, map[string]json.RawMessage{
		"shop.example-products/inventory-count": json.RawMessage(`{"count":12}`),
	})
	handler := newTestHandler(t, relay.URL)

	register := postJSON(t, handler, map[string]any{
		"type":        "register-shared-elements",
		"domain":      "shop.example",
		"roomId":      "shop.example-products",
		"elements":    []string{"inventory-count"},
		"permissions": "read-only",
		"sharedWith":  "domain",
	})
	if register.Code != http.StatusOK {
		t.Fatalf("register status = %d, body %s", register.Code, register.Body)
	}
	var registered registerResponse
	if err := json.Unmarshal(register.Body.Bytes(), &registered); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if !registered.Success {
		t.Fatal("register response success = false")
	}

	access := postJSON(t, handler, map[string]any{
		"type":   "request-shared-access",
		"domain": "shop.example",
		"roomId": "shop.example-checkout",
		"sharedElements": []map[string]string{
			{"domain": "shop.example", "elementId": "inventory-count"},
		},
	})
	if access.Code != http.StatusOK {
		t.Fatalf("access status = %d, body %s", access.Code, access.Body)
	}
	var granted accessResponse
	if err := json.Unmarshal(access.Body.Bytes(), &granted); err != nil {
		t.Fatalf("decode access response: %v", err)
	}
	if !granted.Success || len(granted.SharedElements) != 1 {
		t.Fatalf("access response = %+v, want one granted element", granted)
	}
	if string(granted.SharedElements[0].Data) != `{"count":12}` {
		t.Errorf("granted data = %s", granted.SharedElements[0].Data)
	}
}

func TestRequestAccessOmitsCrossDomainScopedElement(t *testing.T) {
	relay, _ := newRelayStub(t, map[string]json.RawMessage{
		"shop.example/inventory-count": json.RawMessage(`{"count":1}`),
	})
	handler := newTestHandler(t, relay.URL)

	register := postJSON(t, handler, map[string]any{
		"type":        "register-shared-elements",
		"domain":      "shop.example",
		"roomId":      "shop.example",
		"elements":    []string{"inventory-count"},
		"permissions": "read-only",
		"sharedWith":  "domain",
	})
	if register.Code != http.StatusOK {
		t.Fatalf("register status = %d", register.Code)
	}

	access := postJSON(t, handler, map[string]any{
		"type":   "request-shared-access",
		"domain": "rival.example",
		"roomId": "rival.example",
		"sharedElements": []map[string]string{
			{"domain": "shop.example", "elementId": "inventory-count"},
		},
	})
	if access.Code != http.StatusOK {
		t.Fatalf("access status = %d", access.Code)
	}
	var granted accessResponse
	if err := json.Unmarshal(access.Body.Bytes(), &granted); err != nil {
		t.Fatalf("decode access response: %v", err)
	}
	if len(granted.SharedElements) != 0 {
		t.Errorf("cross-domain request was granted: %+v", granted.SharedElements)
	}
}

func TestPropagateUpdatePushesToSubscribers(t *testing.T) {
	relay, pushes := newRelayStub(t, map[string]json.RawMessage{
		"shop.example/inventory-count": json.RawMessage(`{"count":5}`),
	})
	handler := newTestHandler(t, relay.URL)

	register := postJSON(t, handler, map[string]any{
		"type":        "register-shared-elements",
		"domain":      "shop.example",
		"roomId":      "shop.example",
		"elements":    []string{"inventory-count"},
		"permissions": "read-write",
		"sharedWith":  "global",
	})
	if register.Code != http.StatusOK {
		t.Fatalf("register status = %d", register.Code)
	}

	access := postJSON(t, handler, map[string]any{
		"type":   "request-shared-access",
		"domain": "blog.example",
		"roomId": "blog.example",
		"sharedElements": []map[string]string{
			{"domain": "shop.example", "elementId": "inventory-count"},
		},
	})
	if access.Code != http.StatusOK {
		t.Fatalf("access status = %d", access.Code)
	}

	propagate := postJSON(t, handler, map[string]any{
		"type":      "propagate-update",
		"domain":    "shop.example",
		"elementId": "inventory-count",
		"data":      map[string]int{"count": 6},
	})
	if propagate.Code != http.StatusOK {
		t.Fatalf("propagate status = %d, body %s", propagate.Code, propagate.Body)
	}

	if len(*pushes) != 1 {
		t.Fatalf("relay received %d pushes, want 1", len(*pushes))
	}
	push := (*pushes)[0]
	if push.RoomID != "blog.example" {
		t.Errorf("push room = %q, want blog.example", push.RoomID)
	}
	if push.ElementKey != "shop.example#inventory-count" {
		t.Errorf("push element key = %q", push.ElementKey)
	}
}

func TestValidationErrorsMapToBadRequest(t *testing.T) {
	handler := newTestHandler(t, "")

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"unknown type", map[string]any{"type": "mystery"}},
		{"register without domain", map[string]any{
			"type":        "register-shared-elements",
			"roomId":      "room",
			"elements":    []string{"a"},
			"permissions": "read-only",
			"sharedWith":  "domain",
		}},
		{"register with bad scope", map[string]any{
			"type":        "register-shared-elements",
			"domain":      "shop.example",
			"roomId":      "room",
			"elements":    []string{"a"},
			"permissions": "read-only",
			"sharedWith":  "friends",
		}},
		{"access without room id", map[string]any{
			"type":   "request-shared-access",
			"domain": "shop.example",
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := postJSON(t, handler, tc.payload)
			if recorder.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", recorder.Code, recorder.Body)
			}
			var resp struct {
				Success bool      `json:"success"`
				Error   errorBody `json:"error"`
			}
			if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if resp.Success {
				t.Error("error response success = true")
			}
			if resp.Error.Code == "" {
				t.Error("error response has no code")
			}
		})
	}
}

func TestMalformedBodyRejected(t *testing.T) {
	handler := newTestHandler(t, "")

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", recorder.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestHandler(t, "")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", recorder.Code)
	}
}

func TestServerLifecycle(t *testing.T) {
	server, err := NewServer(Config{
		HTTPAddr:    "127.0.0.1:0",
		StoragePath: filepath.Join(t.TempDir(), "broker.db"),
	})
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.ListenAndServe(ctx)
	}()

	cancel()
	if err := <-done; err != nil {
		t.Errorf("ListenAndServe() after cancel error: %v", err)
	}
}
