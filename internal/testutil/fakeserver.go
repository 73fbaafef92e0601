package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// WaitTimeout bounds every Wait* helper.
const WaitTimeout = 5 * time.Second

// Message is one envelope received by the fake server.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// FakeServer is a console server stand-in. It upgrades /ws, records every
// inbound envelope and can push envelopes or drop connections. REST routes
// are added with HandleJSON.
type FakeServer struct {
	*httptest.Server

	Router *mux.Router

	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	upgrades int
	tokens   []string
	received []Message
	auth     []string
	reject   int
}

// NewFakeServer starts a server that is closed with the test.
func NewFakeServer(t *testing.T) *FakeServer {
	t.Helper()

	s := &FakeServer{Router: mux.NewRouter()}
	s.Router.HandleFunc("/ws", s.serveWS).Methods(http.MethodGet)
	s.Server = httptest.NewServer(s.Router)

	t.Cleanup(func() {
		s.DropAll()
		s.Close()
	})

	return s
}

// Reject makes subsequent upgrade requests fail with status. Zero accepts.
func (s *FakeServer) Reject(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reject = status
}

func (s *FakeServer) serveWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reject := s.reject
	s.mu.Unlock()

	if reject != 0 {
		http.Error(w, http.StatusText(reject), reject)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.upgrades++
	s.tokens = append(s.tokens, r.URL.Query().Get("token"))
	s.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if json.Unmarshal(data, &msg) != nil {
			continue
		}

		s.mu.Lock()
		s.received = append(s.received, msg)
		s.mu.Unlock()
	}
}

// HandleJSON serves body as JSON with status on GET path and records the
// Authorization header of each request.
func (s *FakeServer) HandleJSON(path string, status int, body any) {
	s.Router.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.auth = append(s.auth, r.Header.Get("Authorization"))
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)

		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	}).Methods(http.MethodGet)
}

// AuthHeaders returns the Authorization headers seen by JSON routes.
func (s *FakeServer) AuthHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.auth...)
}

// Upgrades returns the number of accepted websocket connections.
func (s *FakeServer) Upgrades() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.upgrades
}

// Tokens returns the token query parameter of each accepted connection.
func (s *FakeServer) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.tokens...)
}

// Received returns the envelopes received so far.
func (s *FakeServer) Received() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Message(nil), s.received...)
}

// ReceivedOfType returns the received envelopes of msgType.
func (s *FakeServer) ReceivedOfType(msgType string) []Message {
	var out []Message

	for _, msg := range s.Received() {
		if msg.Type == msgType {
			out = append(out, msg)
		}
	}

	return out
}

// Push sends an envelope to every live connection.
func (s *FakeServer) Push(t *testing.T, msgType string, payload any) {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	data, err := json.Marshal(Message{Type: msgType, Payload: raw})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	s.PushRaw(t, data)
}

// PushRaw writes data as a text frame to every live connection.
func (s *FakeServer) PushRaw(t *testing.T, data []byte) {
	t.Helper()

	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.conns...)
	s.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
}

// DropAll closes every live connection without a close frame.
func (s *FakeServer) DropAll() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// WaitUpgrades blocks until at least n connections were accepted.
func (s *FakeServer) WaitUpgrades(t *testing.T, n int) {
	t.Helper()

	Eventually(t, func() bool { return s.Upgrades() >= n }, "%d websocket upgrades", n)
}

// WaitReceived blocks until an envelope of msgType arrives and returns the
// first one.
func (s *FakeServer) WaitReceived(t *testing.T, msgType string) Message {
	t.Helper()

	var got Message

	Eventually(t, func() bool {
		msgs := s.ReceivedOfType(msgType)
		if len(msgs) == 0 {
			return false
		}

		got = msgs[0]

		return true
	}, "a %s envelope", msgType)

	return got
}

// Eventually polls cond until it holds or WaitTimeout elapses.
func Eventually(t *testing.T, cond func() bool, format string, args ...any) {
	t.Helper()

	deadline := time.Now().Add(WaitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for "+format, args...)
}
