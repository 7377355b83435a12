package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"roomtalk/internal/storage"
)

// chatTestServer is a minimal in-process chat backend: it accepts websocket
// clients, records every envelope they emit, and can push frames or drop
// connections on demand.
type chatTestServer struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	received chan SessionEvent
}

func newChatTestServer(t *testing.T) *chatTestServer {
	t.Helper()
	cts := &chatTestServer{
		t:        t,
		received: make(chan SessionEvent, 64),
	}
	cts.server = httptest.NewServer(http.HandlerFunc(cts.handle))
	t.Cleanup(cts.Close)
	return cts
}

func (cts *chatTestServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := cts.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	cts.mu.Lock()
	cts.conns = append(cts.conns, conn)
	cts.mu.Unlock()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			continue
		}
		cts.received <- SessionEvent{Name: env.Event, Data: env.Data}
	}
}

// URL returns the websocket address of the server.
func (cts *chatTestServer) URL() string {
	return strings.Replace(cts.server.URL, "http://", "ws://", 1)
}

// push broadcasts one envelope to every connected client.
func (cts *chatTestServer) push(event string, payload any) {
	cts.t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		cts.t.Fatalf("marshal push payload: %v", err)
	}
	frame, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		cts.t.Fatalf("marshal push envelope: %v", err)
	}
	cts.mu.Lock()
	defer cts.mu.Unlock()
	for _, conn := range cts.conns {
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	}
}

// pushRaw broadcasts an arbitrary text frame, valid JSON or not.
func (cts *chatTestServer) pushRaw(frame string) {
	cts.mu.Lock()
	defer cts.mu.Unlock()
	for _, conn := range cts.conns {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))
	}
}

// dropConnections severs every live client, simulating a network failure.
func (cts *chatTestServer) dropConnections() {
	cts.mu.Lock()
	defer cts.mu.Unlock()
	for _, conn := range cts.conns {
		_ = conn.Close()
	}
	cts.conns = nil
}

func (cts *chatTestServer) Close() {
	cts.dropConnections()
	cts.server.Close()
}

// waitReceived blocks until the server has seen an envelope with the given
// event name, failing the test after the timeout.
func (cts *chatTestServer) waitReceived(event string, timeout time.Duration) SessionEvent {
	cts.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-cts.received:
			if ev.Name == event {
				return ev
			}
		case <-deadline:
			cts.t.Fatalf("timed out waiting for %q", event)
			return SessionEvent{}
		}
	}
}

// expectQuiet fails the test if the server receives anything in the window.
func (cts *chatTestServer) expectQuiet(window time.Duration) {
	cts.t.Helper()
	select {
	case ev := <-cts.received:
		cts.t.Fatalf("expected no traffic, got %q: %s", ev.Name, ev.Data)
	case <-time.After(window):
	}
}

func newTestSession(t *testing.T, url string) *TransportSession {
	t.Helper()
	session, err := NewTransportSession(SessionConfig{
		URL:       url,
		BaseDelay: 10 * time.Millisecond,
		MaxDelay:  50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewTransportSession: %v", err)
	}
	t.Cleanup(func() {
		_ = session.Close()
	})
	return session
}

// connectedSignal wires a channel to the session's connected edge.
func connectedSignal(session *TransportSession) chan struct{} {
	connected := make(chan struct{}, 8)
	session.OnConnected(func() {
		connected <- struct{}{}
	})
	return connected
}

func waitSignal(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	path := "sqlite://file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	store, err := storage.NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}
