package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Wire event names. Outbound: join-room, leave-room, send-message.
// Inbound: message, joined-room, left-room, error.
const (
	eventJoinRoom    = "join-room"
	eventLeaveRoom   = "leave-room"
	eventSendMessage = "send-message"
	eventMessage     = "message"
	eventJoinedRoom  = "joined-room"
	eventLeftRoom    = "left-room"
	eventError       = "error"
)

// ErrNotConnected is returned by Emit while the socket is down.
var ErrNotConnected = errors.New("transport not connected")

// SessionEvent is one inbound server event, delivered in arrival order.
type SessionEvent struct {
	Name string
	Data json.RawMessage
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// SessionConfig controls the transport's dial target and retry policy.
type SessionConfig struct {
	URL       string
	BaseDelay time.Duration // first reconnect delay, doubled up to MaxDelay
	MaxDelay  time.Duration
	Dialer    *websocket.Dialer
}

// TransportSession owns the single logical connection to the chat server.
// Nothing else in the client dials or closes the socket; callers request a
// connection with Connect and react to the connected edge via OnConnected.
type TransportSession struct {
	cfg SessionConfig

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	dialing   bool
	closed    bool
	gen       int // connection generation, guards stale read loops

	writeMu     sync.Mutex
	events      chan SessionEvent
	done        chan struct{}
	onConnected []func()
}

// NewTransportSession validates the server URL and prepares a session.
// No connection is attempted until the first Connect call.
func NewTransportSession(cfg SessionConfig) (*TransportSession, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return nil, fmt.Errorf("invalid scheme for websocket: %s", parsed.Scheme)
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &TransportSession{
		cfg:    cfg,
		events: make(chan SessionEvent, 64),
		done:   make(chan struct{}),
	}, nil
}

// OnConnected registers a handler invoked on every fresh connection: the
// initial connect and every automatic reconnect. Register before Connect.
func (s *TransportSession) OnConnected(handler func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnected = append(s.onConnected, handler)
}

// Events returns the inbound event stream. It is never closed; consumers
// should select on Done as well.
func (s *TransportSession) Events() <-chan SessionEvent {
	return s.events
}

// Done is closed when the session is torn down.
func (s *TransportSession) Done() <-chan struct{} {
	return s.done
}

// Connected reports whether the socket is currently up.
func (s *TransportSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// generation identifies the current connection; it increments on every
// successful dial.
func (s *TransportSession) generation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Connect requests a connection. Concurrent callers share one dial loop; a
// second Connect while dialing or connected is a no-op. The dial retries
// with doubling delays until it succeeds or the session is closed.
func (s *TransportSession) Connect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.connected || s.dialing {
		return
	}
	s.dialing = true
	go s.dialLoop()
}

func (s *TransportSession) dialLoop() {
	delay := s.cfg.BaseDelay
	for {
		s.mu.Lock()
		if s.closed {
			s.dialing = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		conn, resp, err := s.cfg.Dialer.Dial(s.cfg.URL, http.Header{})
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			log.Printf("transport: dial %s failed: %v (retrying in %s)", s.cfg.URL, err, delay)
			select {
			case <-s.done:
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > s.cfg.MaxDelay {
				delay = s.cfg.MaxDelay
			}
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conn = conn
		s.connected = true
		s.dialing = false
		s.gen++
		gen := s.gen
		handlers := append([]func(){}, s.onConnected...)
		s.mu.Unlock()

		go s.readLoop(conn, gen)
		for _, handler := range handlers {
			handler()
		}
		return
	}
}

// readLoop delivers inbound events one at a time, preserving arrival order.
// A read error marks the session disconnected and restarts the dial loop.
func (s *TransportSession) readLoop(conn *websocket.Conn, gen int) {
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(gen)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil || env.Event == "" {
			// one malformed frame must not wedge the stream
			log.Printf("transport: dropping malformed frame: %q", payload)
			continue
		}
		select {
		case s.events <- SessionEvent{Name: env.Event, Data: env.Data}:
		case <-s.done:
			return
		}
	}
}

func (s *TransportSession) handleDisconnect(gen int) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.connected = false
	s.conn = nil
	s.dialing = true
	s.mu.Unlock()
	log.Printf("transport: connection lost, reconnecting")
	go s.dialLoop()
}

// Emit marshals the payload into the wire envelope and writes it. Writes
// are serialized; ErrNotConnected is returned while the socket is down.
func (s *TransportSession) Emit(event string, payload any) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.connected
	s.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	encoded, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, encoded)
}

// Close tears the session down regardless of its current state, including a
// dial attempt still in flight. Safe to call more than once.
func (s *TransportSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.connected = false
	close(s.done)
	s.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return conn.Close()
	}
	return nil
}
