package internal

import (
	"context"
	"log"
	"sync"
	"time"
)

type roomState int

const (
	stateNotJoined roomState = iota
	stateJoining
	stateJoined
)

type joinRoomPayload struct {
	User string `json:"user"`
	Room string `json:"room"`
}

type leaveRoomPayload struct {
	Room string `json:"room"`
}

type sendMessagePayload struct {
	Identity string `json:"identity,omitempty"`
	Body     string `json:"body"`
	Room     string `json:"room"`
}

// DefaultSettleDelay is how long a fresh connection is given to propagate
// joins server-side before the pending queue drains.
const DefaultSettleDelay = 500 * time.Millisecond

// Membership tracks, per room, whether the client is joined, joining, or
// not joined, and serializes join/leave intents against the transport's
// connection state. It is the sole driver of the session lifecycle: the UI
// never calls Connect or Close directly.
//
// Rooms absent from the map are NotJoined. Membership is never persisted;
// rejoin intent is re-derived from this map on every connected edge.
type Membership struct {
	session *TransportSession
	queue   *PendingQueue
	settle  time.Duration

	mu        sync.Mutex
	rooms     map[string]roomState
	users     map[string]string // join author per room, replayed on rejoin
	joinedGen map[string]int    // connection generation of the last join emit
}

// NewMembership wires the manager to the session's connected edge.
func NewMembership(session *TransportSession, queue *PendingQueue, settle time.Duration) *Membership {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	m := &Membership{
		session:   session,
		queue:     queue,
		settle:    settle,
		rooms:     make(map[string]roomState),
		users:     make(map[string]string),
		joinedGen: make(map[string]int),
	}
	session.OnConnected(m.handleConnected)
	return m
}

// Join records the intent to be in a room and makes it so. Already joining
// or joined rooms are a no-op. While disconnected the join is parked in
// Joining state and the shared dial is requested; the connected edge
// completes it. A Leave before the connection resolves cancels the join
// without any join-room event ever being emitted.
func (m *Membership) Join(user, room string) {
	m.mu.Lock()
	if st := m.rooms[room]; st == stateJoining || st == stateJoined {
		m.mu.Unlock()
		return
	}
	m.rooms[room] = stateJoining
	m.users[room] = user
	m.mu.Unlock()

	if !m.session.Connected() {
		m.session.Connect()
		if !m.session.Connected() {
			return
		}
	}
	m.emitJoin(room, user)
}

// Leave cancels a pending join or leaves a joined room. Leaving is
// advisory: emit failures are swallowed, the server notices the absence on
// its own. No-op for rooms that were never joined.
func (m *Membership) Leave(room string) {
	m.mu.Lock()
	st, ok := m.rooms[room]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.rooms, room)
	delete(m.users, room)
	delete(m.joinedGen, room)
	m.mu.Unlock()

	if st == stateJoined {
		if err := m.session.Emit(eventLeaveRoom, leaveRoomPayload{Room: room}); err != nil {
			log.Printf("membership: leave %s not emitted: %v", room, err)
		}
	}
}

// Joined reports whether the room's join has been emitted on the current
// or an earlier connection.
func (m *Membership) Joined(room string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[room] == stateJoined
}

// JoinedRooms returns rooms with a live joined or joining intent.
func (m *Membership) JoinedRooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms := make([]string, 0, len(m.rooms))
	for room := range m.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// DisconnectAll best-effort leaves every joined room, clears all membership
// state and tears down the session, even when a dial is still in flight.
func (m *Membership) DisconnectAll() {
	m.mu.Lock()
	var joined []string
	for room, st := range m.rooms {
		if st == stateJoined {
			joined = append(joined, room)
		}
	}
	m.rooms = make(map[string]roomState)
	m.users = make(map[string]string)
	m.joinedGen = make(map[string]int)
	m.mu.Unlock()

	for _, room := range joined {
		if err := m.session.Emit(eventLeaveRoom, leaveRoomPayload{Room: room}); err != nil {
			log.Printf("membership: leave %s during disconnect not emitted: %v", room, err)
		}
	}
	_ = m.session.Close()
}

// handleConnected runs on every fresh connection: it re-emits join-room for
// every room whose intent survived (Joining and previously Joined alike),
// then drains the pending queue once the settle delay elapsed.
func (m *Membership) handleConnected() {
	m.mu.Lock()
	type intent struct{ room, user string }
	var intents []intent
	for room := range m.rooms {
		intents = append(intents, intent{room, m.users[room]})
	}
	m.mu.Unlock()

	for _, it := range intents {
		// emitJoin skips intents cancelled while waiting on the shared
		// connect, and rooms another path already joined on this connection
		m.emitJoin(it.room, it.user)
	}

	time.AfterFunc(m.settle, m.drainPending)
}

// emitJoin sends join-room at most once per room per connection. A Join
// completing concurrently with the connected-edge replay claims the room
// first under the lock, so the loser sees Joined on the current generation
// and backs off.
func (m *Membership) emitJoin(room, user string) {
	gen := m.session.generation()
	m.mu.Lock()
	st, live := m.rooms[room]
	if !live || (st == stateJoined && m.joinedGen[room] == gen) {
		m.mu.Unlock()
		return
	}
	m.rooms[room] = stateJoined
	m.joinedGen[room] = gen
	m.mu.Unlock()

	if err := m.session.Emit(eventJoinRoom, joinRoomPayload{User: user, Room: room}); err != nil {
		// socket dropped mid-flight; the next connected edge retries
		log.Printf("membership: join %s not emitted: %v", room, err)
		m.mu.Lock()
		if m.rooms[room] == stateJoined {
			m.rooms[room] = stateJoining
		}
		m.mu.Unlock()
	}
}

// drainPending emits queued offline sends once joins have settled. A dead
// connection turns the drain into a no-op; the entries stay queued.
func (m *Membership) drainPending() {
	if m.queue == nil || !m.session.Connected() {
		return
	}
	err := m.queue.DrainAndSend(context.Background(), func(msg ChatMessage) error {
		return m.session.Emit(eventSendMessage, sendMessagePayload{
			Identity: msg.Identity,
			Body:     msg.Body,
			Room:     msg.Room,
		})
	})
	if err != nil {
		log.Printf("membership: queue drain interrupted: %v", err)
	}
}
