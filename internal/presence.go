package internal

import (
	"sort"
	"sync"
)

// PresenceTracker keeps the set of participants per room, fed by the
// joined-room and left-room events of the sessions we observe. Counts are
// per user so a participant on several devices stays present until the
// last one leaves.
type PresenceTracker struct {
	mu    sync.Mutex
	rooms map[string]map[string]int
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{rooms: make(map[string]map[string]int)}
}

func (p *PresenceTracker) Enter(room, user string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	users := p.rooms[room]
	if users == nil {
		users = make(map[string]int)
		p.rooms[room] = users
	}
	users[user]++
	return len(users)
}

func (p *PresenceTracker) Exit(room, user string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	users := p.rooms[room]
	if count, ok := users[user]; ok {
		if count <= 1 {
			delete(users, user)
		} else {
			users[user] = count - 1
		}
	}
	if len(users) == 0 {
		delete(p.rooms, room)
		return 0
	}
	return len(users)
}

// Reset drops a room's presence state. Called on disconnect, when stale
// counts would otherwise linger until the next join cycle.
func (p *PresenceTracker) Reset(room string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rooms, room)
}

func (p *PresenceTracker) Online(room, user string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rooms[room][user] > 0
}

func (p *PresenceTracker) Count(room string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rooms[room])
}

// Participants lists a room's present users, sorted for stable rendering.
func (p *PresenceTracker) Participants(room string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	users := make([]string, 0, len(p.rooms[room]))
	for user := range p.rooms[room] {
		users = append(users, user)
	}
	sort.Strings(users)
	return users
}
