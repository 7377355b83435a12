package internal

import (
	"sync"
	"time"
)

// SendThrottle is the double-submit guard for outgoing messages: each room
// accepts a new send only once the previous one is at least an interval old.
// A double-tapped Enter therefore produces one message, not two.
type SendThrottle struct {
	mu       sync.Mutex
	lastSend map[string]time.Time
	interval time.Duration
}

func NewSendThrottle(interval time.Duration) *SendThrottle {
	return &SendThrottle{
		lastSend: make(map[string]time.Time),
		interval: interval,
	}
}

// Allow reports whether a send to the room may proceed now, and records the
// attempt when it may.
func (t *SendThrottle) Allow(room string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if last, ok := t.lastSend[room]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastSend[room] = now
	return true
}

// Forget drops a room's send history, freeing the entry when its
// conversation is deleted.
func (t *SendThrottle) Forget(room string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSend, room)
}
