package internal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"roomtalk/internal/storage"
)

// DefaultFuzzyWindow bounds how far apart two timestamps may be for an
// identity-less inbound message to count as the echo of a local send.
const DefaultFuzzyWindow = time.Second

// Reconciler merges three sources of truth for the open room into one
// ordered timeline: persisted history, optimistic local sends, and server
// pushes. Reconciliation never removes a message; the only deletion path is
// dropping the whole conversation.
type Reconciler struct {
	store  *storage.Store
	window time.Duration

	mu       sync.Mutex
	room     string
	messages []ChatMessage
}

func NewReconciler(store *storage.Store, fuzzyWindow time.Duration) *Reconciler {
	if fuzzyWindow <= 0 {
		fuzzyWindow = DefaultFuzzyWindow
	}
	return &Reconciler{store: store, window: fuzzyWindow}
}

// Open switches the reconciler to a room and loads its persisted history.
// Any in-memory timeline from a previously open room is discarded; it is
// already on disk.
func (r *Reconciler) Open(ctx context.Context, room string) error {
	rows, err := r.store.LoadMessages(ctx, room)
	if err != nil {
		return err
	}
	messages := make([]ChatMessage, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, fromStorageMessage(row))
	}
	r.mu.Lock()
	r.room = room
	r.messages = messages
	r.mu.Unlock()
	return nil
}

// Room returns the currently open room, or "" before the first Open.
func (r *Reconciler) Room() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.room
}

// Messages returns a snapshot of the open room's timeline.
func (r *Reconciler) Messages() []ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ChatMessage, len(r.messages))
	copy(out, r.messages)
	return out
}

// LocalSend records an optimistic copy of an outgoing message, minting an
// identity when the caller did not. The message shows in the timeline even
// when the durable write fails; the error is still reported so the caller
// can surface it.
func (r *Reconciler) LocalSend(ctx context.Context, msg ChatMessage) (ChatMessage, error) {
	if msg.Identity == "" {
		msg.Identity = uuid.NewString()
	}
	if msg.Kind == "" {
		msg.Kind = KindMessage
	}
	r.mu.Lock()
	if msg.Room == r.room {
		r.messages = append(r.messages, msg)
		r.resortLocked()
	}
	r.mu.Unlock()
	return msg, r.store.AppendMessage(ctx, toStorageMessage(msg))
}

// Apply folds one inbound server message into the open room's timeline.
//
// A message carrying an identity replaces any copy already holding that
// identity; the server copy wins on every field. Without an identity the
// message is matched fuzzily against the timeline (same author, same body,
// timestamps within the window) and dropped as a duplicate on a hit.
// Everything else is appended, minting an identity for identity-less
// messages so they can be persisted and replayed.
func (r *Reconciler) Apply(ctx context.Context, msg ChatMessage) error {
	if msg.Kind == "" {
		msg.Kind = KindMessage
	}

	r.mu.Lock()
	if msg.Room != r.room {
		r.mu.Unlock()
		return r.applyBackground(ctx, msg)
	}

	if msg.Identity != "" {
		for i := range r.messages {
			if r.messages[i].Identity == msg.Identity {
				r.messages[i] = msg
				r.resortLocked()
				r.mu.Unlock()
				return r.store.ReplaceMessage(ctx, toStorageMessage(msg))
			}
		}
	} else {
		for i := range r.messages {
			if r.fuzzyMatch(r.messages[i], msg) {
				r.mu.Unlock()
				return nil
			}
		}
	}

	msg = r.withIdentity(msg)
	r.messages = append(r.messages, msg)
	r.resortLocked()
	r.mu.Unlock()
	return r.store.AppendMessage(ctx, toStorageMessage(msg))
}

// applyBackground persists a push for a room with no in-memory timeline,
// typically a monitored room. Identity-less messages are checked against the
// stored history first; a peer that re-pushes the same message on every
// reconnect would otherwise grow the conversation by one row each time.
func (r *Reconciler) applyBackground(ctx context.Context, msg ChatMessage) error {
	if msg.Identity == "" {
		seen, err := r.store.HasSimilarMessage(ctx, msg.Room, msg.Author, msg.Body, msg.SentAt, r.window.Milliseconds())
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
	}
	return r.store.AppendMessage(ctx, toStorageMessage(r.withIdentity(msg)))
}

// ApplyInfo inserts a synthetic server notice into the timeline. Notices
// are session-scoped: they render inline but are never persisted.
func (r *Reconciler) ApplyInfo(body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, ChatMessage{
		Identity: uuid.NewString(),
		Author:   "server",
		Body:     body,
		Room:     r.room,
		SentAt:   time.Now().UnixMilli(),
		Kind:     KindInfo,
	})
	r.resortLocked()
}

func (r *Reconciler) withIdentity(msg ChatMessage) ChatMessage {
	if msg.Identity == "" {
		msg.Identity = uuid.NewString()
	}
	return msg
}

func (r *Reconciler) fuzzyMatch(have, inbound ChatMessage) bool {
	if have.Author != inbound.Author || have.Body != inbound.Body {
		return false
	}
	delta := have.SentAt - inbound.SentAt
	if delta < 0 {
		delta = -delta
	}
	return time.Duration(delta)*time.Millisecond <= r.window
}

func (r *Reconciler) resortLocked() {
	sort.SliceStable(r.messages, func(i, j int) bool {
		return r.messages[i].SentAt < r.messages[j].SentAt
	})
}
