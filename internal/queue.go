package internal

import (
	"context"
	"fmt"
	"sync"

	"roomtalk/internal/storage"
)

func toStorageMessage(m ChatMessage) storage.Message {
	return storage.Message{
		Identity: m.Identity,
		Author:   m.Author,
		Body:     m.Body,
		Room:     m.Room,
		SentAt:   m.SentAt,
		Kind:     m.Kind,
	}
}

func fromStorageMessage(m storage.Message) ChatMessage {
	return ChatMessage{
		Identity: m.Identity,
		Author:   m.Author,
		Body:     m.Body,
		Room:     m.Room,
		SentAt:   m.SentAt,
		Kind:     m.Kind,
	}
}

// PendingQueue is the durable outbox for messages composed while offline.
// Entries are keyed by message identity, so a message survives restarts
// without ever being queued twice, and drain in the order they were written.
type PendingQueue struct {
	store *storage.Store

	drainMu sync.Mutex
}

func NewPendingQueue(store *storage.Store) *PendingQueue {
	return &PendingQueue{store: store}
}

// Enqueue records a message for a later send. Enqueueing an identity that
// is already queued is a no-op.
func (q *PendingQueue) Enqueue(ctx context.Context, msg ChatMessage) error {
	if msg.Identity == "" {
		return fmt.Errorf("enqueue %q: missing identity", msg.Body)
	}
	return q.store.EnqueuePending(ctx, toStorageMessage(msg))
}

// Len reports how many sends are still queued.
func (q *PendingQueue) Len(ctx context.Context) (int, error) {
	return q.store.PendingCount(ctx)
}

// DrainAndSend emits every queued message oldest-first, deleting each entry
// only after its emit succeeded. The first emit failure stops the drain and
// leaves that entry and everything behind it queued; already-sent entries
// are not restored.
//
// Drains are serialized: a reconnect that fires while a slow drain is still
// emitting waits for it instead of listing the same entries a second time.
func (q *PendingQueue) DrainAndSend(ctx context.Context, emit func(ChatMessage) error) error {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	pending, err := q.store.ListPending(ctx)
	if err != nil {
		return err
	}
	for _, row := range pending {
		msg := fromStorageMessage(row)
		if err := emit(msg); err != nil {
			return fmt.Errorf("drain stopped at %s: %w", msg.Identity, err)
		}
		if err := q.store.DeletePending(ctx, msg.Identity); err != nil {
			return err
		}
	}
	return nil
}
