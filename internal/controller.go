package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"roomtalk/internal/storage"
)

// UpdateKind labels what changed, so the UI knows which part to refresh.
type UpdateKind int

const (
	UpdateTimeline UpdateKind = iota
	UpdatePresence
	UpdateConnection
)

// ControllerUpdate is a change notification pushed to the UI. It carries no
// data; the UI re-reads snapshots from the controller.
type ControllerUpdate struct {
	Kind UpdateKind
	Room string
}

// ControllerOptions tunes the timing knobs. Zero values pick the defaults.
type ControllerOptions struct {
	SettleDelay  time.Duration // wait after reconnect before draining queued sends
	FuzzyWindow  time.Duration // identity-less duplicate matching window
	SendInterval time.Duration // minimum gap between sends to the same room
	MaxImageSize int64
}

type presencePayload struct {
	User string `json:"user"`
	Room string `json:"room"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// RoomController owns the client's chat state: which room is open, what its
// timeline looks like, who is present, and what is still queued. The UI
// talks only to the controller; the session, membership and store are
// internal to it.
type RoomController struct {
	store      *storage.Store
	session    *TransportSession
	queue      *PendingQueue
	membership *Membership
	rec        *Reconciler
	presence   *PresenceTracker
	metrics    *Metrics
	throttle   *SendThrottle
	relay      *ImageRelay

	mu        sync.Mutex
	username  string
	monitored map[string]bool

	updates chan ControllerUpdate
}

// NewRoomController wires the full client stack around an open store and a
// prepared (not yet connected) session.
func NewRoomController(store *storage.Store, session *TransportSession, opts ControllerOptions) (*RoomController, error) {
	if opts.SendInterval <= 0 {
		opts.SendInterval = 500 * time.Millisecond
	}
	relay, err := NewImageRelay(session.cfg.URL, opts.MaxImageSize)
	if err != nil {
		return nil, err
	}

	queue := NewPendingQueue(store)
	c := &RoomController{
		store:     store,
		session:   session,
		queue:     queue,
		rec:       NewReconciler(store, opts.FuzzyWindow),
		presence:  NewPresenceTracker(),
		metrics:   NewMetrics(),
		throttle:  NewSendThrottle(opts.SendInterval),
		relay:     relay,
		monitored: make(map[string]bool),
		updates:   make(chan ControllerUpdate, 32),
	}
	c.membership = NewMembership(session, queue, opts.SettleDelay)
	session.OnConnected(func() {
		c.metrics.IncReconnect()
		c.notify(ControllerUpdate{Kind: UpdateConnection})
	})
	return c, nil
}

// Start loads persisted state and begins consuming server events.
// Monitored rooms are rejoined so their pushes keep flowing into the
// store; with no profile saved yet the rejoin waits for SetProfile.
func (c *RoomController) Start(ctx context.Context) error {
	profile, err := c.store.GetProfile(ctx)
	if err != nil {
		return err
	}
	username := ""
	if profile != nil {
		username = profile.Username
	}
	monitored, err := c.store.ListMonitored(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.username = username
	for _, room := range monitored {
		c.monitored[room] = true
	}
	c.mu.Unlock()

	go c.run()

	if username != "" {
		for _, room := range monitored {
			c.membership.Join(username, room)
		}
	}
	return nil
}

// SetProfile stores the display name used as the author of every send. The
// first profile also completes the monitored-room rejoin that Start skipped
// while no name was available.
func (c *RoomController) SetProfile(ctx context.Context, username string) error {
	if err := c.store.SaveProfile(ctx, storage.Profile{Username: username}); err != nil {
		return err
	}
	c.mu.Lock()
	first := c.username == "" && username != ""
	c.username = username
	var monitored []string
	if first {
		for room := range c.monitored {
			monitored = append(monitored, room)
		}
	}
	c.mu.Unlock()

	for _, room := range monitored {
		c.membership.Join(username, room)
	}
	return nil
}

// Updates is the change feed for the UI.
func (c *RoomController) Updates() <-chan ControllerUpdate {
	return c.updates
}

func (c *RoomController) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

func (c *RoomController) Connected() bool {
	return c.session.Connected()
}

func (c *RoomController) Metrics() MetricsSnapshot {
	return c.metrics.Snapshot()
}

func (c *RoomController) Presence() *PresenceTracker {
	return c.presence
}

// OpenRoom makes a room the active conversation: its history is loaded,
// its join intent registered, and inbound pushes for it reconcile into the
// visible timeline.
func (c *RoomController) OpenRoom(ctx context.Context, room string) error {
	if err := c.store.EnsureConversation(ctx, room, ""); err != nil {
		return err
	}
	if err := c.rec.Open(ctx, room); err != nil {
		return err
	}
	c.membership.Join(c.Username(), room)
	c.notify(ControllerUpdate{Kind: UpdateTimeline, Room: room})
	return nil
}

// OpenRoomName returns the active room, or "" before the first OpenRoom.
func (c *RoomController) OpenRoomName() string {
	return c.rec.Room()
}

// Timeline returns the open room's reconciled messages.
func (c *RoomController) Timeline() []ChatMessage {
	return c.rec.Messages()
}

// Send delivers a message to the open room, optimistically and durably: it
// appears in the timeline at once, survives a restart, and is either
// emitted now or queued for the next reconnect.
func (c *RoomController) Send(ctx context.Context, body string) error {
	room := c.rec.Room()
	if room == "" {
		return fmt.Errorf("no room open")
	}
	if !c.throttle.Allow(room) {
		return fmt.Errorf("sending too fast, slow down")
	}

	msg := ChatMessage{
		Author: c.Username(),
		Body:   body,
		Room:   room,
		SentAt: time.Now().UnixMilli(),
		Kind:   KindMessage,
	}
	msg, err := c.rec.LocalSend(ctx, msg)
	if err != nil {
		// the optimistic copy is visible either way; losing durability is
		// worth surfacing, not blocking the send on
		log.Printf("controller: message %s not persisted: %v", msg.Identity, err)
	}
	c.notify(ControllerUpdate{Kind: UpdateTimeline, Room: room})

	emitErr := ErrNotConnected
	if c.session.Connected() {
		emitErr = c.session.Emit(eventSendMessage, sendMessagePayload{
			Identity: msg.Identity,
			Body:     msg.Body,
			Room:     msg.Room,
		})
	}
	if emitErr != nil {
		if err := c.queue.Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("message shown but neither sent nor queued: %w", err)
		}
		c.metrics.IncQueued()
		c.session.Connect()
		return nil
	}
	c.metrics.IncSent()
	return nil
}

// SendImage uploads a local image to the relay and sends its reference.
func (c *RoomController) SendImage(ctx context.Context, path string) error {
	ref, err := c.relay.Upload(path, c.Username())
	if err != nil {
		return err
	}
	return c.Send(ctx, ref)
}

// LeaveRoom drops the open-or-pending membership for a room. Monitored
// rooms stay joined; unmonitor first to silence them.
func (c *RoomController) LeaveRoom(room string) {
	c.mu.Lock()
	keep := c.monitored[room]
	c.mu.Unlock()
	if keep {
		return
	}
	c.membership.Leave(room)
	c.presence.Reset(room)
	c.notify(ControllerUpdate{Kind: UpdatePresence, Room: room})
}

// MonitorRoom subscribes a room for background capture: its pushes persist
// to the store without opening it.
func (c *RoomController) MonitorRoom(ctx context.Context, room string) error {
	if err := c.store.EnsureConversation(ctx, room, ""); err != nil {
		return err
	}
	if err := c.store.MonitorRoom(ctx, room); err != nil {
		return err
	}
	c.mu.Lock()
	c.monitored[room] = true
	c.mu.Unlock()
	c.membership.Join(c.Username(), room)
	return nil
}

// UnmonitorRoom stops background capture; the room is left unless open.
func (c *RoomController) UnmonitorRoom(ctx context.Context, room string) error {
	if err := c.store.UnmonitorRoom(ctx, room); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.monitored, room)
	c.mu.Unlock()
	if c.rec.Room() != room {
		c.membership.Leave(room)
	}
	return nil
}

func (c *RoomController) MonitoredRooms(ctx context.Context) ([]string, error) {
	return c.store.ListMonitored(ctx)
}

func (c *RoomController) Conversations(ctx context.Context) ([]storage.ConversationInfo, error) {
	return c.store.ListConversations(ctx)
}

// DeleteConversation erases a room's history, queued sends and monitoring.
// The open room cannot be deleted.
func (c *RoomController) DeleteConversation(ctx context.Context, room string) error {
	if c.rec.Room() == room {
		return fmt.Errorf("room %s is open", room)
	}
	if err := c.UnmonitorRoom(ctx, room); err != nil {
		return err
	}
	c.membership.Leave(room)
	c.throttle.Forget(room)
	return c.store.DeleteConversation(ctx, room)
}

func (c *RoomController) PendingCount(ctx context.Context) (int, error) {
	return c.queue.Len(ctx)
}

// Close leaves every room and tears down the session. The store is owned
// by the caller and stays open.
func (c *RoomController) Close() {
	c.membership.DisconnectAll()
}

func (c *RoomController) run() {
	for {
		select {
		case <-c.session.Done():
			return
		case ev := <-c.session.Events():
			c.dispatch(ev)
		}
	}
}

func (c *RoomController) dispatch(ev SessionEvent) {
	ctx := context.Background()
	switch ev.Name {
	case eventMessage:
		var msg ChatMessage
		if err := json.Unmarshal(ev.Data, &msg); err != nil || msg.Author == "" || msg.Room == "" {
			log.Printf("controller: dropping malformed message event: %q", ev.Data)
			return
		}
		if msg.SentAt == 0 {
			msg.SentAt = time.Now().UnixMilli()
		}
		c.routeMessage(ctx, msg)
	case eventError:
		var payload errorPayload
		if err := json.Unmarshal(ev.Data, &payload); err != nil || payload.Message == "" {
			// some servers send the text bare
			var text string
			if json.Unmarshal(ev.Data, &text) == nil {
				payload.Message = text
			}
		}
		if payload.Message == "" {
			payload.Message = "server reported an error"
		}
		c.rec.ApplyInfo(payload.Message)
		c.notify(ControllerUpdate{Kind: UpdateTimeline, Room: c.rec.Room()})
	case eventJoinedRoom:
		var p presencePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.Room == "" {
			return
		}
		c.presence.Enter(p.Room, p.User)
		c.notify(ControllerUpdate{Kind: UpdatePresence, Room: p.Room})
	case eventLeftRoom:
		var p presencePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.Room == "" {
			return
		}
		c.presence.Exit(p.Room, p.User)
		c.notify(ControllerUpdate{Kind: UpdatePresence, Room: p.Room})
	default:
		log.Printf("controller: ignoring unknown event %q", ev.Name)
	}
}

// routeMessage applies the transport boundary rule: pushes for the open
// room reconcile into the timeline, pushes for monitored rooms persist
// silently, everything else is dropped.
func (c *RoomController) routeMessage(ctx context.Context, msg ChatMessage) {
	open := c.rec.Room()
	c.mu.Lock()
	monitored := c.monitored[msg.Room]
	c.mu.Unlock()

	switch {
	case msg.Room == open:
		if err := c.rec.Apply(ctx, msg); err != nil {
			log.Printf("controller: message %s not persisted: %v", msg.Identity, err)
		}
		c.notify(ControllerUpdate{Kind: UpdateTimeline, Room: msg.Room})
	case monitored:
		if err := c.rec.Apply(ctx, msg); err != nil {
			log.Printf("controller: monitored message for %s not persisted: %v", msg.Room, err)
		}
	default:
		c.metrics.IncDropped()
	}
}

// notify pushes without blocking; the UI re-reads state, so a dropped
// notification is absorbed by the next one.
func (c *RoomController) notify(update ControllerUpdate) {
	select {
	case c.updates <- update:
	default:
	}
}
