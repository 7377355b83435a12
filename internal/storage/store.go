package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	defaultBusyTimeout = 5000
	schemaVersion      = 1
)

/// Store wraps the SQLite handle backing the offline cache: the profile
// singleton, per-room conversations, the pending send queue and the list of
// monitored rooms. It is the source of truth while disconnected.
type Store struct {
	db *sql.DB
}

// Profile is the locally stored user profile, consumed as the default
// message author. Dirty marks edits not yet pushed anywhere.
type Profile struct {
	Username string
	Photo    string
	Dirty    bool
}

// Message is a persisted chat message row.
type Message struct {
	Identity string
	Author   string
	Body     string
	Room     string
	SentAt   int64 // unix milliseconds
	Kind     string
}

// ConversationInfo describes one stored conversation for listing screens.
type ConversationInfo struct {
	Room string
	Name string
}

// ErrSchemaTooNew is returned when the database was written by a newer
// build than this one.
var ErrSchemaTooNew = errors.New("database schema is newer than this build")

// NewStore opens the SQLite database at the provided path. Call Close when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "roomtalk.db"
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=foreign_keys=ON", path, separator, defaultBusyTimeout)
}

// Migrate creates or upgrades the schema. The schema version lives in
// PRAGMA user_version so old databases survive binary upgrades.
func (s *Store) Migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&version); err != nil {
		return err
	}
	if version > schemaVersion {
		return fmt.Errorf("%w: have %d, expected <= %d", ErrSchemaTooNew, version, schemaVersion)
	}
	if version == schemaVersion {
		return nil
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS profile (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			username TEXT NOT NULL,
			photo TEXT NOT NULL DEFAULT '',
			dirty INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			room TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			room TEXT NOT NULL,
			identity TEXT NOT NULL,
			author TEXT NOT NULL,
			body TEXT NOT NULL,
			sent_at INTEGER NOT NULL,
			kind TEXT NOT NULL DEFAULT 'MESSAGE',
			PRIMARY KEY (room, identity),
			FOREIGN KEY (room) REFERENCES conversations(room) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_room_sent ON messages(room, sent_at);`,
		`CREATE TABLE IF NOT EXISTS pending (
			identity TEXT PRIMARY KEY,
			room TEXT NOT NULL,
			author TEXT NOT NULL,
			body TEXT NOT NULL,
			sent_at INTEGER NOT NULL,
			kind TEXT NOT NULL DEFAULT 'MESSAGE'
		);`,
		`CREATE TABLE IF NOT EXISTS monitored (
			room TEXT PRIMARY KEY
		);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d;", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveProfile upserts the singleton profile row and marks it dirty.
func (s *Store) SaveProfile(ctx context.Context, profile Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profile(id, username, photo, dirty) VALUES(1, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET username=excluded.username, photo=excluded.photo, dirty=1
	`, profile.Username, profile.Photo)
	return err
}

// GetProfile fetches the stored profile, or nil if none was saved yet.
func (s *Store) GetProfile(ctx context.Context) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT username, photo, dirty FROM profile WHERE id = 1`)
	var p Profile
	var dirty int
	if err := row.Scan(&p.Username, &p.Photo, &dirty); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.Dirty = dirty != 0
	return &p, nil
}

// EnsureConversation creates the conversation row for a room if it does not
// exist yet. Conversations are created lazily on first access.
func (s *Store) EnsureConversation(ctx context.Context, room, name string) error {
	if name == "" {
		name = room
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO conversations(room, name) VALUES(?, ?)`, room, name)
	return err
}

// ListConversations returns every stored conversation ordered by name.
func (s *Store) ListConversations(ctx context.Context) ([]ConversationInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT room, name FROM conversations ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []ConversationInfo
	for rows.Next() {
		var info ConversationInfo
		if err := rows.Scan(&info.Room, &info.Name); err != nil {
			return nil, err
		}
		list = append(list, info)
	}
	return list, rows.Err()
}

// DeleteConversation removes a conversation, its messages, and any pending
// sends still queued for the room. This is the only deletion path for
// message history.
func (s *Store) DeleteConversation(ctx context.Context, room string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE room = ?`, room); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM pending WHERE room = ?`, room); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM conversations WHERE room = ?`, room); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendMessage persists a message if its identity is not already stored for
// the room. Re-appending the same identity is a no-op, which keeps the write
// path idempotent across reconnect replays.
func (s *Store) AppendMessage(ctx context.Context, msg Message) error {
	if err := s.EnsureConversation(ctx, msg.Room, ""); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages(room, identity, author, body, sent_at, kind)
		VALUES(?, ?, ?, ?, ?, ?)
	`, msg.Room, msg.Identity, msg.Author, msg.Body, msg.SentAt, msg.Kind)
	return err
}

// ReplaceMessage stores the authoritative server copy of a message,
// overwriting any optimistic row with the same identity.
func (s *Store) ReplaceMessage(ctx context.Context, msg Message) error {
	if err := s.EnsureConversation(ctx, msg.Room, ""); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO messages(room, identity, author, body, sent_at, kind)
		VALUES(?, ?, ?, ?, ?, ?)
	`, msg.Room, msg.Identity, msg.Author, msg.Body, msg.SentAt, msg.Kind)
	return err
}

// HasSimilarMessage reports whether the room already stores a message with
// the same author and body whose timestamp lies within windowMs of sentAt.
func (s *Store) HasSimilarMessage(ctx context.Context, room, author, body string, sentAt, windowMs int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM messages
		WHERE room = ? AND author = ? AND body = ? AND sent_at BETWEEN ? AND ?
	`, room, author, body, sentAt-windowMs, sentAt+windowMs).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// LoadMessages returns the stored history for a room ordered by send time.
func (s *Store) LoadMessages(ctx context.Context, room string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, author, body, room, sent_at, kind
		FROM messages WHERE room = ?
		ORDER BY sent_at ASC, rowid ASC
	`, room)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Identity, &m.Author, &m.Body, &m.Room, &m.SentAt, &m.Kind); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// EnqueuePending adds a message to the durable send queue. Enqueueing an
// identity that is already queued is a no-op.
func (s *Store) EnqueuePending(ctx context.Context, msg Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO pending(identity, room, author, body, sent_at, kind)
		VALUES(?, ?, ?, ?, ?, ?)
	`, msg.Identity, msg.Room, msg.Author, msg.Body, msg.SentAt, msg.Kind)
	return err
}

// ListPending returns queued messages in insertion order.
func (s *Store) ListPending(ctx context.Context) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, author, body, room, sent_at, kind
		FROM pending ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Identity, &m.Author, &m.Body, &m.Room, &m.SentAt, &m.Kind); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// DeletePending removes one queue entry once its wire emission completed.
func (s *Store) DeletePending(ctx context.Context, identity string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending WHERE identity = ?`, identity)
	return err
}

// PendingCount reports how many sends are still queued.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM pending`).Scan(&count)
	return count, err
}

// MonitorRoom records a notification-only subscription for a room.
func (s *Store) MonitorRoom(ctx context.Context, room string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO monitored(room) VALUES(?)`, room)
	return err
}

// UnmonitorRoom drops a notification-only subscription.
func (s *Store) UnmonitorRoom(ctx context.Context, room string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM monitored WHERE room = ?`, room)
	return err
}

// ListMonitored returns the persisted monitored-room names.
func (s *Store) ListMonitored(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT room FROM monitored ORDER BY room ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rooms []string
	for rows.Next() {
		var room string
		if err := rows.Scan(&room); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}
