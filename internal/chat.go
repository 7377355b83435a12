package internal

import "strings"

// Message kinds carried on the wire. INFO entries are server notices that
// render inline with the conversation but are never authored by a user.
const (
	KindMessage = "MESSAGE"
	KindInfo    = "INFO"
)

// ChatMessage is the unit exchanged with the server and persisted locally.
// Identity is assigned once by the sender and travels unchanged through the
// store, the pending queue and the wire so the server's echo can be matched
// back to the optimistic copy. Peers on older protocol versions may omit it.
type ChatMessage struct {
	Identity string `json:"identity,omitempty"`
	Author   string `json:"author"`
	Body     string `json:"body"`
	Room     string `json:"room"`
	SentAt   int64  `json:"sentAt"` // unix milliseconds
	Kind     string `json:"kind,omitempty"`
}

// IsInfo reports whether the message is a server notice rather than chat.
func (m ChatMessage) IsInfo() bool {
	return m.Kind == KindInfo
}

// Conversation is the persisted record of a room's history.
type Conversation struct {
	ID       string
	Name     string
	Messages []ChatMessage
}

// IsImageRef reports whether a message body is an image reference produced
// by the image relay. The core treats such bodies as opaque text; only the
// rendering layer resolves them.
func IsImageRef(body string) bool {
	return strings.Contains(body, "/api/images/")
}
