// Package engine implements the client-resident chat session
// synchronization engine: it owns the message, chat-list, presence,
// typing, unread and cutoff projections, reconciles them against inbound
// socket events, schedules self-destruct expiry and performs optimistic
// sends. All state is private to the engine; consumers receive read-only
// snapshots and change notifications over the bus.
package engine

import "io"

// Kind is the message content kind.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

// Peer is the denormalized other participant of a chat.
type Peer struct {
	ID       string
	Username string
	Online   bool
	LastSeen int64
}

// Chat is a chat summary as shown in the conversation list. Timestamps
// are Unix milliseconds.
type Chat struct {
	ID             string
	Peer           Peer
	LastBody       string
	LastAt         int64
	Unread         int
	CreatedAt      int64
	LastActivityAt int64
}

// Message is a visible message. ID is server-assigned, or a locally
// generated placeholder id while a send is pending. ExpiresAt of zero
// means no self-destruct timer is known for the message.
type Message struct {
	ID         string
	ChatID     string
	SenderID   string
	ReceiverID string
	Body       string
	Kind       Kind
	FileName   string
	FileSize   int64
	CreatedAt  int64
	ExpiresAt  int64
}

// Attachment is a file handed to the outbound pipeline. Content is read
// once during upload.
type Attachment struct {
	Name    string
	Size    int64
	Content io.Reader
}

// PresenceChange is the bus payload for presence transitions.
type PresenceChange struct {
	UserID   string
	Online   bool
	LastSeen int64
}

// TypingChange is the bus payload for typing transitions.
type TypingChange struct {
	ChatID string
	Typing bool
}

// UnreadChange is the bus payload for unread-count transitions.
type UnreadChange struct {
	ChatID string
	Count  int
}

// MessageRef identifies a message in bus payloads.
type MessageRef struct {
	ChatID    string
	MessageID string
}
