package bus

import "time"

// Event kinds published by the engine. Subscribers filter by prefix, so
// "chat." matches every chat-list notification and "" matches everything.
const (
	KindChatListLoaded  = "chat.list_loaded"
	KindChatBumped      = "chat.bumped"
	KindChatUpdated     = "chat.updated"
	KindChatRemoved     = "chat.removed"
	KindMessagesLoaded  = "message.loaded"
	KindMessageAppended = "message.appended"
	KindMessageUpdated  = "message.updated"
	KindMessageExpired  = "message.expired"
	KindMessageDropped  = "message.dropped"
	KindPresenceChanged = "presence.changed"
	KindTypingChanged   = "typing.changed"
	KindUnreadChanged   = "unread.changed"
	KindConnState       = "conn.state"
)

// Event represents an engine notification published on the bus. Payloads
// are read-only snapshots; subscribers must not mutate them.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
