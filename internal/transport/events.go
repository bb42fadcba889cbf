package transport

import (
	"encoding/json"
	"fmt"
)

// Event is the closed set of inbound socket events. The dispatcher routes
// on the concrete type; unknown tags never reach the engine.
type Event interface {
	isEvent()
}

// OnlineUsers is a bulk presence snapshot, sent after (re)connection.
type OnlineUsers struct {
	UserIDs []string `json:"userIds"`
}

// UserStatus reports one user's presence transition.
type UserStatus struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// ProfileUpdated reports a display-name change.
type ProfileUpdated struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Typing reports the other party's typing state for a chat.
type Typing struct {
	ChatID     string `json:"chatId"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	IsTyping   bool   `json:"isTyping"`
}

// NewMessage delivers a confirmed message.
type NewMessage struct {
	Message WireMessage `json:"message"`
}

// WireMessage is the socket representation of a message. Timestamps are
// Unix milliseconds. DestructTimer is the relative time-to-live in seconds
// as the sender requested it; ExpiresAt is the server's absolute stamp and
// may be absent.
type WireMessage struct {
	ID          string `json:"id"`
	ChatID      string `json:"chatId"`
	SenderID    string `json:"senderId"`
	ReceiverID  string `json:"receiverId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
	FileName    string `json:"fileName,omitempty"`
	FileSize    int64  `json:"fileSize,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	ExpiresAt   int64  `json:"expiresAt,omitempty"`
	Destruct    int    `json:"destructTimer,omitempty"`
}

func (OnlineUsers) isEvent()    {}
func (UserStatus) isEvent()     {}
func (ProfileUpdated) isEvent() {}
func (Typing) isEvent()         {}
func (NewMessage) isEvent()     {}

type envelope struct {
	Type string `json:"type"`
}

// Decode parses a raw socket frame into a typed event. Unknown tags and
// malformed payloads return an error; the socket logs and drops them.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case "online_users":
		var evt OnlineUsers
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("decode online_users: %w", err)
		}
		return evt, nil
	case "user_status":
		var evt UserStatus
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("decode user_status: %w", err)
		}
		return evt, nil
	case "profile_updated":
		var evt ProfileUpdated
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("decode profile_updated: %w", err)
		}
		return evt, nil
	case "typing":
		var evt Typing
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("decode typing: %w", err)
		}
		return evt, nil
	case "new_message":
		var evt NewMessage
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("decode new_message: %w", err)
		}
		return evt, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}
