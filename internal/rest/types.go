package rest

// UserRecord is a participant as the service returns it inside a chat.
type UserRecord struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsOnline bool   `json:"isOnline"`
}

// LastRecord is the denormalized last-message preview.
type LastRecord struct {
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
}

// ChatRecord is the service's chat row. The service stores one unread
// counter per participant slot; the engine picks the one matching the
// local user's slot.
type ChatRecord struct {
	ID             string      `json:"id"`
	User1ID        string      `json:"user1Id"`
	User2ID        string      `json:"user2Id"`
	User1          UserRecord  `json:"user1"`
	User2          UserRecord  `json:"user2"`
	UnreadCount1   int         `json:"unreadCount1"`
	UnreadCount2   int         `json:"unreadCount2"`
	LastMessage    *LastRecord `json:"lastMessage,omitempty"`
	CreatedAt      int64       `json:"createdAt"`
	LastActivityAt int64       `json:"lastActivityAt"`
}

// MessageRecord is the service's message row, same field set as the
// socket's new_message payload.
type MessageRecord struct {
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
}

// UploadResult is the response of POST /upload.
type UploadResult struct {
	OK           bool   `json:"ok"`
	URL          string `json:"url"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
}
