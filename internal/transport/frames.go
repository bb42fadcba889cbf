package transport

// MessageFrame is the outbound send frame. The expiry travels as a
// relative duration in seconds; the remote side computes its own absolute
// expiry rather than trusting the sender's clock.
type MessageFrame struct {
	Type        string `json:"type"`
	ChatID      string `json:"chatId"`
	SenderID    string `json:"senderId"`
	ReceiverID  string `json:"receiverId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
	Destruct    int    `json:"destructTimer"`
	FileName    string `json:"fileName,omitempty"`
	FileSize    int64  `json:"fileSize,omitempty"`
}

// TypingFrame is the outbound typing signal.
type TypingFrame struct {
	Type       string `json:"type"`
	ChatID     string `json:"chatId"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	IsTyping   bool   `json:"isTyping"`
}

// NewMessageFrame fills in the frame tag.
func NewMessageFrame(f MessageFrame) MessageFrame {
	f.Type = "message"
	return f
}

// NewTypingFrame fills in the frame tag.
func NewTypingFrame(f TypingFrame) TypingFrame {
	f.Type = "typing"
	return f
}
