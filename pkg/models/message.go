package models

// Attachment is the descriptor returned by the external uploader. The
// core only stores it; the binary itself lives elsewhere.
type Attachment struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// ReplySnapshot is a copy of the quoted message taken at send time, so
// the quote survives the original being edited or deleted.
type ReplySnapshot struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName,omitempty"`
}

// Message is one entry in a conversation's append-only log.
type Message struct {
	ID           string `json:"id"`
	Conversation string `json:"conversation"`
	SenderID     string `json:"senderId"`
	Text         string `json:"text"`
	// Timestamp is assigned by the store (ns), never by the client.
	Timestamp int64 `json:"timestamp"`
	// EditedAt is non-zero once the message has been edited.
	EditedAt    int64          `json:"editedAt,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	ReplyTo     *ReplySnapshot `json:"replyTo,omitempty"`
	// ReadBy only grows; the sender is a member from creation.
	ReadBy          []string `json:"readBy,omitempty"`
	IsSystemMessage bool     `json:"isSystemMessage,omitempty"`
}

// ReadByUser reports whether uid has observed the message.
func (m *Message) ReadByUser(uid string) bool {
	for _, r := range m.ReadBy {
		if r == uid {
			return true
		}
	}
	return false
}
