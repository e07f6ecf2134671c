package models

// Kind tags the conversation variant. Direct and support conversations
// have exactly two participants; channels are open team-wide rooms used
// by the fixed unread categories.
type Kind string

const (
	KindDirect  Kind = "direct"
	KindSupport Kind = "support"
	KindChannel Kind = "channel"
)

// SystemSenderID is the reserved sender for automated notices. System
// messages never count toward support-side unread.
const SystemSenderID = "system"

// AdminParticipantID is the synthetic second participant of a support
// conversation.
const AdminParticipantID = "admin"

// Participant is the display name + role snapshot captured when the
// conversation is created. It is not live-synced afterwards.
type Participant struct {
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
}

// Conversation is the summary document for one direct, support or
// channel conversation.
type Conversation struct {
	ID              string                 `json:"id"`
	Kind            Kind                   `json:"kind"`
	Participants    []string               `json:"participants"`
	ParticipantData map[string]Participant `json:"participantData,omitempty"`
	LastMessage     string                 `json:"lastMessage,omitempty"`
	LastMessageTime int64                  `json:"lastMessageTime,omitempty"`
	LastSenderID    string                 `json:"lastSenderId,omitempty"`
	HiddenFor       []string               `json:"hiddenFor,omitempty"`
	CreatedTS       int64                  `json:"created_ts,omitempty"`
	// SupportSequenceNumber is present only for support conversations.
	// Globally unique and monotonically increasing.
	SupportSequenceNumber int64 `json:"supportSequenceNumber,omitempty"`
}

// HasParticipant reports whether uid is a member of the conversation.
// Channels are open: every user participates.
func (c *Conversation) HasParticipant(uid string) bool {
	if c.Kind == KindChannel {
		return true
	}
	for _, p := range c.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

// HiddenForUser reports whether uid has soft-hidden the conversation.
func (c *Conversation) HiddenForUser(uid string) bool {
	for _, h := range c.HiddenFor {
		if h == uid {
			return true
		}
	}
	return false
}
