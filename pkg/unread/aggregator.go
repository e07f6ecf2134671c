// Package unread derives boolean unread flags from a snapshot of
// conversation summaries and one user's watermarks. It is a pure
// function invoked from change-notification handlers, so it must stay
// cheap: one comparison per conversation, no per-message scans.
package unread

import (
	"huddle/pkg/models"
)

// CategoryMessenger aggregates across all direct conversations.
const CategoryMessenger = "messenger"

// CategorySupport aggregates across all support conversations; it is an
// admin-side view and ignores automated system notices.
const CategorySupport = "support"

// Snapshot is the immutable input to one aggregation pass. The service
// builds it from the conversation store and read-state tracker at
// notification time.
type Snapshot struct {
	Conversations []models.Conversation
	Watermarks    models.Watermarks
}

// Compute returns an unread flag per requested category. Fixed channel
// categories compare the channel's latest message against the same-named
// watermark; messenger and support are true when any participating
// conversation has newer activity from the other party.
func Compute(userID string, categories []string, snap Snapshot) map[string]bool {
	out := make(map[string]bool, len(categories))
	for _, cat := range categories {
		switch cat {
		case CategoryMessenger:
			out[cat] = anyUnread(userID, models.KindDirect, snap, models.MessengerKey, "")
		case CategorySupport:
			out[cat] = anyUnread(userID, models.KindSupport, snap, models.SupportKey, models.SystemSenderID)
		default:
			out[cat] = channelUnread(userID, cat, snap)
		}
	}
	return out
}

func channelUnread(userID, name string, snap Snapshot) bool {
	for _, c := range snap.Conversations {
		if c.Kind != models.KindChannel || c.ID != name {
			continue
		}
		return c.LastSenderID != "" &&
			c.LastSenderID != userID &&
			c.LastMessageTime > snap.Watermarks[name]
	}
	return false
}

// anyUnread reports whether any conversation of the given kind that
// userID participates in carries a newer last message from someone
// else. ignoreSender suppresses automated notices for the support view.
func anyUnread(userID string, kind models.Kind, snap Snapshot, key func(string) string, ignoreSender string) bool {
	for _, c := range snap.Conversations {
		if c.Kind != kind || !c.HasParticipant(userID) {
			continue
		}
		if c.LastSenderID == "" || c.LastSenderID == userID {
			continue
		}
		if ignoreSender != "" && c.LastSenderID == ignoreSender {
			continue
		}
		if c.LastMessageTime > snap.Watermarks[key(c.ID)] {
			return true
		}
	}
	return false
}
