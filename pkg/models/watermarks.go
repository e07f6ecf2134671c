package models

// Watermarks is the single per-user read-state record: category key to
// "read up to here" timestamp (ns). Writes merge the supplied keys only;
// the record is never overwritten wholesale.
//
// Category keys are either a fixed channel name ("teamChat"), or a
// conversation-scoped key ("messenger:<id>", "support:<id>").
type Watermarks map[string]int64

// MessengerKey returns the watermark key for a direct conversation.
func MessengerKey(conversationID string) string { return "messenger:" + conversationID }

// SupportKey returns the watermark key for a support conversation.
func SupportKey(conversationID string) string { return "support:" + conversationID }
