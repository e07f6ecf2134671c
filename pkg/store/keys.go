package store

import "fmt"

// Key layout. Message keys sort by server timestamp with an insertion
// sequence suffix so two messages stamped in the same nanosecond still
// order by arrival.
//
//	convmeta:<id>                      conversation summary document
//	conv:<id>:msg:<%020d ts>-<%06d n>  message document, log order
//	msgidx:<conv>:<msgID>              message id -> storage key
//	watermark:<user>                   per-user read-state record
//	counter:support                    support sequence counter
//	purge:conv:<id>                    tombstone for the sweeper
//
// Summaries live under their own prefix, disjoint from the message
// range, so listing them never touches a message key no matter how
// large the logs grow.

// ConvMetaKey returns the storage key for a conversation summary.
func ConvMetaKey(convID string) string {
	return "convmeta:" + convID
}

// MsgKey returns the storage key for a message appended at (ts, seq).
func MsgKey(convID string, ts int64, seq uint64) (string, error) {
	if convID == "" {
		return "", fmt.Errorf("empty conversation id")
	}
	return fmt.Sprintf("conv:%s:msg:%020d-%06d", convID, ts, seq), nil
}

// MsgPrefix returns the iteration prefix for a conversation's messages.
func MsgPrefix(convID string) string {
	return "conv:" + convID + ":msg:"
}

// MsgIndexKey returns the id-index key for a message.
func MsgIndexKey(convID, msgID string) string {
	return "msgidx:" + convID + ":" + msgID
}

// WatermarkKey returns the storage key for a user's read-state record.
func WatermarkKey(userID string) string {
	return "watermark:" + userID
}

// PurgeMarkKey returns the sweeper tombstone key for a conversation.
func PurgeMarkKey(convID string) string {
	return "purge:conv:" + convID
}

const supportCounterKey = "counter:support"
