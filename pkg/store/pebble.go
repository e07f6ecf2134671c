// Package store is the pebble-backed document store for conversations,
// messages and read-state records. Keys are laid out in keys.go; every
// document is a JSON blob owned by the calling package.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"huddle/pkg/logger"

	"github.com/cockroachdb/pebble"
)

var db *pebble.DB
var dbPath string

// seq reduces key collisions when multiple messages share the same
// nanosecond timestamp: ties break by insertion sequence.
var seq uint64

// counterMu serializes support sequence increments. Pebble has no
// transactions; the single-writer lock is the atomic path.
var counterMu sync.Mutex

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("store: not found")

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage across packages.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", zap.String("path", path))
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", zap.String("path", path), zap.Error(err))
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", zap.String("path", path))
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

// NextStamp returns a server-assigned timestamp (ns) and insertion
// sequence for a new message. The pair is unique per process.
func NextStamp() (int64, uint64) {
	return time.Now().UTC().UnixNano(), atomic.AddUint64(&seq, 1)
}

func notOpen() error {
	return fmt.Errorf("pebble not opened; call store.Open first")
}

func mapErr(err error) error {
	if errors.Is(err, pebble.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// AppendMessage writes the message document at its log position and
// records the id index so later edits find the same key.
func AppendMessage(convID, msgID string, ts int64, n uint64, data []byte) error {
	if db == nil {
		return notOpen()
	}
	key, err := MsgKey(convID, ts, n)
	if err != nil {
		return err
	}
	wb := db.NewBatch()
	_ = wb.Set([]byte(key), data, nil)
	_ = wb.Set([]byte(MsgIndexKey(convID, msgID)), []byte(key), nil)
	if err := wb.Commit(pebble.Sync); err != nil {
		logger.Error("append_message_failed", zap.String("conv", convID), zap.String("key", key), zap.Error(err))
		return err
	}
	recordOp("append")
	logger.Debug("message_appended", zap.String("conv", convID), zap.String("key", key), zap.String("msg_id", msgID))
	return nil
}

// GetMessage returns the stored document for a message id.
func GetMessage(convID, msgID string) ([]byte, error) {
	if db == nil {
		return nil, notOpen()
	}
	loc, closer, err := db.Get([]byte(MsgIndexKey(convID, msgID)))
	if err != nil {
		return nil, mapErr(err)
	}
	key := append([]byte(nil), loc...)
	_ = closer.Close()
	v, closer2, err := db.Get(key)
	if err != nil {
		return nil, mapErr(err)
	}
	out := append([]byte(nil), v...)
	_ = closer2.Close()
	return out, nil
}

// UpdateMessage rewrites the message document in place, preserving its
// log position so ordering is undisturbed by edits and read receipts.
func UpdateMessage(convID, msgID string, data []byte) error {
	if db == nil {
		return notOpen()
	}
	loc, closer, err := db.Get([]byte(MsgIndexKey(convID, msgID)))
	if err != nil {
		return mapErr(err)
	}
	key := append([]byte(nil), loc...)
	_ = closer.Close()
	if err := db.Set(key, data, pebble.Sync); err != nil {
		logger.Error("update_message_failed", zap.String("conv", convID), zap.String("msg_id", msgID), zap.Error(err))
		return err
	}
	recordOp("update")
	return nil
}

// UpdateMessagesBatch rewrites several message documents of one
// conversation in a single pebble batch. Used by the read-receipt path
// so overlapping markRead calls commit atomically.
func UpdateMessagesBatch(convID string, docs map[string][]byte) error {
	if db == nil {
		return notOpen()
	}
	if len(docs) == 0 {
		return nil
	}
	wb := db.NewBatch()
	for msgID, data := range docs {
		loc, closer, err := db.Get([]byte(MsgIndexKey(convID, msgID)))
		if err != nil {
			_ = wb.Close()
			return mapErr(err)
		}
		key := append([]byte(nil), loc...)
		_ = closer.Close()
		_ = wb.Set(key, data, nil)
	}
	if err := wb.Commit(pebble.Sync); err != nil {
		logger.Error("update_messages_batch_failed", zap.String("conv", convID), zap.Int("count", len(docs)), zap.Error(err))
		return err
	}
	recordOp("batch_update")
	return nil
}

// DeleteMessage removes the document and its id index outright.
func DeleteMessage(convID, msgID string) error {
	if db == nil {
		return notOpen()
	}
	loc, closer, err := db.Get([]byte(MsgIndexKey(convID, msgID)))
	if err != nil {
		return mapErr(err)
	}
	key := append([]byte(nil), loc...)
	_ = closer.Close()
	wb := db.NewBatch()
	_ = wb.Delete(key, nil)
	_ = wb.Delete([]byte(MsgIndexKey(convID, msgID)), nil)
	if err := wb.Commit(pebble.Sync); err != nil {
		logger.Error("delete_message_failed", zap.String("conv", convID), zap.String("msg_id", msgID), zap.Error(err))
		return err
	}
	recordOp("delete")
	return nil
}

// ListMessages returns the most recent `limit` message documents for a
// conversation in ascending log order. A limit <= 0 is rejected:
// unbounded history retrieval is a cost bug, not a feature.
func ListMessages(convID string, limit int) ([][]byte, error) {
	if db == nil {
		return nil, notOpen()
	}
	if limit <= 0 {
		return nil, fmt.Errorf("message window must be positive")
	}
	prefix := []byte(MsgPrefix(convID))
	upper := append(append([]byte(nil), prefix...), 0xff)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	// walk backwards so the window is the newest messages
	var out [][]byte
	for ok := iter.Last(); ok && len(out) < limit; ok = iter.Prev() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		out = append(out, append([]byte(nil), iter.Value()...))
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	// reverse into ascending order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// PurgeMessages deletes every message and index entry of a conversation.
// Used by the direct-conversation delete-all operation.
func PurgeMessages(convID string) error {
	if db == nil {
		return notOpen()
	}
	wb := db.NewBatch()
	for _, pfx := range []string{MsgPrefix(convID), "msgidx:" + convID + ":"} {
		prefix := []byte(pfx)
		upper := append(append([]byte(nil), prefix...), 0xff)
		_ = wb.DeleteRange(prefix, upper, nil)
	}
	if err := wb.Commit(pebble.Sync); err != nil {
		logger.Error("purge_messages_failed", zap.String("conv", convID), zap.Error(err))
		return err
	}
	recordOp("purge")
	logger.Info("messages_purged", zap.String("conv", convID))
	return nil
}

// SaveConversation stores the conversation summary document.
func SaveConversation(convID string, data []byte) error {
	if db == nil {
		return notOpen()
	}
	if err := db.Set([]byte(ConvMetaKey(convID)), data, pebble.Sync); err != nil {
		logger.Error("save_conversation_failed", zap.String("conv", convID), zap.Error(err))
		return err
	}
	recordOp("conv_save")
	return nil
}

// GetConversation returns the stored conversation summary.
func GetConversation(convID string) ([]byte, error) {
	if db == nil {
		return nil, notOpen()
	}
	v, closer, err := db.Get([]byte(ConvMetaKey(convID)))
	if err != nil {
		return nil, mapErr(err)
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, nil
}

// DeleteConversation removes the summary document only; messages are
// purged separately.
func DeleteConversation(convID string) error {
	if db == nil {
		return notOpen()
	}
	if err := db.Delete([]byte(ConvMetaKey(convID)), pebble.Sync); err != nil {
		logger.Error("delete_conversation_failed", zap.String("conv", convID), zap.Error(err))
		return err
	}
	recordOp("conv_delete")
	return nil
}

// ListConversations returns all conversation summary documents. The
// summary prefix is disjoint from the message range, so the scan cost
// tracks the number of conversations, not the stored history.
func ListConversations() ([][]byte, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("convmeta:")
	upper := append(append([]byte(nil), prefix...), 0xff)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		out = append(out, append([]byte(nil), iter.Value()...))
	}
	return out, iter.Error()
}

// GetWatermarks returns the raw read-state record for a user, or
// ErrNotFound when the user has never read anything.
func GetWatermarks(userID string) ([]byte, error) {
	if db == nil {
		return nil, notOpen()
	}
	v, closer, err := db.Get([]byte(WatermarkKey(userID)))
	if err != nil {
		return nil, mapErr(err)
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, nil
}

// SaveWatermarks stores the merged read-state record for a user. The
// merge itself happens in the readstate package under its per-user lock.
func SaveWatermarks(userID string, data []byte) error {
	if db == nil {
		return notOpen()
	}
	if err := db.Set([]byte(WatermarkKey(userID)), data, pebble.Sync); err != nil {
		logger.Error("save_watermarks_failed", zap.String("user", userID), zap.Error(err))
		return err
	}
	recordOp("watermark")
	return nil
}

// NextSupportSequence increments and returns the global support ticket
// counter. The counterMu lock makes read-increment-write atomic within
// the process, which is the only writer of this key.
func NextSupportSequence() (int64, error) {
	if db == nil {
		return 0, notOpen()
	}
	counterMu.Lock()
	defer counterMu.Unlock()

	var cur int64
	v, closer, err := db.Get([]byte(supportCounterKey))
	switch {
	case err == nil:
		if perr := json.Unmarshal(v, &cur); perr != nil {
			_ = closer.Close()
			return 0, fmt.Errorf("corrupt support counter: %w", perr)
		}
		_ = closer.Close()
	case errors.Is(err, pebble.ErrNotFound):
		cur = 0
	default:
		return 0, err
	}

	next := cur + 1
	nb, _ := json.Marshal(next)
	if err := db.Set([]byte(supportCounterKey), nb, pebble.Sync); err != nil {
		return 0, err
	}
	return next, nil
}

// CountSupportFallback counts existing support conversations. It is the
// documented fallback when the counter path fails; it is not race-safe
// under concurrent creation and callers must log its use.
func CountSupportFallback() (int64, error) {
	vals, err := ListConversations()
	if err != nil {
		return 0, err
	}
	var n int64
	for _, v := range vals {
		var probe struct {
			Kind string `json:"kind"`
		}
		if json.Unmarshal(v, &probe) == nil && probe.Kind == "support" {
			n++
		}
	}
	return n + 1, nil
}

// MarkForPurge records a sweeper tombstone for a conversation whose
// messages should be re-swept (covers a crash between meta delete and
// message purge).
func MarkForPurge(convID string) error {
	if db == nil {
		return notOpen()
	}
	return db.Set([]byte(PurgeMarkKey(convID)), []byte(fmt.Sprintf("%d", time.Now().UTC().UnixNano())), pebble.Sync)
}

// ClearPurgeMark removes a sweeper tombstone.
func ClearPurgeMark(convID string) error {
	if db == nil {
		return notOpen()
	}
	return db.Delete([]byte(PurgeMarkKey(convID)), pebble.Sync)
}

// ListPurgeMarks returns conversation ids awaiting a message sweep.
func ListPurgeMarks() ([]string, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("purge:conv:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		out = append(out, strings.TrimPrefix(string(iter.Key()), "purge:conv:"))
	}
	return out, iter.Error()
}
