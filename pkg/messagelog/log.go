// Package messagelog is the per-conversation append-only message log.
// Appends take a server-assigned timestamp; edits, deletions and read
// receipts rewrite documents in place so log order never changes.
package messagelog

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/store"
)

// ErrForbidden is returned when a caller who is not the original sender
// tries to edit or remove a message.
var ErrForbidden = errors.New("messagelog: not the sender")

// ErrNotFound is returned for unknown message ids.
var ErrNotFound = store.ErrNotFound

// Log serializes read-modify-write cycles per conversation so readBy
// stays a monotonic set under concurrent markRead calls.
type Log struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns an empty log facade over the opened store.
func New() *Log {
	return &Log{locks: make(map[string]*sync.Mutex)}
}

func (l *Log) lock(convID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[convID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[convID] = m
	}
	return m
}

// Append stamps and stores a new message. The store assigns the
// timestamp; readBy starts as {sender}.
func (l *Log) Append(m models.Message) (models.Message, error) {
	if m.Conversation == "" {
		return models.Message{}, fmt.Errorf("missing conversation id")
	}
	if m.ID == "" {
		return models.Message{}, fmt.Errorf("missing message id")
	}
	ts, seq := store.NextStamp()
	m.Timestamp = ts
	m.EditedAt = 0
	m.ReadBy = []string{m.SenderID}

	data, err := json.Marshal(m)
	if err != nil {
		return models.Message{}, fmt.Errorf("marshal message: %w", err)
	}
	if err := store.AppendMessage(m.Conversation, m.ID, ts, seq, data); err != nil {
		return models.Message{}, err
	}
	return m, nil
}

// Get returns the current document for a message id.
func (l *Log) Get(convID, msgID string) (models.Message, error) {
	data, err := store.GetMessage(convID, msgID)
	if err != nil {
		return models.Message{}, err
	}
	var m models.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return models.Message{}, fmt.Errorf("corrupt message document: %w", err)
	}
	return m, nil
}

// Edit replaces the text of a message. Only the original sender may
// edit; readBy is deliberately left untouched (an edit does not force a
// re-read) and editedAt records the rewrite.
func (l *Log) Edit(convID, msgID, newText, editorID string) (models.Message, error) {
	mu := l.lock(convID)
	mu.Lock()
	defer mu.Unlock()

	m, err := l.Get(convID, msgID)
	if err != nil {
		return models.Message{}, err
	}
	if m.SenderID != editorID {
		logger.Warn("edit_forbidden", zap.String("conv", convID), zap.String("msg", msgID), zap.String("editor", editorID))
		return models.Message{}, ErrForbidden
	}
	m.Text = newText
	now, _ := store.NextStamp()
	m.EditedAt = now

	data, err := json.Marshal(m)
	if err != nil {
		return models.Message{}, fmt.Errorf("marshal message: %w", err)
	}
	if err := store.UpdateMessage(convID, msgID, data); err != nil {
		return models.Message{}, err
	}
	return m, nil
}

// Remove physically deletes a message. Only the sender may remove.
func (l *Log) Remove(convID, msgID, requesterID string) error {
	mu := l.lock(convID)
	mu.Lock()
	defer mu.Unlock()

	m, err := l.Get(convID, msgID)
	if err != nil {
		return err
	}
	if m.SenderID != requesterID {
		logger.Warn("remove_forbidden", zap.String("conv", convID), zap.String("msg", msgID), zap.String("requester", requesterID))
		return ErrForbidden
	}
	return store.DeleteMessage(convID, msgID)
}

// MarkRead adds readerID to readBy for each listed message that does not
// already carry it, committing the rewrites as one batch. Idempotent:
// overlapping calls from rapid re-renders converge on the same set.
// Returns the number of messages actually updated.
func (l *Log) MarkRead(convID string, msgIDs []string, readerID string) (int, error) {
	mu := l.lock(convID)
	mu.Lock()
	defer mu.Unlock()

	docs := make(map[string][]byte)
	for _, id := range msgIDs {
		m, err := l.Get(convID, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue // deleted since the client rendered it
			}
			return 0, err
		}
		if m.ReadByUser(readerID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, readerID)
		data, err := json.Marshal(m)
		if err != nil {
			return 0, fmt.Errorf("marshal message: %w", err)
		}
		docs[id] = data
	}
	if len(docs) == 0 {
		return 0, nil
	}
	if err := store.UpdateMessagesBatch(convID, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Load returns the most recent window of messages in ascending
// timestamp order.
func (l *Log) Load(convID string, window int) ([]models.Message, error) {
	raw, err := store.ListMessages(convID, window)
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(raw))
	for _, v := range raw {
		var m models.Message
		if err := json.Unmarshal(v, &m); err != nil {
			logger.Error("corrupt_message_skipped", zap.String("conv", convID), zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
