// Package conversations owns the conversation summary documents:
// creation, last-message bookkeeping, soft-hide and listing.
package conversations

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/store"
	"huddle/pkg/utils"
)

// ErrNotFound is returned for unknown conversation ids.
var ErrNotFound = store.ErrNotFound

// ErrKindMismatch is returned when an operation is attempted on the
// wrong conversation kind (e.g. delete-all on a support conversation).
var ErrKindMismatch = errors.New("conversations: wrong kind")

// DirectID derives the deterministic id for a direct conversation from
// its participant pair. The sorted-pair hash doubles as the idempotency
// key: two racing findOrCreate calls compute the same id and converge on
// one document.
func DirectID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	sum := sha256.Sum256([]byte(a + "\x00" + b))
	return "dm-" + hex.EncodeToString(sum[:])[:20]
}

// Store guards conversation documents with per-conversation locks so
// concurrent touch/hide/create cycles never interleave read-modify-write.
type Store struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a store facade over the opened pebble store.
func New() *Store {
	return &Store{locks: make(map[string]*sync.Mutex)}
}

func (s *Store) lock(convID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[convID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[convID] = m
	}
	return m
}

// Get returns one conversation document.
func (s *Store) Get(convID string) (models.Conversation, error) {
	data, err := store.GetConversation(convID)
	if err != nil {
		return models.Conversation{}, err
	}
	var c models.Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return models.Conversation{}, fmt.Errorf("corrupt conversation document: %w", err)
	}
	return c, nil
}

func (s *Store) save(c models.Conversation) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	return store.SaveConversation(c.ID, data)
}

// FindOrCreateDirect returns the direct conversation between a and b,
// creating it on first use. The second return reports whether it was
// created. Idempotent under concurrency: the id is derived from the
// pair, and the per-id lock makes check-then-create single-writer.
func (s *Store) FindOrCreateDirect(a, b string, meta map[string]models.Participant) (models.Conversation, bool, error) {
	if a == "" || b == "" || a == b {
		return models.Conversation{}, false, fmt.Errorf("direct conversation needs two distinct participants")
	}
	id := DirectID(a, b)
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	if c, err := s.Get(id); err == nil {
		return c, false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return models.Conversation{}, false, err
	}

	ts, _ := store.NextStamp()
	c := models.Conversation{
		ID:              id,
		Kind:            models.KindDirect,
		Participants:    []string{a, b},
		ParticipantData: meta,
		CreatedTS:       ts,
	}
	if err := s.save(c); err != nil {
		return models.Conversation{}, false, err
	}
	logger.Info("conversation_created", zap.String("conv", id), zap.String("kind", "direct"))
	return c, true, nil
}

// CreateSupport files a new support conversation between userID and the
// synthetic admin participant, numbering it from the global counter.
// When the counter path fails it falls back to counting existing
// tickets; that path is not safe under concurrent filing and is logged
// as degraded.
func (s *Store) CreateSupport(userID string, meta map[string]models.Participant) (models.Conversation, error) {
	if userID == "" {
		return models.Conversation{}, fmt.Errorf("missing user id")
	}
	seqNo, err := store.NextSupportSequence()
	if err != nil {
		logger.Warn("support_sequence_fallback", zap.Error(err))
		seqNo, err = store.CountSupportFallback()
		if err != nil {
			return models.Conversation{}, err
		}
	}

	ts, _ := store.NextStamp()
	c := models.Conversation{
		ID:                    utils.GenConversationID(),
		Kind:                  models.KindSupport,
		Participants:          []string{userID, models.AdminParticipantID},
		ParticipantData:       meta,
		CreatedTS:             ts,
		SupportSequenceNumber: seqNo,
	}
	if err := s.save(c); err != nil {
		return models.Conversation{}, err
	}
	logger.Info("conversation_created", zap.String("conv", c.ID), zap.String("kind", "support"), zap.Int64("sequence", seqNo))
	return c, nil
}

// EnsureChannel creates the fixed channel conversation for a category
// name if it does not exist yet. Channels are keyed by their name.
func (s *Store) EnsureChannel(name string) (models.Conversation, error) {
	if name == "" {
		return models.Conversation{}, fmt.Errorf("missing channel name")
	}
	mu := s.lock(name)
	mu.Lock()
	defer mu.Unlock()

	if c, err := s.Get(name); err == nil {
		return c, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return models.Conversation{}, err
	}
	ts, _ := store.NextStamp()
	c := models.Conversation{ID: name, Kind: models.KindChannel, CreatedTS: ts}
	if err := s.save(c); err != nil {
		return models.Conversation{}, err
	}
	logger.Info("conversation_created", zap.String("conv", name), zap.String("kind", "channel"))
	return c, nil
}

// Touch records the latest message on the summary and clears hiddenFor
// entirely: a new message makes the conversation reappear for everyone.
func (s *Store) Touch(convID, snippet, senderID string, ts int64) (models.Conversation, error) {
	mu := s.lock(convID)
	mu.Lock()
	defer mu.Unlock()

	c, err := s.Get(convID)
	if err != nil {
		return models.Conversation{}, err
	}
	c.LastMessage = snippet
	c.LastMessageTime = ts
	c.LastSenderID = senderID
	c.HiddenFor = nil
	if err := s.save(c); err != nil {
		return models.Conversation{}, err
	}
	return c, nil
}

// Hide adds userID to hiddenFor. Only participants can hide, which
// keeps hiddenFor a subset of participants.
func (s *Store) Hide(convID, userID string) (models.Conversation, error) {
	mu := s.lock(convID)
	mu.Lock()
	defer mu.Unlock()

	c, err := s.Get(convID)
	if err != nil {
		return models.Conversation{}, err
	}
	if c.Kind == models.KindChannel {
		return models.Conversation{}, ErrKindMismatch
	}
	if !c.HasParticipant(userID) {
		return models.Conversation{}, fmt.Errorf("%s is not a participant of %s", userID, convID)
	}
	if !c.HiddenForUser(userID) {
		c.HiddenFor = append(c.HiddenFor, userID)
		if err := s.save(c); err != nil {
			return models.Conversation{}, err
		}
	}
	return c, nil
}

// ListFor returns the conversations of the given kinds that userID
// participates in and has not hidden, newest activity first.
func (s *Store) ListFor(userID string, kinds ...models.Kind) ([]models.Conversation, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	want := map[models.Kind]bool{}
	for _, k := range kinds {
		want[k] = true
	}
	var out []models.Conversation
	for _, c := range all {
		if len(want) > 0 && !want[c.Kind] {
			continue
		}
		if c.Kind == models.KindChannel {
			continue // channels are addressed by name, not listed per user
		}
		if !c.HasParticipant(userID) || c.HiddenForUser(userID) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageTime > out[j].LastMessageTime
	})
	return out, nil
}

// All returns every conversation summary; used by the unread snapshot.
func (s *Store) All() ([]models.Conversation, error) {
	vals, err := store.ListConversations()
	if err != nil {
		return nil, err
	}
	out := make([]models.Conversation, 0, len(vals))
	for _, v := range vals {
		var c models.Conversation
		if err := json.Unmarshal(v, &c); err != nil {
			logger.Error("corrupt_conversation_skipped", zap.Error(err))
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Delete removes a direct conversation and purges its messages. Support
// conversations are never physically deleted (audit trail) and refuse
// this operation.
func (s *Store) Delete(convID string) error {
	mu := s.lock(convID)
	mu.Lock()
	defer mu.Unlock()

	c, err := s.Get(convID)
	if err != nil {
		return err
	}
	if c.Kind != models.KindDirect {
		return ErrKindMismatch
	}
	// mark first so a crash between the two deletes leaves a sweepable trace
	if err := store.MarkForPurge(convID); err != nil {
		return err
	}
	if err := store.DeleteConversation(convID); err != nil {
		return err
	}
	if err := store.PurgeMessages(convID); err != nil {
		return err
	}
	if err := store.ClearPurgeMark(convID); err != nil {
		logger.Warn("purge_mark_clear_failed", zap.String("conv", convID), zap.Error(err))
	}
	logger.Info("conversation_deleted", zap.String("conv", convID))
	return nil
}
