// Package readstate tracks per-user read watermarks: one document per
// user mapping category keys to "read up to here" timestamps. Writes
// merge the supplied keys only and never move a watermark backwards.
package readstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"huddle/pkg/models"
	"huddle/pkg/store"
)

// Tracker serializes merges per user so two concurrent markRead calls
// cannot lose each other's keys.
type Tracker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a tracker over the opened store.
func New() *Tracker {
	return &Tracker{locks: make(map[string]*sync.Mutex)}
}

func (t *Tracker) lock(userID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		t.locks[userID] = m
	}
	return m
}

// Watermarks returns the user's full watermark record. A user who has
// never read anything gets an empty map.
func (t *Tracker) Watermarks(userID string) (models.Watermarks, error) {
	data, err := store.GetWatermarks(userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Watermarks{}, nil
	}
	if err != nil {
		return nil, err
	}
	var w models.Watermarks
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("corrupt watermark record: %w", err)
	}
	return w, nil
}

// SetWatermark merges a single key into the user's record. The merge
// only ever advances: a stale caller cannot move a watermark backwards.
func (t *Tracker) SetWatermark(userID, key string, ts int64) error {
	return t.Merge(userID, models.Watermarks{key: ts})
}

// Merge applies several keys at once under the per-user lock.
func (t *Tracker) Merge(userID string, patch models.Watermarks) error {
	if userID == "" {
		return fmt.Errorf("missing user id")
	}
	if len(patch) == 0 {
		return nil
	}
	mu := t.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	cur, err := t.Watermarks(userID)
	if err != nil {
		return err
	}
	changed := false
	for k, ts := range patch {
		if ts > cur[k] {
			cur[k] = ts
			changed = true
		}
	}
	if !changed {
		return nil
	}
	data, err := json.Marshal(cur)
	if err != nil {
		return fmt.Errorf("marshal watermark record: %w", err)
	}
	return store.SaveWatermarks(userID, data)
}
