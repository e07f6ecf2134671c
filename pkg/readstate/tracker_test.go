package readstate

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"huddle/pkg/models"
	"huddle/pkg/store"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "huddle-readstate-*")
	if err != nil {
		panic(err)
	}
	if err := store.Open(dir); err != nil {
		panic(err)
	}
	code := m.Run()
	_ = store.Close()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func TestWatermarksEmptyForNewUser(t *testing.T) {
	tr := New()
	w, err := tr.Watermarks("nobody")
	require.NoError(t, err)
	require.Empty(t, w)
}

func TestSetWatermarkMergesKeys(t *testing.T) {
	tr := New()
	require.NoError(t, tr.SetWatermark("alice", "teamChat", 100))
	require.NoError(t, tr.SetWatermark("alice", models.MessengerKey("conv-1"), 150))

	w, err := tr.Watermarks("alice")
	require.NoError(t, err)
	require.Equal(t, models.Watermarks{
		"teamChat":                     100,
		models.MessengerKey("conv-1"): 150,
	}, w)
}

func TestMergeOnlyAdvances(t *testing.T) {
	tr := New()
	require.NoError(t, tr.SetWatermark("bob", "teamChat", 200))
	// a stale client cannot move the watermark backwards
	require.NoError(t, tr.SetWatermark("bob", "teamChat", 120))

	w, err := tr.Watermarks("bob")
	require.NoError(t, err)
	require.Equal(t, int64(200), w["teamChat"])

	require.NoError(t, tr.SetWatermark("bob", "teamChat", 250))
	w, err = tr.Watermarks("bob")
	require.NoError(t, err)
	require.Equal(t, int64(250), w["teamChat"])
}

func TestMergeKeepsUntouchedKeys(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Merge("carol", models.Watermarks{"teamChat": 10, "strategy": 20}))
	require.NoError(t, tr.Merge("carol", models.Watermarks{"strategy": 30}))

	w, err := tr.Watermarks("carol")
	require.NoError(t, err)
	require.Equal(t, models.Watermarks{"teamChat": 10, "strategy": 30}, w)
}

func TestMergeValidation(t *testing.T) {
	tr := New()
	require.Error(t, tr.Merge("", models.Watermarks{"k": 1}))
	require.NoError(t, tr.Merge("dave", nil)) // empty patch is a no-op
}

func TestMergeConcurrentWriters(t *testing.T) {
	tr := New()
	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		key := models.MessengerKey(string(rune('a' + i)))
		go func(k string) {
			done <- tr.SetWatermark("erin", k, 500)
		}(key)
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-done)
	}
	w, err := tr.Watermarks("erin")
	require.NoError(t, err)
	require.Len(t, w, 10)
	for _, ts := range w {
		require.Equal(t, int64(500), ts)
	}
}
