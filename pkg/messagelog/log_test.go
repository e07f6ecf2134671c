package messagelog

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"huddle/pkg/models"
	"huddle/pkg/store"
	"huddle/pkg/utils"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "huddle-messagelog-*")
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

func append3(t *testing.T, l *Log, convID string) []models.Message {
	t.Helper()
	var out []models.Message
	for _, text := range []string{"first", "second", "third"} {
		m, err := l.Append(models.Message{
			ID:           utils.GenMessageID(),
			Conversation: convID,
			SenderID:     "alice",
			Text:         text,
		})
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func TestAppendAndLoadOrder(t *testing.T) {
	l := New()
	sent := append3(t, l, "conv-order")

	got, err := l.Load("conv-order", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, m := range got {
		require.Equal(t, sent[i].ID, m.ID)
		require.Equal(t, sent[i].Text, m.Text)
		if i > 0 {
			require.GreaterOrEqual(t, m.Timestamp, got[i-1].Timestamp)
		}
	}
	// sender is the only initial reader
	require.Equal(t, []string{"alice"}, got[0].ReadBy)
	require.Zero(t, got[0].EditedAt)
}

func TestLoadWindowKeepsNewest(t *testing.T) {
	l := New()
	sent := append3(t, l, "conv-window")

	got, err := l.Load("conv-window", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// the oldest message falls out of the window; order stays ascending
	require.Equal(t, sent[1].ID, got[0].ID)
	require.Equal(t, sent[2].ID, got[1].ID)
}

func TestAppendRequiresIDs(t *testing.T) {
	l := New()
	_, err := l.Append(models.Message{ID: "m1", SenderID: "alice", Text: "x"})
	require.Error(t, err)
	_, err = l.Append(models.Message{Conversation: "c1", SenderID: "alice", Text: "x"})
	require.Error(t, err)
}

func TestEditKeepsReadByAndStampsEditedAt(t *testing.T) {
	l := New()
	m, err := l.Append(models.Message{
		ID: utils.GenMessageID(), Conversation: "conv-edit", SenderID: "alice", Text: "typo",
	})
	require.NoError(t, err)

	n, err := l.MarkRead("conv-edit", []string{m.ID}, "bob")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	edited, err := l.Edit("conv-edit", m.ID, "fixed", "alice")
	require.NoError(t, err)
	require.Equal(t, "fixed", edited.Text)
	require.Greater(t, edited.EditedAt, int64(0))
	// an edit does not force a re-read
	require.ElementsMatch(t, []string{"alice", "bob"}, edited.ReadBy)
	require.Equal(t, m.Timestamp, edited.Timestamp)
}

func TestEditOnlyBySender(t *testing.T) {
	l := New()
	m, err := l.Append(models.Message{
		ID: utils.GenMessageID(), Conversation: "conv-editdeny", SenderID: "alice", Text: "mine",
	})
	require.NoError(t, err)

	_, err = l.Edit("conv-editdeny", m.ID, "hijack", "bob")
	require.ErrorIs(t, err, ErrForbidden)

	got, err := l.Get("conv-editdeny", m.ID)
	require.NoError(t, err)
	require.Equal(t, "mine", got.Text)
}

func TestRemove(t *testing.T) {
	l := New()
	m, err := l.Append(models.Message{
		ID: utils.GenMessageID(), Conversation: "conv-remove", SenderID: "alice", Text: "oops",
	})
	require.NoError(t, err)

	require.ErrorIs(t, l.Remove("conv-remove", m.ID, "bob"), ErrForbidden)
	require.NoError(t, l.Remove("conv-remove", m.ID, "alice"))

	_, err = l.Get("conv-remove", m.ID)
	require.ErrorIs(t, err, ErrNotFound)

	got, err := l.Load("conv-remove", 10)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestMarkReadIdempotentAndBatched(t *testing.T) {
	l := New()
	sent := append3(t, l, "conv-read")
	ids := []string{sent[0].ID, sent[1].ID, sent[2].ID}

	n, err := l.MarkRead("conv-read", ids, "bob")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	// repeat from a rapid re-render is a no-op
	n, err = l.MarkRead("conv-read", ids, "bob")
	require.NoError(t, err)
	require.Zero(t, n)

	// ids deleted since the client rendered them are skipped
	n, err = l.MarkRead("conv-read", []string{sent[0].ID, "gone"}, "carol")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := l.Get("conv-read", sent[0].ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alice", "bob", "carol"}, got.ReadBy)
}

func TestMarkReadConcurrentReaders(t *testing.T) {
	l := New()
	sent := append3(t, l, "conv-race")
	ids := []string{sent[0].ID, sent[1].ID, sent[2].ID}

	readers := []string{"bob", "carol", "dave", "erin"}
	done := make(chan error, len(readers))
	for _, r := range readers {
		go func(reader string) {
			_, err := l.MarkRead("conv-race", ids, reader)
			done <- err
		}(r)
	}
	for range readers {
		require.NoError(t, <-done)
	}

	for _, id := range ids {
		got, err := l.Get("conv-race", id)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"alice", "bob", "carol", "dave", "erin"}, got.ReadBy)
	}
}
