package unread

import (
	"testing"

	"github.com/stretchr/testify/require"

	"huddle/pkg/models"
)

func direct(id string, participants []string, lastSender string, lastTime int64) models.Conversation {
	return models.Conversation{
		ID: id, Kind: models.KindDirect, Participants: participants,
		LastSenderID: lastSender, LastMessageTime: lastTime,
	}
}

func TestComputeMessengerFlow(t *testing.T) {
	// A sends "hello" to B at t=100
	conv := direct("dm-1", []string{"a", "b"}, "a", 100)
	snap := Snapshot{Conversations: []models.Conversation{conv}, Watermarks: models.Watermarks{}}

	got := Compute("b", []string{CategoryMessenger}, snap)
	require.True(t, got[CategoryMessenger], "recipient should see unread")

	// sender never sees their own message as unread
	got = Compute("a", []string{CategoryMessenger}, snap)
	require.False(t, got[CategoryMessenger])

	// B marks read at t=105
	snap.Watermarks[models.MessengerKey("dm-1")] = 105
	got = Compute("b", []string{CategoryMessenger}, snap)
	require.False(t, got[CategoryMessenger])

	// A sends again at t=110
	snap.Conversations[0].LastMessageTime = 110
	got = Compute("b", []string{CategoryMessenger}, snap)
	require.True(t, got[CategoryMessenger])
	got = Compute("a", []string{CategoryMessenger}, snap)
	require.False(t, got[CategoryMessenger])
}

func TestComputeIgnoresForeignConversations(t *testing.T) {
	conv := direct("dm-1", []string{"a", "b"}, "a", 100)
	snap := Snapshot{Conversations: []models.Conversation{conv}, Watermarks: models.Watermarks{}}

	got := Compute("c", []string{CategoryMessenger}, snap)
	require.False(t, got[CategoryMessenger], "non-participant must not see unread")
}

func TestComputeNoLastSender(t *testing.T) {
	// freshly created conversation with no message yet
	conv := direct("dm-1", []string{"a", "b"}, "", 0)
	snap := Snapshot{Conversations: []models.Conversation{conv}, Watermarks: models.Watermarks{}}

	got := Compute("b", []string{CategoryMessenger}, snap)
	require.False(t, got[CategoryMessenger])
}

func TestComputeChannel(t *testing.T) {
	ch := models.Conversation{
		ID: "teamChat", Kind: models.KindChannel,
		LastSenderID: "a", LastMessageTime: 200,
	}
	snap := Snapshot{Conversations: []models.Conversation{ch}, Watermarks: models.Watermarks{}}

	got := Compute("b", []string{"teamChat", "strategy"}, snap)
	require.True(t, got["teamChat"])
	// no such channel in snapshot
	require.False(t, got["strategy"])

	// own message does not raise the flag
	got = Compute("a", []string{"teamChat"}, snap)
	require.False(t, got["teamChat"])

	// reading clears it
	snap.Watermarks["teamChat"] = 200
	got = Compute("b", []string{"teamChat"}, snap)
	require.False(t, got["teamChat"])
}

func TestComputeSupportIgnoresSystemSender(t *testing.T) {
	userMsg := models.Conversation{
		ID: "conv-s1", Kind: models.KindSupport,
		Participants: []string{"u1", models.AdminParticipantID},
		LastSenderID: "u1", LastMessageTime: 300,
	}
	sysMsg := models.Conversation{
		ID: "conv-s2", Kind: models.KindSupport,
		Participants: []string{"u2", models.AdminParticipantID},
		LastSenderID: models.SystemSenderID, LastMessageTime: 400,
	}

	snap := Snapshot{Conversations: []models.Conversation{sysMsg}, Watermarks: models.Watermarks{}}
	got := Compute(models.AdminParticipantID, []string{CategorySupport}, snap)
	require.False(t, got[CategorySupport], "automated notices must not raise support unread")

	snap.Conversations = append(snap.Conversations, userMsg)
	got = Compute(models.AdminParticipantID, []string{CategorySupport}, snap)
	require.True(t, got[CategorySupport])

	snap.Watermarks[models.SupportKey("conv-s1")] = 300
	got = Compute(models.AdminParticipantID, []string{CategorySupport}, snap)
	require.False(t, got[CategorySupport])
}
