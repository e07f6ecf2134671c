package service

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"huddle/pkg/config"
	"huddle/pkg/models"
	"huddle/pkg/notify"
	"huddle/pkg/store"
	"huddle/pkg/unread"
	"huddle/pkg/validation"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "huddle-service-*")
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

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Limits.Send = config.LimitPolicy{MaxCount: 100, Window: config.Duration(time.Minute)}
	cfg.Limits.Edit = config.LimitPolicy{MaxCount: 100, Window: config.Duration(time.Minute)}
	cfg.Limits.Support = config.LimitPolicy{MaxCount: 100, Window: config.Duration(time.Hour)}
	cfg.Moderation.BlockTerms = []string{"badword"}
	cfg.Moderation.FlagTerms = []string{"sketchy"}
	cfg.Moderation.MaxLinks = 5
	cfg.Conversations.HistoryWindow = 50
	cfg.Conversations.SnippetLength = 20
	cfg.Conversations.ReplySnippet = 10
	cfg.Conversations.MaxTextBytes = 8 * 1024
	cfg.Conversations.MaxAttachments = 3
	cfg.Conversations.MaxAttachmentSize = 1024 * 1024
	cfg.Conversations.AllowedMimeTypes = []string{"image/*"}
	cfg.Channels = []string{"teamChat", "strategy"}
	return cfg
}

func newTestService(t *testing.T, mod func(*config.Config)) *Service {
	t.Helper()
	cfg := testConfig()
	if mod != nil {
		mod(cfg)
	}
	svc := New(cfg, notify.NewHub(16))
	require.NoError(t, svc.EnsureChannels())
	return svc
}

func recvEvent(t *testing.T, ch <-chan notify.Event) notify.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return notify.Event{}
	}
}

func TestSendDirectCreatesConversation(t *testing.T) {
	svc := newTestService(t, nil)
	meta := map[string]models.Participant{
		"sd-alice": {Username: "Alice"},
		"sd-bob":   {Username: "Bob"},
	}

	msg, conv, err := svc.SendDirect("sd-alice", "sd-bob", meta, SendInput{Text: "hello bob"})
	require.NoError(t, err)
	require.Equal(t, models.KindDirect, conv.Kind)
	require.Equal(t, "hello bob", msg.Text)
	require.Equal(t, "sd-alice", msg.SenderID)
	require.Equal(t, []string{"sd-alice"}, msg.ReadBy)
	require.Equal(t, "hello bob", conv.LastMessage)
	require.Equal(t, "sd-alice", conv.LastSenderID)
	require.Equal(t, msg.Timestamp, conv.LastMessageTime)

	// second send reuses the same conversation
	_, conv2, err := svc.SendDirect("sd-bob", "sd-alice", nil, SendInput{Text: "hi"})
	require.NoError(t, err)
	require.Equal(t, conv.ID, conv2.ID)

	list, err := svc.ListConversations("sd-alice", models.KindDirect)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "hi", list[0].LastMessage)
}

func TestSendDirectSnippetTruncation(t *testing.T) {
	svc := newTestService(t, nil)
	long := "this text is clearly longer than twenty runes"
	_, conv, err := svc.SendDirect("sn-a", "sn-b", nil, SendInput{Text: long})
	require.NoError(t, err)
	require.NotEqual(t, long, conv.LastMessage)
	require.LessOrEqual(t, len([]rune(conv.LastMessage)), 21)
	require.Contains(t, conv.LastMessage, "…")

	_, conv, err = svc.SendDirect("sn-a", "sn-b", nil, SendInput{
		Attachments: []models.Attachment{{URL: "https://x/img.png", MimeType: "image/png", Size: 10}},
	})
	require.NoError(t, err)
	require.Equal(t, "[attachment]", conv.LastMessage)
}

func TestSendRateLimited(t *testing.T) {
	svc := newTestService(t, func(cfg *config.Config) {
		cfg.Limits.Send = config.LimitPolicy{MaxCount: 1, Window: config.Duration(5 * time.Second)}
	})
	_, _, err := svc.SendDirect("rl-a", "rl-b", nil, SendInput{Text: "one"})
	require.NoError(t, err)

	_, _, err = svc.SendDirect("rl-a", "rl-b", nil, SendInput{Text: "two"})
	var rle *RateLimitedError
	require.ErrorAs(t, err, &rle)
	require.Equal(t, "send", rle.Action)
	require.Greater(t, rle.RetryAfter, time.Duration(0))
	require.LessOrEqual(t, rle.RetryAfter, 5*time.Second)

	// the other party has their own budget
	_, _, err = svc.SendDirect("rl-b", "rl-a", nil, SendInput{Text: "fine"})
	require.NoError(t, err)
}

func TestSendBlockedNeverStored(t *testing.T) {
	svc := newTestService(t, nil)
	_, _, err := svc.SendDirect("bk-a", "bk-b", nil, SendInput{Text: "you badword you"})
	var be *BlockedError
	require.ErrorAs(t, err, &be)
	require.Equal(t, "prohibited term", be.Reason)

	// the gate fires before the conversation is even created
	list, err := svc.ListConversations("bk-a")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestSendFlaggedIsDelivered(t *testing.T) {
	svc := newTestService(t, nil)
	msg, conv, err := svc.SendDirect("fl-a", "fl-b", nil, SendInput{Text: "kind of sketchy deal"})
	require.NoError(t, err)

	got, err := svc.History("fl-b", conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, msg.ID, got[0].ID)
}

func TestSendValidation(t *testing.T) {
	svc := newTestService(t, nil)
	_, _, err := svc.SendDirect("vl-a", "vl-b", nil, SendInput{Text: "   "})
	var ve *validation.Error
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "text", ve.Field)

	_, _, err = svc.SendDirect("vl-a", "vl-b", nil, SendInput{
		Attachments: []models.Attachment{{URL: "https://x/a.bin", MimeType: "application/zip", Size: 10}},
	})
	require.ErrorAs(t, err, &ve)
}

func TestSendChannel(t *testing.T) {
	svc := newTestService(t, nil)
	msg, conv, err := svc.SendChannel("ch-a", "teamChat", SendInput{Text: "standup in 5"})
	require.NoError(t, err)
	require.Equal(t, models.KindChannel, conv.Kind)
	require.Equal(t, "teamChat", conv.ID)

	// channels are readable by everyone
	got, err := svc.History("ch-someone-else", "teamChat", 10)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	require.Equal(t, msg.ID, got[len(got)-1].ID)

	_, _, err = svc.SendChannel("ch-a", "no-such-channel", SendInput{Text: "x"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReplyQuoteSurvivesDeletion(t *testing.T) {
	svc := newTestService(t, nil)
	orig, conv, err := svc.SendDirect("rq-a", "rq-b", map[string]models.Participant{
		"rq-a": {Username: "Ann"},
	}, SendInput{Text: "original statement here"})
	require.NoError(t, err)

	reply, _, err := svc.Reply("rq-b", conv.ID, SendInput{Text: "quoting you", ReplyToID: orig.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	require.Equal(t, orig.ID, reply.ReplyTo.ID)
	require.Equal(t, "rq-a", reply.ReplyTo.SenderID)
	require.Equal(t, "Ann", reply.ReplyTo.SenderName)
	require.LessOrEqual(t, len([]rune(reply.ReplyTo.Text)), 11)

	// deleting the original leaves the snapshot intact
	require.NoError(t, svc.Remove("rq-a", conv.ID, orig.ID))
	got, err := svc.History("rq-b", conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].ReplyTo)
	require.Equal(t, "original s…", got[0].ReplyTo.Text)

	// quoting a missing message is a validation error
	_, _, err = svc.Reply("rq-a", conv.ID, SendInput{Text: "x", ReplyToID: "gone"})
	var ve *validation.Error
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "replyTo", ve.Field)
}

func TestOpenSupportAssignsSequenceAndAck(t *testing.T) {
	svc := newTestService(t, nil)
	msg, conv, err := svc.OpenSupport("sup-user", map[string]models.Participant{
		"sup-user": {Username: "Sam"},
	}, SendInput{Text: "my key stopped working"})
	require.NoError(t, err)
	require.Equal(t, models.KindSupport, conv.Kind)
	require.Greater(t, conv.SupportSequenceNumber, int64(0))
	require.ElementsMatch(t, []string{"sup-user", models.AdminParticipantID}, conv.Participants)

	got, err := svc.History("sup-user", conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, msg.ID, got[0].ID)
	ack := got[1]
	require.True(t, ack.IsSystemMessage)
	require.Equal(t, models.SystemSenderID, ack.SenderID)
	require.Contains(t, ack.Text, "ticket number")
	require.Contains(t, ack.Text, "#")

	// the admin participant sees every ticket
	list, err := svc.ListConversations(models.AdminParticipantID, models.KindSupport)
	require.NoError(t, err)
	found := false
	for _, c := range list {
		if c.ID == conv.ID {
			found = true
		}
	}
	require.True(t, found)
}

func TestEditKeepsReadStateQuiet(t *testing.T) {
	svc := newTestService(t, nil)
	msg, conv, err := svc.SendDirect("ed-a", "ed-b", nil, SendInput{Text: "draft wording"})
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead("ed-b", conv.ID, []string{msg.ID}))
	got, err := svc.Unread("ed-b")
	require.NoError(t, err)
	require.False(t, got[unread.CategoryMessenger])

	edited, err := svc.Edit("ed-a", conv.ID, msg.ID, "final wording")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ed-a", "ed-b"}, edited.ReadBy)

	// the edit does not re-trigger unread for the reader
	got, err = svc.Unread("ed-b")
	require.NoError(t, err)
	require.False(t, got[unread.CategoryMessenger])
}

func TestEditDenied(t *testing.T) {
	svc := newTestService(t, nil)
	msg, conv, err := svc.SendDirect("edd-a", "edd-b", nil, SendInput{Text: "mine"})
	require.NoError(t, err)

	_, err = svc.Edit("edd-b", conv.ID, msg.ID, "not yours")
	require.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Edit("edd-stranger", conv.ID, msg.ID, "x")
	require.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Edit("edd-a", conv.ID, "missing", "x")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHideAndReappearOnSend(t *testing.T) {
	svc := newTestService(t, nil)
	_, conv, err := svc.SendDirect("hd-a", "hd-b", nil, SendInput{Text: "hello"})
	require.NoError(t, err)

	require.NoError(t, svc.Hide("hd-a", conv.ID))
	list, err := svc.ListConversations("hd-a", models.KindDirect)
	require.NoError(t, err)
	require.Empty(t, list)

	// a new message from the peer clears the hide
	_, _, err = svc.SendDirect("hd-b", "hd-a", nil, SendInput{Text: "you there?"})
	require.NoError(t, err)
	list, err = svc.ListConversations("hd-a", models.KindDirect)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestMarkReadAndUnreadFlow(t *testing.T) {
	svc := newTestService(t, nil)
	msg, conv, err := svc.SendDirect("ur-a", "ur-b", nil, SendInput{Text: "ping"})
	require.NoError(t, err)

	got, err := svc.Unread("ur-b")
	require.NoError(t, err)
	require.True(t, got[unread.CategoryMessenger])
	// the sender's own message is never unread for them
	got, err = svc.Unread("ur-a")
	require.NoError(t, err)
	require.False(t, got[unread.CategoryMessenger])

	require.NoError(t, svc.MarkRead("ur-b", conv.ID, []string{msg.ID}))
	got, err = svc.Unread("ur-b")
	require.NoError(t, err)
	require.False(t, got[unread.CategoryMessenger])

	stored, err := svc.History("ur-b", conv.ID, 10)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ur-a", "ur-b"}, stored[0].ReadBy)
}

func TestSupportUnreadIsAdminOnly(t *testing.T) {
	svc := newTestService(t, nil)
	_, conv, err := svc.OpenSupport("sua-user", nil, SendInput{Text: "help please"})
	require.NoError(t, err)

	// non-admin callers never get a support category
	got, err := svc.Unread("sua-user")
	require.NoError(t, err)
	_, ok := got[unread.CategorySupport]
	require.False(t, ok)

	// the automated ack is the latest message and does not count
	got, err = svc.Unread(models.AdminParticipantID)
	require.NoError(t, err)
	require.False(t, got[unread.CategorySupport])

	// a follow-up from the user does
	_, _, err = svc.Reply("sua-user", conv.ID, SendInput{Text: "still broken"})
	require.NoError(t, err)
	got, err = svc.Unread(models.AdminParticipantID)
	require.NoError(t, err)
	require.True(t, got[unread.CategorySupport])
}

func TestChannelUnread(t *testing.T) {
	svc := newTestService(t, nil)
	msg, _, err := svc.SendChannel("cu-poster", "strategy", SendInput{Text: "plan update"})
	require.NoError(t, err)

	got, err := svc.Unread("cu-reader")
	require.NoError(t, err)
	require.True(t, got["strategy"])
	got, err = svc.Unread("cu-poster")
	require.NoError(t, err)
	require.False(t, got["strategy"])

	require.NoError(t, svc.MarkRead("cu-reader", "strategy", []string{msg.ID}))
	got, err = svc.Unread("cu-reader")
	require.NoError(t, err)
	require.False(t, got["strategy"])
}

func TestDeleteDirectRules(t *testing.T) {
	svc := newTestService(t, nil)
	_, conv, err := svc.SendDirect("dd-a", "dd-b", nil, SendInput{Text: "bye"})
	require.NoError(t, err)

	require.ErrorIs(t, svc.DeleteDirect("dd-stranger", conv.ID), ErrForbidden)
	require.NoError(t, svc.DeleteDirect("dd-a", conv.ID))
	_, err = svc.History("dd-a", conv.ID, 10)
	require.ErrorIs(t, err, ErrNotFound)

	// support tickets refuse deletion
	_, sup, err := svc.OpenSupport("dd-a", nil, SendInput{Text: "issue"})
	require.NoError(t, err)
	require.ErrorIs(t, svc.DeleteDirect("dd-a", sup.ID), ErrForbidden)
}

func TestHistoryWindowClamp(t *testing.T) {
	svc := newTestService(t, func(cfg *config.Config) {
		cfg.Conversations.HistoryWindow = 2
	})
	for _, text := range []string{"one", "two", "three"} {
		_, _, err := svc.SendDirect("hw-a", "hw-b", nil, SendInput{Text: text})
		require.NoError(t, err)
	}
	_, conv, err := svc.SendDirect("hw-a", "hw-b", nil, SendInput{Text: "four"})
	require.NoError(t, err)

	// oversized and zero windows both clamp to the configured bound
	for _, window := range []int{0, 1000} {
		got, err := svc.History("hw-a", conv.ID, window)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, "three", got[0].Text)
		require.Equal(t, "four", got[1].Text)
	}
}

func TestPostSystemNoticeBypassesGates(t *testing.T) {
	svc := newTestService(t, nil)
	_, conv, err := svc.OpenSupport("pn-user", nil, SendInput{Text: "need a hand"})
	require.NoError(t, err)

	// notices skip moderation and rate limiting
	msg, _, err := svc.PostSystemNotice(conv.ID, "contains badword but is ours")
	require.NoError(t, err)
	require.True(t, msg.IsSystemMessage)
	require.Equal(t, models.SystemSenderID, msg.SenderID)

	_, _, err = svc.PostSystemNotice(conv.ID, "")
	var ve *validation.Error
	require.ErrorAs(t, err, &ve)
	_, _, err = svc.PostSystemNotice("missing-conv", "x")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRequireParticipant(t *testing.T) {
	svc := newTestService(t, nil)
	_, conv, err := svc.SendDirect("rp-a", "rp-b", nil, SendInput{Text: "private"})
	require.NoError(t, err)

	_, err = svc.History("rp-stranger", conv.ID, 10)
	require.ErrorIs(t, err, ErrForbidden)
	require.ErrorIs(t, svc.MarkRead("rp-stranger", conv.ID, nil), ErrForbidden)
	require.ErrorIs(t, svc.Hide("rp-stranger", conv.ID), ErrForbidden)
	_, err = svc.History("rp-a", "no-such-conv", 10)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSendPublishesEvents(t *testing.T) {
	hub := notify.NewHub(16)
	svc := New(testConfig(), hub)
	require.NoError(t, svc.EnsureChannels())

	userSub := hub.Subscribe(notify.UserTopic("ev-b"))
	defer userSub.Close()

	msg, conv, err := svc.SendDirect("ev-a", "ev-b", nil, SendInput{Text: "knock"})
	require.NoError(t, err)

	ev := recvEvent(t, userSub.C)
	require.Equal(t, notify.EventConversationChange, ev.Type)
	require.Equal(t, conv.ID, ev.Conversation)
	require.NotNil(t, ev.Summary)
	require.Equal(t, "knock", ev.Summary.LastMessage)

	convSub := hub.Subscribe(notify.ConversationTopic(conv.ID))
	defer convSub.Close()
	require.NoError(t, svc.MarkRead("ev-b", conv.ID, []string{msg.ID}))
	ev = recvEvent(t, convSub.C)
	require.Equal(t, notify.EventReadStateChange, ev.Type)
	require.Equal(t, "ev-b", ev.UserID)
}

func TestChannelSendReachesBroadcastTopic(t *testing.T) {
	hub := notify.NewHub(16)
	svc := New(testConfig(), hub)
	require.NoError(t, svc.EnsureChannels())

	// an observer who never posted to the channel still sees activity
	sub := hub.Subscribe(notify.BroadcastTopic())
	defer sub.Close()

	_, _, err := svc.SendChannel("bc-poster", "teamChat", SendInput{Text: "heads up"})
	require.NoError(t, err)

	ev := recvEvent(t, sub.C)
	require.Equal(t, notify.EventConversationChange, ev.Type)
	require.Equal(t, "teamChat", ev.Conversation)
	require.NotNil(t, ev.Summary)
	require.Equal(t, "bc-poster", ev.Summary.LastSenderID)

	got, err := svc.Unread("bc-reader")
	require.NoError(t, err)
	require.True(t, got["teamChat"])
}
