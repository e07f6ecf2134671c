// Package service is the orchestrator for the conversation core: it
// validates, rate-limits and moderates every mutation before it reaches
// storage, keeps conversation summaries in step with the message log,
// and fans change events out through the notification hub. Rate
// limiting and moderation run here, on the server side of the trust
// boundary, so callers cannot skip them.
package service

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"huddle/pkg/config"
	"huddle/pkg/conversations"
	"huddle/pkg/logger"
	"huddle/pkg/messagelog"
	"huddle/pkg/models"
	"huddle/pkg/moderation"
	"huddle/pkg/notify"
	"huddle/pkg/ratelimit"
	"huddle/pkg/readstate"
	"huddle/pkg/store"
	"huddle/pkg/unread"
	"huddle/pkg/utils"
	"huddle/pkg/validation"
)

// SendInput carries the caller-supplied parts of a message. Timestamps
// and ids are assigned server-side.
type SendInput struct {
	Text        string
	Attachments []models.Attachment
	ReplyToID   string
}

// Service composes the conversation core. All methods are safe for
// concurrent use.
type Service struct {
	msgs  *messagelog.Log
	convs *conversations.Store
	reads *readstate.Tracker
	hub   *notify.Hub
	gate  *moderation.Gate

	limiter       *ratelimit.Limiter
	sendPolicy    ratelimit.Policy
	editPolicy    ratelimit.Policy
	supportPolicy ratelimit.Policy

	historyWindow int
	snippetLen    int
	replyLen      int
	channels      []string
}

// New assembles a Service from the effective config. The store must be
// opened by the caller first.
func New(cfg *config.Config, hub *notify.Hub) *Service {
	validation.SetRules(validation.Rules{
		MaxTextBytes:      cfg.Conversations.MaxTextBytes.Int64(),
		MaxAttachments:    cfg.Conversations.MaxAttachments,
		MaxAttachmentSize: cfg.Conversations.MaxAttachmentSize.Int64(),
		AllowedMimeTypes:  cfg.Conversations.AllowedMimeTypes,
	})
	return &Service{
		msgs:          messagelog.New(),
		convs:         conversations.New(),
		reads:         readstate.New(),
		hub:           hub,
		gate:          moderation.New(cfg.Moderation.BlockTerms, cfg.Moderation.FlagTerms, cfg.Moderation.MaxLinks),
		limiter:       ratelimit.New(),
		sendPolicy:    ratelimit.Policy{MaxCount: cfg.Limits.Send.MaxCount, Window: cfg.Limits.Send.Window.Duration()},
		editPolicy:    ratelimit.Policy{MaxCount: cfg.Limits.Edit.MaxCount, Window: cfg.Limits.Edit.Window.Duration()},
		supportPolicy: ratelimit.Policy{MaxCount: cfg.Limits.Support.MaxCount, Window: cfg.Limits.Support.Window.Duration()},
		historyWindow: cfg.Conversations.HistoryWindow,
		snippetLen:    cfg.Conversations.SnippetLength,
		replyLen:      cfg.Conversations.ReplySnippet,
		channels:      append([]string(nil), cfg.Channels...),
	}
}

// Limiter exposes the rate limiter for the maintenance sweeper.
func (s *Service) Limiter() *ratelimit.Limiter { return s.limiter }

// Channels returns the configured fixed channel names.
func (s *Service) Channels() []string { return append([]string(nil), s.channels...) }

// EnsureChannels creates the fixed channel conversations if missing.
// Called once at startup.
func (s *Service) EnsureChannels() error {
	for _, name := range s.channels {
		if err := retryStore("ensure_channel", func() error {
			_, err := s.convs.EnsureChannel(name)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}

// checkLimit consults the fixed-window limiter for (subject, action).
func (s *Service) checkLimit(subject, action string, p ratelimit.Policy) error {
	d := s.limiter.Check(subject+":"+action, p)
	if d.Allowed {
		return nil
	}
	rateLimitedTotal.WithLabelValues(action).Inc()
	return &RateLimitedError{Action: action, RetryAfter: d.RetryAfter}
}

// moderate classifies text; blocked text never reaches storage, flagged
// text is persisted but handed to the audit stream for review.
func (s *Service) moderate(senderID, convID, text string) error {
	res := s.gate.Classify(text)
	switch res.Verdict {
	case moderation.Blocked:
		blockedTotal.Inc()
		logger.Info("message_blocked", zap.String("sender", senderID), zap.String("reason", res.Reason))
		return &BlockedError{Reason: res.Reason}
	case moderation.Flagged:
		flaggedTotal.Inc()
		if logger.Audit != nil {
			logger.Audit.Info("message_flagged",
				zap.String("sender", senderID),
				zap.String("conversation", convID),
				zap.String("reason", res.Reason))
		}
	}
	return nil
}

// snippet produces the conversation-list preview for a message.
func (s *Service) snippet(m models.Message) string {
	if m.Text == "" && len(m.Attachments) > 0 {
		return "[attachment]"
	}
	return truncate(m.Text, s.snippetLen)
}

func truncate(text string, max int) string {
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return strings.TrimRight(string(r[:max]), " ") + "…"
}

// replySnapshot copies the quoted message into the reply, so the quote
// survives the original being edited or deleted.
func (s *Service) replySnapshot(conv models.Conversation, replyToID string) (*models.ReplySnapshot, error) {
	target, err := s.msgs.Get(conv.ID, replyToID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &validation.Error{Field: "replyTo", Msg: "quoted message not found"}
		}
		return nil, &TransientStoreError{Op: "reply_lookup", Err: err}
	}
	name := target.SenderID
	if p, ok := conv.ParticipantData[target.SenderID]; ok && p.Username != "" {
		name = p.Username
	}
	return &models.ReplySnapshot{
		ID:         target.ID,
		Text:       truncate(target.Text, s.replyLen),
		SenderID:   target.SenderID,
		SenderName: name,
	}, nil
}

// deliver appends a message to an existing conversation, updates the
// summary (clearing hiddenFor) and publishes the change events. Gate
// checks are the caller's responsibility.
func (s *Service) deliver(conv models.Conversation, senderID string, in SendInput, system bool) (models.Message, models.Conversation, error) {
	m := models.Message{
		ID:              utils.GenMessageID(),
		Conversation:    conv.ID,
		SenderID:        senderID,
		Text:            in.Text,
		Attachments:     in.Attachments,
		IsSystemMessage: system,
	}
	if in.ReplyToID != "" {
		snap, err := s.replySnapshot(conv, in.ReplyToID)
		if err != nil {
			return models.Message{}, models.Conversation{}, err
		}
		m.ReplyTo = snap
	}

	var stored models.Message
	if err := retryStore("append", func() error {
		var err error
		stored, err = s.msgs.Append(m)
		return err
	}); err != nil {
		return models.Message{}, models.Conversation{}, err
	}

	var touched models.Conversation
	if err := retryStore("touch", func() error {
		var err error
		touched, err = s.convs.Touch(conv.ID, s.snippet(stored), senderID, stored.Timestamp)
		return err
	}); err != nil {
		return models.Message{}, models.Conversation{}, err
	}

	sendsTotal.WithLabelValues(string(touched.Kind)).Inc()
	s.publishMessage(notify.EventMessageAppended, touched, stored)
	return stored, touched, nil
}

// publishMessage emits the message event on the conversation topic and
// a summary event to every participant's user topic.
func (s *Service) publishMessage(typ notify.EventType, conv models.Conversation, m models.Message) {
	now := time.Now().UnixNano()
	s.hub.Publish(notify.ConversationTopic(conv.ID), notify.Event{
		Type: typ, Conversation: conv.ID, Message: &m, TS: now,
	})
	summary := conv
	for _, p := range conv.Participants {
		s.hub.Publish(notify.UserTopic(p), notify.Event{
			Type: notify.EventConversationChange, Conversation: conv.ID, Summary: &summary, TS: now,
		})
	}
	if conv.Kind == models.KindChannel {
		// channels have no participant list; their summary changes go
		// out on the broadcast topic so every connection sees them
		s.hub.Publish(notify.BroadcastTopic(), notify.Event{
			Type: notify.EventConversationChange, Conversation: conv.ID, Summary: &summary, TS: now,
		})
	}
}

// SendDirect delivers a message from sender to recipient, creating the
// conversation on first contact. meta is the participant display
// snapshot captured at creation time; it is ignored for an existing
// conversation.
func (s *Service) SendDirect(senderID, recipientID string, meta map[string]models.Participant, in SendInput) (models.Message, models.Conversation, error) {
	if err := s.checkLimit(senderID, "send", s.sendPolicy); err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	if err := validation.ValidateSend(in.Text, in.Attachments); err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	if err := s.moderate(senderID, conversations.DirectID(senderID, recipientID), in.Text); err != nil {
		return models.Message{}, models.Conversation{}, err
	}

	var conv models.Conversation
	var created bool
	if err := retryStore("find_or_create", func() error {
		var err error
		conv, created, err = s.convs.FindOrCreateDirect(senderID, recipientID, meta)
		return err
	}); err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	if created {
		logger.Info("conversation_created",
			zap.String("conversation", conv.ID),
			zap.String("kind", string(conv.Kind)))
	}
	return s.deliver(conv, senderID, in, false)
}

// SendChannel delivers a message into one of the fixed shared channels.
func (s *Service) SendChannel(senderID, channel string, in SendInput) (models.Message, models.Conversation, error) {
	if err := s.checkLimit(senderID, "send", s.sendPolicy); err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	if err := validation.ValidateSend(in.Text, in.Attachments); err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	if err := s.moderate(senderID, channel, in.Text); err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	conv, err := s.convs.Get(channel)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Message{}, models.Conversation{}, ErrNotFound
		}
		return models.Message{}, models.Conversation{}, &TransientStoreError{Op: "channel_lookup", Err: err}
	}
	if conv.Kind != models.KindChannel {
		return models.Message{}, models.Conversation{}, ErrNotFound
	}
	return s.deliver(conv, senderID, in, false)
}

// Reply delivers a message into an existing conversation the sender
// participates in (support replies, follow-ups in a direct thread).
func (s *Service) Reply(senderID, convID string, in SendInput) (models.Message, models.Conversation, error) {
	if err := s.checkLimit(senderID, "send", s.sendPolicy); err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	if err := validation.ValidateSend(in.Text, in.Attachments); err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	conv, err := s.requireParticipant(senderID, convID)
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	if err := s.moderate(senderID, convID, in.Text); err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	return s.deliver(conv, senderID, in, false)
}

// OpenSupport files a new support conversation: assigns the next
// sequence number, stores the opening message and posts an automated
// acknowledgement notice from the system sender.
func (s *Service) OpenSupport(userID string, meta map[string]models.Participant, in SendInput) (models.Message, models.Conversation, error) {
	if err := s.checkLimit(userID, "support", s.supportPolicy); err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	if err := validation.ValidateSend(in.Text, in.Attachments); err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	if err := s.moderate(userID, "support", in.Text); err != nil {
		return models.Message{}, models.Conversation{}, err
	}

	var conv models.Conversation
	if err := retryStore("create_support", func() error {
		var err error
		conv, err = s.convs.CreateSupport(userID, meta)
		return err
	}); err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	logger.Info("support_opened",
		zap.String("conversation", conv.ID),
		zap.String("user", userID),
		zap.Int64("sequence", conv.SupportSequenceNumber))

	msg, touched, err := s.deliver(conv, userID, in, false)
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	if _, _, nerr := s.PostSystemNotice(conv.ID, supportAckText(conv.SupportSequenceNumber)); nerr != nil {
		// the ticket itself is stored; the missing notice is not fatal
		logger.Warn("support_ack_failed", zap.String("conversation", conv.ID), zap.Error(nerr))
	}
	return msg, touched, err
}

func supportAckText(seq int64) string {
	num := "(pending)"
	if seq > 0 {
		num = "#" + strconv.FormatInt(seq, 10)
	}
	return "Your request has been received and assigned ticket number " +
		num + ". An admin will get back to you."
}

// PostSystemNotice appends an automated notice from the reserved system
// sender. System notices bypass rate limiting and moderation and never
// count toward the admin-side unread view.
func (s *Service) PostSystemNotice(convID, text string) (models.Message, models.Conversation, error) {
	if text == "" {
		return models.Message{}, models.Conversation{}, &validation.Error{Field: "text", Msg: "must not be empty"}
	}
	conv, err := s.convs.Get(convID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Message{}, models.Conversation{}, ErrNotFound
		}
		return models.Message{}, models.Conversation{}, &TransientStoreError{Op: "conversation_lookup", Err: err}
	}
	return s.deliver(conv, models.SystemSenderID, SendInput{Text: text}, true)
}

// Edit rewrites a message's text. Only the original sender may edit;
// readBy is deliberately left untouched, so an edit does not re-trigger
// unread for participants who already read the message.
func (s *Service) Edit(userID, convID, msgID, newText string) (models.Message, error) {
	if err := s.checkLimit(userID, "edit", s.editPolicy); err != nil {
		return models.Message{}, err
	}
	if err := validation.ValidateEdit(newText); err != nil {
		return models.Message{}, err
	}
	conv, err := s.requireParticipant(userID, convID)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.moderate(userID, convID, newText); err != nil {
		return models.Message{}, err
	}

	var edited models.Message
	if err := retryStore("edit", func() error {
		var eerr error
		edited, eerr = s.msgs.Edit(convID, msgID, newText, userID)
		return eerr
	}); err != nil {
		if errors.Is(err, messagelog.ErrForbidden) {
			logger.Warn("edit_denied", zap.String("user", userID), zap.String("message", msgID))
			return models.Message{}, ErrForbidden
		}
		if errors.Is(err, store.ErrNotFound) {
			return models.Message{}, ErrNotFound
		}
		return models.Message{}, err
	}
	s.publishMessage(notify.EventMessageEdited, conv, edited)
	return edited, nil
}

// Remove physically deletes a message. Only the sender may remove it.
func (s *Service) Remove(userID, convID, msgID string) error {
	conv, err := s.requireParticipant(userID, convID)
	if err != nil {
		return err
	}
	if err := retryStore("remove", func() error {
		return s.msgs.Remove(convID, msgID, userID)
	}); err != nil {
		if errors.Is(err, messagelog.ErrForbidden) {
			logger.Warn("remove_denied", zap.String("user", userID), zap.String("message", msgID))
			return ErrForbidden
		}
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.publishMessage(notify.EventMessageRemoved, conv, models.Message{ID: msgID, Conversation: convID})
	return nil
}

// Hide soft-hides a conversation for the acting participant only. The
// next message from anyone makes it visible again.
func (s *Service) Hide(userID, convID string) error {
	conv, err := s.requireParticipant(userID, convID)
	if err != nil {
		return err
	}
	if err := retryStore("hide", func() error {
		_, herr := s.convs.Hide(convID, userID)
		return herr
	}); err != nil {
		if errors.Is(err, conversations.ErrKindMismatch) {
			return ErrForbidden
		}
		return err
	}
	s.hub.Publish(notify.UserTopic(userID), notify.Event{
		Type: notify.EventConversationChange, Conversation: conv.ID, TS: time.Now().UnixNano(),
	})
	return nil
}

// MarkRead records that userID has observed the given messages: a
// single batched readBy update plus a merge-only watermark advance for
// the conversation's category key. Idempotent under overlapping calls.
func (s *Service) MarkRead(userID, convID string, msgIDs []string) error {
	conv, err := s.requireParticipant(userID, convID)
	if err != nil {
		return err
	}
	var updated int
	if err := retryStore("mark_read", func() error {
		var merr error
		updated, merr = s.msgs.MarkRead(convID, msgIDs, userID)
		return merr
	}); err != nil {
		return err
	}
	now := time.Now().UnixNano()
	if err := retryStore("watermark", func() error {
		return s.reads.SetWatermark(userID, watermarkKey(conv), now)
	}); err != nil {
		return err
	}
	ev := notify.Event{Type: notify.EventReadStateChange, Conversation: convID, UserID: userID, TS: now}
	s.hub.Publish(notify.UserTopic(userID), ev)
	s.hub.Publish(notify.ConversationTopic(convID), ev)
	if updated > 0 {
		logger.Debug("messages_read",
			zap.String("user", userID),
			zap.String("conversation", convID),
			zap.Int("count", updated))
	}
	return nil
}

// DeleteDirect removes a direct conversation and purges its message
// log. Support conversations are never deleted (audit trail) and fixed
// channels are permanent.
func (s *Service) DeleteDirect(userID, convID string) error {
	conv, err := s.requireParticipant(userID, convID)
	if err != nil {
		return err
	}
	if conv.Kind != models.KindDirect {
		return ErrForbidden
	}
	if err := retryStore("delete_direct", func() error {
		return s.convs.Delete(convID)
	}); err != nil {
		return err
	}
	now := time.Now().UnixNano()
	for _, p := range conv.Participants {
		s.hub.Publish(notify.UserTopic(p), notify.Event{
			Type: notify.EventConversationChange, Conversation: convID, TS: now,
		})
	}
	return nil
}

// ListConversations returns the caller's visible conversations, newest
// activity first.
func (s *Service) ListConversations(userID string, kinds ...models.Kind) ([]models.Conversation, error) {
	var out []models.Conversation
	if err := retryStore("list_conversations", func() error {
		var lerr error
		out, lerr = s.convs.ListFor(userID, kinds...)
		return lerr
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// History returns the most recent window of messages in ascending
// timestamp order. window <= 0 or above the configured bound falls back
// to the configured history window.
func (s *Service) History(userID, convID string, window int) ([]models.Message, error) {
	if _, err := s.requireParticipant(userID, convID); err != nil {
		return nil, err
	}
	if window <= 0 || window > s.historyWindow {
		window = s.historyWindow
	}
	var msgs []models.Message
	if err := retryStore("history", func() error {
		var lerr error
		msgs, lerr = s.msgs.Load(convID, window)
		return lerr
	}); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Unread computes the caller's per-category unread flags from a fresh
// snapshot of conversations and watermarks. The support category is
// evaluated only for the admin participant.
func (s *Service) Unread(userID string) (map[string]bool, error) {
	snap, err := s.snapshot(userID)
	if err != nil {
		return nil, err
	}
	categories := append(s.Channels(), unread.CategoryMessenger)
	if userID == models.AdminParticipantID {
		categories = append(categories, unread.CategorySupport)
	}
	return unread.Compute(userID, categories, snap), nil
}

// snapshot gathers the inputs of one unread evaluation.
func (s *Service) snapshot(userID string) (unread.Snapshot, error) {
	var convs []models.Conversation
	if err := retryStore("snapshot_conversations", func() error {
		var lerr error
		convs, lerr = s.convs.All()
		return lerr
	}); err != nil {
		return unread.Snapshot{}, err
	}
	var wm models.Watermarks
	if err := retryStore("snapshot_watermarks", func() error {
		var werr error
		wm, werr = s.reads.Watermarks(userID)
		return werr
	}); err != nil {
		return unread.Snapshot{}, err
	}
	return unread.Snapshot{Conversations: convs, Watermarks: wm}, nil
}

// requireParticipant loads the conversation and verifies membership.
func (s *Service) requireParticipant(userID, convID string) (models.Conversation, error) {
	conv, err := s.convs.Get(convID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Conversation{}, ErrNotFound
		}
		return models.Conversation{}, &TransientStoreError{Op: "conversation_lookup", Err: err}
	}
	if !conv.HasParticipant(userID) {
		return models.Conversation{}, ErrForbidden
	}
	return conv, nil
}

// watermarkKey maps a conversation to its read-watermark category key:
// fixed channels use their name, direct threads "messenger:<id>",
// support tickets "support:<id>".
func watermarkKey(c models.Conversation) string {
	switch c.Kind {
	case models.KindChannel:
		return c.ID
	case models.KindSupport:
		return models.SupportKey(c.ID)
	default:
		return models.MessengerKey(c.ID)
	}
}
