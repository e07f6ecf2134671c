package config

import "time"

// Defaults applied after file+env merging. Zero values in the effective
// config are replaced so downstream packages never see an unusable limit.
func applyDefaults(cfg *Config) {
	if cfg.Limits.Send.MaxCount == 0 {
		cfg.Limits.Send.MaxCount = 20
	}
	if cfg.Limits.Send.Window == 0 {
		cfg.Limits.Send.Window = Duration(time.Minute)
	}
	if cfg.Limits.Edit.MaxCount == 0 {
		cfg.Limits.Edit.MaxCount = 30
	}
	if cfg.Limits.Edit.Window == 0 {
		cfg.Limits.Edit.Window = Duration(time.Minute)
	}
	if cfg.Limits.Support.MaxCount == 0 {
		cfg.Limits.Support.MaxCount = 3
	}
	if cfg.Limits.Support.Window == 0 {
		cfg.Limits.Support.Window = Duration(time.Hour)
	}
	if cfg.Conversations.HistoryWindow == 0 {
		cfg.Conversations.HistoryWindow = 100
	}
	if cfg.Conversations.SnippetLength == 0 {
		cfg.Conversations.SnippetLength = 80
	}
	if cfg.Conversations.ReplySnippet == 0 {
		cfg.Conversations.ReplySnippet = 60
	}
	if cfg.Conversations.MaxTextBytes == 0 {
		cfg.Conversations.MaxTextBytes = 8 * 1024
	}
	if cfg.Conversations.MaxAttachments == 0 {
		cfg.Conversations.MaxAttachments = 5
	}
	if cfg.Conversations.MaxAttachmentSize == 0 {
		cfg.Conversations.MaxAttachmentSize = 16 * 1024 * 1024
	}
	if cfg.Moderation.MaxLinks == 0 {
		cfg.Moderation.MaxLinks = 5
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 64
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = []string{"teamChat", "strategy"}
	}
}
