package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// RuntimeConfig holds derived runtime key sets that other packages may
// query while the server is running (populated during startup after
// merging env+file).
type RuntimeConfig struct {
	BackendKeys map[string]struct{}
	SigningKeys map[string]struct{}
}

// Config is the main configuration struct.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Security      SecurityConfig      `yaml:"security"`
	Limits        LimitsConfig        `yaml:"limits"`
	Moderation    ModerationConfig    `yaml:"moderation"`
	Conversations ConversationsConfig `yaml:"conversations"`
	Channels      []string            `yaml:"channels"`
	Events        EventsConfig        `yaml:"events"`
	Sweeper       SweeperConfig       `yaml:"sweeper"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds http and tls settings.
type ServerConfig struct {
	Address string    `yaml:"address"`
	Port    int       `yaml:"port"`
	TLS     TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// StorageConfig holds pebble and audit sink paths.
type StorageConfig struct {
	DBPath   string `yaml:"db_path"`
	AuditDir string `yaml:"audit_dir"`
}

// SecurityConfig holds the HTTP-surface security settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
	APIKeys     struct {
		Backend  []string `yaml:"backend"`
		Frontend []string `yaml:"frontend"`
		Admin    []string `yaml:"admin"`
	} `yaml:"api_keys"`
}

// LimitPolicy is one fixed-window action budget.
type LimitPolicy struct {
	MaxCount int      `yaml:"max_count"`
	Window   Duration `yaml:"window"`
}

// LimitsConfig holds per-action send budgets enforced inside the
// conversation service.
type LimitsConfig struct {
	Send    LimitPolicy `yaml:"send"`
	Edit    LimitPolicy `yaml:"edit"`
	Support LimitPolicy `yaml:"support"`
}

// ModerationConfig holds the deterministic text classifier inputs.
type ModerationConfig struct {
	BlockTerms []string `yaml:"block_terms"`
	FlagTerms  []string `yaml:"flag_terms"`
	MaxLinks   int      `yaml:"max_links"`
}

// ConversationsConfig holds message shape limits and retrieval windows.
type ConversationsConfig struct {
	HistoryWindow     int       `yaml:"history_window"`
	SnippetLength     int       `yaml:"snippet_length"`
	ReplySnippet      int       `yaml:"reply_snippet"`
	MaxTextBytes      SizeBytes `yaml:"max_text_bytes"`
	MaxAttachments    int       `yaml:"max_attachments"`
	MaxAttachmentSize SizeBytes `yaml:"max_attachment_size"`
	AllowedMimeTypes  []string  `yaml:"allowed_mime_types"`
}

// EventsConfig tunes the in-process notification hub.
type EventsConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// SweeperConfig holds configuration for the scheduled maintenance runner.
type SweeperConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly
// strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration is a wrapper around time.Duration that supports YAML parsing
// from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
