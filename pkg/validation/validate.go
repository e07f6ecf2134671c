// Package validation rejects malformed message input before any write.
package validation

import (
	"fmt"
	"strings"
	"sync"

	"huddle/pkg/models"
)

// Rules holds the message shape limits built from config at startup.
type Rules struct {
	MaxTextBytes      int64
	MaxAttachments    int
	MaxAttachmentSize int64
	AllowedMimeTypes  []string
}

var (
	rulesMu sync.RWMutex
	rules   Rules
)

// SetRules installs the process-wide validation rules.
func SetRules(r Rules) {
	rulesMu.Lock()
	defer rulesMu.Unlock()
	rules = r
}

func current() Rules {
	rulesMu.RLock()
	defer rulesMu.RUnlock()
	return rules
}

// Error marks input the caller can fix; the HTTP layer maps it to 400.
type Error struct {
	Field string
	Msg   string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// ValidateSend checks the text and attachments of an outgoing message.
// A message may be attachment-only, but never completely empty.
func ValidateSend(text string, attachments []models.Attachment) error {
	r := current()
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return &Error{Field: "text", Msg: "message is empty"}
	}
	if r.MaxTextBytes > 0 && int64(len(text)) > r.MaxTextBytes {
		return &Error{Field: "text", Msg: fmt.Sprintf("exceeds %d bytes", r.MaxTextBytes)}
	}
	if r.MaxAttachments > 0 && len(attachments) > r.MaxAttachments {
		return &Error{Field: "attachments", Msg: fmt.Sprintf("more than %d attachments", r.MaxAttachments)}
	}
	for i, a := range attachments {
		if a.URL == "" {
			return &Error{Field: fmt.Sprintf("attachments[%d].url", i), Msg: "missing url"}
		}
		if r.MaxAttachmentSize > 0 && a.Size > r.MaxAttachmentSize {
			return &Error{Field: fmt.Sprintf("attachments[%d].size", i), Msg: "attachment too large"}
		}
		if len(r.AllowedMimeTypes) > 0 && !mimeAllowed(a.MimeType, r.AllowedMimeTypes) {
			return &Error{Field: fmt.Sprintf("attachments[%d].mimeType", i), Msg: "unsupported mime type"}
		}
	}
	return nil
}

// ValidateEdit checks replacement text for an existing message.
func ValidateEdit(text string) error {
	r := current()
	if strings.TrimSpace(text) == "" {
		return &Error{Field: "text", Msg: "message is empty"}
	}
	if r.MaxTextBytes > 0 && int64(len(text)) > r.MaxTextBytes {
		return &Error{Field: "text", Msg: fmt.Sprintf("exceeds %d bytes", r.MaxTextBytes)}
	}
	return nil
}

// mimeAllowed accepts exact entries and type wildcards ("image/*").
func mimeAllowed(mt string, allowed []string) bool {
	mt = strings.ToLower(strings.TrimSpace(mt))
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == mt || a == "*/*" {
			return true
		}
		if strings.HasSuffix(a, "/*") && strings.HasPrefix(mt, strings.TrimSuffix(a, "*")) {
			return true
		}
	}
	return false
}
