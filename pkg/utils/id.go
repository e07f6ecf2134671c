package utils

import "github.com/google/uuid"

// GenMessageID returns a new message id.
func GenMessageID() string { return "msg-" + uuid.NewString() }

// GenConversationID returns a new conversation id for kinds that do not
// use a deterministic id (support conversations).
func GenConversationID() string { return "conv-" + uuid.NewString() }
