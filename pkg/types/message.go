package types

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"      // RoleUser is a human turn.
	RoleAssistant Role = "assistant" // RoleAssistant is a model turn.
	RoleSystem    Role = "system"    // RoleSystem is an injected system instruction.
	RoleSummary   Role = "summary"   // RoleSummary is a synthetic message produced by compaction.
)

// ValidRole reports whether r is one of the permitted message roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleSummary:
		return true
	}
	return false
}

// Message is a single turn in a conversation branch. Messages are immutable
// once appended to a branch; compaction replaces ranges of them with a new
// RoleSummary message rather than editing them in place.
type Message struct {
	// Metadata holds optional additional information about the message.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// ID is the stable unique identifier of the message.
	ID string `json:"id"`

	// Role indicates who authored the message.
	Role Role `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`

	// BranchID is the id of the branch that owns this message.
	// It is assigned by the store on append.
	BranchID string `json:"branch_id,omitempty"`

	// TokenCount is the tokenizer-derived size of Content. Never negative.
	TokenCount int `json:"token_count"`

	// CreatedAt is the time the message was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a message with the given role and content.
// The id is a fresh UUID and CreatedAt is the current time.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) *Message {
	return NewMessage(RoleAssistant, content)
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) *Message {
	return NewMessage(RoleSystem, content)
}

// NewSummaryMessage creates a new compaction summary message.
func NewSummaryMessage(content string) *Message {
	return NewMessage(RoleSummary, content)
}

// WithTokenCount sets the token count and returns the message for chaining.
func (m *Message) WithTokenCount(n int) *Message {
	if n < 0 {
		n = 0
	}
	m.TokenCount = n
	return m
}

// WithMetadata adds metadata to the message and returns the message for chaining.
func (m *Message) WithMetadata(key string, value interface{}) *Message {
	if m.Metadata == nil {
		m.Metadata = make(map[string]interface{})
	}
	m.Metadata[key] = value
	return m
}

// IsSummary returns true if this message was produced by compaction.
func (m *Message) IsSummary() bool {
	return m.Role == RoleSummary
}
