// Package memory maintains the durable fact ledger extracted from
// conversations and the extractor that feeds it.
package memory

import (
	"crypto/rand"
	"fmt"
	"time"
)

// Entry is a single durable fact. Entries are append-mostly: text is never
// edited in place, an updated fact supersedes the old entry instead. That
// preserves history and prevents lost updates when extraction runs
// concurrently from multiple branches of the same conversation.
type Entry struct {
	// ID is the stable unique identifier of the entry.
	ID string `yaml:"id"`

	// Text is the fact itself, phrased as a standalone statement.
	Text string `yaml:"text"`

	// SourceConversationID is the conversation the fact was extracted from.
	SourceConversationID string `yaml:"source_conversation_id,omitempty"`

	// CreatedAt is when the entry was appended.
	CreatedAt time.Time `yaml:"created_at"`

	// SupersededBy points at the entry that replaced this one. Nil while the
	// entry is active.
	SupersededBy *string `yaml:"superseded_by,omitempty"`
}

// Active reports whether the entry has not been superseded.
func (e *Entry) Active() bool {
	return e.SupersededBy == nil
}

// NewEntryID generates a new unique memory entry identifier.
func NewEntryID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// The OS crypto source failing is an unrecoverable application state.
		panic(fmt.Errorf("crypto/rand failed: %w", err))
	}
	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // variant bits
	return fmt.Sprintf("mem_%08x-%04x-%04x-%04x-%012x",
		b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
