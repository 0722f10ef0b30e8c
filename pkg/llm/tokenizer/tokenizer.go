// Package tokenizer wraps tiktoken for the token accounting used by the
// context budget and compaction triggers. Counts are approximations for
// models outside the OpenAI family, which is acceptable: budgets are applied
// with headroom, never as exact limits.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/tylxr59/prattle/pkg/types"
)

// defaultEncoding is a reasonable cross-model approximation.
const defaultEncoding = "cl100k_base"

// messageOverheadTokens approximates the per-message framing cost
// (role markers, separators) added by chat completion APIs.
const messageOverheadTokens = 4

// Tokenizer counts tokens for strings and messages.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// New creates a tokenizer with the default encoding.
func New() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load encoding %s: %w", defaultEncoding, err)
	}
	return &Tokenizer{encoding: enc}, nil
}

// CountText returns the token count of a plain string.
func (t *Tokenizer) CountText(text string) int {
	if text == "" {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// CountMessage returns the token count of a single message including
// per-message framing overhead.
func (t *Tokenizer) CountMessage(msg *types.Message) int {
	if msg == nil {
		return 0
	}
	return t.CountText(msg.Content) + messageOverheadTokens
}

// CountMessages returns the combined token count of a message sequence.
func (t *Tokenizer) CountMessages(messages []*types.Message) int {
	total := 0
	for _, msg := range messages {
		total += t.CountMessage(msg)
	}
	return total
}
