// Package context assembles model prompts from conversation state and
// shrinks branch histories through compaction.
package context

import (
	"errors"
	"fmt"

	"github.com/tylxr59/prattle/pkg/chat"
	"github.com/tylxr59/prattle/pkg/llm/tokenizer"
	"github.com/tylxr59/prattle/pkg/logging"
	"github.com/tylxr59/prattle/pkg/types"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("context")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		debugLog.Warnf("Failed to initialize context logger, using stderr fallback: %v", err)
	}
}

// ErrContextOverflow indicates the assembled prompt exceeds the token
// budget. The caller is expected to compact the branch and retry.
var ErrContextOverflow = errors.New("context: assembled prompt exceeds token budget")

// MemorySource supplies the durable facts the assembler prepends to every
// prompt.
type MemorySource interface {
	RenderBlock() string
}

// Assembler builds the message sequence sent to the model for a branch:
// system prompt, then the active memory block, then the branch's effective
// history with compacted ranges replaced by their summaries. Assembly is
// side-effect free; it never mutates the conversation.
type Assembler struct {
	tokenizer    *tokenizer.Tokenizer
	memories     MemorySource
	systemPrompt string
	tokenBudget  int
}

// NewAssembler creates an assembler with the given system prompt and token
// budget. memories may be nil when no memory ledger is attached.
func NewAssembler(systemPrompt string, tokenBudget int, memories MemorySource) (*Assembler, error) {
	tok, err := tokenizer.New()
	if err != nil {
		return nil, fmt.Errorf("context: create tokenizer: %w", err)
	}
	return &Assembler{
		tokenizer:    tok,
		memories:     memories,
		systemPrompt: systemPrompt,
		tokenBudget:  tokenBudget,
	}, nil
}

// SetTokenBudget updates the budget, typically when the user switches to a
// model with a different context length.
func (a *Assembler) SetTokenBudget(budget int) {
	a.tokenBudget = budget
}

// TokenBudget returns the current budget.
func (a *Assembler) TokenBudget() int {
	return a.tokenBudget
}

// BuildPrompt assembles the prompt for the branch and returns it with its
// token count. When the count exceeds the budget the prompt is still
// returned alongside ErrContextOverflow so callers can decide whether to
// compact and retry or send anyway.
func (a *Assembler) BuildPrompt(conv *chat.Conversation, branchID string) ([]*types.Message, int, error) {
	history, err := conv.AssembledHistory(branchID)
	if err != nil {
		return nil, 0, err
	}

	prompt := make([]*types.Message, 0, len(history)+2)
	if a.systemPrompt != "" {
		prompt = append(prompt, types.NewSystemMessage(a.systemPrompt))
	}
	if a.memories != nil {
		if block := a.memories.RenderBlock(); block != "" {
			prompt = append(prompt, types.NewSystemMessage(block))
		}
	}
	prompt = append(prompt, history...)

	total := a.CountPrompt(prompt)
	if a.tokenBudget > 0 && total > a.tokenBudget {
		debugLog.Debugf("prompt for branch %s is %d tokens, budget %d", branchID, total, a.tokenBudget)
		return prompt, total, fmt.Errorf("%w: %d tokens, budget %d", ErrContextOverflow, total, a.tokenBudget)
	}
	return prompt, total, nil
}

// CountPrompt returns the token count of an assembled prompt, preferring
// stored per-message counts and tokenizing only messages that lack one.
func (a *Assembler) CountPrompt(prompt []*types.Message) int {
	total := 0
	for _, m := range prompt {
		if m.TokenCount > 0 {
			total += m.TokenCount
			continue
		}
		total += a.tokenizer.CountMessage(m)
	}
	return total
}

// CountText exposes raw text token counting for callers that stamp counts
// on messages before appending them.
func (a *Assembler) CountText(text string) int {
	return a.tokenizer.CountText(text)
}
