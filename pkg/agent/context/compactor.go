package context

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tylxr59/prattle/pkg/chat"
	"github.com/tylxr59/prattle/pkg/llm"
	"github.com/tylxr59/prattle/pkg/llm/tokenizer"
	"github.com/tylxr59/prattle/pkg/types"
)

// ErrNothingToCompact signals that the branch holds too little uncompacted
// material to form a chunk. It is a no-op signal, not a failure.
var ErrNothingToCompact = errors.New("context: nothing to compact")

// keepRecentMessages is how many of the branch's newest messages are always
// left raw so the model keeps the verbatim tail of the exchange.
const keepRecentMessages = 2

// Compactor folds the oldest uncompacted run of a branch's own messages
// into a single summary message. It only ever touches messages the branch
// owns, so a fork's inherited prefix is out of reach by construction.
type Compactor struct {
	tokenizer        *tokenizer.Tokenizer
	minChunkTokens   int
	minChunkMessages int
	eventChannel     chan<- *types.ChatEvent

	mu           sync.RWMutex // protects provider and summaryModel
	provider     llm.Provider
	summaryModel string
}

// NewCompactor creates a compactor. minChunkTokens and minChunkMessages
// bound the smallest run worth summarizing; a run below either bound is
// reported as ErrNothingToCompact.
func NewCompactor(provider llm.Provider, minChunkTokens, minChunkMessages int) (*Compactor, error) {
	tok, err := tokenizer.New()
	if err != nil {
		return nil, fmt.Errorf("context: create tokenizer: %w", err)
	}
	if minChunkMessages < 1 {
		minChunkMessages = 1
	}
	return &Compactor{
		tokenizer:        tok,
		provider:         provider,
		minChunkTokens:   minChunkTokens,
		minChunkMessages: minChunkMessages,
	}, nil
}

// SetEventChannel wires the channel compaction progress events are emitted
// on. Called once the engine creates its event channel.
func (c *Compactor) SetEventChannel(ch chan<- *types.ChatEvent) {
	c.eventChannel = ch
}

// SetProvider swaps the provider, typically on a model hot-switch.
func (c *Compactor) SetProvider(provider llm.Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.provider = provider
}

// SetSummaryModel sets a model override for summarization calls. Empty
// means summaries use the main provider's model. The provider must
// implement llm.ModelCloner for the override to take effect.
func (c *Compactor) SetSummaryModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summaryModel = model
}

// summaryProvider returns the provider summarization calls should use,
// applying the model override via llm.ModelCloner when configured.
func (c *Compactor) summaryProvider() llm.Provider {
	c.mu.RLock()
	provider := c.provider
	model := c.summaryModel
	c.mu.RUnlock()

	if model == "" {
		return provider
	}
	if cloner, ok := provider.(llm.ModelCloner); ok {
		return cloner.CloneWithModel(model)
	}
	return provider
}

// Compact summarizes the oldest uncompacted run of the branch's own
// messages and records the replacement. Once a range is folded it is never
// re-expanded; a second compaction folds the existing summaries together
// with newer messages into one wider record.
func (c *Compactor) Compact(ctx context.Context, conv *chat.Conversation, branchID string) (*chat.CompactionRecord, error) {
	branch, err := conv.Branch(branchID)
	if err != nil {
		return nil, err
	}

	own := branch.Messages()
	start := branch.CompactedLen()
	end := len(own) - keepRecentMessages
	if end <= start {
		return nil, fmt.Errorf("%w: branch %s has %d uncompacted messages", ErrNothingToCompact, branchID, len(own)-start)
	}

	run := own[start:end]
	if len(run) < c.minChunkMessages {
		return nil, fmt.Errorf("%w: run of %d messages, minimum %d", ErrNothingToCompact, len(run), c.minChunkMessages)
	}
	runTokens := c.tokenizer.CountMessages(run)
	if runTokens < c.minChunkTokens {
		return nil, fmt.Errorf("%w: run of %d tokens, minimum %d", ErrNothingToCompact, runTokens, c.minChunkTokens)
	}

	merged := len(branch.Records()) > 0
	toSummarize := run
	if merged {
		// Fold prior summaries in so the new summary covers index zero.
		toSummarize = append(branch.Summaries(), run...)
	}

	if c.eventChannel != nil {
		c.eventChannel <- types.NewCompactionStartEvent(branchID, runTokens, 0)
	}
	startTime := time.Now()

	summaryText, err := c.generateSummary(ctx, toSummarize)
	if err != nil {
		if c.eventChannel != nil {
			c.eventChannel <- types.NewCompactionErrorEvent(branchID, err)
		}
		return nil, err
	}

	summary := types.NewSummaryMessage(summaryText).
		WithTokenCount(c.tokenizer.CountText(summaryText))
	rec, err := conv.RecordCompaction(branchID, end, summary, merged)
	if err != nil {
		return nil, err
	}

	duration := time.Since(startTime)
	debugLog.Infof("compacted branch %s range [%d,%d) in %s, %d tokens down to %d",
		branchID, rec.Start, rec.End, duration, runTokens, summary.TokenCount)
	if c.eventChannel != nil {
		c.eventChannel <- types.NewCompactionDoneEvent(&types.CompactionInfo{
			BranchID:       branchID,
			TokensSaved:    runTokens - summary.TokenCount,
			MessagesFolded: len(run),
			Duration:       duration.String(),
		})
	}
	return rec, nil
}

func (c *Compactor) generateSummary(ctx context.Context, toSummarize []*types.Message) (string, error) {
	prompt := []*types.Message{
		types.NewSystemMessage(summarySystemPrompt),
		types.NewUserMessage(buildCompactionPrompt(toSummarize)),
	}
	response, err := c.summaryProvider().Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("context: generate summary: %w", err)
	}
	return response.Content, nil
}
