package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	agentcontext "github.com/tylxr59/prattle/pkg/agent/context"
	"github.com/tylxr59/prattle/pkg/chat"
	"github.com/tylxr59/prattle/pkg/types"
)

// processUserInput runs one full turn: append the user message, assemble
// the prompt, stream the completion, and commit the assistant reply. The
// assistant message is committed only when the stream finishes cleanly; a
// cancelled or failed stream leaves the branch exactly as it was.
func (e *Engine) processUserInput(ctx context.Context, input *types.Input) {
	conv := e.Conversation()
	if conv == nil {
		e.emitEvent(types.NewErrorEvent(errors.New("agent: no active conversation")))
		e.emitEvent(types.NewTurnEndEvent(""))
		return
	}

	branchID := input.BranchID
	if branchID == "" {
		branchID = conv.ActiveBranchID()
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.cancelMu.Lock()
	e.cancelStream = cancel
	e.cancelMu.Unlock()
	defer func() {
		e.cancelMu.Lock()
		e.cancelStream = nil
		e.cancelMu.Unlock()
	}()

	e.emitEvent(types.NewUpdateBusyEvent(true))
	defer e.emitEvent(types.NewUpdateBusyEvent(false))
	defer e.emitEvent(types.NewTurnEndEvent(branchID))

	userMsg := types.NewUserMessage(input.Content).
		WithTokenCount(e.tokenizer.CountText(input.Content))
	if _, err := conv.AppendMessage(branchID, userMsg); err != nil {
		e.emitEvent(types.NewErrorEvent(err))
		return
	}

	prompt, promptTokens, err := e.assemble(turnCtx, conv, branchID)
	if err != nil {
		e.emitEvent(types.NewErrorEvent(err))
		return
	}

	assistantMsg, usage, err := e.stream(turnCtx, branchID, prompt)
	if err != nil {
		if turnCtx.Err() != nil {
			// Cancelled: nothing is committed, the partial text is dropped.
			engineLog.Infof("turn on branch %s cancelled, no commit", branchID)
			return
		}
		e.emitEvent(types.NewErrorEvent(err))
		return
	}

	if _, err := conv.AppendMessage(branchID, assistantMsg); err != nil {
		e.emitEvent(types.NewErrorEvent(err))
		return
	}
	if usage != nil {
		e.emitEvent(types.NewTokenUsageEvent(usage))
	}

	e.afterTurn(ctx, conv, branchID, promptTokens, userMsg, assistantMsg)
}

// assemble builds the prompt, compacting and retrying once when the budget
// is exceeded.
func (e *Engine) assemble(ctx context.Context, conv *chat.Conversation, branchID string) ([]*types.Message, int, error) {
	prompt, tokens, err := e.assembler.BuildPrompt(conv, branchID)
	if err == nil {
		return prompt, tokens, nil
	}
	if !errors.Is(err, agentcontext.ErrContextOverflow) || e.compactor == nil {
		return nil, 0, err
	}

	engineLog.Infof("prompt for branch %s over budget (%d tokens), compacting", branchID, tokens)
	if _, cerr := e.compactor.Compact(ctx, conv, branchID); cerr != nil {
		if errors.Is(cerr, agentcontext.ErrNothingToCompact) {
			// Branch too short to shrink; surface the original overflow.
			return nil, 0, err
		}
		return nil, 0, cerr
	}
	return e.assembler.BuildPrompt(conv, branchID)
}

// stream drives the completion stream, emitting content deltas, and
// returns the full assistant message once the stream finishes.
func (e *Engine) stream(ctx context.Context, branchID string, prompt []*types.Message) (*types.Message, *types.TokenUsage, error) {
	chunks, err := e.getProvider().StreamCompletion(ctx, prompt)
	if err != nil {
		return nil, nil, err
	}

	e.emitEvent(types.NewMessageStartEvent(branchID))

	var content strings.Builder
	var usage *types.TokenUsage
	finished := false
	for chunk := range chunks {
		if chunk.IsError() {
			return nil, nil, chunk.Error
		}
		if chunk.Content != "" {
			content.WriteString(chunk.Content)
			e.emitEvent(types.NewMessageContentEvent(branchID, chunk.Content))
		}
		if chunk.Finished {
			finished = true
			usage = chunk.Usage
		}
	}
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}
	if !finished {
		return nil, nil, errors.New("agent: stream ended without completion")
	}

	e.emitEvent(types.NewMessageEndEvent(branchID))

	text := content.String()
	msg := types.NewAssistantMessage(text).
		WithTokenCount(e.tokenizer.CountText(text))
	return msg, usage, nil
}

// afterTurn persists the conversation and enqueues background work. The
// enqueues happen before the turn's events settle so extraction and
// indexing for this turn are underway before the next turn can assemble.
func (e *Engine) afterTurn(ctx context.Context, conv *chat.Conversation, branchID string, promptTokens int, exchange ...*types.Message) {
	if err := e.library.Save(conv); err != nil {
		engineLog.Errorf("failed to persist conversation %s: %v", conv.ID, err)
	}

	if e.extractor != nil && e.shouldExtract() {
		e.extractCh <- extractJob{conversationID: conv.ID, exchange: exchange}
	}
	if e.index != nil {
		e.indexCh <- indexJob{conversationID: conv.ID, folder: conv.Folder, messages: exchange}
	}

	e.maybeCompact(ctx, conv, branchID, promptTokens)
	e.maybeRetitle(conv)
}

// shouldExtract applies the extraction throttle.
func (e *Engine) shouldExtract() bool {
	if e.memoryInterval <= 0 {
		return true
	}
	e.extractMu.Lock()
	defer e.extractMu.Unlock()
	if time.Since(e.lastExtractAt) < e.memoryInterval {
		return false
	}
	e.lastExtractAt = time.Now()
	return true
}

// maybeCompact runs proactive compaction when the last prompt crossed the
// configured share of the token budget.
func (e *Engine) maybeCompact(ctx context.Context, conv *chat.Conversation, branchID string, promptTokens int) {
	if e.compactor == nil || e.compactThresholdPercent <= 0 {
		return
	}
	budget := e.assembler.TokenBudget()
	if budget <= 0 {
		return
	}
	usage := float64(promptTokens) / float64(budget) * 100
	if usage < e.compactThresholdPercent {
		return
	}

	engineLog.Infof("branch %s at %.0f%% of budget, compacting proactively", branchID, usage)
	if _, err := e.compactor.Compact(ctx, conv, branchID); err != nil && !errors.Is(err, agentcontext.ErrNothingToCompact) {
		engineLog.Warnf("proactive compaction failed on branch %s: %v", branchID, err)
		return
	}
	if err := e.library.Save(conv); err != nil {
		engineLog.Errorf("failed to persist conversation %s after compaction: %v", conv.ID, err)
	}
}
