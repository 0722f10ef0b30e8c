package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tylxr59/prattle/pkg/chat"
	"github.com/tylxr59/prattle/pkg/llm"
	"github.com/tylxr59/prattle/pkg/types"
)

// extractWorker drains extraction jobs. Extraction is best-effort: the
// extractor logs and swallows its own failures, so the worker only relays
// ledger-change events.
func (e *Engine) extractWorker(ctx context.Context) {
	defer e.workerWg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.channels.Shutdown:
			return
		case job := <-e.extractCh:
			added := e.extractor.ExtractFromExchange(ctx, job.conversationID, job.exchange)
			if added > 0 && e.ledger != nil {
				e.emitEvent(types.NewMemoriesUpdatedEvent(e.ledger.ActiveCount()))
			}
		}
	}
}

// indexWorker drains indexing jobs. Failures are logged and dropped; the
// index converges on the next save or explicit re-index.
func (e *Engine) indexWorker(ctx context.Context) {
	defer e.workerWg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.channels.Shutdown:
			return
		case job := <-e.indexCh:
			if err := e.index.IndexConversation(ctx, job.conversationID, job.folder, job.messages); err != nil {
				engineLog.Warnf("indexing failed for conversation %s: %v", job.conversationID, err)
			}
		}
	}
}

// maybeRetitle regenerates the conversation title in the background when
// the title is still the placeholder or the refresh interval has elapsed.
func (e *Engine) maybeRetitle(conv *chat.Conversation) {
	if e.titleInterval <= 0 {
		return
	}
	placeholder := conv.Title == "" || conv.Title == chat.DefaultTitle

	e.titleMu.Lock()
	if !placeholder && time.Since(e.lastTitleAt) < e.titleInterval {
		e.titleMu.Unlock()
		return
	}
	e.lastTitleAt = time.Now()
	e.titleMu.Unlock()

	e.retitleAsync(conv)
}

// retitleAsync regenerates the title in the background, unconditionally.
func (e *Engine) retitleAsync(conv *chat.Conversation) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		title, err := e.generateTitle(ctx, conv)
		if err != nil {
			engineLog.Warnf("title generation failed for conversation %s: %v", conv.ID, err)
			return
		}
		if title == "" || title == conv.Title {
			return
		}
		conv.SetTitle(title)
		if err := e.library.Save(conv); err != nil {
			engineLog.Errorf("failed to persist retitled conversation %s: %v", conv.ID, err)
		}
		e.emitEvent(types.NewTitleUpdatedEvent(title))
	}()
}

// Parse forces an insight pass over the active conversation: the recent
// exchange is fed to the memory extractor and the title is regenerated,
// ignoring the configured intervals. The work itself stays asynchronous.
func (e *Engine) Parse() error {
	conv := e.Conversation()
	if conv == nil {
		return fmt.Errorf("agent: no active conversation")
	}

	if e.extractor != nil {
		history, err := conv.AssembledHistory(conv.ActiveBranchID())
		if err != nil {
			return err
		}
		if exchange := recentExchange(history, 6); len(exchange) > 0 {
			e.extractMu.Lock()
			e.lastExtractAt = time.Now()
			e.extractMu.Unlock()
			e.extractCh <- extractJob{conversationID: conv.ID, exchange: exchange}
		}
	}

	e.titleMu.Lock()
	e.lastTitleAt = time.Now()
	e.titleMu.Unlock()
	e.retitleAsync(conv)
	return nil
}

// recentExchange returns the last n user and assistant messages, skipping
// summaries so the extractor sees raw conversation.
func recentExchange(history []*types.Message, n int) []*types.Message {
	var out []*types.Message
	for _, m := range history {
		if m.Role == types.RoleUser || m.Role == types.RoleAssistant {
			out = append(out, m)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// generateTitle asks the model for a short title based on the active
// branch's recent history.
func (e *Engine) generateTitle(ctx context.Context, conv *chat.Conversation) (string, error) {
	history, err := conv.AssembledHistory(conv.ActiveBranchID())
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", nil
	}
	// A handful of recent messages is plenty for a title.
	if len(history) > 6 {
		history = history[len(history)-6:]
	}

	var b strings.Builder
	b.WriteString("Write a title for this conversation: at most five words, no quotes, no trailing punctuation. Respond with the title only.\n\n")
	for _, m := range history {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}

	response, err := e.titleProvider().Complete(ctx, []*types.Message{
		types.NewUserMessage(b.String()),
	})
	if err != nil {
		return "", err
	}

	title := strings.TrimSpace(strings.Trim(strings.TrimSpace(response.Content), `"'`))
	const maxTitleLen = 80
	if len(title) > maxTitleLen {
		title = title[:maxTitleLen]
	}
	return title, nil
}

// titleProvider returns the provider used for title calls. Titles are
// utility work; the compactor's summary model override is reused when the
// provider can clone, keeping cheap calls on the cheap model.
func (e *Engine) titleProvider() llm.Provider {
	provider := e.getProvider()
	if e.utilityModel == "" {
		return provider
	}
	if cloner, ok := provider.(llm.ModelCloner); ok {
		return cloner.CloneWithModel(e.utilityModel)
	}
	return provider
}
