package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentcontext "github.com/tylxr59/prattle/pkg/agent/context"
	"github.com/tylxr59/prattle/pkg/agent/memory"
	"github.com/tylxr59/prattle/pkg/chat"
	"github.com/tylxr59/prattle/pkg/llm"
	"github.com/tylxr59/prattle/pkg/search"
	"github.com/tylxr59/prattle/pkg/types"
)

// streamProvider scripts a streaming completion. When blockUntilCancel is
// set the stream emits one delta and then waits for the context to die,
// mimicking a long generation the user interrupts.
type streamProvider struct {
	deltas           []string
	streamErr        error
	completeResponse string
	blockUntilCancel bool
}

func (p *streamProvider) StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *llm.StreamChunk, error) {
	out := make(chan *llm.StreamChunk)
	go func() {
		defer close(out)
		if p.streamErr != nil {
			out <- &llm.StreamChunk{Error: p.streamErr}
			return
		}
		for i, d := range p.deltas {
			out <- &llm.StreamChunk{Content: d, Role: "assistant"}
			if p.blockUntilCancel && i == 0 {
				<-ctx.Done()
				return
			}
		}
		out <- &llm.StreamChunk{Finished: true, Usage: &types.TokenUsage{PromptTokens: 5, CompletionTokens: 3, TotalTokens: 8}}
	}()
	return out, nil
}

func (p *streamProvider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	return types.NewAssistantMessage(p.completeResponse), nil
}

func (p *streamProvider) GetModel() string             { return "mock/model" }
func (p *streamProvider) GetModelInfo() *llm.ModelInfo { return nil }

type engineFixture struct {
	engine *Engine
	conv   *chat.Conversation
	cancel context.CancelFunc
}

func newEngineFixture(t *testing.T, provider llm.Provider, opts ...Option) *engineFixture {
	t.Helper()

	library, err := chat.NewLibrary(t.TempDir())
	require.NoError(t, err)
	assembler, err := agentcontext.NewAssembler("You are helpful.", 0, nil)
	require.NoError(t, err)

	e, err := NewEngine(provider, library, assembler, opts...)
	require.NoError(t, err)

	conv := chat.NewConversation(chat.DefaultTitle, "mock/model", "")
	e.SetConversation(conv)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		_ = e.Shutdown(shutdownCtx)
		cancel()
	})

	// Drain the conversation load event emitted by SetConversation.
	<-e.GetChannels().Event

	return &engineFixture{engine: e, conv: conv, cancel: cancel}
}

// collectTurn reads events until the turn settles (turn end followed by the
// busy-false that trails it).
func collectTurn(t *testing.T, e *Engine) []*types.ChatEvent {
	t.Helper()
	var events []*types.ChatEvent
	deadline := time.After(5 * time.Second)
	sawTurnEnd := false
	for {
		select {
		case ev := <-e.GetChannels().Event:
			events = append(events, ev)
			if ev.Type == types.EventTypeTurnEnd {
				sawTurnEnd = true
			}
			if sawTurnEnd && ev.Type == types.EventTypeUpdateBusy && !ev.IsBusy {
				return events
			}
		case <-deadline:
			t.Fatal("timed out waiting for turn to settle")
		}
	}
}

func eventTypes(events []*types.ChatEvent) []types.ChatEventType {
	out := make([]types.ChatEventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestTurnCommitsAssistantMessage(t *testing.T) {
	provider := &streamProvider{deltas: []string{"Hel", "lo"}}
	f := newEngineFixture(t, provider)

	f.engine.GetChannels().Input <- types.NewUserInput("hi there")
	events := collectTurn(t, f.engine)

	typesSeen := eventTypes(events)
	assert.Contains(t, typesSeen, types.EventTypeMessageStart)
	assert.Contains(t, typesSeen, types.EventTypeMessageEnd)
	assert.Contains(t, typesSeen, types.EventTypeTokenUsage)

	history, err := f.conv.EffectiveHistory(f.conv.RootBranchID())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, types.RoleUser, history[0].Role)
	assert.Equal(t, "hi there", history[0].Content)
	assert.Equal(t, types.RoleAssistant, history[1].Role)
	assert.Equal(t, "Hello", history[1].Content)
	assert.Greater(t, history[1].TokenCount, 0)
}

func TestCancelCommitsNoAssistantMessage(t *testing.T) {
	provider := &streamProvider{deltas: []string{"partial "}, blockUntilCancel: true}
	f := newEngineFixture(t, provider)

	ch := f.engine.GetChannels()
	ch.Input <- types.NewUserInput("tell me a long story")

	// Wait for the first streamed delta, then interrupt.
	deadline := time.After(5 * time.Second)
	for streaming := false; !streaming; {
		select {
		case ev := <-ch.Event:
			if ev.Type == types.EventTypeMessageContent {
				streaming = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for stream to start")
		}
	}
	ch.Input <- types.NewCancelInput()
	collectTurn(t, f.engine)

	history, err := f.conv.EffectiveHistory(f.conv.RootBranchID())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, types.RoleUser, history[0].Role)
}

func TestStreamErrorEmitsErrorAndCommitsNothing(t *testing.T) {
	provider := &streamProvider{streamErr: llm.ErrRateLimited}
	f := newEngineFixture(t, provider)

	f.engine.GetChannels().Input <- types.NewUserInput("hi")
	events := collectTurn(t, f.engine)

	var sawError bool
	for _, ev := range events {
		if ev.Type == types.EventTypeError {
			sawError = true
			assert.True(t, errors.Is(ev.Error, llm.ErrRateLimited))
		}
	}
	assert.True(t, sawError)

	history, err := f.conv.EffectiveHistory(f.conv.RootBranchID())
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestTurnFeedsBackgroundPipelines(t *testing.T) {
	idx, err := search.NewIndex(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	ledger := memory.NewLedger(nil)
	extractProvider := &streamProvider{completeResponse: `[{"text": "user collects stamps"}]`}
	extractor := memory.NewExtractor(ledger, extractProvider, 10)

	provider := &streamProvider{deltas: []string{"Neat hobby!"}}
	f := newEngineFixture(t, provider,
		WithSearchIndex(idx),
		WithExtractor(extractor),
		WithLedger(ledger),
	)

	f.engine.GetChannels().Input <- types.NewUserInput("I collect stamps")
	collectTurn(t, f.engine)

	// Background work is asynchronous; poll briefly.
	require.Eventually(t, func() bool {
		n, err := idx.Count(context.Background())
		return err == nil && n == 2
	}, 3*time.Second, 10*time.Millisecond, "expected both turn messages indexed")

	require.Eventually(t, func() bool {
		return ledger.ActiveCount() == 1
	}, 3*time.Second, 10*time.Millisecond, "expected extracted fact in ledger")
	assert.Equal(t, "user collects stamps", ledger.Active()[0].Text)
}

func TestMemoryIntervalThrottlesExtraction(t *testing.T) {
	ledger := memory.NewLedger(nil)
	extractProvider := &streamProvider{completeResponse: `[{"text": "user likes trains"}]`}
	extractor := memory.NewExtractor(ledger, extractProvider, 10)

	provider := &streamProvider{deltas: []string{"ok"}}
	f := newEngineFixture(t, provider,
		WithExtractor(extractor),
		WithLedger(ledger),
		WithMemoryInterval(time.Hour),
	)

	f.engine.GetChannels().Input <- types.NewUserInput("I like trains")
	collectTurn(t, f.engine)
	require.Eventually(t, func() bool {
		return ledger.ActiveCount() == 1
	}, 3*time.Second, 10*time.Millisecond)

	// Within the interval the second turn skips extraction.
	f.engine.GetChannels().Input <- types.NewUserInput("still do")
	collectTurn(t, f.engine)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, ledger.ActiveCount())
}

func TestParseForcesExtractionAndTitle(t *testing.T) {
	ledger := memory.NewLedger(nil)
	extractProvider := &streamProvider{completeResponse: `[{"text": "user collects stamps"}]`}
	extractor := memory.NewExtractor(ledger, extractProvider, 10)

	provider := &streamProvider{deltas: []string{"ok"}, completeResponse: "Stamp Collecting"}
	f := newEngineFixture(t, provider,
		WithExtractor(extractor),
		WithLedger(ledger),
		WithMemoryInterval(time.Hour),
		WithTitleInterval(time.Hour),
	)

	root := f.conv.RootBranchID()
	_, err := f.conv.AppendMessage(root, types.NewUserMessage("I collect stamps"))
	require.NoError(t, err)
	_, err = f.conv.AppendMessage(root, types.NewAssistantMessage("Neat hobby!"))
	require.NoError(t, err)

	// Pretend both background passes just ran; Parse must ignore that.
	f.engine.extractMu.Lock()
	f.engine.lastExtractAt = time.Now()
	f.engine.extractMu.Unlock()
	f.engine.titleMu.Lock()
	f.engine.lastTitleAt = time.Now()
	f.engine.titleMu.Unlock()

	require.NoError(t, f.engine.Parse())

	require.Eventually(t, func() bool {
		return ledger.ActiveCount() == 1
	}, 3*time.Second, 10*time.Millisecond, "expected forced extraction to land")

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-f.engine.GetChannels().Event:
			if ev.Type == types.EventTypeTitleUpdated {
				assert.Equal(t, "Stamp Collecting", ev.Content)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for forced title update")
		}
	}
}

func TestParseRequiresConversation(t *testing.T) {
	library, err := chat.NewLibrary(t.TempDir())
	require.NoError(t, err)
	assembler, err := agentcontext.NewAssembler("You are helpful.", 0, nil)
	require.NoError(t, err)
	e, err := NewEngine(&streamProvider{}, library, assembler)
	require.NoError(t, err)

	assert.Error(t, e.Parse())
}

func TestTurnPersistsConversation(t *testing.T) {
	provider := &streamProvider{deltas: []string{"saved"}}
	f := newEngineFixture(t, provider)

	f.engine.GetChannels().Input <- types.NewUserInput("persist me")
	collectTurn(t, f.engine)

	reopened, err := chat.NewLibrary(f.engine.library.BaseDir())
	require.NoError(t, err)
	got, err := reopened.Load(f.conv.ID)
	require.NoError(t, err)

	history, err := got.EffectiveHistory(got.ActiveBranchID())
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSetProviderRejectsNil(t *testing.T) {
	provider := &streamProvider{deltas: []string{"x"}}
	f := newEngineFixture(t, provider)
	assert.Error(t, f.engine.SetProvider(nil))
}
