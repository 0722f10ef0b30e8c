// Package agent runs the chat engine: an event loop that turns user input
// into model calls, commits responses to the conversation store, and feeds
// the background memory and indexing pipelines.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	agentcontext "github.com/tylxr59/prattle/pkg/agent/context"
	"github.com/tylxr59/prattle/pkg/agent/memory"
	"github.com/tylxr59/prattle/pkg/chat"
	"github.com/tylxr59/prattle/pkg/llm"
	"github.com/tylxr59/prattle/pkg/llm/tokenizer"
	"github.com/tylxr59/prattle/pkg/logging"
	"github.com/tylxr59/prattle/pkg/search"
	"github.com/tylxr59/prattle/pkg/types"
)

var engineLog *logging.Logger

func init() {
	var err error
	engineLog, err = logging.NewLogger("engine")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		engineLog.Warnf("Failed to initialize engine logger, using stderr fallback: %v", err)
	}
}

// Engine is the chat engine. It owns the active conversation, processes
// inputs from its channel, and emits events the UI renders. Foreground work
// (the model call) blocks the turn; extraction and indexing run on worker
// goroutines fed by buffered channels, enqueued before the turn ends so
// turn N's background work is underway before turn N+1 can assemble.
type Engine struct {
	channels   *types.ChatChannels
	bufferSize int

	library   *chat.Library
	assembler *agentcontext.Assembler
	compactor *agentcontext.Compactor
	ledger    *memory.Ledger
	extractor *memory.Extractor
	index     *search.Index
	tokenizer *tokenizer.Tokenizer

	// compactThresholdPercent triggers proactive compaction when prompt
	// tokens exceed this share of the budget.
	compactThresholdPercent float64

	// utilityModel overrides the model for cheap calls (titles). Empty
	// uses the main provider's model.
	utilityModel string

	titleInterval time.Duration
	titleMu       sync.Mutex
	lastTitleAt   time.Time

	// memoryInterval throttles how often turns feed the extractor. Zero
	// extracts on every turn.
	memoryInterval time.Duration
	extractMu      sync.Mutex
	lastExtractAt  time.Time

	providerMu sync.RWMutex
	provider   llm.Provider

	convMu       sync.RWMutex
	conversation *chat.Conversation

	cancelMu     sync.Mutex
	cancelStream context.CancelFunc

	extractCh chan extractJob
	indexCh   chan indexJob
	workerWg  sync.WaitGroup

	running bool
	runMu   sync.Mutex
}

type extractJob struct {
	conversationID string
	exchange       []*types.Message
}

type indexJob struct {
	conversationID string
	folder         string
	messages       []*types.Message
}

// Option configures an engine.
type Option func(*Engine)

// WithBufferSize sets the channel buffer size.
func WithBufferSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.bufferSize = size
		}
	}
}

// WithCompactor attaches the context compactor used for overflow recovery
// and proactive compaction.
func WithCompactor(c *agentcontext.Compactor) Option {
	return func(e *Engine) {
		e.compactor = c
	}
}

// WithExtractor attaches the memory extractor fed after each turn.
func WithExtractor(x *memory.Extractor) Option {
	return func(e *Engine) {
		e.extractor = x
	}
}

// WithLedger attaches the memory ledger, used for event counts.
func WithLedger(l *memory.Ledger) Option {
	return func(e *Engine) {
		e.ledger = l
	}
}

// WithSearchIndex attaches the full-text index fed after each turn.
func WithSearchIndex(idx *search.Index) Option {
	return func(e *Engine) {
		e.index = idx
	}
}

// WithCompactThreshold sets the usage percentage at which compaction runs
// proactively after a turn. Zero disables the proactive trigger.
func WithCompactThreshold(percent float64) Option {
	return func(e *Engine) {
		e.compactThresholdPercent = percent
	}
}

// WithTitleInterval sets the minimum time between automatic title
// regenerations. Zero disables title generation.
func WithTitleInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.titleInterval = d
	}
}

// WithMemoryInterval sets the minimum time between memory extraction
// runs. Zero extracts after every turn.
func WithMemoryInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.memoryInterval = d
	}
}

// WithUtilityModel sets the model used for cheap utility calls such as
// title generation. The provider must implement llm.ModelCloner for the
// override to take effect.
func WithUtilityModel(model string) Option {
	return func(e *Engine) {
		e.utilityModel = model
	}
}

// NewEngine creates an engine around a provider, a conversation library,
// and an assembler.
func NewEngine(provider llm.Provider, library *chat.Library, assembler *agentcontext.Assembler, opts ...Option) (*Engine, error) {
	tok, err := tokenizer.New()
	if err != nil {
		return nil, fmt.Errorf("agent: create tokenizer: %w", err)
	}

	e := &Engine{
		provider:   provider,
		library:    library,
		assembler:  assembler,
		tokenizer:  tok,
		bufferSize: 10,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.channels = types.NewChatChannels(e.bufferSize)
	e.extractCh = make(chan extractJob, e.bufferSize)
	e.indexCh = make(chan indexJob, e.bufferSize)

	if e.compactor != nil {
		e.compactor.SetEventChannel(e.channels.Event)
	}
	return e, nil
}

// GetChannels returns the engine's communication channels.
func (e *Engine) GetChannels() *types.ChatChannels {
	return e.channels
}

// SetProvider hot-swaps the model provider. Takes effect on the next turn.
func (e *Engine) SetProvider(provider llm.Provider) error {
	if provider == nil {
		return fmt.Errorf("agent: provider cannot be nil")
	}
	e.providerMu.Lock()
	e.provider = provider
	e.providerMu.Unlock()

	if e.compactor != nil {
		e.compactor.SetProvider(provider)
	}
	return nil
}

func (e *Engine) getProvider() llm.Provider {
	e.providerMu.RLock()
	defer e.providerMu.RUnlock()
	return e.provider
}

// SetConversation switches the active conversation.
func (e *Engine) SetConversation(conv *chat.Conversation) {
	e.convMu.Lock()
	e.conversation = conv
	e.convMu.Unlock()
	if conv != nil {
		e.emitEvent(types.NewConversationLoadEvent(conv.ActiveBranchID()))
	}
}

// Conversation returns the active conversation, or nil.
func (e *Engine) Conversation() *chat.Conversation {
	e.convMu.RLock()
	defer e.convMu.RUnlock()
	return e.conversation
}

// Start begins the engine's event loop and background workers.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	if e.running {
		e.runMu.Unlock()
		return fmt.Errorf("agent: engine is already running")
	}
	e.running = true
	e.runMu.Unlock()

	e.workerWg.Add(2)
	go e.extractWorker(ctx)
	go e.indexWorker(ctx)
	go e.eventLoop(ctx)
	return nil
}

// Compact runs compaction on the active conversation's active branch and
// persists the result. Used for explicit user-requested compaction; the
// engine also compacts on overflow and past the proactive threshold.
func (e *Engine) Compact(ctx context.Context) error {
	conv := e.Conversation()
	if conv == nil {
		return fmt.Errorf("agent: no active conversation")
	}
	if e.compactor == nil {
		return fmt.Errorf("agent: no compactor configured")
	}
	if _, err := e.compactor.Compact(ctx, conv, conv.ActiveBranchID()); err != nil {
		return err
	}
	return e.library.Save(conv)
}

// Shutdown gracefully stops the engine, waiting for the event loop and
// workers to finish or the context to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	close(e.channels.Shutdown)
	select {
	case <-e.channels.Done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// eventLoop is the main processing loop for the engine.
func (e *Engine) eventLoop(ctx context.Context) {
	defer func() {
		e.workerWg.Wait()
		e.channels.Close()
		e.runMu.Lock()
		e.running = false
		e.runMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			e.emitEvent(types.NewErrorEvent(ctx.Err()))
			return

		case <-e.channels.Shutdown:
			return

		case input := <-e.channels.Input:
			if input == nil {
				return
			}
			if input.IsCancel() {
				// Handled synchronously so it can interrupt an active stream.
				e.cancelActiveStream()
				continue
			}
			if input.IsUserInput() {
				// Async so the loop keeps handling cancel requests mid-turn.
				go e.processUserInput(ctx, input)
			}
		}
	}
}

func (e *Engine) cancelActiveStream() {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()
	if e.cancelStream != nil {
		e.cancelStream()
		e.cancelStream = nil
	}
}

// emitEvent sends an event on the event channel. Blocking send so critical
// events like TurnEnd are not dropped; tolerates the channel closing
// during shutdown.
func (e *Engine) emitEvent(event *types.ChatEvent) {
	defer func() {
		if r := recover(); r != nil {
			// Event channel closed during shutdown.
		}
	}()
	e.channels.Event <- event
}
