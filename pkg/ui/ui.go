// Package ui provides the terminal user interface for the chat client.
//
// The TUI codebase is split into multiple files for better organization:
// - ui.go: Executor implementation and program lifecycle
// - model.go: Core model structure and state
// - update.go: Bubble Tea Update function and message handling
// - view.go: Bubble Tea View function and rendering
// - events.go: Chat engine event processing
// - slash.go: Slash command parsing and dispatch
// - helpers.go: Rendering and clipboard utilities
// - styles.go: Color palette and styling
package ui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tylxr59/prattle/pkg/agent"
	"github.com/tylxr59/prattle/pkg/agent/memory"
	"github.com/tylxr59/prattle/pkg/chat"
	"github.com/tylxr59/prattle/pkg/llm"
	"github.com/tylxr59/prattle/pkg/logging"
	"github.com/tylxr59/prattle/pkg/search"
)

var uiLog *logging.Logger

func init() {
	var err error
	uiLog, err = logging.NewLogger("tui")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		uiLog.Warnf("Failed to initialize tui logger, using stderr fallback: %v", err)
	}
}

// Executor runs the chat engine behind a Bubble Tea program.
type Executor struct {
	engine   *agent.Engine
	provider llm.Provider
	library  *chat.Library
	index    *search.Index
	ledger   *memory.Ledger
	program  *tea.Program

	renderMarkdown bool
	sidebarWidth   int
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSearchIndex attaches the full-text index used by /search.
func WithSearchIndex(idx *search.Index) ExecutorOption {
	return func(e *Executor) { e.index = idx }
}

// WithLedger attaches the memory ledger used by /memories and /remember.
func WithLedger(l *memory.Ledger) ExecutorOption {
	return func(e *Executor) { e.ledger = l }
}

// WithMarkdown enables glamour rendering of assistant messages.
func WithMarkdown(enabled bool) ExecutorOption {
	return func(e *Executor) { e.renderMarkdown = enabled }
}

// WithSidebarWidth sets the width of the conversation sidebar.
func WithSidebarWidth(width int) ExecutorOption {
	return func(e *Executor) {
		if width > 0 {
			e.sidebarWidth = width
		}
	}
}

// NewExecutor creates a TUI executor around a running-ready engine.
func NewExecutor(engine *agent.Engine, provider llm.Provider, library *chat.Library, opts ...ExecutorOption) *Executor {
	e := &Executor{
		engine:         engine,
		provider:       provider,
		library:        library,
		renderMarkdown: true,
		sidebarWidth:   30,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run starts the engine and the TUI program, blocking until the user exits.
func (e *Executor) Run(ctx context.Context) error {
	uiLog.Infof("TUI executor starting")

	if err := e.engine.Start(ctx); err != nil {
		return fmt.Errorf("ui: failed to start engine: %w", err)
	}

	m := initialModel()
	m.engine = e.engine
	m.channels = e.engine.GetChannels()
	m.provider = e.provider
	m.library = e.library
	m.index = e.index
	m.ledger = e.ledger
	m.renderMarkdown = e.renderMarkdown
	m.sidebarWidth = e.sidebarWidth
	if e.ledger != nil {
		m.memoryCount = e.ledger.ActiveCount()
	}
	m.refreshConversations()

	e.program = tea.NewProgram(
		&m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	go func() {
		// Forward engine events into the TUI's message loop.
		for event := range m.channels.Event {
			e.program.Send(event)
		}
	}()

	_, runErr := e.program.Run()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.engine.Shutdown(shutdownCtx); err != nil {
		uiLog.Warnf("engine shutdown: %v", err)
	}

	if runErr != nil {
		return fmt.Errorf("ui: failed to run TUI program: %w", runErr)
	}
	return nil
}
