package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/tylxr59/prattle/pkg/agent"
	"github.com/tylxr59/prattle/pkg/agent/memory"
	"github.com/tylxr59/prattle/pkg/chat"
	"github.com/tylxr59/prattle/pkg/llm"
	"github.com/tylxr59/prattle/pkg/search"
	"github.com/tylxr59/prattle/pkg/types"
)

// model represents the state of the TUI application.
type model struct {
	// Bubble Tea components
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	// Engine integration
	engine   *agent.Engine
	channels *types.ChatChannels
	provider llm.Provider
	library  *chat.Library
	index    *search.Index
	ledger   *memory.Ledger

	// Markdown rendering
	renderer       *glamour.TermRenderer
	renderMarkdown bool

	// Streaming state
	streamBuffer *strings.Builder
	streaming    bool
	busy         bool

	// pendingEcho shows the just-submitted user message until the engine
	// commits it to the conversation.
	pendingEcho string

	// turnPending is set the moment a message is submitted, before the
	// engine's busy event arrives, so a second enter cannot start a
	// concurrent turn on the same branch.
	turnPending bool

	// Notices are transient lines shown under the transcript (command
	// output, search results, errors). Cleared on the next user message.
	notices []string

	// Sidebar state
	sidebarVisible bool
	sidebarFocused bool
	sidebarWidth   int
	conversations  []*chat.ConversationInfo
	selected       int

	// Token usage tracking
	totalPromptTokens     int
	totalCompletionTokens int
	totalCost             float64
	memoryCount           int

	// Window dimensions
	width  int
	height int
	ready  bool

	shouldQuit bool
}

// slashResultMsg carries the output of a slash command that ran off the
// Update loop (model calls, index queries).
type slashResultMsg struct {
	lines []string
	err   error
}

// inputSentMsg signals the user input was handed to the engine.
type inputSentMsg struct{}

// initialModel creates the starting model state.
func initialModel() model {
	ta := textarea.New()
	ta.Placeholder = "Message (or /help)"
	ta.Focus()
	ta.Prompt = "> "
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(salmonPink)

	return model{
		textarea:     ta,
		spinner:      sp,
		streamBuffer: &strings.Builder{},
		sidebarWidth: 30,
	}
}

// Init implements tea.Model.
func (m *model) Init() tea.Cmd {
	return textarea.Blink
}

// activeConversation returns the engine's conversation, or nil.
func (m *model) activeConversation() *chat.Conversation {
	if m.engine == nil {
		return nil
	}
	return m.engine.Conversation()
}

// refreshConversations reloads the sidebar listing.
func (m *model) refreshConversations() {
	if m.library == nil {
		return
	}
	infos, err := m.library.List()
	if err != nil {
		uiLog.Warnf("failed to list conversations: %v", err)
		return
	}
	m.conversations = infos
	if m.selected >= len(m.conversations) {
		m.selected = len(m.conversations) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

// addNotice appends styled lines below the transcript.
func (m *model) addNotice(lines ...string) {
	m.notices = append(m.notices, lines...)
	m.refreshViewport()
}

// clearNotices drops transient output before a new exchange.
func (m *model) clearNotices() {
	m.notices = nil
}
