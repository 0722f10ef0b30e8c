package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tylxr59/prattle/pkg/types"
)

// Update implements tea.Model.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case *types.ChatEvent:
		return m, m.handleChatEvent(msg)

	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case slashResultMsg:
		if msg.err != nil {
			m.addNotice(errorStyle.Render("error: " + msg.err.Error()))
		}
		if len(msg.lines) > 0 {
			m.addNotice(msg.lines...)
		}
		return m, nil

	case inputSentMsg:
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
		// Scroll keys go to the viewport, everything else types.
		switch msg.String() {
		case "pgup", "pgdown", "ctrl+u", "ctrl+d":
			var vpCmd tea.Cmd
			m.viewport, vpCmd = m.viewport.Update(msg)
			return m, vpCmd
		}
		var taCmd tea.Cmd
		m.textarea, taCmd = m.textarea.Update(msg)
		return m, taCmd
	}

	var taCmd, vpCmd tea.Cmd
	m.textarea, taCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, taCmd, vpCmd)
	return m, tea.Batch(cmds...)
}

// handleKey processes keys the components should not see. Returns handled
// false to fall through to the textarea and viewport.
func (m *model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		if m.busy {
			return m.sendCancel(), true
		}
		m.shouldQuit = true
		return tea.Quit, true

	case "esc":
		if m.busy {
			return m.sendCancel(), true
		}
		if m.sidebarFocused {
			m.sidebarFocused = false
			m.textarea.Focus()
			return nil, true
		}
		return nil, false

	case "ctrl+b":
		m.sidebarVisible = !m.sidebarVisible
		m.sidebarFocused = m.sidebarVisible
		if m.sidebarFocused {
			m.textarea.Blur()
			m.refreshConversations()
		} else {
			m.textarea.Focus()
		}
		m.resize(m.width, m.height)
		return nil, true

	case "ctrl+y":
		m.copyLastReply()
		return nil, true

	case "up", "k":
		if m.sidebarFocused {
			if m.selected > 0 {
				m.selected--
			}
			return nil, true
		}
		return nil, false

	case "down", "j":
		if m.sidebarFocused {
			if m.selected < len(m.conversations)-1 {
				m.selected++
			}
			return nil, true
		}
		return nil, false

	case "enter":
		if m.sidebarFocused {
			m.openSelectedConversation()
			return nil, true
		}
		return m.submit(), true
	}
	return nil, false
}

// submit dispatches the textarea contents as a slash command or a chat
// message.
func (m *model) submit() tea.Cmd {
	text := strings.TrimSpace(m.textarea.Value())
	if text == "" {
		return nil
	}
	m.textarea.Reset()

	if strings.HasPrefix(text, "/") {
		return m.handleSlash(text)
	}

	if m.busy || m.turnPending {
		m.addNotice(helpStyle.Render("still responding, press esc to interrupt"))
		return nil
	}

	m.clearNotices()
	m.turnPending = true
	m.pendingEcho = text
	m.refreshViewport()

	channels := m.channels
	return func() tea.Msg {
		channels.Input <- types.NewUserInput(text)
		return inputSentMsg{}
	}
}

// sendCancel asks the engine to interrupt the active stream.
func (m *model) sendCancel() tea.Cmd {
	channels := m.channels
	return func() tea.Msg {
		channels.Input <- types.NewCancelInput()
		return inputSentMsg{}
	}
}

// openSelectedConversation loads the sidebar selection into the engine.
func (m *model) openSelectedConversation() {
	if m.selected < 0 || m.selected >= len(m.conversations) {
		return
	}
	info := m.conversations[m.selected]
	conv, err := m.library.Load(info.ID)
	if err != nil {
		m.addNotice(errorStyle.Render("error: " + err.Error()))
		return
	}
	m.engine.SetConversation(conv)
	m.sidebarFocused = false
	m.textarea.Focus()
}

// resize recomputes component dimensions for the current window.
func (m *model) resize(width, height int) {
	m.width = width
	m.height = height

	contentWidth := width
	if m.sidebarVisible {
		contentWidth -= m.sidebarWidth
	}
	if contentWidth < 20 {
		contentWidth = 20
	}

	// Header and status bar take a line each; the input box adds its border.
	inputHeight := m.textarea.Height() + 2
	viewportHeight := height - inputHeight - 2
	if viewportHeight < 1 {
		viewportHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(contentWidth, viewportHeight)
		m.ready = true
	} else {
		m.viewport.Width = contentWidth
		m.viewport.Height = viewportHeight
	}
	m.textarea.SetWidth(contentWidth - 4)

	m.rebuildRenderer(contentWidth - 2)
	m.refreshViewport()
}
