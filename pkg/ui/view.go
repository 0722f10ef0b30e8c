package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tylxr59/prattle/pkg/chat"
)

// View implements tea.Model.
func (m *model) View() string {
	if !m.ready {
		return "initializing..."
	}

	main := lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		m.viewport.View(),
		inputBoxStyle.Width(m.viewport.Width-2).Render(m.textarea.View()),
		m.statusBarView(),
	)

	if m.sidebarVisible {
		return lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), main)
	}
	return main
}

// headerView renders the title line for the active conversation.
func (m *model) headerView() string {
	conv := m.activeConversation()
	title := "prattle"
	model := ""
	branch := ""
	if conv != nil {
		if conv.Title != "" {
			title = conv.Title
		}
		model = conv.Model
		if conv.ActiveBranchID() != conv.RootBranchID() {
			branch = " (branch)"
		}
	}
	line := headerStyle.Render(truncate(title, 48)+branch)
	if model != "" {
		line += helpStyle.Render("  " + model)
	}
	return line
}

// statusBarView renders the bottom status line.
func (m *model) statusBarView() string {
	var parts []string

	if m.busy {
		parts = append(parts, m.spinner.View()+"thinking (esc to interrupt)")
	} else {
		parts = append(parts, "enter to send, /help for commands")
	}

	total := m.totalPromptTokens + m.totalCompletionTokens
	if total > 0 {
		usage := fmt.Sprintf("%s tokens", formatTokens(total))
		if m.totalCost > 0 {
			usage += fmt.Sprintf(" $%.4f", m.totalCost)
		}
		parts = append(parts, usage)
	}
	if m.memoryCount > 0 {
		parts = append(parts, fmt.Sprintf("%d memories", m.memoryCount))
	}

	return statusBarStyle.Render(strings.Join(parts, " | "))
}

// sidebarView renders the conversation list.
func (m *model) sidebarView() string {
	width := m.sidebarWidth - 3 // border and padding

	var b strings.Builder
	b.WriteString(headerStyle.Render("Conversations"))
	b.WriteString("\n\n")

	if len(m.conversations) == 0 {
		b.WriteString(helpStyle.Render("(none yet)"))
	}

	for i, info := range m.conversations {
		title := displayTitle(info)
		if info.Folder != "" {
			title = info.Folder + "/" + title
		}
		line := truncate(title, width)
		if i == m.selected && m.sidebarFocused {
			line = sidebarSelectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return sidebarStyle.Width(m.sidebarWidth - 1).Height(m.height - 1).Render(b.String())
}

func displayTitle(info *chat.ConversationInfo) string {
	if info.Title != "" {
		return info.Title
	}
	return chat.DefaultTitle
}
