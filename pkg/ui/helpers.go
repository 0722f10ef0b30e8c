package ui

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/glamour"

	"github.com/tylxr59/prattle/pkg/types"
)

// rebuildRenderer recreates the glamour renderer for a new wrap width.
func (m *model) rebuildRenderer(width int) {
	if !m.renderMarkdown {
		return
	}
	if width < 20 {
		width = 20
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		uiLog.Warnf("failed to create markdown renderer: %v", err)
		m.renderer = nil
		return
	}
	m.renderer = renderer
}

// renderAssistant renders assistant content, falling back to plain text
// when markdown rendering is disabled or fails.
func (m *model) renderAssistant(content string) string {
	if m.renderer == nil {
		return assistantStyle.Render(content)
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return assistantStyle.Render(content)
	}
	return strings.TrimRight(out, "\n")
}

// refreshViewport rebuilds the transcript from the active conversation and
// streaming state, then scrolls to the bottom.
func (m *model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.buildContent())
	m.viewport.GotoBottom()
}

// buildContent renders the assembled history of the active branch, the
// in-flight stream, and any transient notices.
func (m *model) buildContent() string {
	var b strings.Builder

	conv := m.activeConversation()
	if conv == nil {
		b.WriteString(helpStyle.Render("No conversation. /new to start one."))
		return b.String()
	}

	history, err := conv.AssembledHistory(conv.ActiveBranchID())
	if err != nil {
		b.WriteString(errorStyle.Render("error: " + err.Error()))
		return b.String()
	}

	for _, msg := range history {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n\n")
	}

	if m.pendingEcho != "" {
		b.WriteString(userStyle.Render("You"))
		b.WriteString("\n")
		b.WriteString(m.pendingEcho)
		b.WriteString("\n\n")
	}

	if m.streaming || m.streamBuffer.Len() > 0 {
		b.WriteString(headerStyle.Render("Assistant"))
		b.WriteString("\n")
		b.WriteString(m.streamBuffer.String())
		b.WriteString("\n\n")
	}

	for _, line := range m.notices {
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}

// renderMessage renders one committed message with a role header.
func (m *model) renderMessage(msg *types.Message) string {
	switch msg.Role {
	case types.RoleUser:
		return userStyle.Render("You") + "\n" + msg.Content
	case types.RoleAssistant:
		return headerStyle.Render("Assistant") + "\n" + m.renderAssistant(msg.Content)
	case types.RoleSummary:
		return summaryStyle.Render("[earlier messages summarized]") + "\n" + summaryStyle.Render(msg.Content)
	default:
		return string(msg.Role) + "\n" + msg.Content
	}
}

// copyLastReply puts the most recent assistant message on the clipboard.
func (m *model) copyLastReply() {
	conv := m.activeConversation()
	if conv == nil {
		return
	}
	history, err := conv.AssembledHistory(conv.ActiveBranchID())
	if err != nil {
		m.addNotice(errorStyle.Render("error: " + err.Error()))
		return
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == types.RoleAssistant {
			if err := clipboard.WriteAll(history[i].Content); err != nil {
				m.addNotice(errorStyle.Render("clipboard: " + err.Error()))
				return
			}
			m.addNotice(noticeStyle.Render("copied last reply to clipboard"))
			return
		}
	}
	m.addNotice(helpStyle.Render("nothing to copy"))
}

// formatTokens renders a token count compactly, e.g. 12.3k.
func formatTokens(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%.1fk", float64(n)/1000)
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
