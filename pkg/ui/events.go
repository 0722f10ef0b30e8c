package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tylxr59/prattle/pkg/types"
)

// handleChatEvent applies an engine event to the model.
func (m *model) handleChatEvent(event *types.ChatEvent) tea.Cmd {
	switch event.Type {
	case types.EventTypeMessageStart:
		m.streaming = true
		m.streamBuffer.Reset()
		m.pendingEcho = ""
		m.refreshViewport()

	case types.EventTypeMessageContent:
		m.streamBuffer.WriteString(event.Content)
		m.refreshViewport()

	case types.EventTypeMessageEnd:
		m.streaming = false

	case types.EventTypeTurnEnd:
		m.streaming = false
		m.turnPending = false
		m.streamBuffer.Reset()
		m.pendingEcho = ""
		m.refreshViewport()
		if m.sidebarVisible {
			m.refreshConversations()
		}

	case types.EventTypeUpdateBusy:
		m.busy = event.IsBusy
		if m.busy {
			return m.spinner.Tick
		}
		m.turnPending = false

	case types.EventTypeError:
		m.pendingEcho = ""
		m.addNotice(errorStyle.Render("error: " + event.Error.Error()))

	case types.EventTypeTokenUsage:
		if event.TokenUsage != nil {
			m.totalPromptTokens += event.TokenUsage.PromptTokens
			m.totalCompletionTokens += event.TokenUsage.CompletionTokens
			m.totalCost += event.TokenUsage.TotalCost
		}

	case types.EventTypeCompactionStart:
		m.addNotice(noticeStyle.Render("compacting context..."))

	case types.EventTypeCompactionDone:
		if info := event.Compaction; info != nil {
			m.addNotice(noticeStyle.Render(fmt.Sprintf(
				"compacted: %d messages folded, ~%d tokens saved (%s)",
				info.MessagesFolded, info.TokensSaved, info.Duration)))
		}
		m.refreshViewport()

	case types.EventTypeCompactionError:
		m.addNotice(errorStyle.Render("compaction failed: " + event.Error.Error()))

	case types.EventTypeMemoriesUpdated:
		if n, ok := event.Metadata["active_entries"].(int); ok {
			m.memoryCount = n
		}

	case types.EventTypeTitleUpdated:
		m.refreshConversations()

	case types.EventTypeConversationLoad:
		m.streamBuffer.Reset()
		m.streaming = false
		m.turnPending = false
		m.pendingEcho = ""
		m.clearNotices()
		m.totalPromptTokens = 0
		m.totalCompletionTokens = 0
		m.totalCost = 0
		m.refreshViewport()
		m.viewport.GotoBottom()
	}
	return nil
}
