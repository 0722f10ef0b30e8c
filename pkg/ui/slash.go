package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tylxr59/prattle/pkg/chat"
	"github.com/tylxr59/prattle/pkg/llm"
	"github.com/tylxr59/prattle/pkg/search"
)

// modelLister is implemented by providers that expose a model catalog.
type modelLister interface {
	ListModels(ctx context.Context) ([]llm.ModelInfo, error)
}

// parseSlash splits "/cmd rest of args" into its name and argument string.
func parseSlash(text string) (name, args string) {
	text = strings.TrimPrefix(text, "/")
	parts := strings.SplitN(text, " ", 2)
	name = strings.ToLower(strings.TrimSpace(parts[0]))
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	return name, args
}

// handleSlash dispatches a slash command. Commands that hit the model or
// the index run off the Update loop and report back via slashResultMsg.
func (m *model) handleSlash(text string) tea.Cmd {
	name, args := parseSlash(text)

	switch name {
	case "help":
		m.addNotice(helpText()...)
		return nil

	case "new":
		return m.cmdNew(args)

	case "branches":
		m.addNotice(m.describeBranches()...)
		return nil

	case "switch":
		return m.cmdSwitch(args)

	case "fork":
		return m.cmdFork(args)

	case "compact":
		return m.cmdCompact()

	case "models":
		return m.cmdModels()

	case "model":
		return m.cmdModel(args)

	case "search":
		return m.cmdSearch(args)

	case "parse":
		return m.cmdParse()

	case "memories":
		m.addNotice(m.describeMemories()...)
		return nil

	case "remember":
		return m.cmdRemember(args)

	case "title":
		return m.cmdTitle(args)

	case "move":
		return m.cmdMove(args)

	case "delete":
		return m.cmdDelete()

	case "copy":
		m.copyLastReply()
		return nil

	case "clear":
		m.clearNotices()
		m.refreshViewport()
		return nil

	case "quit", "exit":
		m.shouldQuit = true
		return tea.Quit

	default:
		m.addNotice(errorStyle.Render("unknown command: /" + name))
		return nil
	}
}

func helpText() []string {
	return []string{
		helpStyle.Render("Commands:"),
		"  /new [folder]      start a new conversation",
		"  /branches          list branches of this conversation",
		"  /switch <n|id>     switch to another branch",
		"  /fork <index>      fork the current branch at a message index",
		"  /compact           fold older messages into a summary",
		"  /models            list available models",
		"  /model <id>        switch model for this conversation",
		"  /search <query>    full-text search, folder:<glob> to filter",
		"  /parse             refresh memories and title from recent messages",
		"  /memories          list remembered facts",
		"  /remember <fact>   remember a fact directly",
		"  /title <text>      rename this conversation",
		"  /move <folder>     move this conversation to a folder",
		"  /delete            delete this conversation",
		"  /copy              copy the last reply (also ctrl+y)",
		"  /clear             clear command output",
		"  /quit              exit",
		helpStyle.Render("Keys: ctrl+b sidebar, esc interrupt, ctrl+c quit"),
	}
}

func (m *model) cmdNew(folder string) tea.Cmd {
	modelID := ""
	if m.provider != nil {
		modelID = m.provider.GetModel()
	}
	conv := chat.NewConversation(chat.DefaultTitle, modelID, folder)
	if err := m.library.Save(conv); err != nil {
		m.addNotice(errorStyle.Render("error: " + err.Error()))
		return nil
	}
	m.engine.SetConversation(conv)
	m.refreshConversations()
	return nil
}

// describeBranches lists the conversation's branches with stable indices
// usable by /switch.
func (m *model) describeBranches() []string {
	conv := m.activeConversation()
	if conv == nil {
		return []string{errorStyle.Render("no active conversation")}
	}

	lines := []string{helpStyle.Render("Branches:")}
	for i, branch := range conv.Branches() {
		marker := " "
		if branch.ID == conv.ActiveBranchID() {
			marker = "*"
		}
		desc := fmt.Sprintf("%s %d. %s  %d messages", marker, i, shortID(branch.ID), branch.Len())
		if !branch.IsRoot() {
			desc += fmt.Sprintf(", forked at %d", branch.ForkPoint)
		}
		lines = append(lines, desc)
	}
	return lines
}

func (m *model) cmdSwitch(args string) tea.Cmd {
	conv := m.activeConversation()
	if conv == nil {
		m.addNotice(errorStyle.Render("no active conversation"))
		return nil
	}
	if args == "" {
		m.addNotice(m.describeBranches()...)
		return nil
	}

	branches := conv.Branches()
	target := ""
	if n, err := strconv.Atoi(args); err == nil && n >= 0 && n < len(branches) {
		target = branches[n].ID
	} else {
		for _, branch := range branches {
			if strings.HasPrefix(branch.ID, args) {
				target = branch.ID
				break
			}
		}
	}
	if target == "" {
		m.addNotice(errorStyle.Render("no branch matching " + args))
		return nil
	}

	if err := conv.SetActiveBranch(target); err != nil {
		m.addNotice(errorStyle.Render("error: " + err.Error()))
		return nil
	}
	m.saveConversation(conv)
	m.addNotice(noticeStyle.Render("switched to branch " + shortID(target)))
	m.refreshViewport()
	return nil
}

func (m *model) cmdFork(args string) tea.Cmd {
	conv := m.activeConversation()
	if conv == nil {
		m.addNotice(errorStyle.Render("no active conversation"))
		return nil
	}
	atIndex, err := strconv.Atoi(args)
	if err != nil {
		m.addNotice(errorStyle.Render("usage: /fork <message index>"))
		return nil
	}

	branch, err := conv.Fork(conv.ActiveBranchID(), atIndex)
	if err != nil {
		m.addNotice(errorStyle.Render("error: " + err.Error()))
		return nil
	}
	if err := conv.SetActiveBranch(branch.ID); err != nil {
		m.addNotice(errorStyle.Render("error: " + err.Error()))
		return nil
	}
	m.saveConversation(conv)
	m.addNotice(noticeStyle.Render(fmt.Sprintf("forked at message %d, now on branch %s", atIndex, shortID(branch.ID))))
	m.refreshViewport()
	return nil
}

func (m *model) cmdCompact() tea.Cmd {
	engine := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if err := engine.Compact(ctx); err != nil {
			return slashResultMsg{err: err}
		}
		// Progress and outcome arrive as compaction events.
		return slashResultMsg{}
	}
}

func (m *model) cmdModels() tea.Cmd {
	lister, ok := m.provider.(modelLister)
	if !ok {
		m.addNotice(errorStyle.Render("provider does not expose a model catalog"))
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		models, err := lister.ListModels(ctx)
		if err != nil {
			return slashResultMsg{err: err}
		}
		lines := []string{helpStyle.Render(fmt.Sprintf("%d models, /model <id> to switch:", len(models)))}
		for i, info := range models {
			if i >= 25 {
				lines = append(lines, helpStyle.Render("  ..."))
				break
			}
			lines = append(lines, fmt.Sprintf("  %s  %dk ctx", info.ID, info.ContextLength/1000))
		}
		return slashResultMsg{lines: lines}
	}
}

func (m *model) cmdModel(id string) tea.Cmd {
	if id == "" {
		m.addNotice(errorStyle.Render("usage: /model <id>"))
		return nil
	}
	cloner, ok := m.provider.(llm.ModelCloner)
	if !ok {
		m.addNotice(errorStyle.Render("provider does not support model switching"))
		return nil
	}

	next := cloner.CloneWithModel(id)
	if err := m.engine.SetProvider(next); err != nil {
		m.addNotice(errorStyle.Render("error: " + err.Error()))
		return nil
	}
	m.provider = next

	if conv := m.activeConversation(); conv != nil {
		conv.SetModel(id)
		m.saveConversation(conv)
	}
	m.addNotice(noticeStyle.Render("switched to " + id))
	return nil
}

func (m *model) cmdSearch(args string) tea.Cmd {
	if m.index == nil {
		m.addNotice(errorStyle.Render("search index not configured"))
		return nil
	}

	opts := search.QueryOptions{Limit: 10}
	var terms []string
	for _, field := range strings.Fields(args) {
		if strings.HasPrefix(field, "folder:") {
			opts.FolderGlob = strings.TrimPrefix(field, "folder:")
			continue
		}
		terms = append(terms, field)
	}
	query := strings.Join(terms, " ")
	if query == "" {
		m.addNotice(errorStyle.Render("usage: /search [folder:<glob>] <query>"))
		return nil
	}

	index := m.index
	library := m.library
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		it := index.Query(query, opts)
		defer it.Close()

		titles := conversationTitles(library)
		var lines []string
		for {
			match, err := it.Next(ctx)
			if err != nil {
				return slashResultMsg{err: err}
			}
			if match == nil {
				break
			}
			title := titles[match.ConversationID]
			if title == "" {
				title = shortID(match.ConversationID)
			}
			lines = append(lines, fmt.Sprintf("  %s [%s] %s",
				truncate(title, 24), match.Role, truncate(match.Content, 60)))
		}
		if len(lines) == 0 {
			return slashResultMsg{lines: []string{helpStyle.Render("no matches for " + query)}}
		}
		header := helpStyle.Render(fmt.Sprintf("%d matches for %q:", len(lines), query))
		return slashResultMsg{lines: append([]string{header}, lines...)}
	}
}

func (m *model) cmdParse() tea.Cmd {
	m.addNotice(noticeStyle.Render("refreshing memories and title..."))
	engine := m.engine
	return func() tea.Msg {
		if err := engine.Parse(); err != nil {
			return slashResultMsg{err: err}
		}
		// Results land as memories-updated and title-updated events.
		return slashResultMsg{}
	}
}

func (m *model) describeMemories() []string {
	if m.ledger == nil {
		return []string{errorStyle.Render("memory ledger not configured")}
	}
	entries := m.ledger.Active()
	if len(entries) == 0 {
		return []string{helpStyle.Render("no memories yet")}
	}
	lines := []string{helpStyle.Render(fmt.Sprintf("%d remembered facts:", len(entries)))}
	for _, entry := range entries {
		lines = append(lines, "  "+shortID(entry.ID)+"  "+entry.Text)
	}
	return lines
}

func (m *model) cmdRemember(text string) tea.Cmd {
	if m.ledger == nil {
		m.addNotice(errorStyle.Render("memory ledger not configured"))
		return nil
	}
	if text == "" {
		m.addNotice(errorStyle.Render("usage: /remember <fact>"))
		return nil
	}
	conversationID := ""
	if conv := m.activeConversation(); conv != nil {
		conversationID = conv.ID
	}
	if _, err := m.ledger.Append(text, conversationID); err != nil {
		m.addNotice(errorStyle.Render("error: " + err.Error()))
		return nil
	}
	m.memoryCount = m.ledger.ActiveCount()
	m.addNotice(noticeStyle.Render("remembered"))
	return nil
}

func (m *model) cmdTitle(title string) tea.Cmd {
	conv := m.activeConversation()
	if conv == nil {
		m.addNotice(errorStyle.Render("no active conversation"))
		return nil
	}
	if title == "" {
		m.addNotice(errorStyle.Render("usage: /title <text>"))
		return nil
	}
	conv.SetTitle(title)
	m.saveConversation(conv)
	m.refreshConversations()
	return nil
}

func (m *model) cmdMove(folder string) tea.Cmd {
	conv := m.activeConversation()
	if conv == nil {
		m.addNotice(errorStyle.Render("no active conversation"))
		return nil
	}
	if err := m.library.Move(conv.ID, folder); err != nil {
		m.addNotice(errorStyle.Render("error: " + err.Error()))
		return nil
	}
	if folder == "" {
		m.addNotice(noticeStyle.Render("moved to library root"))
	} else {
		m.addNotice(noticeStyle.Render("moved to " + folder))
	}
	m.refreshConversations()
	return nil
}

func (m *model) cmdDelete() tea.Cmd {
	conv := m.activeConversation()
	if conv == nil {
		m.addNotice(errorStyle.Render("no active conversation"))
		return nil
	}

	if err := m.library.Delete(conv.ID); err != nil {
		m.addNotice(errorStyle.Render("error: " + err.Error()))
		return nil
	}
	if m.index != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.index.DeleteConversation(ctx, conv.ID); err != nil {
			uiLog.Warnf("failed to drop conversation %s from index: %v", conv.ID, err)
		}
	}

	m.refreshConversations()
	return m.cmdNew("")
}

// saveConversation persists and logs instead of interrupting the session.
func (m *model) saveConversation(conv *chat.Conversation) {
	if err := m.library.Save(conv); err != nil {
		uiLog.Errorf("failed to save conversation %s: %v", conv.ID, err)
		m.addNotice(errorStyle.Render("save failed: " + err.Error()))
	}
}

// shortID trims a uuid-style id for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// conversationTitles maps conversation ids to display titles for search
// result rendering.
func conversationTitles(library *chat.Library) map[string]string {
	titles := make(map[string]string)
	if library == nil {
		return titles
	}
	infos, err := library.List()
	if err != nil {
		return titles
	}
	for _, info := range infos {
		titles[info.ID] = info.Title
	}
	return titles
}
