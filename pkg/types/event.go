package types

// ChatEventType defines the type of event emitted by the chat engine.
type ChatEventType string

const (
	EventTypeMessageStart     ChatEventType = "message_start"      // EventTypeMessageStart indicates the assistant has started a reply.
	EventTypeMessageContent   ChatEventType = "message_content"    // EventTypeMessageContent carries a streamed content delta.
	EventTypeMessageEnd       ChatEventType = "message_end"        // EventTypeMessageEnd indicates the assistant reply is complete.
	EventTypeTurnEnd          ChatEventType = "turn_end"           // EventTypeTurnEnd indicates the full turn (including commit) finished.
	EventTypeUpdateBusy       ChatEventType = "update_busy"        // EventTypeUpdateBusy indicates a change in the engine's busy status.
	EventTypeError            ChatEventType = "error"              // EventTypeError indicates a foreground error the user should see.
	EventTypeTokenUsage       ChatEventType = "token_usage"        // EventTypeTokenUsage carries token/cost accounting for a completion.
	EventTypeCompactionStart  ChatEventType = "compaction_start"   // EventTypeCompactionStart indicates context compaction has started.
	EventTypeCompactionDone   ChatEventType = "compaction_done"    // EventTypeCompactionDone indicates compaction finished successfully.
	EventTypeCompactionError  ChatEventType = "compaction_error"   // EventTypeCompactionError indicates compaction failed.
	EventTypeMemoriesUpdated  ChatEventType = "memories_updated"   // EventTypeMemoriesUpdated indicates the memory ledger changed.
	EventTypeTitleUpdated     ChatEventType = "title_updated"      // EventTypeTitleUpdated indicates a conversation title was regenerated.
	EventTypeConversationLoad ChatEventType = "conversation_load"  // EventTypeConversationLoad indicates the active conversation changed.
)

// ChatEvent represents an event emitted by the chat engine during a turn or
// from background work. The TUI consumes these to stay responsive while the
// engine blocks on the model call.
type ChatEvent struct {
	// Metadata holds optional additional information about the event.
	Metadata map[string]interface{}

	// Error contains error information for error events.
	Error error

	// Content holds text content for content-type events.
	Content string

	// BranchID identifies the branch the event relates to, when applicable.
	BranchID string

	// Type indicates the kind of event.
	Type ChatEventType

	// IsBusy indicates if the engine is busy (for busy status events).
	IsBusy bool

	// TokenUsage contains token usage information (for token usage events).
	TokenUsage *TokenUsage

	// Compaction contains compaction progress information (for compaction events).
	Compaction *CompactionInfo
}

// TokenUsage contains token usage and cost statistics from an LLM API call.
type TokenUsage struct {
	// PromptTokens is the number of tokens in the assembled prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens in the generated completion.
	CompletionTokens int

	// TotalTokens is the total number of tokens used.
	TotalTokens int

	// PromptCost is the prompt cost in USD, derived from catalog pricing.
	PromptCost float64

	// CompletionCost is the completion cost in USD.
	CompletionCost float64

	// TotalCost is the total cost in USD.
	TotalCost float64
}

// CompactionInfo contains information about a compaction run.
type CompactionInfo struct {
	// BranchID is the branch being compacted.
	BranchID string

	// CurrentTokens is the token count before compaction.
	CurrentTokens int

	// MaxTokens is the configured token budget.
	MaxTokens int

	// TokensSaved is the number of tokens saved by compaction.
	TokensSaved int

	// MessagesFolded is how many raw messages were folded into the summary.
	MessagesFolded int

	// Duration is a human-readable duration of the compaction run.
	Duration string
}

// NewMessageStartEvent creates an event indicating the assistant reply started.
func NewMessageStartEvent(branchID string) *ChatEvent {
	return &ChatEvent{Type: EventTypeMessageStart, BranchID: branchID}
}

// NewMessageContentEvent creates an event carrying a streamed content delta.
func NewMessageContentEvent(branchID, content string) *ChatEvent {
	return &ChatEvent{Type: EventTypeMessageContent, BranchID: branchID, Content: content}
}

// NewMessageEndEvent creates an event indicating the assistant reply finished.
func NewMessageEndEvent(branchID string) *ChatEvent {
	return &ChatEvent{Type: EventTypeMessageEnd, BranchID: branchID}
}

// NewTurnEndEvent creates an event indicating the turn is fully committed.
func NewTurnEndEvent(branchID string) *ChatEvent {
	return &ChatEvent{Type: EventTypeTurnEnd, BranchID: branchID}
}

// NewUpdateBusyEvent creates a busy status change event.
func NewUpdateBusyEvent(isBusy bool) *ChatEvent {
	return &ChatEvent{Type: EventTypeUpdateBusy, IsBusy: isBusy}
}

// NewErrorEvent creates an error event.
func NewErrorEvent(err error) *ChatEvent {
	return &ChatEvent{Type: EventTypeError, Error: err}
}

// NewTokenUsageEvent creates a token usage event.
func NewTokenUsageEvent(usage *TokenUsage) *ChatEvent {
	return &ChatEvent{Type: EventTypeTokenUsage, TokenUsage: usage}
}

// NewCompactionStartEvent creates an event indicating compaction started.
func NewCompactionStartEvent(branchID string, currentTokens, maxTokens int) *ChatEvent {
	return &ChatEvent{
		Type: EventTypeCompactionStart,
		Compaction: &CompactionInfo{
			BranchID:      branchID,
			CurrentTokens: currentTokens,
			MaxTokens:     maxTokens,
		},
	}
}

// NewCompactionDoneEvent creates an event indicating compaction finished.
func NewCompactionDoneEvent(info *CompactionInfo) *ChatEvent {
	return &ChatEvent{Type: EventTypeCompactionDone, BranchID: info.BranchID, Compaction: info}
}

// NewCompactionErrorEvent creates an event indicating compaction failed.
func NewCompactionErrorEvent(branchID string, err error) *ChatEvent {
	return &ChatEvent{Type: EventTypeCompactionError, BranchID: branchID, Error: err}
}

// NewMemoriesUpdatedEvent creates an event indicating the ledger changed.
func NewMemoriesUpdatedEvent(count int) *ChatEvent {
	return &ChatEvent{
		Type:     EventTypeMemoriesUpdated,
		Metadata: map[string]interface{}{"active_entries": count},
	}
}

// NewTitleUpdatedEvent creates an event carrying a regenerated title.
func NewTitleUpdatedEvent(title string) *ChatEvent {
	return &ChatEvent{Type: EventTypeTitleUpdated, Content: title}
}

// NewConversationLoadEvent creates an event indicating the active conversation changed.
func NewConversationLoadEvent(branchID string) *ChatEvent {
	return &ChatEvent{Type: EventTypeConversationLoad, BranchID: branchID}
}
