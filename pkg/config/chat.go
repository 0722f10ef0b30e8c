package config

import (
	"sync"
)

const (
	// SectionIDChat is the identifier for the chat/context settings section
	SectionIDChat = "chat"

	// DefaultTokenBudget is the prompt token budget used when no model
	// context length is known.
	DefaultTokenBudget = 32768

	// DefaultMinChunkTokens is the minimum combined token count of a message
	// run before it is worth compacting.
	DefaultMinChunkTokens = 2048

	// DefaultMinChunkMessages is the minimum number of raw messages a
	// compaction run must cover.
	DefaultMinChunkMessages = 2

	// DefaultCompactThresholdPercent triggers proactive compaction when the
	// assembled prompt crosses this percentage of the token budget.
	DefaultCompactThresholdPercent = 80

	// DefaultTitleUpdateInterval is how often titles regenerate, in seconds.
	DefaultTitleUpdateInterval = 300

	// DefaultMemoryUpdateInterval is how often memory extraction runs, in seconds.
	DefaultMemoryUpdateInterval = 600

	// DefaultMaxMemoryEntries bounds how many facts a single extraction
	// run may add to the ledger.
	DefaultMaxMemoryEntries = 10

	minUpdateInterval        = 60
	maxTitleUpdateInterval   = 3600
	maxMemoryUpdateInterval  = 7200
	minMemoryEntries         = 1
	maxMemoryEntriesLimit    = 100
	minCompactThresholdPct   = 10
	maxCompactThresholdPct   = 100
)

// ChatSection manages context, compaction, and background update settings.
type ChatSection struct {
	TokenBudget             int
	MinChunkTokens          int
	MinChunkMessages        int
	CompactThresholdPercent float64
	TitleUpdateInterval     int // seconds
	MemoryUpdateInterval    int // seconds
	MaxMemoryEntries        int
	mu                      sync.RWMutex
}

// NewChatSection creates a new chat section with default settings.
func NewChatSection() *ChatSection {
	return &ChatSection{
		TokenBudget:             DefaultTokenBudget,
		MinChunkTokens:          DefaultMinChunkTokens,
		MinChunkMessages:        DefaultMinChunkMessages,
		CompactThresholdPercent: DefaultCompactThresholdPercent,
		TitleUpdateInterval:     DefaultTitleUpdateInterval,
		MemoryUpdateInterval:    DefaultMemoryUpdateInterval,
		MaxMemoryEntries:        DefaultMaxMemoryEntries,
	}
}

// ID returns the section identifier.
func (s *ChatSection) ID() string {
	return SectionIDChat
}

// Title returns the section title.
func (s *ChatSection) Title() string {
	return "Context & Memory"
}

// Data returns the current configuration data.
func (s *ChatSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"token_budget":              s.TokenBudget,
		"min_chunk_tokens":          s.MinChunkTokens,
		"min_chunk_messages":        s.MinChunkMessages,
		"compact_threshold_percent": s.CompactThresholdPercent,
		"title_update_interval":     s.TitleUpdateInterval,
		"memory_update_interval":    s.MemoryUpdateInterval,
		"max_memory_entries":        s.MaxMemoryEntries,
	}
}

// SetData updates the configuration from the provided data, clamping every
// value into its valid range rather than rejecting the file.
func (s *ChatSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := asInt(data["token_budget"]); ok && v > 0 {
		s.TokenBudget = v
	}
	if v, ok := asInt(data["min_chunk_tokens"]); ok && v > 0 {
		s.MinChunkTokens = v
	}
	if v, ok := asInt(data["min_chunk_messages"]); ok && v >= 1 {
		s.MinChunkMessages = v
	}
	if v, ok := asFloat(data["compact_threshold_percent"]); ok {
		s.CompactThresholdPercent = clampFloat(v, minCompactThresholdPct, maxCompactThresholdPct)
	}
	if v, ok := asInt(data["title_update_interval"]); ok {
		s.TitleUpdateInterval = clampInt(v, minUpdateInterval, maxTitleUpdateInterval)
	}
	if v, ok := asInt(data["memory_update_interval"]); ok {
		s.MemoryUpdateInterval = clampInt(v, minUpdateInterval, maxMemoryUpdateInterval)
	}
	if v, ok := asInt(data["max_memory_entries"]); ok {
		s.MaxMemoryEntries = clampInt(v, minMemoryEntries, maxMemoryEntriesLimit)
	}
	return nil
}

// Validate validates the current configuration.
func (s *ChatSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// SetData clamps everything, so stored state is always valid.
	return nil
}

// GetTokenBudget returns the prompt token budget.
func (s *ChatSection) GetTokenBudget() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.TokenBudget
}

// GetMinChunkTokens returns the minimum compactable run size in tokens.
func (s *ChatSection) GetMinChunkTokens() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.MinChunkTokens
}

// GetMinChunkMessages returns the minimum compactable run size in messages.
func (s *ChatSection) GetMinChunkMessages() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.MinChunkMessages
}

// GetCompactThresholdPercent returns the proactive compaction trigger.
func (s *ChatSection) GetCompactThresholdPercent() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CompactThresholdPercent
}

// GetTitleUpdateInterval returns the title refresh interval in seconds.
func (s *ChatSection) GetTitleUpdateInterval() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.TitleUpdateInterval
}

// GetMemoryUpdateInterval returns the extraction interval in seconds.
func (s *ChatSection) GetMemoryUpdateInterval() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.MemoryUpdateInterval
}

// GetMaxMemoryEntries returns how many facts one extraction run may add.
func (s *ChatSection) GetMaxMemoryEntries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.MaxMemoryEntries
}

// asInt converts YAML-decoded numeric values, which may arrive as int,
// int64, or float64 depending on the decoder path.
func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
