package config

import (
	"sync"
)

const (
	// SectionIDLLM is the identifier for the LLM settings section
	SectionIDLLM = "llm"

	// DefaultChatModel is the model used for conversation turns.
	DefaultChatModel = "anthropic/claude-3.5-sonnet"

	// DefaultUtilityModel is the cheaper model used for titles, memory
	// extraction, and compaction summaries.
	DefaultUtilityModel = "anthropic/claude-3.5-haiku"
)

// LLMSection manages LLM provider configuration settings.
type LLMSection struct {
	Model        string
	UtilityModel string // used for titles, memory extraction, and summaries
	BaseURL      string
	APIKey       string
	mu           sync.RWMutex
}

// NewLLMSection creates a new LLM section with default settings.
func NewLLMSection() *LLMSection {
	return &LLMSection{
		Model:        DefaultChatModel,
		UtilityModel: DefaultUtilityModel,
	}
}

// ID returns the section identifier.
func (s *LLMSection) ID() string {
	return SectionIDLLM
}

// Title returns the section title.
func (s *LLMSection) Title() string {
	return "LLM Settings"
}

// Data returns the current configuration data.
func (s *LLMSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"model":         s.Model,
		"utility_model": s.UtilityModel,
		"base_url":      s.BaseURL,
		"api_key":       s.APIKey,
	}
}

// SetData updates the configuration from the provided data.
// Missing keys keep their current values.
func (s *LLMSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if model, ok := data["model"].(string); ok && model != "" {
		s.Model = model
	}
	if utility, ok := data["utility_model"].(string); ok && utility != "" {
		s.UtilityModel = utility
	}
	if baseURL, ok := data["base_url"].(string); ok {
		s.BaseURL = baseURL
	}
	if apiKey, ok := data["api_key"].(string); ok {
		s.APIKey = apiKey
	}
	return nil
}

// Validate validates the current configuration.
// The API key is optional here since it can also come from the environment;
// actual validation happens when the provider is constructed.
func (s *LLMSection) Validate() error {
	return nil
}

// GetModel returns the configured chat model name.
func (s *LLMSection) GetModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Model
}

// SetModel sets the chat model name.
func (s *LLMSection) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Model = model
}

// GetUtilityModel returns the configured utility model name.
func (s *LLMSection) GetUtilityModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.UtilityModel
}

// GetBaseURL returns the configured base URL.
func (s *LLMSection) GetBaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.BaseURL
}

// GetAPIKey returns the configured API key.
func (s *LLMSection) GetAPIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.APIKey
}
