package config

import (
	"sync"
)

const (
	// SectionIDUI is the identifier for the UI settings section
	SectionIDUI = "ui"

	// DefaultSidebarWidth is the conversation sidebar width in columns.
	DefaultSidebarWidth = 30

	minSidebarWidth = 20
	maxSidebarWidth = 60
)

// UISection manages terminal UI settings.
type UISection struct {
	SidebarWidth   int
	RenderMarkdown bool
	mu             sync.RWMutex
}

// NewUISection creates a new UI section with default settings.
func NewUISection() *UISection {
	return &UISection{
		SidebarWidth:   DefaultSidebarWidth,
		RenderMarkdown: true,
	}
}

// ID returns the section identifier.
func (s *UISection) ID() string {
	return SectionIDUI
}

// Title returns the section title.
func (s *UISection) Title() string {
	return "Interface"
}

// Data returns the current configuration data.
func (s *UISection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"sidebar_width":   s.SidebarWidth,
		"render_markdown": s.RenderMarkdown,
	}
}

// SetData updates the configuration from the provided data.
func (s *UISection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := asInt(data["sidebar_width"]); ok {
		s.SidebarWidth = clampInt(v, minSidebarWidth, maxSidebarWidth)
	}
	if v, ok := data["render_markdown"].(bool); ok {
		s.RenderMarkdown = v
	}
	return nil
}

// Validate validates the current configuration.
func (s *UISection) Validate() error {
	return nil
}

// GetSidebarWidth returns the sidebar width in columns.
func (s *UISection) GetSidebarWidth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.SidebarWidth
}

// GetRenderMarkdown returns whether assistant replies render as markdown.
func (s *UISection) GetRenderMarkdown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.RenderMarkdown
}
