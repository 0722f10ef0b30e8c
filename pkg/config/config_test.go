package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	err = store.SetSection("llm", map[string]interface{}{
		"model":   "anthropic/claude-3.5-sonnet",
		"api_key": "sk-test",
	})
	require.NoError(t, err)
	assert.True(t, store.IsModified())

	require.NoError(t, store.Save())
	assert.False(t, store.IsModified())

	// Reload from disk into a fresh store.
	reloaded, err := NewFileStore(path)
	require.NoError(t, err)

	data, err := reloaded.GetSection("llm")
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", data["model"])
	assert.Equal(t, "sk-test", data["api_key"])
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	data, err := store.GetSection("anything")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestFileStoreSaveIsAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SetSection("ui", map[string]interface{}{"sidebar_width": 25}))
	require.NoError(t, store.Save())

	// No temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestManagerRegisterAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.SetSection(SectionIDChat, map[string]interface{}{
		"token_budget":          16000,
		"title_update_interval": 5, // below minimum, must clamp to 60
	}))

	manager := NewManager(store)
	chat := NewChatSection()
	require.NoError(t, manager.RegisterSection(chat))
	require.NoError(t, manager.LoadAll())

	assert.Equal(t, 16000, chat.GetTokenBudget())
	assert.Equal(t, 60, chat.GetTitleUpdateInterval())

	// Duplicate registration is rejected.
	err = manager.RegisterSection(NewChatSection())
	assert.Error(t, err)
}

func TestChatSectionClamping(t *testing.T) {
	tests := []struct {
		name string
		key  string
		in   interface{}
		get  func(*ChatSection) interface{}
		want interface{}
	}{
		{"memory interval above max", "memory_update_interval", 999999,
			func(s *ChatSection) interface{} { return s.GetMemoryUpdateInterval() }, 7200},
		{"memory entries below min", "max_memory_entries", 0,
			func(s *ChatSection) interface{} { return s.GetMaxMemoryEntries() }, 1},
		{"memory entries above max", "max_memory_entries", 500,
			func(s *ChatSection) interface{} { return s.GetMaxMemoryEntries() }, 100},
		{"threshold above max", "compact_threshold_percent", 150.0,
			func(s *ChatSection) interface{} { return s.GetCompactThresholdPercent() }, 100.0},
		{"yaml int64 accepted", "token_budget", int64(8192),
			func(s *ChatSection) interface{} { return s.GetTokenBudget() }, 8192},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewChatSection()
			require.NoError(t, s.SetData(map[string]interface{}{tt.key: tt.in}))
			assert.Equal(t, tt.want, tt.get(s))
		})
	}
}

func TestUISectionClamping(t *testing.T) {
	s := NewUISection()
	require.NoError(t, s.SetData(map[string]interface{}{"sidebar_width": 5}))
	assert.Equal(t, 20, s.GetSidebarWidth())

	require.NoError(t, s.SetData(map[string]interface{}{"sidebar_width": 200}))
	assert.Equal(t, 60, s.GetSidebarWidth())
}

func TestLLMSectionDefaults(t *testing.T) {
	s := NewLLMSection()
	assert.Equal(t, DefaultChatModel, s.GetModel())
	assert.Equal(t, DefaultUtilityModel, s.GetUtilityModel())

	// Empty strings in the file must not wipe out the defaults.
	require.NoError(t, s.SetData(map[string]interface{}{"model": "", "utility_model": ""}))
	assert.Equal(t, DefaultChatModel, s.GetModel())
}
