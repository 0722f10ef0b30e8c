package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylxr59/prattle/pkg/llm"
	"github.com/tylxr59/prattle/pkg/types"
)

type mockProvider struct {
	response string
	err      error
	prompts  [][]*types.Message
}

func (m *mockProvider) StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *llm.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (m *mockProvider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	m.prompts = append(m.prompts, messages)
	if m.err != nil {
		return nil, m.err
	}
	return types.NewAssistantMessage(m.response), nil
}

func (m *mockProvider) GetModel() string             { return "mock/model" }
func (m *mockProvider) GetModelInfo() *llm.ModelInfo { return nil }

func exchange(texts ...string) []*types.Message {
	out := make([]*types.Message, 0, len(texts))
	for i, text := range texts {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		out = append(out, types.NewMessage(role, text))
	}
	return out
}

func TestExtractAppendsNewFacts(t *testing.T) {
	l := NewLedger(nil)
	provider := &mockProvider{response: `[{"text": "user prefers dark mode"}]`}
	x := NewExtractor(l, provider, 10)

	added := x.ExtractFromExchange(context.Background(), "conv-1", exchange("I always use dark mode", "Noted!"))
	assert.Equal(t, 1, added)

	active := l.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "user prefers dark mode", active[0].Text)
	assert.Equal(t, "conv-1", active[0].SourceConversationID)
}

func TestExtractSupersedesById(t *testing.T) {
	l := NewLedger(nil)
	old, err := l.Append("user prefers dark mode", "conv-1")
	require.NoError(t, err)

	provider := &mockProvider{
		response: `[{"text": "user prefers light mode", "supersedes": ["` + old.ID + `"]}]`,
	}
	x := NewExtractor(l, provider, 10)

	added := x.ExtractFromExchange(context.Background(), "conv-2", exchange("Switched to light mode actually", "Got it"))
	assert.Equal(t, 1, added)

	// The prompt listed the existing entry by id so the model could cite it.
	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0][1].Content, old.ID)

	active := l.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "user prefers light mode", active[0].Text)

	got, err := l.Get(old.ID)
	require.NoError(t, err)
	assert.False(t, got.Active())
}

func TestExtractHandlesFencedJSON(t *testing.T) {
	l := NewLedger(nil)
	provider := &mockProvider{response: "```json\n[{\"text\": \"user is a Go developer\"}]\n```"}
	x := NewExtractor(l, provider, 10)

	added := x.ExtractFromExchange(context.Background(), "conv-1", exchange("I write Go for a living", "Nice"))
	assert.Equal(t, 1, added)
}

func TestExtractParseFailureFallsBackToExactMatcher(t *testing.T) {
	l := NewLedger(nil)
	old, err := l.Append("user prefers dark mode", "conv-1")
	require.NoError(t, err)

	// Not JSON: degrades to line-per-fact with exact text matching.
	provider := &mockProvider{response: "- user prefers dark mode\n- user lives in Oslo"}
	x := NewExtractor(l, provider, 10)

	added := x.ExtractFromExchange(context.Background(), "conv-2", exchange("I live in Oslo", "Noted"))
	assert.Equal(t, 2, added)

	active := l.Active()
	require.Len(t, active, 2)

	// The restated fact superseded the original via exact match.
	got, err := l.Get(old.ID)
	require.NoError(t, err)
	assert.False(t, got.Active())
}

func TestExtractModelErrorIsSwallowed(t *testing.T) {
	l := NewLedger(nil)
	provider := &mockProvider{err: llm.ErrRateLimited}
	x := NewExtractor(l, provider, 10)

	added := x.ExtractFromExchange(context.Background(), "conv-1", exchange("hello", "hi"))
	assert.Zero(t, added)
	assert.Zero(t, l.ActiveCount())
}

func TestExtractCapsProposals(t *testing.T) {
	l := NewLedger(nil)
	provider := &mockProvider{response: `[{"text": "a"}, {"text": "b"}, {"text": "c"}]`}
	x := NewExtractor(l, provider, 2)

	added := x.ExtractFromExchange(context.Background(), "conv-1", exchange("hello", "hi"))
	assert.Equal(t, 2, added)
}

func TestExtractEmptyArrayAddsNothing(t *testing.T) {
	l := NewLedger(nil)
	provider := &mockProvider{response: "[]"}
	x := NewExtractor(l, provider, 10)

	added := x.ExtractFromExchange(context.Background(), "conv-1", exchange("hello", "hi"))
	assert.Zero(t, added)
}

func TestExactMatcher(t *testing.T) {
	entries := []*Entry{
		{ID: "mem_1", Text: "User Prefers Dark Mode"},
		{ID: "mem_2", Text: "user lives in Oslo"},
	}
	assert.Equal(t, []string{"mem_1"}, ExactMatcher{}.Match("user prefers dark mode", entries))
	assert.Empty(t, ExactMatcher{}.Match("user prefers light mode", entries))
}
