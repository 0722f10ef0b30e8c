package context

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylxr59/prattle/pkg/chat"
	"github.com/tylxr59/prattle/pkg/llm"
	"github.com/tylxr59/prattle/pkg/types"
)

// mockProvider returns a canned completion and records the prompts it saw.
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

type staticMemories struct{ block string }

func (s staticMemories) RenderBlock() string { return s.block }

func seedConversation(t *testing.T, contents ...string) *chat.Conversation {
	t.Helper()
	c := chat.NewConversation("test", "mock/model", "")
	for i, text := range contents {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		_, err := c.AppendMessage(c.RootBranchID(), types.NewMessage(role, text))
		require.NoError(t, err)
	}
	return c
}

func TestBuildPromptOrdering(t *testing.T) {
	a, err := NewAssembler("You are a helpful assistant.", 0, staticMemories{block: "- user likes Go\n"})
	require.NoError(t, err)

	c := seedConversation(t, "hi", "hello")

	prompt, total, err := a.BuildPrompt(c, c.RootBranchID())
	require.NoError(t, err)
	require.Len(t, prompt, 4)
	assert.Equal(t, types.RoleSystem, prompt[0].Role)
	assert.Equal(t, "You are a helpful assistant.", prompt[0].Content)
	assert.Equal(t, types.RoleSystem, prompt[1].Role)
	assert.Contains(t, prompt[1].Content, "user likes Go")
	assert.Equal(t, "hi", prompt[2].Content)
	assert.Equal(t, "hello", prompt[3].Content)
	assert.Greater(t, total, 0)
}

func TestBuildPromptSkipsEmptyMemoryBlock(t *testing.T) {
	a, err := NewAssembler("sys", 0, staticMemories{})
	require.NoError(t, err)

	c := seedConversation(t, "hi")
	prompt, _, err := a.BuildPrompt(c, c.RootBranchID())
	require.NoError(t, err)
	require.Len(t, prompt, 2)
}

func TestBuildPromptOverflow(t *testing.T) {
	a, err := NewAssembler("sys", 5, nil)
	require.NoError(t, err)

	c := seedConversation(t, "a message long enough to blow a five token budget easily")
	prompt, total, err := a.BuildPrompt(c, c.RootBranchID())
	assert.ErrorIs(t, err, ErrContextOverflow)
	assert.Greater(t, total, 5)
	// The prompt comes back anyway so the caller can compact and retry.
	assert.NotEmpty(t, prompt)
}

func TestBuildPromptUnknownBranch(t *testing.T) {
	a, err := NewAssembler("sys", 0, nil)
	require.NoError(t, err)

	c := seedConversation(t)
	_, _, err = a.BuildPrompt(c, "no-such-branch")
	assert.ErrorIs(t, err, chat.ErrInvalidBranch)
}

func TestCompactFoldsOldestRun(t *testing.T) {
	provider := &mockProvider{response: "condensed history"}
	comp, err := NewCompactor(provider, 1, 2)
	require.NoError(t, err)

	c := seedConversation(t, "u1", "a1", "u2", "a2", "u3", "a3")
	rec, err := comp.Compact(context.Background(), c, c.RootBranchID())
	require.NoError(t, err)

	assert.Equal(t, 0, rec.Start)
	assert.Equal(t, 4, rec.End) // last two messages stay raw

	view, err := c.AssembledHistory(c.RootBranchID())
	require.NoError(t, err)
	require.Len(t, view, 3)
	assert.True(t, view[0].IsSummary())
	assert.Equal(t, "condensed history", view[0].Content)
	assert.Equal(t, "u3", view[1].Content)

	// The summary never appears alongside the raw messages it replaced.
	for _, m := range view[1:] {
		assert.False(t, m.IsSummary())
	}
}

func TestCompactNothingToCompact(t *testing.T) {
	provider := &mockProvider{response: "unused"}
	comp, err := NewCompactor(provider, 1, 2)
	require.NoError(t, err)

	c := seedConversation(t, "only one message")
	_, err = comp.Compact(context.Background(), c, c.RootBranchID())
	assert.ErrorIs(t, err, ErrNothingToCompact)
	assert.Empty(t, provider.prompts)
}

func TestCompactRespectsTokenMinimum(t *testing.T) {
	provider := &mockProvider{response: "unused"}
	comp, err := NewCompactor(provider, 1_000_000, 2)
	require.NoError(t, err)

	c := seedConversation(t, "u1", "a1", "u2", "a2")
	_, err = comp.Compact(context.Background(), c, c.RootBranchID())
	assert.ErrorIs(t, err, ErrNothingToCompact)
}

func TestRecompactionFoldsPriorSummary(t *testing.T) {
	provider := &mockProvider{response: "first summary"}
	comp, err := NewCompactor(provider, 1, 2)
	require.NoError(t, err)

	c := seedConversation(t, "u1", "a1", "u2", "a2", "u3", "a3")
	_, err = comp.Compact(context.Background(), c, c.RootBranchID())
	require.NoError(t, err)

	for _, text := range []string{"u4", "a4"} {
		_, err := c.AppendMessage(c.RootBranchID(), types.NewUserMessage(text))
		require.NoError(t, err)
	}

	provider.response = "second summary"
	rec, err := comp.Compact(context.Background(), c, c.RootBranchID())
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Start)
	assert.Equal(t, 6, rec.End)

	// The second summarization prompt included the first summary's text.
	last := provider.prompts[len(provider.prompts)-1]
	assert.Contains(t, last[1].Content, "first summary")

	view, err := c.AssembledHistory(c.RootBranchID())
	require.NoError(t, err)
	require.Len(t, view, 3)
	assert.Equal(t, "second summary", view[0].Content)
}

func TestCompactModelErrorPropagates(t *testing.T) {
	provider := &mockProvider{err: llm.ErrModel}
	comp, err := NewCompactor(provider, 1, 2)
	require.NoError(t, err)

	c := seedConversation(t, "u1", "a1", "u2", "a2")
	_, err = comp.Compact(context.Background(), c, c.RootBranchID())
	assert.ErrorIs(t, err, llm.ErrModel)

	// Failed compaction records nothing.
	b, berr := c.Branch(c.RootBranchID())
	require.NoError(t, berr)
	assert.Empty(t, b.Records())
}
