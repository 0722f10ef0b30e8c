package chat

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylxr59/prattle/pkg/types"
)

func appendTurns(t *testing.T, c *Conversation, branchID string, contents ...string) []*types.Message {
	t.Helper()
	out := make([]*types.Message, 0, len(contents))
	for i, text := range contents {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		m, err := c.AppendMessage(branchID, types.NewMessage(role, text))
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func contents(msgs []*types.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func TestNewConversationHasActiveRoot(t *testing.T) {
	c := NewConversation("untitled", "test/model", "")
	assert.Equal(t, c.RootBranchID(), c.ActiveBranchID())

	root, err := c.Branch(c.RootBranchID())
	require.NoError(t, err)
	assert.True(t, root.IsRoot())
	assert.Zero(t, root.Len())
}

func TestAppendMessageValidation(t *testing.T) {
	c := NewConversation("untitled", "test/model", "")

	_, err := c.AppendMessage("no-such-branch", types.NewUserMessage("hi"))
	assert.ErrorIs(t, err, ErrInvalidBranch)

	_, err = c.AppendMessage(c.RootBranchID(), types.NewMessage(types.Role("tool"), "hi"))
	assert.ErrorIs(t, err, ErrInvalidRole)

	m, err := c.AppendMessage(c.RootBranchID(), types.NewUserMessage("hi"))
	require.NoError(t, err)
	assert.Equal(t, c.RootBranchID(), m.BranchID)
}

func TestForkFreezesPrefix(t *testing.T) {
	c := NewConversation("untitled", "test/model", "")
	root := c.RootBranchID()
	appendTurns(t, c, root, "u1", "a1", "u2", "a2")

	fork, err := c.Fork(root, 2)
	require.NoError(t, err)

	history, err := c.EffectiveHistory(fork.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "a1"}, contents(history))

	// Appending to the fork leaves the root untouched.
	appendTurns(t, c, fork.ID, "u3")
	history, err = c.EffectiveHistory(fork.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "a1", "u3"}, contents(history))

	rootHistory, err := c.EffectiveHistory(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "a1", "u2", "a2"}, contents(rootHistory))

	// And appending to the root never leaks into the fork.
	appendTurns(t, c, root, "u4")
	history, err = c.EffectiveHistory(fork.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "a1", "u3"}, contents(history))
}

func TestForkAtTipAndOutOfRange(t *testing.T) {
	c := NewConversation("untitled", "test/model", "")
	root := c.RootBranchID()
	appendTurns(t, c, root, "u1", "a1")

	_, err := c.Fork(root, 2)
	assert.NoError(t, err)

	_, err = c.Fork(root, 3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = c.Fork(root, -1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = c.Fork("no-such-branch", 0)
	assert.ErrorIs(t, err, ErrInvalidBranch)
}

func TestNestedForks(t *testing.T) {
	c := NewConversation("untitled", "test/model", "")
	root := c.RootBranchID()
	appendTurns(t, c, root, "u1", "a1", "u2", "a2")

	mid, err := c.Fork(root, 2)
	require.NoError(t, err)
	appendTurns(t, c, mid.ID, "m1", "m2")

	leaf, err := c.Fork(mid.ID, 3) // u1, a1, m1
	require.NoError(t, err)
	appendTurns(t, c, leaf.ID, "l1")

	history, err := c.EffectiveHistory(leaf.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "a1", "m1", "l1"}, contents(history))
}

func TestDeleteBranch(t *testing.T) {
	c := NewConversation("untitled", "test/model", "")
	root := c.RootBranchID()
	appendTurns(t, c, root, "u1", "a1")

	fork, err := c.Fork(root, 2)
	require.NoError(t, err)
	require.NoError(t, c.SetActiveBranch(fork.ID))

	// Root has a child and cannot go.
	assert.ErrorIs(t, c.DeleteBranch(root), ErrBranchHasChildren)

	// Deleting the active branch falls back to the root.
	require.NoError(t, c.DeleteBranch(fork.ID))
	assert.Equal(t, root, c.ActiveBranchID())

	assert.ErrorIs(t, c.DeleteBranch(fork.ID), ErrInvalidBranch)
}

func TestRecordCompaction(t *testing.T) {
	c := NewConversation("untitled", "test/model", "")
	root := c.RootBranchID()
	appendTurns(t, c, root, "u1", "a1", "u2", "a2", "u3", "a3")

	summary := types.NewSummaryMessage("s1")
	rec, err := c.RecordCompaction(root, 4, summary, false)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Start)
	assert.Equal(t, 4, rec.End)

	view, err := c.AssembledHistory(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "u3", "a3"}, contents(view))

	// Raw history is unaffected: compaction replaces, never deletes.
	raw, err := c.EffectiveHistory(root)
	require.NoError(t, err)
	assert.Len(t, raw, 6)
}

func TestRecordCompactionValidation(t *testing.T) {
	c := NewConversation("untitled", "test/model", "")
	root := c.RootBranchID()
	appendTurns(t, c, root, "u1", "a1")

	_, err := c.RecordCompaction(root, 1, types.NewUserMessage("not a summary"), false)
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = c.RecordCompaction(root, 3, types.NewSummaryMessage("s"), false)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = c.RecordCompaction(root, 0, types.NewSummaryMessage("s"), false)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = c.RecordCompaction("no-such-branch", 1, types.NewSummaryMessage("s"), false)
	assert.True(t, errors.Is(err, ErrInvalidBranch))
}

func TestRecompactionMergesRecords(t *testing.T) {
	c := NewConversation("untitled", "test/model", "")
	root := c.RootBranchID()
	appendTurns(t, c, root, "u1", "a1", "u2", "a2", "u3", "a3")

	_, err := c.RecordCompaction(root, 2, types.NewSummaryMessage("s1"), false)
	require.NoError(t, err)

	// Merged re-compaction folds s1 and the next messages into one record.
	_, err = c.RecordCompaction(root, 4, types.NewSummaryMessage("s2"), true)
	require.NoError(t, err)

	b, err := c.Branch(root)
	require.NoError(t, err)
	require.Len(t, b.Records(), 1)
	assert.Equal(t, 0, b.Records()[0].Start)
	assert.Equal(t, 4, b.Records()[0].End)

	view, err := c.AssembledHistory(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "u3", "a3"}, contents(view))
}

func TestAssembledHistoryOnForkIgnoresPartialParentRecord(t *testing.T) {
	c := NewConversation("untitled", "test/model", "")
	root := c.RootBranchID()
	appendTurns(t, c, root, "u1", "a1", "u2", "a2")

	fork, err := c.Fork(root, 2)
	require.NoError(t, err)
	appendTurns(t, c, fork.ID, "f1")

	// The root compacts past the fork point. The fork only inherited two
	// of the four compacted messages, so it keeps them raw.
	_, err = c.RecordCompaction(root, 4, types.NewSummaryMessage("s1"), false)
	require.NoError(t, err)

	view, err := c.AssembledHistory(fork.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "a1", "f1"}, contents(view))

	rootView, err := c.AssembledHistory(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, contents(rootView))
}

func TestAssembledHistoryInheritsParentSummary(t *testing.T) {
	c := NewConversation("untitled", "test/model", "")
	root := c.RootBranchID()
	appendTurns(t, c, root, "u1", "a1", "u2", "a2")

	_, err := c.RecordCompaction(root, 2, types.NewSummaryMessage("s1"), false)
	require.NoError(t, err)

	// Fork at the tip: the whole compacted range is inherited, so the fork
	// sees the summary in place of the raw pair.
	fork, err := c.Fork(root, 4)
	require.NoError(t, err)
	appendTurns(t, c, fork.ID, "f1")

	view, err := c.AssembledHistory(fork.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "u2", "a2", "f1"}, contents(view))
}

func TestMessagesIncludesSummaries(t *testing.T) {
	c := NewConversation("untitled", "test/model", "")
	root := c.RootBranchID()
	appendTurns(t, c, root, "u1", "a1")

	_, err := c.RecordCompaction(root, 2, types.NewSummaryMessage("s1"), false)
	require.NoError(t, err)

	all := c.Messages()
	assert.Len(t, all, 3)
}

func TestSummariesOrderIsStable(t *testing.T) {
	c := NewConversation("untitled", "test/model", "")
	root := c.RootBranchID()
	appendTurns(t, c, root, "u1", "a1", "u2", "a2", "u3", "a3")

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s1 := types.NewSummaryMessage("s1")
	s1.CreatedAt = base
	s2 := types.NewSummaryMessage("s2")
	s2.CreatedAt = base.Add(time.Minute)
	s3 := types.NewSummaryMessage("s3")
	s3.CreatedAt = base.Add(2 * time.Minute)

	// Two merged re-compactions leave s1 and s2 without a record.
	_, err := c.RecordCompaction(root, 2, s1, false)
	require.NoError(t, err)
	_, err = c.RecordCompaction(root, 4, s2, true)
	require.NoError(t, err)
	_, err = c.RecordCompaction(root, 6, s3, true)
	require.NoError(t, err)

	branch, err := c.Branch(root)
	require.NoError(t, err)

	want := []string{"s3", "s1", "s2"}
	for i := 0; i < 10; i++ {
		assert.Equal(t, want, contents(branch.Summaries()))
	}

	first, err := Serialize(c)
	require.NoError(t, err)
	second, err := Serialize(c)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
