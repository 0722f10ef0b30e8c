package memory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "memories.yaml"))
	require.NoError(t, err)
	l := NewLedger(store)
	require.NoError(t, l.Load())
	return l
}

func TestLedgerAppendAndActive(t *testing.T) {
	l := newTestLedger(t)

	first, err := l.Append("user prefers dark mode", "conv-1")
	require.NoError(t, err)
	assert.True(t, first.Active())

	second, err := l.Append("user's name is Sam", "conv-1")
	require.NoError(t, err)

	active := l.Active()
	require.Len(t, active, 2)
	assert.Equal(t, first.ID, active[0].ID)
	assert.Equal(t, second.ID, active[1].ID)
}

func TestLedgerSupersede(t *testing.T) {
	l := newTestLedger(t)

	old, err := l.Append("user prefers dark mode", "conv-1")
	require.NoError(t, err)

	updated, err := l.Supersede(old.ID, "user prefers light mode", "conv-2")
	require.NoError(t, err)

	// Active view shows only the new fact.
	active := l.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "user prefers light mode", active[0].Text)

	// The old entry is retained with its text intact and its chain set.
	got, err := l.Get(old.ID)
	require.NoError(t, err)
	assert.Equal(t, "user prefers dark mode", got.Text)
	require.NotNil(t, got.SupersededBy)
	assert.Equal(t, updated.ID, *got.SupersededBy)

	// A chain pointer is written once.
	_, err = l.Supersede(old.ID, "user prefers sepia", "conv-3")
	assert.ErrorIs(t, err, ErrAlreadySuperseded)

	_, err = l.Supersede("mem_unknown", "whatever", "conv-3")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestLedgerRejectsEmptyText(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Append("   ", "conv-1")
	assert.Error(t, err)
}

func TestLedgerPersistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memories.yaml")

	store, err := NewFileStore(path)
	require.NoError(t, err)
	l := NewLedger(store)
	require.NoError(t, l.Load())

	old, err := l.Append("user prefers dark mode", "conv-1")
	require.NoError(t, err)
	_, err = l.Supersede(old.ID, "user prefers light mode", "conv-2")
	require.NoError(t, err)

	// Fresh ledger over the same file sees the same chain.
	store2, err := NewFileStore(path)
	require.NoError(t, err)
	l2 := NewLedger(store2)
	require.NoError(t, l2.Load())

	all := l2.All()
	require.Len(t, all, 2)
	assert.NotNil(t, all[0].SupersededBy)
	require.Len(t, l2.Active(), 1)
	assert.Equal(t, "user prefers light mode", l2.Active()[0].Text)
}

func TestLedgerLoadMissingFile(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "never-written.yaml"))
	require.NoError(t, err)
	l := NewLedger(store)
	require.NoError(t, l.Load())
	assert.Zero(t, l.ActiveCount())
}

func TestRenderBlock(t *testing.T) {
	l := NewLedger(nil)
	assert.Empty(t, l.RenderBlock())

	_, err := l.Append("user prefers dark mode", "conv-1")
	require.NoError(t, err)

	block := l.RenderBlock()
	assert.Contains(t, block, "Durable facts")
	assert.Contains(t, block, "- user prefers dark mode")
}
