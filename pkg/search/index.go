// Package search maintains a full-text index over persisted messages and
// answers ranked queries against it.
package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tylxr59/prattle/pkg/types"
)

// Index is a SQLite FTS5 full-text index over every persisted message,
// summaries included. Indexing is idempotent by message id so re-indexing
// a conversation after edits or compaction converges instead of
// duplicating.
type Index struct {
	db *sql.DB
}

// NewIndex opens an index at dbPath, creating the schema if needed. Pass
// ":memory:" for an ephemeral index.
func NewIndex(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("search: open database: %w", err)
	}
	// One connection: serializes writers, and keeps an in-memory database
	// from splitting across pooled connections.
	db.SetMaxOpenConns(1)

	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("search: migrate database: %w", err)
	}
	return idx, nil
}

// migrate creates the message table, its FTS5 shadow, and the triggers
// that keep them in sync.
func (idx *Index) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		branch_id TEXT NOT NULL,
		role TEXT NOT NULL,
		folder TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
		content,
		content='messages',
		content_rowid='rowid'
	);

	CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
		INSERT INTO messages_fts(rowid, content) VALUES (new.rowid, new.content);
	END;
	CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
		INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
	END;
	CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
		INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
		INSERT INTO messages_fts(rowid, content) VALUES (new.rowid, new.content);
	END;
	`
	_, err := idx.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// IndexMessage adds or refreshes one message. Replacing by id keeps the
// operation idempotent; the update trigger rewrites the FTS shadow row.
func (idx *Index) IndexMessage(ctx context.Context, conversationID, folder string, msg *types.Message) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("search: cannot index message without id")
	}
	query := `
	INSERT INTO messages (id, conversation_id, branch_id, role, folder, content, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		conversation_id = excluded.conversation_id,
		branch_id = excluded.branch_id,
		role = excluded.role,
		folder = excluded.folder,
		content = excluded.content,
		created_at = excluded.created_at`
	_, err := idx.db.ExecContext(ctx, query,
		msg.ID, conversationID, msg.BranchID, string(msg.Role), folder, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("search: index message %s: %w", msg.ID, err)
	}
	return nil
}

// IndexConversation indexes every message and summary a conversation
// currently holds.
func (idx *Index) IndexConversation(ctx context.Context, conversationID, folder string, msgs []*types.Message) error {
	for _, m := range msgs {
		if err := idx.IndexMessage(ctx, conversationID, folder, m); err != nil {
			return err
		}
	}
	return nil
}

// DeleteConversation removes all of a conversation's messages from the
// index.
func (idx *Index) DeleteConversation(ctx context.Context, conversationID string) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("search: delete conversation %s: %w", conversationID, err)
	}
	return nil
}

// Count returns the number of indexed messages.
func (idx *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := idx.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("search: count: %w", err)
	}
	return n, nil
}

// Match is one search hit, resolved to its conversation, branch, and
// message.
type Match struct {
	ConversationID string
	BranchID       string
	MessageID      string
	Role           types.Role
	Folder         string
	Content        string
	CreatedAt      time.Time
	Rank           float64
}

// QueryOptions narrow a query.
type QueryOptions struct {
	// FolderGlob restricts matches to conversations whose folder matches
	// the glob pattern. Empty matches everything.
	FolderGlob string

	// Limit caps the number of matches; zero or negative means 50.
	Limit int
}

// Query returns an iterator over messages matching text, best bm25 rank
// first and most recent first within equal ranks. The iterator is lazy: the
// database is not touched until Next, and every fresh iterator re-scans
// current index state.
func (idx *Index) Query(text string, opts QueryOptions) *Iterator {
	return &Iterator{
		idx:  idx,
		text: text,
		opts: opts,
	}
}

// ftsQuery quotes each whitespace-separated term so user input is matched
// literally instead of being parsed as FTS5 syntax.
func ftsQuery(text string) string {
	fields := strings.Fields(text)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}
