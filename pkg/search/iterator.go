package search

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gobwas/glob"

	"github.com/tylxr59/prattle/pkg/types"
)

// Iterator walks the matches of one query lazily. The underlying scan
// starts on the first Next call, so constructing an iterator is free and a
// restarted iterator observes index writes made since the previous pass.
// Not safe for concurrent use.
type Iterator struct {
	idx     *Index
	text    string
	opts    QueryOptions
	rows    *sql.Rows
	folder  glob.Glob
	emitted int
	done    bool
}

// Next returns the next match, or (nil, nil) when the results are
// exhausted. The first call executes the query.
func (it *Iterator) Next(ctx context.Context) (*Match, error) {
	if it.done {
		return nil, nil
	}
	if it.rows == nil {
		if err := it.start(ctx); err != nil {
			it.done = true
			return nil, err
		}
	}

	limit := it.opts.Limit
	if limit <= 0 {
		limit = 50
	}

	for it.rows.Next() {
		var m Match
		var role string
		if err := it.rows.Scan(&m.ConversationID, &m.BranchID, &m.MessageID, &role, &m.Folder, &m.Content, &m.CreatedAt, &m.Rank); err != nil {
			it.close()
			return nil, fmt.Errorf("search: scan match: %w", err)
		}
		m.Role = types.Role(role)

		if it.folder != nil && !it.folder.Match(m.Folder) {
			continue
		}

		it.emitted++
		if it.emitted >= limit {
			// Mark exhaustion too, otherwise the next call would
			// re-execute the query and replay rows from the top.
			it.done = true
			it.close()
		}
		return &m, nil
	}

	err := it.rows.Err()
	it.done = true
	it.close()
	if err != nil {
		return nil, fmt.Errorf("search: iterate matches: %w", err)
	}
	return nil, nil
}

// Restart resets the iterator so the next Next call re-scans current index
// state from the top.
func (it *Iterator) Restart() {
	it.close()
	it.done = false
	it.emitted = 0
}

// Close releases the iterator's result set early. Safe to call at any
// point and more than once.
func (it *Iterator) Close() {
	it.close()
	it.done = true
}

func (it *Iterator) start(ctx context.Context) error {
	match := ftsQuery(it.text)
	if match == "" {
		return fmt.Errorf("search: empty query")
	}
	if it.opts.FolderGlob != "" && it.folder == nil {
		g, err := glob.Compile(it.opts.FolderGlob)
		if err != nil {
			return fmt.Errorf("search: bad folder pattern %q: %w", it.opts.FolderGlob, err)
		}
		it.folder = g
	}

	// bm25 returns lower-is-better scores. The glob filter runs in Go, so
	// no LIMIT here; the iterator stops emitting once it has enough.
	query := `
	SELECT m.conversation_id, m.branch_id, m.id, m.role, m.folder, m.content, m.created_at, bm25(messages_fts) AS rank
	FROM messages_fts
	JOIN messages m ON m.rowid = messages_fts.rowid
	WHERE messages_fts MATCH ?
	ORDER BY rank ASC, m.created_at DESC`

	rows, err := it.idx.db.QueryContext(ctx, query, match)
	if err != nil {
		return fmt.Errorf("search: query %q: %w", it.text, err)
	}
	it.rows = rows
	return nil
}

func (it *Iterator) close() {
	if it.rows != nil {
		it.rows.Close()
		it.rows = nil
	}
}
