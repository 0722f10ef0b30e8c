package chat

import (
	"sort"
	"time"

	"github.com/tylxr59/prattle/pkg/types"
)

// Branch is an independent continuation of a conversation's history from a
// fork point. Branches form a tree: every branch except the root references
// its parent by id, and parent links are set once at fork time and never
// change, so the chain always terminates at the root.
//
// A branch owns the messages appended to it. Its effective history is the
// parent's effective history truncated at the fork point, followed by its
// own messages.
type Branch struct {
	// ID is the stable unique identifier of the branch.
	ID string `yaml:"id"`

	// ParentID is the id of the parent branch. Empty only for the root.
	ParentID string `yaml:"parent_id,omitempty"`

	// ForkPoint is the index into the parent's effective history at which
	// this branch diverged. Zero and meaningless for the root.
	ForkPoint int `yaml:"fork_point,omitempty"`

	// CreatedAt is when the branch was created.
	CreatedAt time.Time `yaml:"created_at"`

	// messages are the turns this branch owns, in append order.
	messages []*types.Message

	// summaries are the synthetic summary messages produced by compacting
	// this branch, keyed into records by id. They are owned by this branch
	// but are not part of the raw message sequence.
	summaries map[string]*types.Message

	// records are this branch's compaction records, ordered, contiguous
	// from index zero of the branch's own messages.
	records []CompactionRecord
}

// CompactionRecord marks a range of a branch's own messages as replaced by
// a summary message. Ranges are half-open [Start, End) over the branch's
// own message sequence. Records on a branch never overlap: each new record
// begins at the branch's earliest retained index, so the record list is
// contiguous from zero.
type CompactionRecord struct {
	// BranchID is the branch whose messages were folded.
	BranchID string `yaml:"branch_id"`

	// Start is the first own-message index replaced.
	Start int `yaml:"start"`

	// End is one past the last own-message index replaced.
	End int `yaml:"end"`

	// SummaryMessageID is the id of the RoleSummary message standing in for
	// the range.
	SummaryMessageID string `yaml:"summary_message_id"`
}

// IsRoot returns true if this branch has no parent.
func (b *Branch) IsRoot() bool {
	return b.ParentID == ""
}

// Len returns the number of messages the branch owns.
func (b *Branch) Len() int {
	return len(b.messages)
}

// Messages returns the branch's own raw messages. The returned slice must
// not be mutated.
func (b *Branch) Messages() []*types.Message {
	return b.messages
}

// Records returns the branch's compaction records in order.
func (b *Branch) Records() []CompactionRecord {
	return b.records
}

// CompactedLen returns the number of own-message indices already folded
// into summaries. Because records are contiguous from zero this is simply
// the end of the last record.
func (b *Branch) CompactedLen() int {
	if len(b.records) == 0 {
		return 0
	}
	return b.records[len(b.records)-1].End
}

// Summary returns the summary message with the given id, or nil.
func (b *Branch) Summary(id string) *types.Message {
	return b.summaries[id]
}

// Summaries returns all summary messages the branch owns: record order
// first, then summaries whose record has since been merged away, oldest
// first. The order is stable so serialized conversations round-trip
// byte-identically.
func (b *Branch) Summaries() []*types.Message {
	out := make([]*types.Message, 0, len(b.summaries))
	for _, rec := range b.records {
		if s, ok := b.summaries[rec.SummaryMessageID]; ok {
			out = append(out, s)
		}
	}
	var orphans []*types.Message
	for id, s := range b.summaries {
		if !b.recordReferences(id) {
			orphans = append(orphans, s)
		}
	}
	sort.Slice(orphans, func(i, j int) bool {
		if orphans[i].CreatedAt.Equal(orphans[j].CreatedAt) {
			return orphans[i].ID < orphans[j].ID
		}
		return orphans[i].CreatedAt.Before(orphans[j].CreatedAt)
	})
	return append(out, orphans...)
}

func (b *Branch) recordReferences(summaryID string) bool {
	for _, rec := range b.records {
		if rec.SummaryMessageID == summaryID {
			return true
		}
	}
	return false
}

// CompactedView returns the branch's own messages with compacted ranges
// replaced by their summary messages: summaries for each record in order,
// then the raw tail that no record covers. Raw messages inside a compacted
// range never appear in the view.
func (b *Branch) CompactedView() []*types.Message {
	if len(b.records) == 0 {
		return b.messages
	}
	view := make([]*types.Message, 0, len(b.records)+len(b.messages)-b.CompactedLen())
	for _, rec := range b.records {
		if s, ok := b.summaries[rec.SummaryMessageID]; ok {
			view = append(view, s)
		}
	}
	view = append(view, b.messages[b.CompactedLen():]...)
	return view
}
