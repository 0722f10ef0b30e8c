package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tylxr59/prattle/pkg/types"
)

// Conversation is a tree of branches sharing a common prefix, plus the
// metadata the UI shows. It is the arena of Branch records: branches are
// looked up by stable id, parent references are plain id lookups, and
// exactly one branch is active for continued interaction.
//
// Mutations on a conversation are serialized by a single lock. Only
// per-branch serialization is strictly needed, but a conversation lock
// covers that and the write rate is one human.
type Conversation struct {
	// ID is the stable unique identifier of the conversation.
	ID string

	// Title is the display title, possibly model-generated.
	Title string

	// Model is the model id used for this conversation's turns.
	Model string

	// Folder is an optional organizational label. Empty means root.
	Folder string

	// CreatedAt is when the conversation was created.
	CreatedAt time.Time

	// UpdatedAt is bumped on every mutation.
	UpdatedAt time.Time

	branches map[string]*Branch
	order    []string // branch ids in creation order
	rootID   string
	activeID string

	mu sync.RWMutex
}

// DefaultTitle is the placeholder title a conversation carries until a
// real title is set or generated.
const DefaultTitle = "New conversation"

// NewConversation creates a conversation with a single empty root branch,
// which starts active.
func NewConversation(title, model, folder string) *Conversation {
	now := time.Now().UTC()
	root := &Branch{
		ID:        uuid.New().String(),
		CreatedAt: now,
		summaries: make(map[string]*types.Message),
	}
	return &Conversation{
		ID:        uuid.New().String(),
		Title:     title,
		Model:     model,
		Folder:    folder,
		CreatedAt: now,
		UpdatedAt: now,
		branches:  map[string]*Branch{root.ID: root},
		order:     []string{root.ID},
		rootID:    root.ID,
		activeID:  root.ID,
	}
}

// RootBranchID returns the id of the root branch.
func (c *Conversation) RootBranchID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rootID
}

// ActiveBranchID returns the id of the branch receiving new turns.
func (c *Conversation) ActiveBranchID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeID
}

// SetActiveBranch switches which branch receives new turns.
func (c *Conversation) SetActiveBranch(branchID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.branches[branchID]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidBranch, branchID)
	}
	c.activeID = branchID
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Branch returns the branch with the given id.
func (c *Conversation) Branch(branchID string) (*Branch, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.branches[branchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBranch, branchID)
	}
	return b, nil
}

// Branches returns all branches in creation order.
func (c *Conversation) Branches() []*Branch {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Branch, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.branches[id])
	}
	return out
}

// AppendMessage appends a message to the given branch. The message's
// BranchID is stamped by the store; messages are immutable once appended.
// Fails with ErrInvalidBranch for unknown branches and ErrInvalidRole for
// roles outside the permitted set.
func (c *Conversation) AppendMessage(branchID string, msg *types.Message) (*types.Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidRole)
	}
	if !types.ValidRole(msg.Role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, msg.Role)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.branches[branchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBranch, branchID)
	}

	msg.BranchID = branchID
	b.messages = append(b.messages, msg)
	c.UpdatedAt = time.Now().UTC()
	return msg, nil
}

// Fork creates a new branch whose effective history is the source branch's
// effective history frozen at atIndex. Subsequent writes to the source never
// affect the fork. atIndex may equal the effective history length (fork at
// the tip); anything larger fails with ErrIndexOutOfRange.
func (c *Conversation) Fork(sourceBranchID string, atIndex int) (*Branch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	src, ok := c.branches[sourceBranchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBranch, sourceBranchID)
	}

	effLen, err := c.effectiveLenLocked(src)
	if err != nil {
		return nil, err
	}
	if atIndex < 0 || atIndex > effLen {
		return nil, fmt.Errorf("%w: fork at %d, effective history has %d messages", ErrIndexOutOfRange, atIndex, effLen)
	}

	b := &Branch{
		ID:        uuid.New().String(),
		ParentID:  sourceBranchID,
		ForkPoint: atIndex,
		CreatedAt: time.Now().UTC(),
		summaries: make(map[string]*types.Message),
	}
	c.branches[b.ID] = b
	c.order = append(c.order, b.ID)
	c.UpdatedAt = b.CreatedAt
	return b, nil
}

// DeleteBranch removes a branch that owns no children. The root branch and
// branches other branches fork from cannot be deleted.
func (c *Conversation) DeleteBranch(branchID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.branches[branchID]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidBranch, branchID)
	}
	if branchID == c.rootID {
		return fmt.Errorf("%w: cannot delete root branch", ErrBranchHasChildren)
	}
	for _, b := range c.branches {
		if b.ParentID == branchID {
			return fmt.Errorf("%w: %s", ErrBranchHasChildren, branchID)
		}
	}

	delete(c.branches, branchID)
	for i, id := range c.order {
		if id == branchID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	if c.activeID == branchID {
		c.activeID = c.rootID
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// EffectiveHistory returns the branch's resolved raw message sequence: the
// parent chain's messages truncated at each fork point, concatenated with
// the branch's own messages. Compaction is not applied; see AssembledHistory.
func (c *Conversation) EffectiveHistory(branchID string) ([]*types.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.branches[branchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBranch, branchID)
	}
	chain, err := c.chainLocked(b)
	if err != nil {
		return nil, err
	}

	var history []*types.Message
	for i := len(chain) - 1; i >= 0; i-- {
		history = append(history, chain[i].branch.messages...)
		if chain[i].limit >= 0 && len(history) > chain[i].limit {
			history = history[:chain[i].limit]
		}
	}
	return history, nil
}

// AssembledHistory returns the branch's effective history with compacted
// ranges replaced by their summary messages. A range and its summary never
// both appear. An ancestor's record is applied only when its range lies
// entirely inside the portion of that ancestor the branch inherited;
// partially inherited ranges fall back to the raw messages so a fork's
// frozen prefix is never silently widened by a later parent compaction.
func (c *Conversation) AssembledHistory(branchID string) ([]*types.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.branches[branchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBranch, branchID)
	}
	chain, err := c.chainLocked(b)
	if err != nil {
		return nil, err
	}

	// Walk root to leaf. prefixLen tracks the raw effective length so fork
	// point limits, which are raw-history indices, apply correctly even
	// though the assembled slice is shorter.
	var assembled []*types.Message
	prefixLen := 0
	for i := len(chain) - 1; i >= 0; i-- {
		seg := chain[i]
		ownTake := len(seg.branch.messages)
		if seg.limit >= 0 {
			ownTake = seg.limit - prefixLen
			if ownTake < 0 {
				ownTake = 0
			}
			if ownTake > len(seg.branch.messages) {
				ownTake = len(seg.branch.messages)
			}
		}

		consumed := 0
		for _, rec := range seg.branch.records {
			if rec.End > ownTake {
				break // partially inherited range: use raw messages instead
			}
			if s, ok := seg.branch.summaries[rec.SummaryMessageID]; ok {
				assembled = append(assembled, s)
			}
			consumed = rec.End
		}
		assembled = append(assembled, seg.branch.messages[consumed:ownTake]...)

		if seg.limit >= 0 {
			prefixLen = seg.limit
		} else {
			prefixLen += len(seg.branch.messages)
		}
	}
	return assembled, nil
}

// segment pairs a branch with the effective-history limit its child imposes
// (-1 for the leaf, which has no limit).
type segment struct {
	branch *Branch
	limit  int
}

// chainLocked collects the branch's ancestor chain, leaf first. The walk is
// bounded by the branch count: parent links are immutable and always point
// at an older branch, so exceeding the bound means corrupted state.
func (c *Conversation) chainLocked(b *Branch) ([]segment, error) {
	var chain []segment
	limit := -1
	for cur := b; ; {
		chain = append(chain, segment{branch: cur, limit: limit})
		if len(chain) > len(c.branches) {
			return nil, fmt.Errorf("chat: branch parent chain does not terminate at %s", b.ID)
		}
		if cur.ParentID == "" {
			return chain, nil
		}
		parent, ok := c.branches[cur.ParentID]
		if !ok {
			return nil, fmt.Errorf("%w: parent %s of %s", ErrInvalidBranch, cur.ParentID, cur.ID)
		}
		limit = cur.ForkPoint
		cur = parent
	}
}

func (c *Conversation) effectiveLenLocked(b *Branch) (int, error) {
	chain, err := c.chainLocked(b)
	if err != nil {
		return 0, err
	}
	length := 0
	for i := len(chain) - 1; i >= 0; i-- {
		length += len(chain[i].branch.messages)
		if chain[i].limit >= 0 && length > chain[i].limit {
			length = chain[i].limit
		}
	}
	return length, nil
}

// RecordCompaction attaches a summary message to the branch and records the
// own-message range it replaces. The range must begin at the branch's
// earliest retained index and extend past it; anything else is rejected so
// compaction stays monotonic and records never overlap.
func (c *Conversation) RecordCompaction(branchID string, end int, summary *types.Message, merged bool) (*CompactionRecord, error) {
	if summary == nil || summary.Role != types.RoleSummary {
		return nil, fmt.Errorf("%w: compaction summary must have role summary", ErrInvalidRole)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.branches[branchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBranch, branchID)
	}

	start := b.CompactedLen()
	if merged {
		// A merged record folds the existing summaries together with newer
		// messages into one summary covering everything from index zero.
		start = 0
	}
	if end <= start || end > len(b.messages) {
		return nil, fmt.Errorf("%w: compaction range [%d,%d) on branch with %d messages", ErrIndexOutOfRange, start, end, len(b.messages))
	}

	summary.BranchID = branchID
	b.summaries[summary.ID] = summary
	rec := CompactionRecord{
		BranchID:         branchID,
		Start:            start,
		End:              end,
		SummaryMessageID: summary.ID,
	}
	if merged {
		b.records = []CompactionRecord{rec}
	} else {
		b.records = append(b.records, rec)
	}
	c.UpdatedAt = time.Now().UTC()
	return &rec, nil
}

// Messages returns every raw and summary message in the conversation, for
// indexing and persistence.
func (c *Conversation) Messages() []*types.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*types.Message
	for _, id := range c.order {
		b := c.branches[id]
		out = append(out, b.messages...)
		for _, rec := range b.records {
			if s, ok := b.summaries[rec.SummaryMessageID]; ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// SetTitle updates the display title.
func (c *Conversation) SetTitle(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Title = title
	c.UpdatedAt = time.Now().UTC()
}

// SetModel updates the model used for new turns.
func (c *Conversation) SetModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Model = model
	c.UpdatedAt = time.Now().UTC()
}

// SetFolder moves the conversation to a different folder label.
func (c *Conversation) SetFolder(folder string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Folder = folder
	c.UpdatedAt = time.Now().UTC()
}
