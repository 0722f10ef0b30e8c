package chat

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tylxr59/prattle/pkg/types"
)

// serialization version for conversation documents on disk
const docVersion = 1

type conversationDoc struct {
	Version      int         `yaml:"version"`
	ID           string      `yaml:"id"`
	Title        string      `yaml:"title"`
	Model        string      `yaml:"model"`
	Folder       string      `yaml:"folder,omitempty"`
	CreatedAt    time.Time   `yaml:"created_at"`
	UpdatedAt    time.Time   `yaml:"updated_at"`
	RootBranch   string      `yaml:"root_branch"`
	ActiveBranch string      `yaml:"active_branch"`
	Branches     []branchDoc `yaml:"branches"`
}

type branchDoc struct {
	ID        string             `yaml:"id"`
	ParentID  string             `yaml:"parent_id,omitempty"`
	ForkPoint int                `yaml:"fork_point,omitempty"`
	CreatedAt time.Time          `yaml:"created_at"`
	Messages  []messageDoc       `yaml:"messages"`
	Summaries []messageDoc       `yaml:"summaries,omitempty"`
	Records   []CompactionRecord `yaml:"compaction_records,omitempty"`
}

type messageDoc struct {
	ID         string                 `yaml:"id"`
	Role       string                 `yaml:"role"`
	Content    string                 `yaml:"content"`
	TokenCount int                    `yaml:"token_count,omitempty"`
	CreatedAt  time.Time              `yaml:"created_at"`
	Metadata   map[string]interface{} `yaml:"metadata,omitempty"`
}

// Serialize renders the conversation as a YAML document.
func Serialize(c *Conversation) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	doc := conversationDoc{
		Version:      docVersion,
		ID:           c.ID,
		Title:        c.Title,
		Model:        c.Model,
		Folder:       c.Folder,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		RootBranch:   c.rootID,
		ActiveBranch: c.activeID,
	}
	for _, id := range c.order {
		b := c.branches[id]
		bd := branchDoc{
			ID:        b.ID,
			ParentID:  b.ParentID,
			ForkPoint: b.ForkPoint,
			CreatedAt: b.CreatedAt,
			Messages:  make([]messageDoc, 0, len(b.messages)),
			Records:   b.records,
		}
		for _, m := range b.messages {
			bd.Messages = append(bd.Messages, toMessageDoc(m))
		}
		for _, s := range b.Summaries() {
			bd.Summaries = append(bd.Summaries, toMessageDoc(s))
		}
		doc.Branches = append(doc.Branches, bd)
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("chat: marshal conversation %s: %w", c.ID, err)
	}
	return out, nil
}

// Parse reconstructs a conversation from a YAML document produced by
// Serialize.
func Parse(data []byte) (*Conversation, error) {
	var doc conversationDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("chat: parse conversation: %w", err)
	}
	if doc.ID == "" || doc.RootBranch == "" || len(doc.Branches) == 0 {
		return nil, fmt.Errorf("chat: parse conversation: missing id or branches")
	}

	c := &Conversation{
		ID:        doc.ID,
		Title:     doc.Title,
		Model:     doc.Model,
		Folder:    doc.Folder,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
		branches:  make(map[string]*Branch, len(doc.Branches)),
		rootID:    doc.RootBranch,
		activeID:  doc.ActiveBranch,
	}
	for _, bd := range doc.Branches {
		b := &Branch{
			ID:        bd.ID,
			ParentID:  bd.ParentID,
			ForkPoint: bd.ForkPoint,
			CreatedAt: bd.CreatedAt,
			summaries: make(map[string]*types.Message, len(bd.Summaries)),
			records:   bd.Records,
		}
		for _, md := range bd.Messages {
			b.messages = append(b.messages, fromMessageDoc(md, b.ID))
		}
		for _, md := range bd.Summaries {
			b.summaries[md.ID] = fromMessageDoc(md, b.ID)
		}
		c.branches[b.ID] = b
		c.order = append(c.order, b.ID)
	}

	if _, ok := c.branches[c.rootID]; !ok {
		return nil, fmt.Errorf("chat: parse conversation %s: unknown root branch %s", c.ID, c.rootID)
	}
	if _, ok := c.branches[c.activeID]; !ok {
		c.activeID = c.rootID
	}
	return c, nil
}

func toMessageDoc(m *types.Message) messageDoc {
	return messageDoc{
		ID:         m.ID,
		Role:       string(m.Role),
		Content:    m.Content,
		TokenCount: m.TokenCount,
		CreatedAt:  m.CreatedAt,
		Metadata:   m.Metadata,
	}
}

func fromMessageDoc(md messageDoc, branchID string) *types.Message {
	return &types.Message{
		ID:         md.ID,
		Role:       types.Role(md.Role),
		Content:    md.Content,
		BranchID:   branchID,
		TokenCount: md.TokenCount,
		CreatedAt:  md.CreatedAt,
		Metadata:   md.Metadata,
	}
}
