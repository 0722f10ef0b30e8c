package memory

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	// ErrEntryNotFound indicates an unknown entry id.
	ErrEntryNotFound = errors.New("memory: entry not found")

	// ErrAlreadySuperseded indicates an attempt to supersede an entry that
	// already points at a replacement.
	ErrAlreadySuperseded = errors.New("memory: entry already superseded")
)

// Ledger is the process-wide ordered collection of memory entries. All
// operations are safe for concurrent use; supersession writes to an entry's
// chain are serialized by the ledger lock so two extractions racing on the
// same entry cannot both win.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
	store   Store
}

// NewLedger creates an empty ledger. store may be nil for a purely
// in-memory ledger; when set, Load and flush read and write through it.
func NewLedger(store Store) *Ledger {
	return &Ledger{
		entries: make(map[string]*Entry),
		store:   store,
	}
}

// Load replaces the ledger contents with what the store holds. A missing
// store file yields an empty ledger.
func (l *Ledger) Load() error {
	if l.store == nil {
		return nil
	}
	entries, err := l.store.Load()
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*Entry, len(entries))
	l.order = l.order[:0]
	for _, e := range entries {
		l.entries[e.ID] = e
		l.order = append(l.order, e.ID)
	}
	return nil
}

// Append adds a new active entry and flushes the ledger.
func (l *Ledger) Append(text, sourceConversationID string) (*Entry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("memory: empty entry text")
	}
	e := &Entry{
		ID:                   NewEntryID(),
		Text:                 text,
		SourceConversationID: sourceConversationID,
		CreatedAt:            time.Now().UTC(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[e.ID] = e
	l.order = append(l.order, e.ID)
	return e, l.flushLocked()
}

// Supersede appends newText as a new entry and marks the old entry as
// superseded by it. The old entry's text is retained; only its chain
// pointer changes.
func (l *Ledger) Supersede(oldID, newText, sourceConversationID string) (*Entry, error) {
	newText = strings.TrimSpace(newText)
	if newText == "" {
		return nil, fmt.Errorf("memory: empty entry text")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	old, ok := l.entries[oldID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, oldID)
	}
	if old.SupersededBy != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadySuperseded, oldID)
	}

	e := &Entry{
		ID:                   NewEntryID(),
		Text:                 newText,
		SourceConversationID: sourceConversationID,
		CreatedAt:            time.Now().UTC(),
	}
	l.entries[e.ID] = e
	l.order = append(l.order, e.ID)
	old.SupersededBy = &e.ID
	return e, l.flushLocked()
}

// Get returns an entry by id, including superseded entries.
func (l *Ledger) Get(id string) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return e, nil
}

// Active returns the non-superseded entries in append order. This is the
// view the assembler injects into prompts.
func (l *Ledger) Active() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Entry
	for _, id := range l.order {
		if e := l.entries[id]; e.Active() {
			out = append(out, e)
		}
	}
	return out
}

// All returns every entry in append order, superseded included.
func (l *Ledger) All() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Entry, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.entries[id])
	}
	return out
}

// ActiveCount returns the number of non-superseded entries.
func (l *Ledger) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	count := 0
	for _, e := range l.entries {
		if e.Active() {
			count++
		}
	}
	return count
}

// RenderBlock formats the active entries as the prompt block the assembler
// prepends. Empty when the ledger holds no active facts.
func (l *Ledger) RenderBlock() string {
	active := l.Active()
	if len(active) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Durable facts about the user, gathered from earlier conversations:\n")
	for _, e := range active {
		b.WriteString("- ")
		b.WriteString(e.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// flushLocked writes the full ledger through the store. Caller holds l.mu.
func (l *Ledger) flushLocked() error {
	if l.store == nil {
		return nil
	}
	all := make([]*Entry, 0, len(l.order))
	for _, id := range l.order {
		all = append(all, l.entries[id])
	}
	return l.store.Save(all)
}
