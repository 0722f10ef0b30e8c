package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tylxr59/prattle/pkg/llm"
	"github.com/tylxr59/prattle/pkg/logging"
	"github.com/tylxr59/prattle/pkg/types"
)

// Extractor turns a recent exchange into ledger entries. It shows the model
// the exchange plus the active entries by id and asks for new facts and the
// ids of entries each one supersedes. Extraction is best-effort: every
// failure is logged and swallowed so a turn never fails on memory work.
type Extractor struct {
	ledger       *Ledger
	provider     llm.Provider
	fallback     Matcher
	maxProposals int
	logger       *logging.Logger
}

// NewExtractor creates an extractor. maxProposals caps how many candidate
// facts a single run may append; zero or negative means a default of 10.
func NewExtractor(ledger *Ledger, provider llm.Provider, maxProposals int) *Extractor {
	if maxProposals <= 0 {
		maxProposals = 10
	}
	logger, _ := logging.NewLogger("memory")
	return &Extractor{
		ledger:       ledger,
		provider:     provider,
		fallback:     ExactMatcher{},
		maxProposals: maxProposals,
		logger:       logger,
	}
}

// SetProvider swaps the extraction model provider.
func (x *Extractor) SetProvider(provider llm.Provider) {
	x.provider = provider
}

// SetFallbackMatcher replaces the matcher used when the model's structured
// output cannot be parsed.
func (x *Extractor) SetFallbackMatcher(m Matcher) {
	x.fallback = m
}

// proposal is the shape the extraction model is asked to emit.
type proposal struct {
	Text       string   `json:"text"`
	Supersedes []string `json:"supersedes,omitempty"`
}

// ExtractFromExchange runs one extraction pass over the given exchange.
// It returns the number of entries appended. Model errors and malformed
// output never propagate as failures; malformed output degrades to
// line-per-fact parsing with the fallback matcher deciding supersession.
func (x *Extractor) ExtractFromExchange(ctx context.Context, conversationID string, exchange []*types.Message) int {
	if len(exchange) == 0 {
		return 0
	}
	active := x.ledger.Active()

	response, err := x.provider.Complete(ctx, []*types.Message{
		types.NewSystemMessage(extractionSystemPrompt),
		types.NewUserMessage(buildExtractionPrompt(exchange, active)),
	})
	if err != nil {
		x.logger.Warnf("extraction call failed for conversation %s: %v", conversationID, err)
		return 0
	}

	proposals, parseErr := parseProposals(response.Content)
	if parseErr != nil {
		x.logger.Warnf("extraction output unparseable, using fallback matcher: %v", parseErr)
		proposals = x.fallbackProposals(response.Content, active)
	}
	if len(proposals) > x.maxProposals {
		proposals = proposals[:x.maxProposals]
	}

	added := 0
	for _, p := range proposals {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		entry, err := x.commit(p, conversationID)
		if err != nil {
			x.logger.Warnf("failed to commit extracted fact: %v", err)
			continue
		}
		x.logger.Debugf("ledger entry %s added (supersedes %d)", entry.ID, len(p.Supersedes))
		added++
	}
	return added
}

// commit appends the proposal, superseding at most one prior entry through
// the ledger so chain writes stay serialized. Extra supersede ids each get
// their chain pointed at the new entry as well.
func (x *Extractor) commit(p proposal, conversationID string) (*Entry, error) {
	if len(p.Supersedes) == 0 {
		return x.ledger.Append(p.Text, conversationID)
	}

	entry, err := x.ledger.Supersede(p.Supersedes[0], p.Text, conversationID)
	if err != nil {
		// The named entry may be unknown or already superseded by a racing
		// extraction; the fact itself is still worth keeping.
		x.logger.Warnf("supersede %s failed, appending instead: %v", p.Supersedes[0], err)
		return x.ledger.Append(p.Text, conversationID)
	}
	for _, id := range p.Supersedes[1:] {
		if _, err := x.ledger.Supersede(id, entry.Text, conversationID); err != nil {
			x.logger.Warnf("supersede %s failed: %v", id, err)
		}
	}
	return entry, nil
}

// fallbackProposals treats each non-empty output line as a candidate fact
// and lets the fallback matcher decide supersession.
func (x *Extractor) fallbackProposals(raw string, active []*Entry) []proposal {
	var out []proposal
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line == "" || line == "[]" {
			continue
		}
		out = append(out, proposal{
			Text:       line,
			Supersedes: x.fallback.Match(line, active),
		})
	}
	return out
}

// parseProposals decodes the model's JSON array, tolerating a markdown code
// fence around it.
func parseProposals(raw string) ([]proposal, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	var proposals []proposal
	if err := json.Unmarshal([]byte(trimmed), &proposals); err != nil {
		return nil, fmt.Errorf("memory: decode proposals: %w", err)
	}
	return proposals, nil
}

const extractionSystemPrompt = "You maintain a ledger of durable facts about the user of a chat " +
	"application. You read a recent exchange and the current ledger, then emit new facts worth " +
	"remembering across conversations. Only output facts with lasting value: preferences, " +
	"biographical details, ongoing projects, stated constraints. Never output conversational " +
	"ephemera."

func buildExtractionPrompt(exchange []*types.Message, active []*Entry) string {
	var b strings.Builder

	b.WriteString("Current ledger entries:\n")
	if len(active) == 0 {
		b.WriteString("(none)\n")
	}
	for _, e := range active {
		fmt.Fprintf(&b, "%s: %s\n", e.ID, e.Text)
	}

	b.WriteString("\nRecent exchange:\n")
	for _, m := range exchange {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	b.WriteString("\nRespond with a JSON array, one object per new fact: ")
	b.WriteString(`[{"text": "the fact", "supersedes": ["entry id this replaces or updates"]}]` + "\n")
	b.WriteString("Use \"supersedes\" only when a new fact duplicates or updates a listed entry, referencing it by id. ")
	b.WriteString("Respond with [] when the exchange contains nothing worth remembering.\n")
	return b.String()
}
