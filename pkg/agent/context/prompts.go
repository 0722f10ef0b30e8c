package context

import (
	"fmt"
	"strings"

	"github.com/tylxr59/prattle/pkg/types"
)

const summarySystemPrompt = "You are a conversation memory encoder. " +
	"Your summary replaces a section of a chat history and will be read by the " +
	"assistant in place of the original messages. The assistant must be able to " +
	"continue the conversation seamlessly from your summary alone. " +
	"Write for a model consumer, not a human reader. Be dense and specific."

// buildCompactionPrompt renders the messages to fold into a structured
// summarization request. The output replaces those messages in the context
// window, so the instructions optimize for continuity over readability.
func buildCompactionPrompt(messages []*types.Message) string {
	var b strings.Builder

	b.WriteString("Summarize the following conversation section into three parts.\n\n")

	b.WriteString("## Topics\n")
	b.WriteString("What was discussed, in order, with the concrete details that came up.\n\n")

	b.WriteString("## User Details\n")
	b.WriteString("Facts, preferences, and constraints the user stated or implied. Preserve names, dates, numbers, and exact phrasings of anything the user asked to be remembered.\n\n")

	b.WriteString("## Thread State\n")
	b.WriteString("Where the conversation stands: unanswered questions, commitments the assistant made, and anything the next reply is expected to address.\n\n")

	b.WriteString("Do not include conversational filler, apologies, or hedging. Earlier summaries may appear below; fold their content in rather than referencing them.\n\n")

	b.WriteString("Messages to summarize:\n\n")
	for i, msg := range messages {
		role := string(msg.Role)
		if msg.IsSummary() {
			role = "earlier summary"
		}
		b.WriteString(fmt.Sprintf("%d. %s: %s\n\n", i+1, role, msg.Content))
	}

	return b.String()
}
