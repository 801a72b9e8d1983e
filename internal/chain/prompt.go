package chain

import (
	"strings"

	"github.com/bull/ragchat/internal/history"
	"github.com/bull/ragchat/internal/llm"
)

// ContextPlaceholder is replaced by the retrieved context in the system template.
const ContextPlaceholder = "{context}"

// DefaultSystemTemplate instructs the model and carries the retrieved context.
const DefaultSystemTemplate = `You're a helpful assistant. Answer all questions to the best of your ability. If you don't know the answer let the user know to find help on the internet.

Available context:
{context}`

// BuildMessages assembles the prompt: the system template with context
// substituted verbatim, then the prior turns in order, then the new input.
func BuildMessages(template, context string, turns []history.Turn, input string) []llm.Message {
	messages := make([]llm.Message, 0, len(turns)+2)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: strings.ReplaceAll(template, ContextPlaceholder, context),
	})
	for _, turn := range turns {
		role := llm.RoleUser
		if turn.Role == history.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: input})
}
