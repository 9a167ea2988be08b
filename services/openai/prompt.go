package openai

import (
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/innotech-solutions/innotech-api/model"
)

// BuildMessagesFromHistory assembles the provider message array from the
// session system prompt and the stored history in chronological order. Used
// for regenerated turns, where the user message being replayed is already
// the last stored entry.
func BuildMessagesFromHistory(systemPrompt string, history []model.ChatMessage) []goopenai.ChatCompletionMessage {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(history)+2)

	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})

	for _, msg := range history {
		role := goopenai.ChatMessageRoleUser
		if msg.Role == model.RoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	return messages
}

// BuildMessagesArray assembles the provider message array for one turn:
// the system prompt first, the stored history in chronological order, then
// the new user message last.
func BuildMessagesArray(systemPrompt string, history []model.ChatMessage, newUserMessage string) []goopenai.ChatCompletionMessage {
	return append(BuildMessagesFromHistory(systemPrompt, history), goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: newUserMessage,
	})
}
