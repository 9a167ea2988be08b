package openai

import (
	"testing"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/innotech-solutions/innotech-api/model"
)

func TestBuildMessagesArrayOrdering(t *testing.T) {
	history := []model.ChatMessage{
		{Role: model.RoleUser, Content: "first question"},
		{Role: model.RoleAssistant, Content: "first answer"},
	}

	messages := BuildMessagesArray("you are an advisor", history, "second question")

	if len(messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(messages))
	}
	if messages[0].Role != goopenai.ChatMessageRoleSystem || messages[0].Content != "you are an advisor" {
		t.Errorf("system prompt must come first, got %+v", messages[0])
	}
	if messages[1].Role != goopenai.ChatMessageRoleUser || messages[1].Content != "first question" {
		t.Errorf("history user turn out of place: %+v", messages[1])
	}
	if messages[2].Role != goopenai.ChatMessageRoleAssistant || messages[2].Content != "first answer" {
		t.Errorf("history assistant turn out of place: %+v", messages[2])
	}
	if messages[3].Role != goopenai.ChatMessageRoleUser || messages[3].Content != "second question" {
		t.Errorf("new user message must come last, got %+v", messages[3])
	}
}

func TestBuildMessagesFromHistoryAppendsNothing(t *testing.T) {
	history := []model.ChatMessage{
		{Role: model.RoleUser, Content: "replayed question"},
	}

	messages := BuildMessagesFromHistory("system", history)

	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	last := messages[len(messages)-1]
	if last.Role != goopenai.ChatMessageRoleUser || last.Content != "replayed question" {
		t.Errorf("the stored user message must stay last, got %+v", last)
	}
}

func TestBuildMessagesArrayEmptyHistory(t *testing.T) {
	messages := BuildMessagesArray("system", nil, "hello")

	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != goopenai.ChatMessageRoleSystem {
		t.Errorf("expected system first, got %s", messages[0].Role)
	}
	if messages[1].Role != goopenai.ChatMessageRoleUser || messages[1].Content != "hello" {
		t.Errorf("expected user message last, got %+v", messages[1])
	}
}
