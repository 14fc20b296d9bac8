package steps

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/creditchat-backend/internal/platform/openai"
)

const titleInstruction = "Write a title of at most six words for a conversation that starts with the user's message. Reply with the title only, without quotes or trailing punctuation."

const maxTitleRunes = 80

// GenerateTitle asks the model for a short conversation title. On error the
// caller falls back to FallbackTitle.
func GenerateTitle(ctx context.Context, ai openai.Client, model, firstMessage string) (string, error) {
	title, err := ai.Chat(ctx, openai.ChatRequest{
		Model: model,
		Messages: []openai.Message{
			{Role: "system", Content: titleInstruction},
			{Role: "user", Content: firstMessage},
		},
		Temperature: openai.Float(0.2),
		MaxTokens:   24,
	})
	if err != nil {
		return "", err
	}
	title = strings.Trim(strings.TrimSpace(title), `"'`)
	if title == "" {
		return FallbackTitle(firstMessage), nil
	}
	return clipRunes(title, maxTitleRunes), nil
}

// FallbackTitle derives a title from the first line of the message.
func FallbackTitle(firstMessage string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(firstMessage), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return "New conversation"
	}
	return clipRunes(line, 40)
}

func clipRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
