package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/creditchat-backend/internal/platform/openai"
	"github.com/yungbote/creditchat-backend/internal/platform/serp"
)

const WebSearchTool = "webSearch"

const searchQueryInstruction = "You are an AI designed to construct Google search queries. Your outputs should be concise, accurate, and formatted as a single search string. Your response must only include the string without double quotes."

type WebSearchArgs struct {
	UserMessage string `json:"user_message" validate:"required,max=4000"`
}

var webSearchSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"user_message": map[string]any{
			"type":        "string",
			"description": "The user's request, verbatim.",
		},
	},
	"required":             []string{"user_message"},
	"additionalProperties": false,
}

type searchHit struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet,omitempty"`
}

// RegisterWebSearch installs the webSearch tool: the model rewrites the user
// message into a query which is then run against the search API.
func RegisterWebSearch(r *Registry, ai openai.Client, search serp.Client, model string) error {
	if ai == nil || search == nil {
		return fmt.Errorf("web search: client required")
	}
	return Register(r, WebSearchTool,
		"Search the web when the user explicitly asks to browse or look something up.",
		webSearchSchema,
		func(ctx context.Context, args WebSearchArgs) (string, error) {
			query, err := ai.Chat(ctx, openai.ChatRequest{
				Model: model,
				Messages: []openai.Message{
					{Role: "system", Content: searchQueryInstruction},
					{Role: "user", Content: "Website: " + args.UserMessage},
				},
			})
			if err != nil {
				return "", fmt.Errorf("build search query: %w", err)
			}
			query = strings.Trim(strings.TrimSpace(query), `"`)
			if query == "" {
				query = args.UserMessage
			}
			results, err := search.Search(ctx, query)
			if err != nil {
				return "", err
			}
			hits := make([]searchHit, 0, len(results))
			for _, r := range results {
				hits = append(hits, searchHit{Title: r.Title, Link: r.Link, Snippet: r.Snippet})
			}
			raw, err := json.Marshal(hits)
			if err != nil {
				return "", err
			}
			return string(raw), nil
		})
}
