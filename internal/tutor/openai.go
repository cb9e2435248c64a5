package tutor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/examcoach/internal/model"
)

// OpenAI wraps an OpenAI-compatible API client.
type OpenAI struct {
	api   *openai.Client
	model string
}

// NewOpenAI creates a provider for any OpenAI-compatible endpoint.
func NewOpenAI(baseURL, apiKey, modelName string) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAI{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Reply sends the question context, the prior conversation and the new query.
func (c *OpenAI) Reply(ctx context.Context, q model.Question, history []model.ChatMessage, query string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    buildMessages(q, history, query),
		Temperature: 0.5,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("tutor reply", "question_id", q.ID, "chars", len(reply))
	if reply == "" {
		return "", fmt.Errorf("LLM returned an empty reply")
	}
	return reply, nil
}

func buildMessages(q model.Question, history []model.ChatMessage, query string) []openai.ChatCompletionMessage {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt(q)},
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		content := m.Content
		if m.Author == model.AuthorAssistant {
			role = openai.ChatMessageRoleAssistant
		} else {
			content = wrapQuery(content)
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: content})
	}
	return append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: wrapQuery(query),
	})
}
