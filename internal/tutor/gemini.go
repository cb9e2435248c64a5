package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/pavelanni/examcoach/internal/model"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini calls Google's Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini provider. An empty apiKey falls back to the
// GEMINI_API_KEY / GOOGLE_API_KEY environment variables.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	var cfg *genai.ClientConfig
	if apiKey != "" {
		cfg = &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if modelName == "" {
		modelName = defaultGeminiModel
	}
	return &Gemini{client: client, model: modelName}, nil
}

// Reply sends a single prompt holding the question, the history and the query.
func (g *Gemini) Reply(ctx context.Context, q model.Question, history []model.ChatMessage, query string) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(buildPrompt(q, history, query)), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	reply := strings.TrimSpace(result.Text())
	slog.Debug("tutor reply", "question_id", q.ID, "chars", len(reply))
	if reply == "" {
		return "", errors.New("gemini returned an empty reply")
	}
	return reply, nil
}

func buildPrompt(q model.Question, history []model.ChatMessage, query string) string {
	var sb strings.Builder
	sb.WriteString(buildSystemPrompt(q))
	if len(history) > 0 {
		sb.WriteString("\nCONVERSATION SO FAR:\n")
		sb.WriteString(formatHistory(history))
	}
	sb.WriteString("\nNEW MESSAGE FROM THE STUDENT:\n")
	sb.WriteString(wrapQuery(query))
	sb.WriteString("\n")
	return sb.String()
}
