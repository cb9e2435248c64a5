// Package tutor answers student questions about a single exam question
// using a language model.
package tutor

import (
	"context"
	"fmt"

	"github.com/pavelanni/examcoach/internal/model"
)

// Provider produces the tutor's next reply in a question chat.
type Provider interface {
	Reply(ctx context.Context, q model.Question, history []model.ChatMessage, query string) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider string // openai, gemini or offline
	BaseURL  string
	APIKey   string
	Model    string
}

// New builds the provider named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "offline":
		return Offline{}, nil
	case "openai":
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case "gemini":
		return NewGemini(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown tutor provider %q", cfg.Provider)
	}
}

// Offline answers from the stored explanation without calling a model.
type Offline struct{}

func (Offline) Reply(_ context.Context, q model.Question, _ []model.ChatMessage, _ string) (string, error) {
	if q.Explanation == "" {
		return fmt.Sprintf("The correct answer is %s.", q.CorrectAnswer), nil
	}
	return fmt.Sprintf("The correct answer is %s. %s", q.CorrectAnswer, q.Explanation), nil
}
