package agent

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAI is a Completer backed by any OpenAI-compatible API through
// langchaingo. It has no tool loop, so legacy requests get a single prompt.
type OpenAI struct {
	llm       llms.Model
	model     string
	maxTokens int
}

// NewOpenAI creates a completer. baseURL may point at OpenRouter or a local
// gateway; empty uses the provider default.
func NewOpenAI(token, model, baseURL string, maxTokens int) (*OpenAI, error) {
	if token == "" {
		return nil, fmt.Errorf("openai: api token is required")
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	opts := []openai.Option{openai.WithToken(token)}
	if model != "" {
		opts = append(opts, openai.WithModel(model))
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai llm: %w", err)
	}
	return &OpenAI{llm: llm, model: model, maxTokens: maxTokens}, nil
}

// Model returns the configured model name.
func (o *OpenAI) Model() string { return o.model }

// Complete folds the system prompt into a single prompt.
func (o *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	prompt := user
	if system != "" {
		prompt = system + "\n\n" + user
	}
	resp, err := llms.GenerateFromSinglePrompt(ctx, o.llm, prompt, llms.WithMaxTokens(o.maxTokens))
	if err != nil {
		return "", fmt.Errorf("LLM call failed: %w", err)
	}
	return resp, nil
}
