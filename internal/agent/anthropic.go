// Package agent is the server side of SQL generation: LLM clients and the
// SQLWriter that turns hybrid and legacy requests into validated SQL.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"

	"github.com/flipdesk/flipquery/internal/tools"
)

const (
	defaultModel     = "claude-sonnet-4-6"
	defaultMaxTokens = 2048
	maxIter          = 8
	forceAnswerIter  = 5
)

// Completer answers a single prompt without tools.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ToolRunner drives a multi-turn tool-calling conversation.
type ToolRunner interface {
	Run(ctx context.Context, system, user string, agentTools []tools.Tool) (RunResult, error)
}

// RunResult is the outcome of a tool loop. LastSQL is the last statement
// passed to execute_flips_sql, used when the final reply has no SQL block.
type RunResult struct {
	Text      string
	ToolsUsed []string
	LastSQL   string
}

// ToolCall represents a tool invocation request from the LLM
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// Anthropic wraps the Anthropic SDK (or a compatible provider).
type Anthropic struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropic creates a client. Empty model and zero maxTokens select defaults.
func NewAnthropic(apiKey, model, baseURL string, maxTokens int) *Anthropic {
	if model == "" {
		model = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Model returns the configured model name.
func (a *Anthropic) Model() string { return a.model }

func (a *Anthropic) params(system string, messages []anthropic.MessageParam) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(a.model)),
		MaxTokens: anthropic.F(int64(a.maxTokens)),
		Messages:  anthropic.F(messages),
	}
	if system != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{
			anthropic.NewTextBlock(system),
		})
	}
	return params
}

// Complete sends one user message and returns the concatenated text reply.
func (a *Anthropic) Complete(ctx context.Context, system, user string) (string, error) {
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
	}
	resp, err := a.client.Messages.New(ctx, a.params(system, messages))
	if err != nil {
		return "", fmt.Errorf("LLM call failed: %w", err)
	}
	var text string
	for _, block := range resp.Content {
		if b, ok := block.AsUnion().(anthropic.TextBlock); ok {
			text += b.Text
		}
	}
	return text, nil
}

// Run executes the agent loop until the model stops calling tools.
func (a *Anthropic) Run(ctx context.Context, system, user string, agentTools []tools.Tool) (RunResult, error) {
	toolParams := make([]anthropic.ToolUnionUnionParam, len(agentTools))
	for i, t := range agentTools {
		schema := map[string]interface{}{
			"type":       "object",
			"properties": t.InputSchema["properties"],
		}
		if required, ok := t.InputSchema["required"]; ok {
			schema["required"] = required
		}
		toolParams[i] = anthropic.ToolParam{
			Name:        anthropic.String(t.Name),
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.F[interface{}](schema),
		}
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
	}
	var res RunResult

	for iter := 0; iter < maxIter; iter++ {
		params := a.params(system, messages)
		params.Tools = anthropic.F(toolParams)

		resp, err := a.client.Messages.New(ctx, params)
		if err != nil {
			return res, fmt.Errorf("LLM call failed: %w", err)
		}

		var text string
		var pending []ToolCall
		for _, block := range resp.Content {
			switch b := block.AsUnion().(type) {
			case anthropic.TextBlock:
				text += b.Text
			case anthropic.ToolUseBlock:
				var input map[string]interface{}
				if err := json.Unmarshal(b.Input, &input); err != nil {
					log.Warn().Err(err).Str("tool", b.Name).Msg("failed to parse tool input")
					input = map[string]interface{}{}
				}
				pending = append(pending, ToolCall{ID: b.ID, Name: b.Name, Input: input})
			}
		}

		log.Debug().
			Int("iter", iter).
			Str("stop_reason", string(resp.StopReason)).
			Int("tool_calls", len(pending)).
			Msg("agent iteration")

		if resp.StopReason != "tool_use" || len(pending) == 0 {
			res.Text = text
			return res, nil
		}

		messages = append(messages, resp.ToParam())

		if iter >= forceAnswerIter {
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewTextBlock("You have enough information. Reply with the final SQL now without calling any more tools."),
			))
			final, err := a.client.Messages.New(ctx, a.params(system, messages))
			if err != nil {
				return res, fmt.Errorf("final answer call failed: %w", err)
			}
			for _, block := range final.Content {
				if b, ok := block.AsUnion().(anthropic.TextBlock); ok {
					text += b.Text
				}
			}
			res.Text = text
			return res, nil
		}

		var results []anthropic.ContentBlockParamUnion
		for _, tc := range pending {
			res.ToolsUsed = append(res.ToolsUsed, tc.Name)
			if tc.Name == executeToolName {
				if sql, ok := tc.Input["sql"].(string); ok && sql != "" {
					res.LastSQL = sql
				}
			}
			out, execErr := executeTool(ctx, tc, agentTools)
			if execErr != nil {
				log.Warn().Err(execErr).Str("tool", tc.Name).Msg("tool execution error")
				out = fmt.Sprintf("error: %v", execErr)
			}
			results = append(results, anthropic.NewToolResultBlock(tc.ID, out, execErr != nil))
		}
		messages = append(messages, anthropic.NewUserMessage(results...))
	}

	return res, fmt.Errorf("agent loop exceeded max iterations (%d)", maxIter)
}

const executeToolName = "execute_flips_sql"

func executeTool(ctx context.Context, tc ToolCall, agentTools []tools.Tool) (string, error) {
	t, ok := tools.Find(agentTools, tc.Name)
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", tc.Name)
	}
	return t.Execute(ctx, tc.Input)
}
