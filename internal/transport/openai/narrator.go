package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const narratorSystemPrompt = "You are the voice of a circular-energy building controller. " +
	"Rewrite the given routing summary as one or two short sentences of plain language. " +
	"Do not invent numbers or systems that are not in the summary."

// Narrator turns deterministic routing summaries into natural language
// via chat completions. It is optional: callers fall back to the
// deterministic summary when narration fails.
type Narrator struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewNarrator creates a chat-based narrator. Model is the chat model name.
func NewNarrator(cfg *Config, model string) *Narrator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Narrator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: cfg.Logger,
	}
}

// Narrate rewrites summary as natural language. Temperature 0 keeps
// repeated calls on the same summary stable.
func (n *Narrator) Narrate(ctx context.Context, summary string) (string, error) {
	resp, err := n.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       n.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: narratorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: summary},
		},
	})
	if err != nil {
		return "", fmt.Errorf("narration request failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("narration returned no content")
	}
	return resp.Choices[0].Message.Content, nil
}
