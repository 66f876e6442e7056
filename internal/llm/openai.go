package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type OpenAIConfig struct {
	APIKey string
	// BaseURL points the client at any OpenAI-compatible server. Empty keeps the default.
	BaseURL string
	Model   string
	Timeout time.Duration
}

type OpenAICompleter struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func NewOpenAICompleter(cfg OpenAIConfig, logger *zap.Logger) *OpenAICompleter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}

	return &OpenAICompleter{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, req Request) ([]string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	n := req.N
	if n <= 0 {
		n = 1
	}

	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: req.Prompt,
				},
			},
			MaxTokens:   req.MaxTokens,
			Temperature: float32(req.Temperature),
			Stop:        req.Stop,
			N:           n,
		},
	)
	if err != nil {
		c.logger.Error("Failed to get completion", zap.Error(err), zap.String("model", c.model))
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	candidates := make([]string, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		candidates = append(candidates, strings.TrimSpace(choice.Message.Content))
	}

	c.logger.Debug("Completion received",
		zap.String("model", c.model),
		zap.Int("requested", n),
		zap.Int("candidates", len(candidates)))

	return candidates, nil
}
