package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/heliotrack/spaceweather/internal/metrics"
)

const systemPrompt = "You are a helpful space weather expert that analyzes data from spaceweather.com and provides structured information about space weather events. Always respond with valid JSON."

// Completer is the model-completion collaborator: prompt in, free text
// out. Replies are ideally JSON but carry no structural guarantee.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config holds model client settings. BaseURL points at any
// OpenAI-compatible endpoint (Groq by default).
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
}

// Client performs chat completions against an OpenAI-compatible API.
type Client struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int64
	timeout     time.Duration
}

// NewClient builds a completion client from explicit configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: API key required")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm: model required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4000
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	return &Client{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
	}, nil
}

// Complete sends one prompt and returns the raw reply text. An empty
// reply is reported as an error so the caller's retry loop can act on it.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(c.maxTokens),
	})
	metrics.LLMCallLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		metrics.LLMCallsTotal.WithLabelValues("empty").Inc()
		return "", errors.New("chat completion: empty reply")
	}

	metrics.LLMCallsTotal.WithLabelValues("ok").Inc()
	return resp.Choices[0].Message.Content, nil
}
