// Package llm provides the Anthropic-backed model client the pipeline
// stages call for interpretation, SQL generation, and explanation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v4"

	"github.com/helioslabs/ledgerscope/pkg/pipeline"
)

const (
	// DefaultModel is used when the config names no model.
	DefaultModel = anthropic.ModelClaudeSonnet4_0

	defaultMaxTokens  = 2000
	defaultMaxRetries = 3
)

type Config struct {
	Logger *slog.Logger

	// Model selects the Anthropic model. Defaults to DefaultModel.
	Model anthropic.Model

	// MaxTokens caps the completion length.
	MaxTokens int64

	// MaxRetries bounds retry attempts on rate limits and server errors.
	MaxRetries int
}

func (cfg *Config) Validate() error {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	return nil
}

// Client implements the pipeline's LLM interface on the Anthropic API. The
// API key comes from the environment (ANTHROPIC_API_KEY).
type Client struct {
	cfg    Config
	client anthropic.Client
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate llm config: %w", err)
	}
	return &Client{
		cfg:    cfg,
		client: anthropic.NewClient(),
	}, nil
}

// Complete sends one system+user prompt pair and returns the first text
// block with token usage. Rate limits and server errors are retried with
// exponential backoff; everything else fails immediately.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (*pipeline.Completion, error) {
	start := time.Now()
	c.logDebug("llm: request starting",
		"model", c.cfg.Model, "max_tokens", c.cfg.MaxTokens, "user_prompt_len", len(userPrompt))

	var msg *anthropic.Message
	operation := func() error {
		var err error
		msg, err = c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     c.cfg.Model,
			MaxTokens: c.cfg.MaxTokens,
			System: []anthropic.TextBlockParam{
				{Type: "text", Text: systemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
			},
		})
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			c.logWarn("llm: transient request failure, retrying", "error", err)
			return err
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.cfg.MaxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		c.logWarn("llm: request failed", "elapsed", time.Since(start), "error", err)
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}

	completion := &Completion{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			completion.Text = block.Text
			break
		}
	}
	if completion.Text == "" {
		return nil, fmt.Errorf("no text content in response")
	}

	c.logDebug("llm: request completed",
		"elapsed", time.Since(start),
		"stop_reason", msg.StopReason,
		"input_tokens", completion.InputTokens,
		"output_tokens", completion.OutputTokens)

	return completion, nil
}

// Completion aliases the pipeline's completion type; the client returns it
// directly so it satisfies pipeline.LLMClient without an adapter.
type Completion = pipeline.Completion

// retryable reports whether a request is worth repeating. Rate limits,
// server errors, and transport failures qualify; 4xx rejections and context
// cancellation do not.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode == http.StatusRequestTimeout ||
			apiErr.StatusCode >= 500
	}
	return true
}

func (c *Client) logDebug(msg string, args ...any) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Debug(msg, args...)
	}
}

func (c *Client) logWarn(msg string, args ...any) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Warn(msg, args...)
	}
}
