package llm

import (
	"context"
	"fmt"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, int64(defaultMaxTokens), cfg.MaxTokens)
	assert.Equal(t, defaultMaxRetries, cfg.MaxRetries)
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: false},
		{name: "transport error", err: fmt.Errorf("connection reset"), want: true},
		{name: "rate limited", err: &anthropic.Error{StatusCode: 429}, want: true},
		{name: "request timeout", err: &anthropic.Error{StatusCode: 408}, want: true},
		{name: "server error", err: &anthropic.Error{StatusCode: 503}, want: true},
		{name: "bad request", err: &anthropic.Error{StatusCode: 400}, want: false},
		{name: "unauthorized", err: &anthropic.Error{StatusCode: 401}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

func TestRetryableWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("request failed: %w", &anthropic.Error{StatusCode: 500})
	assert.True(t, retryable(wrapped))

	wrapped = fmt.Errorf("request failed: %w", context.Canceled)
	assert.False(t, retryable(wrapped))
}
