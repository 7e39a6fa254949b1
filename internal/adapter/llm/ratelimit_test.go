package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maa/internal/domain"
	"maa/internal/infra/config"
)

func TestRateLimitedProviderBurst(t *testing.T) {
	p := NewRateLimitedProvider(replying("azure", "ok"), config.RateLimitConfig{RequestsPerMinute: 1, Burst: 2})
	assert.Equal(t, "azure", p.Name())

	for i := 0; i < 2; i++ {
		_, err := p.Chat(context.Background(), domain.ChatRequest{})
		require.NoError(t, err)
	}

	// The third call needs a token a minute away.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.Chat(ctx, domain.ChatRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRateLimit) || errors.Is(err, context.DeadlineExceeded), "err = %v", err)
}

func TestRateLimitedProviderCancelled(t *testing.T) {
	p := NewRateLimitedProvider(replying("azure", "ok"), config.RateLimitConfig{RequestsPerMinute: 1, Burst: 1})
	_, err := p.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Chat(ctx, domain.ChatRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimitedProviderUnlimited(t *testing.T) {
	p := NewRateLimitedProvider(replying("azure", "ok"), config.RateLimitConfig{})
	for i := 0; i < 50; i++ {
		_, err := p.Chat(context.Background(), domain.ChatRequest{})
		require.NoError(t, err)
	}
}
