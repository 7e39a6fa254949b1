package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"maa/internal/domain"
	"maa/internal/infra/config"
)

// RateLimitedProvider throttles calls to the wrapped provider with a token
// bucket. Callers wait for a token; a cancelled wait returns the context error.
type RateLimitedProvider struct {
	inner   domain.LLMProvider
	limiter *rate.Limiter
}

// NewRateLimitedProvider spreads cfg.RequestsPerMinute over a minute with
// a burst of cfg.Burst (at least 1).
func NewRateLimitedProvider(inner domain.LLMProvider, cfg config.RateLimitConfig) *RateLimitedProvider {
	burst := max(cfg.Burst, 1)
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}
	return &RateLimitedProvider{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

// Chat implements domain.LLMProvider.
func (p *RateLimitedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The wait would outlast the context deadline.
		return nil, fmt.Errorf("provider %q: %w: %w", p.inner.Name(), domain.ErrRateLimit, err)
	}
	return p.inner.Chat(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *RateLimitedProvider) Name() string { return p.inner.Name() }

var _ domain.LLMProvider = (*RateLimitedProvider)(nil)
