package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"maa/internal/domain"
)

// FailoverProvider wraps a primary LLM provider with fallback providers.
// If the primary fails, it tries each fallback in order. Cancellation of the
// caller's context stops the chain.
type FailoverProvider struct {
	primary   domain.LLMProvider
	fallbacks []domain.LLMProvider
	logger    *slog.Logger
}

// NewFailoverProvider creates a failover-capable provider.
func NewFailoverProvider(primary domain.LLMProvider, fallbacks []domain.LLMProvider, logger *slog.Logger) *FailoverProvider {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FailoverProvider{
		primary:   primary,
		fallbacks: fallbacks,
		logger:    logger,
	}
}

// Chat tries the primary provider first, then each fallback on failure. The
// returned error joins every provider's error so sentinels stay visible.
func (f *FailoverProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := f.primary.Chat(ctx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	f.logger.WarnContext(ctx, "primary LLM failed, trying fallbacks",
		"primary", f.primary.Name(), "error", err)

	errs := []error{fmt.Errorf("%s: %w", f.primary.Name(), err)}
	for _, fb := range f.fallbacks {
		resp, err = fb.Chat(ctx, req)
		if err == nil {
			f.logger.InfoContext(ctx, "failover succeeded", "provider", fb.Name())
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		f.logger.WarnContext(ctx, "fallback LLM failed", "provider", fb.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", fb.Name(), err))
	}

	return nil, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

// Name returns the primary's name; fallbacks are an implementation detail.
func (f *FailoverProvider) Name() string {
	return f.primary.Name()
}

var _ domain.LLMProvider = (*FailoverProvider)(nil)
