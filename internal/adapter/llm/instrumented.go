package llm

import (
	"context"
	"strings"
	"time"

	"maa/internal/domain"
)

// LLMObserver receives the latency and outcome of every provider call.
type LLMObserver interface {
	ObserveLLM(provider, outcome string, d time.Duration)
}

// InstrumentedProvider reports call latency to an LLMObserver. The outcome is
// "ok" or the lower-cased domain error code.
type InstrumentedProvider struct {
	inner    domain.LLMProvider
	observer LLMObserver
}

// NewInstrumentedProvider wraps inner. A nil observer returns inner unchanged.
func NewInstrumentedProvider(inner domain.LLMProvider, observer LLMObserver) domain.LLMProvider {
	if observer == nil {
		return inner
	}
	return &InstrumentedProvider{inner: inner, observer: observer}
}

// Chat implements domain.LLMProvider.
func (p *InstrumentedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	start := time.Now()
	resp, err := p.inner.Chat(ctx, req)
	p.observer.ObserveLLM(p.inner.Name(), outcome(err), time.Since(start))
	return resp, err
}

// Name implements domain.LLMProvider.
func (p *InstrumentedProvider) Name() string { return p.inner.Name() }

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(domain.ErrorCodeOf(err)))
}
