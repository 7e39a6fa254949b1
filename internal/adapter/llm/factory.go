package llm

import (
	"fmt"
	"log/slog"

	"maa/internal/domain"
	"maa/internal/infra/config"
)

// NewProvider creates the provider for cfg.Type.
func NewProvider(cfg config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	switch cfg.Type {
	case "openai", "azure":
		return NewOpenAIProvider(cfg, logger), nil
	case "anthropic":
		return NewAnthropicProvider(cfg, logger), nil
	default:
		return nil, domain.NewDomainError("llm.NewProvider", domain.ErrInvalidInput,
			fmt.Sprintf("provider %q: unknown type %q", cfg.Name, cfg.Type))
	}
}

// BuildRegistry creates every configured provider and wraps it, innermost
// first, with metrics, rate limiting and the circuit breaker. When failover is
// enabled the default provider falls back to the named providers in order.
func BuildRegistry(cfg config.LLMConfig, observer LLMObserver, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	built := make(map[string]domain.LLMProvider, len(cfg.Providers))
	order := make([]string, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		p, err := NewProvider(pc, logger.With("provider", pc.Name))
		if err != nil {
			return nil, err
		}
		p = NewInstrumentedProvider(p, observer)
		if cfg.RateLimit.Enabled {
			p = NewRateLimitedProvider(p, cfg.RateLimit)
		}
		if cfg.CircuitBreaker.Enabled {
			p = NewCircuitBreakerProvider(p, cfg.CircuitBreaker, logger)
		}
		built[pc.Name] = p
		order = append(order, pc.Name)
	}

	if cfg.Failover.Enabled {
		if primary, ok := built[cfg.DefaultProvider]; ok {
			var fallbacks []domain.LLMProvider
			for _, name := range cfg.Failover.Fallbacks {
				fb, ok := built[name]
				if !ok {
					return nil, domain.NewDomainError("llm.BuildRegistry", domain.ErrProviderNotFound, name)
				}
				if name != cfg.DefaultProvider {
					fallbacks = append(fallbacks, fb)
				}
			}
			built[cfg.DefaultProvider] = NewFailoverProvider(primary, fallbacks, logger)
		}
	}

	reg := NewRegistry()
	for _, name := range order {
		if err := reg.Register(built[name]); err != nil {
			return nil, err
		}
	}
	reg.SetDefault(cfg.DefaultProvider)
	logger.Debug("llm providers ready", "providers", reg.List(), "default", cfg.DefaultProvider)
	return reg, nil
}
