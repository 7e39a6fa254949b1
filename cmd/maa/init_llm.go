package main

import (
	"fmt"
	"log/slog"

	"maa/internal/adapter/llm"
	"maa/internal/domain"
	"maa/internal/infra/config"
	"maa/internal/infra/logger"
)

// initLLM builds the provider registry. It returns a nil registry when no
// provider is configured, which only offline mode accepts.
func initLLM(cfg *config.Config, observer llm.LLMObserver, log *slog.Logger) (*llm.Registry, error) {
	if len(cfg.LLM.Providers) == 0 {
		return nil, nil
	}

	registry, err := llm.BuildRegistry(cfg.LLM, observer, logger.Component(log, "llm"))
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	if cfg.LLM.CircuitBreaker.Enabled {
		log.Info("llm circuit breaker enabled",
			"max_failures", cfg.LLM.CircuitBreaker.MaxFailures,
			"timeout", cfg.LLM.CircuitBreaker.Timeout,
		)
	}
	if cfg.LLM.Failover.Enabled {
		log.Info("model failover enabled", "fallbacks", cfg.LLM.Failover.Fallbacks)
	}
	return registry, nil
}

// errNoProvider is returned when a chat needs a provider but none is configured.
var errNoProvider = domain.NewDomainError("maa", domain.ErrProviderNotFound,
	"no text-generation provider configured; use --provider/--key, set AZURE_OPENAI_ENDPOINT, or run with --offline")
