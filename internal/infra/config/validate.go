package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateAgents(cfg, ve)
	validateChat(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateMetrics(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validProviderTypes = map[string]bool{
	"openai":    true,
	"azure":     true,
	"anthropic": true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}

	if cfg.LLM.CircuitBreaker.Enabled && cfg.LLM.CircuitBreaker.MaxFailures == 0 {
		ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
	}
	if cfg.LLM.RateLimit.Enabled {
		if cfg.LLM.RateLimit.RequestsPerMinute <= 0 {
			ve.Add("llm.rate_limit.requests_per_minute must be > 0 when enabled")
		}
		if cfg.LLM.RateLimit.Burst <= 0 {
			ve.Add("llm.rate_limit.burst must be > 0 when enabled")
		}
	}

	// No providers is allowed: the CLI can still run offline or from flags.
	if len(cfg.LLM.Providers) == 0 {
		return
	}

	seen := make(map[string]bool)
	foundDefault := false
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if p.Type != "" && !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, azure, anthropic)", i, p.Type)
		}
		if p.APIKey == "" {
			ve.Add("llm.providers[%d] (%s): api_key is empty (set via MAA_LLM_PROVIDER_%s_API_KEY)",
				i, p.Name, strings.ToUpper(p.Name))
		}
		if p.Type == "azure" {
			if p.BaseURL == "" {
				ve.Add("llm.providers[%d] (%s): base_url is required for azure provider (or set %s)", i, p.Name, EnvAzureEndpoint)
			}
			if p.Deployment == "" && p.Model == "" {
				ve.Add("llm.providers[%d] (%s): deployment is required for azure provider (or set %s)", i, p.Name, EnvAzureDeployment)
			}
		}
		if p.Name == cfg.LLM.DefaultProvider {
			foundDefault = true
		}
	}

	if !foundDefault && cfg.LLM.DefaultProvider != "" {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}

	if cfg.LLM.Failover.Enabled {
		for _, name := range cfg.LLM.Failover.Fallbacks {
			if !seen[name] {
				ve.Add("llm.failover.fallbacks: unknown provider %q", name)
			}
		}
	}

	for i, a := range cfg.Agents {
		if a.Provider != "" && !seen[a.Provider] {
			ve.Add("agents[%d] (%s): unknown provider %q", i, a.Name, a.Provider)
		}
	}
	if p := cfg.Chat.Selection.Provider; p != "" && !seen[p] {
		ve.Add("chat.selection.provider %q does not match any configured provider", p)
	}
	if p := cfg.Chat.Termination.Provider; p != "" && !seen[p] {
		ve.Add("chat.termination.provider %q does not match any configured provider", p)
	}
}

func validateAgents(cfg *Config, ve *ValidationError) {
	if len(cfg.Agents) == 0 {
		ve.Add("agents must define at least one agent")
		return
	}

	seen := make(map[string]bool)
	for i, a := range cfg.Agents {
		if strings.TrimSpace(a.Name) == "" {
			ve.Add("agents[%d].name must not be empty", i)
			continue
		}
		key := strings.ToLower(a.Name)
		if seen[key] {
			ve.Add("agents[%d]: duplicate agent name %q", i, a.Name)
		}
		seen[key] = true

		if strings.ContainsAny(a.Name, " \t\n") {
			ve.Add("agents[%d]: name %q must not contain whitespace", i, a.Name)
		}
		if a.Instructions == "" {
			ve.Add("agents[%d] (%s): instructions must not be empty", i, a.Name)
		}
		if a.Temperature < 0 || a.Temperature > 2 {
			ve.Add("agents[%d] (%s): temperature must be between 0 and 2", i, a.Name)
		}
		if a.MaxTokens < 0 {
			ve.Add("agents[%d] (%s): max_tokens must be >= 0", i, a.Name)
		}
		if a.MaxToolRounds < 0 {
			ve.Add("agents[%d] (%s): max_tool_rounds must be >= 0", i, a.Name)
		}
		if a.MaxMessages < 0 {
			ve.Add("agents[%d] (%s): max_messages must be >= 0", i, a.Name)
		}
		for _, tool := range a.Tools {
			if !knownTools[tool] {
				ve.Add("agents[%d] (%s): unknown tool %q", i, a.Name, tool)
			}
		}
	}
}

var knownTools = map[string]bool{
	"set_clipboard": true,
}

var (
	validSelectionStrategies   = map[string]bool{"prompt": true, "keyword": true, "sequential": true}
	validTerminationStrategies = map[string]bool{"prompt": true, "keyword": true}
)

func validateChat(cfg *Config, ve *ValidationError) {
	c := cfg.Chat
	if c.MaxIterations <= 0 {
		ve.Add("chat.max_iterations must be > 0")
	}
	if c.HistoryDepth < 0 {
		ve.Add("chat.history_depth must be >= 0")
	}
	if strings.TrimSpace(c.TerminationToken) == "" {
		ve.Add("chat.termination_token must not be empty")
	}
	if c.InitialAgent != "" {
		if _, ok := cfg.Agent(c.InitialAgent); !ok {
			ve.Add("chat.initial_agent %q does not match any configured agent", c.InitialAgent)
		}
	}
	for _, name := range c.EvaluatedAgents {
		if _, ok := cfg.Agent(name); !ok {
			ve.Add("chat.evaluated_agents: unknown agent %q", name)
		}
	}

	if !validSelectionStrategies[c.Selection.Strategy] {
		ve.Add("chat.selection.strategy %q is invalid (want: prompt, keyword, sequential)", c.Selection.Strategy)
	}
	if !validTerminationStrategies[c.Termination.Strategy] {
		ve.Add("chat.termination.strategy %q is invalid (want: prompt, keyword)", c.Termination.Strategy)
	}
	if c.Selection.Strategy == "prompt" && strings.TrimSpace(c.Selection.Prompt) == "" {
		ve.Add("chat.selection.prompt must not be empty for the prompt strategy")
	}
	if c.Termination.Strategy == "prompt" && strings.TrimSpace(c.Termination.Prompt) == "" {
		ve.Add("chat.termination.prompt must not be empty for the prompt strategy")
	}
	if c.Selection.MaxAttempts < 0 {
		ve.Add("chat.selection.max_attempts must be >= 0")
	}
	if t := c.Selection.Temperature; t < 0 || t > 2 {
		ve.Add("chat.selection.temperature must be between 0 and 2")
	}
	if t := c.Termination.Temperature; t < 0 || t > 2 {
		ve.Add("chat.termination.temperature must be between 0 and 2")
	}
	if c.Selection.Strategy == "keyword" {
		if len(c.Selection.Rules) == 0 {
			ve.Add("chat.selection.rules must not be empty for the keyword strategy")
		}
		for i, r := range c.Selection.Rules {
			if r.Keyword == "" && r.Author == "" {
				ve.Add("chat.selection.rules[%d] must set author or keyword", i)
			}
			if _, ok := cfg.Agent(r.Next); !ok {
				ve.Add("chat.selection.rules[%d].next: unknown agent %q", i, r.Next)
			}
			if r.Author != "" {
				if _, ok := cfg.Agent(r.Author); !ok && !strings.EqualFold(r.Author, "user") {
					ve.Add("chat.selection.rules[%d].author: unknown agent %q", i, r.Author)
				}
			}
		}
	}
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validLogFormats = map[string]bool{"json": true, "text": true}
	validExporters  = map[string]bool{"noop": true, "stdout": true, "": true}
)

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want: json, text)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}

func validateMetrics(cfg *Config, ve *ValidationError) {
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr == "" {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
		ve.Add("metrics.addr %q is invalid: %v", cfg.Metrics.Addr, err)
	}
}
