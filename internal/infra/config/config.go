package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Agents  []AgentConfig `yaml:"agents"`
	Chat    ChatConfig    `yaml:"chat"`
	Tools   ToolsConfig   `yaml:"tools"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LLMConfig holds text-generation provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit       RateLimitConfig      `yaml:"rate_limit"`
}

// FailoverConfig holds provider failover settings.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RateLimitConfig throttles outgoing generation calls per provider.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // "openai", "azure", "anthropic"
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Deployment  string        `yaml:"deployment,omitempty"`  // azure only
	APIVersion  string        `yaml:"api_version,omitempty"` // azure only
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// AgentConfig defines one participant of the group chat.
type AgentConfig struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description,omitempty"`
	Instructions  string   `yaml:"instructions"`
	Provider      string   `yaml:"provider,omitempty"` // empty = llm.default_provider
	Model         string   `yaml:"model,omitempty"`
	Temperature   float64  `yaml:"temperature,omitempty"`
	MaxTokens     int      `yaml:"max_tokens,omitempty"`
	Tools         []string `yaml:"tools,omitempty"`
	MaxToolRounds int      `yaml:"max_tool_rounds,omitempty"`
	MaxMessages   int      `yaml:"max_messages,omitempty"` // 0 = whole transcript
}

// ChatConfig holds the turn-taking settings of the group chat.
type ChatConfig struct {
	InitialAgent     string         `yaml:"initial_agent"`
	EvaluatedAgents  []string       `yaml:"evaluated_agents"`
	TerminationToken string         `yaml:"termination_token"`
	MaxIterations    int            `yaml:"max_iterations"`
	HistoryDepth     int            `yaml:"history_depth"` // 0 = whole transcript
	Selection        DecisionConfig `yaml:"selection"`
	Termination      DecisionConfig `yaml:"termination"`
}

// DecisionConfig configures a selection or termination strategy.
type DecisionConfig struct {
	Strategy    string              `yaml:"strategy"` // selection: prompt, keyword, sequential; termination: prompt, keyword
	Provider    string              `yaml:"provider,omitempty"`
	Model       string              `yaml:"model,omitempty"`
	Temperature float64             `yaml:"temperature,omitempty"`
	Prompt      string              `yaml:"prompt,omitempty"`
	MaxAttempts int                 `yaml:"max_attempts,omitempty"`
	Rules       []KeywordRuleConfig `yaml:"rules,omitempty"`
}

// KeywordRuleConfig routes to Next when a message by Author contains Keyword.
type KeywordRuleConfig struct {
	Author  string `yaml:"author"`
	Keyword string `yaml:"keyword"`
	Next    string `yaml:"next"`
}

// ToolsConfig holds tool settings.
type ToolsConfig struct {
	ClipboardEnabled bool `yaml:"clipboard_enabled"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// MetricsConfig holds Prometheus settings. An empty Addr disables the listener
// while keeping collectors registered.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default agent names.
const (
	CoachName           = "Coach"
	StockManagerName    = "StockManager"
	KnowledgeExpertName = "Expert"
)

// DefaultTerminationToken is the word the termination decision emits when done.
const DefaultTerminationToken = "yes"

// DefaultSelectionPrompt asks the model for the next participant. It is a
// text/template rendered with .Participants, .History, .LastMessage and .Token.
const DefaultSelectionPrompt = `Examine the provided RESPONSE and choose the next participant.
State only the name of the chosen participant without explanation.

Choose only from these participants:
{{range .Participants}}- {{.}}
{{end}}
RESPONSE:
{{.History}}`

// DefaultTerminationPrompt asks the model whether the conversation is done.
const DefaultTerminationPrompt = `Examine the RESPONSE and determine whether the content has been deemed satisfactory.
If content is satisfactory, respond with a single word without explanation: {{.Token}}.
If user question is answered, it is satisfactory.

RESPONSE:
{{.History}}`

const coachInstructions = `You are a reception desk clerk for employees of Juri, a construction company.
Users can have questions on warehouse stock related topics on Juri's construction machines, Juri specific know-how on construction, rules and regulations in the building industry.

Your sole responsibility is to classify the intent of the user question to the following domains and respond with:
1- STOCK:
* in case of a user question related to construction machinery stock availability
* in case of a user question related to construction machinery maintenance information
* in case of a user question related to construction machinery certificates
2- EXPERT:
* in case of a user question asking information in the context of building and construction
Once clear you delegate the question to another agent, wait for the response and provide it to the user.`

const stockInstructions = `Your sole responsibility is to retrieve the requested information from Juri's construction machinery database.
Example questions you can help with:
* give me stock availability for a specific construction machinery
* questions related to construction machinery certificates
Always use the MIRA connector to search using available tools and respond in JSON format.`

const expertInstructions = `Your sole responsibility is to retrieve the requested information from the knowledge base.
Always use the available RAG tools and inform the user.`

// Defaults returns a Config with the receptionist / stock / expert setup.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			DefaultProvider: "azure",
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 60,
				Burst:             5,
			},
		},
		Agents: []AgentConfig{
			{
				Name:         CoachName,
				Description:  "Classifies the intent of the user question and relays answers.",
				Instructions: coachInstructions,
				Tools:        []string{"set_clipboard"},
			},
			{
				Name:         StockManagerName,
				Description:  "Answers construction machinery stock, maintenance and certificate questions.",
				Instructions: stockInstructions,
			},
			{
				Name:         KnowledgeExpertName,
				Description:  "Answers building and construction know-how questions from the knowledge base.",
				Instructions: expertInstructions,
			},
		},
		Chat: ChatConfig{
			InitialAgent:     CoachName,
			EvaluatedAgents:  []string{CoachName},
			TerminationToken: DefaultTerminationToken,
			MaxIterations:    12,
			HistoryDepth:     1,
			Selection: DecisionConfig{
				Strategy:    "prompt",
				Prompt:      DefaultSelectionPrompt,
				MaxAttempts: 2,
			},
			Termination: DecisionConfig{
				Strategy: "prompt",
				Prompt:   DefaultTerminationPrompt,
			},
		},
		Tools: ToolsConfig{
			ClipboardEnabled: true,
		},
		Logger: LoggerConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "",
		},
	}
}

// Load reads a YAML config file, applies env var overrides and validates.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Azure OpenAI environment variables honoured for the "azure" provider.
const (
	EnvAzureEndpoint   = "AZURE_OPENAI_ENDPOINT"
	EnvAzureAPIKey     = "AZURE_OPENAI_API_KEY"
	EnvAzureDeployment = "AZURE_OPENAI_CHAT_DEPLOYMENT"
)

// ApplyEnvOverrides maps MAA_* and AZURE_OPENAI_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MAA_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("MAA_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("MAA_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("MAA_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("MAA_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("MAA_METRICS_ADDR"); v != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("MAA_CHAT_INITIAL_AGENT"); v != "" {
		cfg.Chat.InitialAgent = v
	}
	if v := os.Getenv("MAA_CHAT_TERMINATION_TOKEN"); v != "" {
		cfg.Chat.TerminationToken = v
	}
	if v := os.Getenv("MAA_CHAT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Chat.MaxIterations = n
		}
	}
	if v := os.Getenv("MAA_CHAT_HISTORY_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Chat.HistoryDepth = n
		}
	}
	if v := os.Getenv("MAA_TOOLS_CLIPBOARD_ENABLED"); v == "false" {
		cfg.Tools.ClipboardEnabled = false
	}

	applyAzureEnv(cfg)

	// Per-provider overrides: MAA_LLM_PROVIDER_<NAME>_API_KEY / _MODEL / _BASE_URL
	for i := range cfg.LLM.Providers {
		prefix := "MAA_LLM_PROVIDER_" + strings.ToUpper(cfg.LLM.Providers[i].Name)
		if v := os.Getenv(prefix + "_API_KEY"); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
		if v := os.Getenv(prefix + "_MODEL"); v != "" {
			cfg.LLM.Providers[i].Model = v
		}
		if v := os.Getenv(prefix + "_BASE_URL"); v != "" {
			cfg.LLM.Providers[i].BaseURL = v
		}
	}
}

// applyAzureEnv fills empty fields of azure providers from AZURE_OPENAI_*.
// When no provider is configured and an endpoint is set, an "azure" provider is added.
func applyAzureEnv(cfg *Config) {
	endpoint := os.Getenv(EnvAzureEndpoint)
	apiKey := os.Getenv(EnvAzureAPIKey)
	deployment := os.Getenv(EnvAzureDeployment)

	if len(cfg.LLM.Providers) == 0 && endpoint != "" {
		cfg.LLM.Providers = append(cfg.LLM.Providers, ProviderConfig{
			Name: "azure",
			Type: "azure",
		})
	}

	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		if p.Type != "azure" {
			continue
		}
		if p.BaseURL == "" {
			p.BaseURL = endpoint
		}
		if p.APIKey == "" {
			p.APIKey = apiKey
		}
		if p.Deployment == "" {
			p.Deployment = deployment
		}
	}
}

// Provider returns the provider config with the given name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.LLM.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// Agent returns the agent config with the given name.
func (c *Config) Agent(name string) (AgentConfig, bool) {
	for _, a := range c.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentConfig{}, false
}

// validatePermissions checks the config file is not writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
