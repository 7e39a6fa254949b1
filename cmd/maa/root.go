package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"maa/internal/domain"
	"maa/internal/infra/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// cliFlags holds the flags shared by every command.
type cliFlags struct {
	ConfigPath  string
	Provider    string
	Model       string
	APIKey      string
	Endpoint    string
	Offline     bool
	MetricsAddr string
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:   "maa",
		Short: "maa - multi-agent help desk on the console",
		Long: `maa runs a group chat of agents on the console: a receptionist classifies
each question and hands it to the stock manager or the knowledge expert.

Type EXIT to quit, RESET to start a new conversation and @path to send the
contents of a file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flags, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", defaultConfigPath(), "config file path")
	pf.StringVar(&flags.Provider, "provider", "", "provider type for a quick start without a config file (openai, azure, anthropic)")
	pf.StringVar(&flags.Model, "model", "", "model name, or deployment name for azure")
	pf.StringVar(&flags.APIKey, "key", "", "API key for the provider")
	pf.StringVar(&flags.Endpoint, "endpoint", "", "provider base URL (required for azure)")
	pf.BoolVar(&flags.Offline, "offline", false, "run with scripted agents and no text-generation service")
	pf.StringVar(&flags.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. 127.0.0.1:9090")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start the console chat (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), flags, cmd.InOrStdin(), cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "agents",
			Short: "List the configured agents",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(flags)
				if err != nil {
					return err
				}
				printAgents(cmd.OutOrStdout(), cfg)
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "maa %s\n", version)
			},
		},
	)
	return root
}

func defaultConfigPath() string {
	if p := os.Getenv("MAA_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// loadConfig reads the config file, or builds one from the quick-start flags
// when --provider is set. Flags win over the file and the environment.
func loadConfig(flags *cliFlags) (*config.Config, error) {
	var cfg *config.Config
	if flags.Provider != "" {
		quick, err := buildQuickConfig(flags)
		if err != nil {
			return nil, err
		}
		cfg = quick
	} else {
		loaded, err := config.Load(flags.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		cfg = loaded
	}

	if flags.MetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = flags.MetricsAddr
	}
	if flags.Offline {
		applyOffline(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// buildQuickConfig creates a single-provider config from CLI flags, bypassing
// the config file.
func buildQuickConfig(flags *cliFlags) (*config.Config, error) {
	pc := config.ProviderConfig{
		Name:    flags.Provider,
		Type:    flags.Provider,
		Model:   flags.Model,
		APIKey:  flags.APIKey,
		BaseURL: flags.Endpoint,
	}
	if pc.Type == "azure" {
		pc.Deployment = flags.Model
	}

	cfg := config.Defaults()
	cfg.LLM.DefaultProvider = pc.Name
	cfg.LLM.Providers = []config.ProviderConfig{pc}
	config.ApplyEnvOverrides(cfg)

	if !flags.Offline && cfg.LLM.Providers[0].APIKey == "" {
		return nil, domain.NewDomainError("buildQuickConfig", domain.ErrInvalidInput,
			"--key is required with --provider")
	}
	return cfg, nil
}

// applyOffline switches to strategies that need no text-generation service.
func applyOffline(cfg *config.Config) {
	if cfg.Chat.Selection.Strategy == "prompt" {
		cfg.Chat.Selection.Strategy = "sequential"
	}
	if cfg.Chat.Termination.Strategy == "prompt" {
		cfg.Chat.Termination.Strategy = "keyword"
	}
	cfg.LLM.Providers = nil
}

func printAgents(w io.Writer, cfg *config.Config) {
	for _, a := range cfg.Agents {
		provider := a.Provider
		if provider == "" {
			provider = cfg.LLM.DefaultProvider
		}
		var marks []string
		if a.Name == cfg.Chat.InitialAgent {
			marks = append(marks, "initial")
		}
		for _, e := range cfg.Chat.EvaluatedAgents {
			if e == a.Name {
				marks = append(marks, "evaluated")
			}
		}
		fmt.Fprintf(w, "%s\n", a.Name)
		if len(marks) > 0 {
			fmt.Fprintf(w, "  role:        %s\n", strings.Join(marks, ", "))
		}
		fmt.Fprintf(w, "  provider:    %s\n", provider)
		if len(a.Tools) > 0 {
			fmt.Fprintf(w, "  tools:       %s\n", strings.Join(a.Tools, ", "))
		}
		if a.Description != "" {
			fmt.Fprintf(w, "  description: %s\n", a.Description)
		}
	}
}
