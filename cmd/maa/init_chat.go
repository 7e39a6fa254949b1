package main

import (
	"fmt"
	"log/slog"
	"strings"

	"maa/internal/adapter/llm"
	"maa/internal/adapter/tool"
	"maa/internal/domain"
	"maa/internal/infra/config"
	"maa/internal/infra/logger"
	"maa/internal/usecase"
	"maa/internal/usecase/groupchat"
)

// chatDeps holds what the chat components are built from.
type chatDeps struct {
	Config   *config.Config
	Registry *llm.Registry // nil = offline
	Bus      domain.EventBus
	Metrics  groupchat.Metrics
	Logger   *slog.Logger
}

// initChat builds tools, agents and strategies and returns the group chat.
func initChat(deps chatDeps) (*groupchat.GroupChat, error) {
	agents, err := initAgents(deps)
	if err != nil {
		return nil, fmt.Errorf("agents: %w", err)
	}
	selection, err := initSelection(deps)
	if err != nil {
		return nil, fmt.Errorf("selection: %w", err)
	}
	termination, err := initTermination(deps)
	if err != nil {
		return nil, fmt.Errorf("termination: %w", err)
	}

	return groupchat.New(groupchat.Settings{
		Selection:   selection,
		Termination: termination,
		Logger:      logger.Component(deps.Logger, "groupchat"),
		Bus:         deps.Bus,
		Metrics:     deps.Metrics,
	}, agents...)
}

func initTools(cfg *config.Config, log *slog.Logger) (*tool.Registry, error) {
	registry := tool.NewRegistry(logger.Component(log, "tools"))
	if cfg.Tools.ClipboardEnabled {
		if err := registry.Register(tool.NewClipboardTool(log)); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func initAgents(deps chatDeps) ([]domain.Agent, error) {
	cfg := deps.Config
	if deps.Registry == nil {
		return offlineAgents(cfg), nil
	}

	tools, err := initTools(cfg, deps.Logger)
	if err != nil {
		return nil, err
	}
	classifier := usecase.NewErrorClassifier()

	agents := make([]domain.Agent, 0, len(cfg.Agents))
	for _, ac := range cfg.Agents {
		provider, err := deps.Registry.Resolve(ac.Provider)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", ac.Name, err)
		}
		agent, err := usecase.NewChatAgent(usecase.ChatAgentConfig{
			Identity:      domain.AgentIdentity{Name: ac.Name, Description: ac.Description},
			Instructions:  ac.Instructions,
			Model:         ac.Model,
			Temperature:   ac.Temperature,
			MaxTokens:     ac.MaxTokens,
			MaxToolRounds: ac.MaxToolRounds,
			MaxMessages:   ac.MaxMessages,
		}, usecase.AgentDeps{
			LLM:             provider,
			Tools:           usecase.NewScopedToolExecutor(tools, ac.Tools),
			Logger:          logger.Component(deps.Logger, "agent").With("agent", ac.Name),
			Bus:             deps.Bus,
			ErrorClassifier: classifier,
		})
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", ac.Name, err)
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

// offlineAgents answers with canned replies. Evaluated agents end their
// second turn with the termination token so a sequential round trip finishes.
func offlineAgents(cfg *config.Config) []domain.Agent {
	gate := groupchat.TerminationGate{Agents: cfg.Chat.EvaluatedAgents}
	agents := make([]domain.Agent, 0, len(cfg.Agents))
	for _, ac := range cfg.Agents {
		id := domain.AgentIdentity{Name: ac.Name, Description: ac.Description}
		if gate.Evaluates(ac.Name) {
			agents = append(agents, usecase.NewScriptedAgent(id,
				fmt.Sprintf("[offline] %s is passing your question on.", ac.Name),
				fmt.Sprintf("[offline] %s: the question has been answered. %s", ac.Name, cfg.Chat.TerminationToken),
			))
			continue
		}
		agents = append(agents, usecase.NewScriptedAgent(id,
			fmt.Sprintf("[offline] %s has no text-generation service to answer with.", ac.Name)))
	}
	return agents
}

func initSelection(deps chatDeps) (groupchat.SelectionStrategy, error) {
	c := deps.Config.Chat
	switch c.Selection.Strategy {
	case "sequential":
		return groupchat.NewSequentialSelection(c.InitialAgent), nil
	case "keyword":
		rules := make([]groupchat.KeywordRule, len(c.Selection.Rules))
		for i, r := range c.Selection.Rules {
			rules[i] = groupchat.KeywordRule{Author: r.Author, Keyword: r.Keyword, Next: r.Next}
		}
		return groupchat.NewKeywordSelection(c.InitialAgent, rules...), nil
	}

	decision, err := promptDecision(deps, "selection", c.Selection)
	if err != nil {
		return nil, err
	}
	return groupchat.NewDecisionSelection(groupchat.DecisionSelectionConfig{
		InitialAgent: c.InitialAgent,
		Decision:     decision,
		Reducer:      groupchat.ReducerFor(c.HistoryDepth),
		MaxAttempts:  c.Selection.MaxAttempts,
		Logger:       logger.Component(deps.Logger, "selection"),
	})
}

func initTermination(deps chatDeps) (groupchat.TerminationStrategy, error) {
	c := deps.Config.Chat
	gate := groupchat.TerminationGate{
		Agents:            c.EvaluatedAgents,
		MaximumIterations: c.MaxIterations,
	}
	if c.Termination.Strategy == "keyword" {
		return groupchat.NewKeywordTermination(gate, c.TerminationToken), nil
	}

	decision, err := promptDecision(deps, "termination", c.Termination, groupchat.WithToken(c.TerminationToken))
	if err != nil {
		return nil, err
	}
	return groupchat.NewDecisionTermination(groupchat.DecisionTerminationConfig{
		TerminationGate: gate,
		Token:           c.TerminationToken,
		Decision:        decision,
		Reducer:         groupchat.ReducerFor(c.HistoryDepth),
		Logger:          logger.Component(deps.Logger, "termination"),
	})
}

func promptDecision(deps chatDeps, name string, dc config.DecisionConfig, opts ...groupchat.PromptOption) (*groupchat.PromptDecision, error) {
	if deps.Registry == nil {
		return nil, errNoProvider
	}
	provider, err := deps.Registry.Resolve(dc.Provider)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dc.Model) != "" {
		opts = append(opts, groupchat.WithModel(dc.Model))
	}
	opts = append(opts, groupchat.WithTemperature(dc.Temperature))
	return groupchat.NewPromptDecision(name, provider, dc.Prompt, opts...)
}
