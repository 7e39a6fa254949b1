package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"maa/internal/domain"
	"maa/internal/infra/tracer"
)

// Recovery loop constants.
const (
	maxLLMRetries  = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second
)

// DefaultMaxToolRounds bounds the tool-call loop of a single turn.
const DefaultMaxToolRounds = 5

// backoff is swapped by tests.
var backoff = retryBackoff

// ChatAgentConfig describes one LLM-backed participant.
type ChatAgentConfig struct {
	Identity      domain.AgentIdentity
	Instructions  string
	Model         string
	Temperature   float64
	MaxTokens     int
	MaxToolRounds int // <= 0 = DefaultMaxToolRounds
	MaxMessages   int // transcript messages sent per turn; 0 = all
}

// AgentDeps holds injected dependencies for the agent.
type AgentDeps struct {
	LLM             domain.LLMProvider
	Tools           domain.ToolExecutor // optional, nil = no tools
	Logger          *slog.Logger
	Bus             domain.EventBus  // optional, nil = no events
	ErrorClassifier *ErrorClassifier // optional, nil = no retries
}

// ChatAgent is a group-chat participant backed by a text-generation provider.
// Each turn runs a bounded tool-call loop and yields one reply. Failed tool
// calls become warnings on the reply; they never abort the turn.
type ChatAgent struct {
	cfg     ChatAgentConfig
	deps    AgentDeps
	builder *ContextBuilder
}

// NewChatAgent creates an agent with the given configuration and dependencies.
func NewChatAgent(cfg ChatAgentConfig, deps AgentDeps) (*ChatAgent, error) {
	if strings.TrimSpace(cfg.Identity.Name) == "" {
		return nil, domain.NewDomainError("NewChatAgent", domain.ErrInvalidInput, "agent name is required")
	}
	if deps.LLM == nil {
		return nil, domain.NewDomainError("NewChatAgent", domain.ErrInvalidInput,
			fmt.Sprintf("agent %q has no llm provider", cfg.Identity.Name))
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	b := NewContextBuilder(cfg.Identity.Name, cfg.Instructions, cfg.Model)
	b.SetGeneration(cfg.Temperature, cfg.MaxTokens)
	b.SetMaxMessages(cfg.MaxMessages)
	return &ChatAgent{cfg: cfg, deps: deps, builder: b}, nil
}

// Identity implements domain.Agent.
func (a *ChatAgent) Identity() domain.AgentIdentity { return a.cfg.Identity }

// Invoke implements domain.Agent. Provider failures are returned as
// domain.ErrGeneration; cancellation of ctx is returned as is.
func (a *ChatAgent) Invoke(ctx context.Context, history []domain.Message) (*domain.Reply, error) {
	const op = "ChatAgent.Invoke"
	name := a.cfg.Identity.Name

	ctx, span := tracer.StartSpan(ctx, "agent.invoke",
		trace.WithAttributes(
			tracer.StringAttr("agent", name),
			tracer.IntAttr("history", len(history)),
		),
	)
	defer span.End()

	var schemas []domain.ToolSchema
	if a.deps.Tools != nil {
		schemas = a.deps.Tools.Schemas()
	}
	req := a.builder.Build(history, schemas)

	var (
		reply domain.Reply
		usage domain.Usage
	)
	for round := 0; ; round++ {
		span.AddEvent("agent.iteration", trace.WithAttributes(tracer.IntAttr("iteration", round)))

		a.publishEvent(ctx, domain.EventLLMCallStarted, domain.LLMCallPayload{Agent: name, Provider: a.deps.LLM.Name()})
		resp, err := a.callLLMWithRetry(ctx, req)
		if err != nil {
			tracer.RecordError(span, err)
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, domain.GenerationError(op, name, err)
		}
		usage.Add(resp.Usage)
		a.publishEvent(ctx, domain.EventLLMCallCompleted, domain.LLMCallPayload{
			Agent: name, Provider: a.deps.LLM.Name(), Tokens: resp.Usage.TotalTokens,
		})

		msg := resp.Message
		a.deps.Logger.DebugContext(ctx, "llm response",
			"agent", name,
			"iteration", round,
			"tool_calls", len(msg.ToolCalls),
			"tokens", resp.Usage.TotalTokens,
		)

		// No tool calls = final response.
		if len(msg.ToolCalls) == 0 || round >= a.cfg.MaxToolRounds {
			if len(msg.ToolCalls) > 0 {
				a.deps.Logger.WarnContext(ctx, "tool round limit reached", "agent", name, "limit", a.cfg.MaxToolRounds)
			}
			if strings.TrimSpace(msg.Content) == "" {
				err := domain.GenerationError(op, name, domain.ErrEmptyResponse)
				tracer.RecordError(span, err)
				return nil, err
			}
			reply.Content = msg.Content
			reply.Usage = usage
			span.SetAttributes(tracer.IntAttr("tokens", usage.TotalTokens), tracer.IntAttr("warnings", len(reply.Warnings)))
			tracer.SetOK(span)
			return &reply, nil
		}

		// Execute tool calls in parallel.
		// Results are collected in indexed arrays to preserve original call order.
		results := make([]domain.ChatMessage, len(msg.ToolCalls))
		warnings := make([]*domain.ToolWarning, len(msg.ToolCalls))
		var wg sync.WaitGroup
		for i, call := range msg.ToolCalls {
			wg.Add(1)
			go func(idx int, c domain.ToolCall) {
				defer wg.Done()
				results[idx], warnings[idx] = a.executeTool(ctx, c)
			}(i, call)
		}
		wg.Wait()

		req.Messages = append(req.Messages, domain.ChatMessage{
			Role:      domain.RoleAssistant,
			Content:   msg.Content,
			ToolCalls: msg.ToolCalls,
			Timestamp: time.Now(),
		})
		req.Messages = append(req.Messages, results...)
		for _, w := range warnings {
			if w != nil {
				reply.Warnings = append(reply.Warnings, *w)
			}
		}
	}
}

// executeTool runs a single tool call. A failed call yields an error result
// for the model plus a warning for the reply.
func (a *ChatAgent) executeTool(ctx context.Context, call domain.ToolCall) (domain.ChatMessage, *domain.ToolWarning) {
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	failed := func(detail string, err error) (domain.ChatMessage, *domain.ToolWarning) {
		tracer.RecordError(span, err)
		a.deps.Logger.WarnContext(ctx, "tool call failed",
			"agent", a.cfg.Identity.Name, "tool", call.Name, "error", detail)
		return toolMessage(call, "error: "+detail), &domain.ToolWarning{
			Tool:   call.Name,
			CallID: call.ID,
			Detail: detail,
		}
	}

	if a.deps.Tools == nil {
		return failed("no tools are available", domain.ErrToolNotFound)
	}
	tool, err := a.deps.Tools.Get(call.Name)
	if err != nil {
		return failed(err.Error(), err)
	}

	a.publishEvent(ctx, domain.EventToolCallStarted, domain.ToolCallPayload{Agent: a.cfg.Identity.Name, Tool: call.Name})
	result, err := tool.Execute(ctx, call.Arguments)
	success := err == nil && result != nil && !result.IsError
	a.publishEvent(ctx, domain.EventToolCallCompleted, domain.ToolCallPayload{
		Agent: a.cfg.Identity.Name, Tool: call.Name, Success: success,
	})

	switch {
	case err != nil:
		return failed(err.Error(), err)
	case result == nil:
		return failed("tool returned no result", domain.ErrToolInvocation)
	case result.IsError:
		return failed(result.Content, fmt.Errorf("%w: %s", domain.ErrToolInvocation, result.Content))
	}

	tracer.SetOK(span)
	return toolMessage(call, result.Content), nil
}

func toolMessage(call domain.ToolCall, content string) domain.ChatMessage {
	return domain.ChatMessage{
		Role:       domain.RoleTool,
		Name:       call.Name,
		Content:    content,
		ToolCallID: call.ID,
		Timestamp:  time.Now(),
	}
}

// callLLMWithRetry performs the LLM call, retrying errors the classifier
// marks retryable with exponential backoff.
func (a *ChatAgent) callLLMWithRetry(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	maxAttempts := 1
	if a.deps.ErrorClassifier != nil {
		maxAttempts = maxLLMRetries
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		llmCtx, llmSpan := tracer.StartSpan(ctx, "agent.llm_call",
			trace.WithAttributes(tracer.StringAttr("provider", a.deps.LLM.Name())),
		)
		resp, err := a.deps.LLM.Chat(llmCtx, req)
		if err == nil && resp == nil {
			err = domain.ErrEmptyResponse
		}
		if err != nil {
			tracer.RecordError(llmSpan, err)
		} else {
			tracer.SetOK(llmSpan)
		}
		llmSpan.End()

		if err == nil {
			return resp, nil
		}
		lastErr = err

		// No classifier → fail immediately.
		if a.deps.ErrorClassifier == nil {
			return nil, lastErr
		}
		if !a.deps.ErrorClassifier.Classify(err).Retryable() {
			return nil, lastErr
		}

		if attempt < maxAttempts-1 {
			delay := backoff(attempt)
			a.deps.Logger.InfoContext(ctx, "retrying LLM call after error",
				"agent", a.cfg.Identity.Name, "attempt", attempt+1, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// retryBackoff computes exponential backoff with jitter.
func retryBackoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	// Add 0-25% jitter.
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

// publishEvent publishes a domain event on the bus if it is configured.
func (a *ChatAgent) publishEvent(ctx context.Context, eventType domain.EventType, payload any) {
	if a.deps.Bus == nil {
		return
	}
	a.deps.Bus.Publish(ctx, domain.NewEvent(ctx, eventType, payload))
}
