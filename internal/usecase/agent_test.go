package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maa/internal/domain"
)

func newCoach(t *testing.T, llm domain.LLMProvider, deps AgentDeps) *ChatAgent {
	t.Helper()
	deps.LLM = llm
	a, err := NewChatAgent(ChatAgentConfig{
		Identity:     domain.AgentIdentity{Name: "Coach"},
		Instructions: "You are the coach.",
		Model:        "gpt-4o",
		Temperature:  0.2,
		MaxTokens:    256,
	}, deps)
	require.NoError(t, err)
	return a
}

func TestNewChatAgentValidation(t *testing.T) {
	_, err := NewChatAgent(ChatAgentConfig{}, AgentDeps{LLM: &mockLLM{}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = NewChatAgent(ChatAgentConfig{Identity: domain.AgentIdentity{Name: "Coach"}}, AgentDeps{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestChatAgentSimpleReply(t *testing.T) {
	llm := &mockLLM{responses: []domain.ChatResponse{textResponse("INTENT_STOCK")}}
	a := newCoach(t, llm, AgentDeps{})

	history := []domain.Message{
		userMsg(1, "Where is excavator #12?"),
		agentMsg(2, "StockManager", "In Ghent."),
		agentMsg(3, "Coach", "Anything else?"),
	}
	reply, err := a.Invoke(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, "INTENT_STOCK", reply.Content)
	assert.Empty(t, reply.Warnings)
	assert.Equal(t, 15, reply.Usage.TotalTokens)

	require.Len(t, llm.requests, 1)
	req := llm.requests[0]
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Equal(t, 0.2, req.Temperature)
	assert.Equal(t, 256, req.MaxTokens)
	require.Len(t, req.Messages, 4)
	assert.Equal(t, domain.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, domain.RoleUser, req.Messages[1].Role)
	assert.Empty(t, req.Messages[1].Name)
	assert.Equal(t, domain.RoleUser, req.Messages[2].Role)
	assert.Equal(t, "StockManager", req.Messages[2].Name)
	assert.Equal(t, domain.RoleAssistant, req.Messages[3].Role)
}

func TestChatAgentDoesNotMutateHistory(t *testing.T) {
	llm := &mockLLM{responses: []domain.ChatResponse{textResponse("ok")}}
	a := newCoach(t, llm, AgentDeps{})
	history := []domain.Message{userMsg(1, "hi")}
	snapshot := append([]domain.Message(nil), history...)

	_, err := a.Invoke(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, snapshot, history)
}

func TestChatAgentToolLoop(t *testing.T) {
	clip := &staticTool{name: "set_clipboard", result: "copied"}
	llm := &mockLLM{responses: []domain.ChatResponse{
		toolResponse(domain.ToolCall{ID: "call_1", Name: "set_clipboard", Arguments: json.RawMessage(`{"content":"42"}`)}),
		textResponse("Copied the answer to your clipboard."),
	}}
	bus := &recordingBus{}
	a := newCoach(t, llm, AgentDeps{Tools: newTestToolExecutor(clip), Bus: bus})

	reply, err := a.Invoke(context.Background(), []domain.Message{userMsg(1, "copy 42")})
	require.NoError(t, err)
	assert.Equal(t, "Copied the answer to your clipboard.", reply.Content)
	assert.Empty(t, reply.Warnings)
	assert.Equal(t, 22, reply.Usage.TotalTokens)

	require.Len(t, clip.args, 1)
	assert.JSONEq(t, `{"content":"42"}`, string(clip.args[0]))

	require.Len(t, llm.requests, 2)
	assert.Len(t, llm.requests[0].Tools, 1)
	second := llm.requests[1].Messages
	toolResult := second[len(second)-1]
	assert.Equal(t, domain.RoleTool, toolResult.Role)
	assert.Equal(t, "call_1", toolResult.ToolCallID)
	assert.Equal(t, "copied", toolResult.Content)
	assert.Equal(t, domain.RoleAssistant, second[len(second)-2].Role)

	assert.Equal(t, 2, bus.count(domain.EventLLMCallStarted))
	assert.Equal(t, 1, bus.count(domain.EventToolCallCompleted))
}

func TestChatAgentToolFailuresBecomeWarnings(t *testing.T) {
	tests := []struct {
		name   string
		tool   *staticTool
		call   string
		detail string
	}{
		{"execute error", &staticTool{name: "set_clipboard", err: errors.New("no clipboard utility")}, "set_clipboard", "no clipboard utility"},
		{"error result", &staticTool{name: "set_clipboard", result: "xclip missing", isError: true}, "set_clipboard", "xclip missing"},
		{"unknown tool", &staticTool{name: "set_clipboard"}, "format_disk", "tool not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &mockLLM{responses: []domain.ChatResponse{
				toolResponse(domain.ToolCall{ID: "c1", Name: tt.call, Arguments: json.RawMessage(`{}`)}),
				textResponse("Done, but the clipboard could not be set."),
			}}
			a := newCoach(t, llm, AgentDeps{Tools: newTestToolExecutor(tt.tool)})

			reply, err := a.Invoke(context.Background(), []domain.Message{userMsg(1, "copy")})
			require.NoError(t, err)
			require.Len(t, reply.Warnings, 1)
			w := reply.Warnings[0]
			assert.Equal(t, tt.call, w.Tool)
			assert.Equal(t, "c1", w.CallID)
			assert.Contains(t, w.Detail, tt.detail)
			assert.ErrorIs(t, w.Err(), domain.ErrToolInvocation)

			fed := llm.requests[1].Messages
			assert.True(t, strings.HasPrefix(fed[len(fed)-1].Content, "error: "))
		})
	}
}

func TestChatAgentParallelToolCallsKeepOrder(t *testing.T) {
	a1 := &staticTool{name: "a", result: "first"}
	a2 := &staticTool{name: "b", result: "second"}
	llm := &mockLLM{responses: []domain.ChatResponse{
		toolResponse(
			domain.ToolCall{ID: "1", Name: "a", Arguments: json.RawMessage(`{}`)},
			domain.ToolCall{ID: "2", Name: "b", Arguments: json.RawMessage(`{}`)},
		),
		textResponse("done"),
	}}
	a := newCoach(t, llm, AgentDeps{Tools: newTestToolExecutor(a1, a2)})

	_, err := a.Invoke(context.Background(), []domain.Message{userMsg(1, "go")})
	require.NoError(t, err)
	fed := llm.requests[1].Messages
	n := len(fed)
	assert.Equal(t, "first", fed[n-2].Content)
	assert.Equal(t, "second", fed[n-1].Content)
}

func TestChatAgentToolRoundLimit(t *testing.T) {
	loop := domain.ChatResponse{Message: domain.ChatMessage{
		Role:      domain.RoleAssistant,
		Content:   "still working",
		ToolCalls: []domain.ToolCall{{ID: "x", Name: "set_clipboard", Arguments: json.RawMessage(`{}`)}},
	}}
	responses := make([]domain.ChatResponse, 10)
	for i := range responses {
		responses[i] = loop
	}
	llm := &mockLLM{responses: responses}
	a := newCoach(t, llm, AgentDeps{Tools: newTestToolExecutor(&staticTool{name: "set_clipboard", result: "ok"})})

	reply, err := a.Invoke(context.Background(), []domain.Message{userMsg(1, "go")})
	require.NoError(t, err)
	assert.Equal(t, "still working", reply.Content)
	assert.Equal(t, DefaultMaxToolRounds+1, llm.calls())
}

func TestChatAgentProviderErrorIsGeneration(t *testing.T) {
	llm := &mockLLM{errs: []error{fmt.Errorf("%w: API error 401: bad key", domain.ErrAuthInvalid)}}
	a := newCoach(t, llm, AgentDeps{ErrorClassifier: NewErrorClassifier()})

	_, err := a.Invoke(context.Background(), []domain.Message{userMsg(1, "hi")})
	require.ErrorIs(t, err, domain.ErrGeneration)
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
	assert.Equal(t, 1, llm.calls(), "permanent errors are not retried")

	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "Coach", de.Detail)
}

func TestChatAgentEmptyResponseIsGeneration(t *testing.T) {
	llm := &mockLLM{responses: []domain.ChatResponse{textResponse("  ")}}
	a := newCoach(t, llm, AgentDeps{})

	_, err := a.Invoke(context.Background(), []domain.Message{userMsg(1, "hi")})
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.ErrorIs(t, err, domain.ErrEmptyResponse)
}

func TestChatAgentRetriesTransientErrors(t *testing.T) {
	orig := backoff
	backoff = func(int) time.Duration { return time.Millisecond }
	t.Cleanup(func() { backoff = orig })

	llm := &mockLLM{
		errs:      []error{fmt.Errorf("%w: API error 429: slow down", domain.ErrRateLimit), errors.New("API error 503: overloaded")},
		responses: []domain.ChatResponse{{}, {}, textResponse("finally")},
	}
	a := newCoach(t, llm, AgentDeps{ErrorClassifier: NewErrorClassifier()})

	reply, err := a.Invoke(context.Background(), []domain.Message{userMsg(1, "hi")})
	require.NoError(t, err)
	assert.Equal(t, "finally", reply.Content)
	assert.Equal(t, 3, llm.calls())
}

func TestChatAgentWithoutClassifierDoesNotRetry(t *testing.T) {
	llm := &mockLLM{errs: []error{fmt.Errorf("%w: API error 429", domain.ErrRateLimit)}}
	a := newCoach(t, llm, AgentDeps{})

	_, err := a.Invoke(context.Background(), []domain.Message{userMsg(1, "hi")})
	require.ErrorIs(t, err, domain.ErrGeneration)
	assert.Equal(t, 1, llm.calls())
}

func TestChatAgentCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	llm := &mockLLM{errs: []error{context.Canceled}}
	a := newCoach(t, llm, AgentDeps{ErrorClassifier: NewErrorClassifier()})

	_, err := a.Invoke(ctx, []domain.Message{userMsg(1, "hi")})
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrGeneration)
}

func TestRetryBackoffBounds(t *testing.T) {
	for attempt := 0; attempt < 8; attempt++ {
		d := retryBackoff(attempt)
		assert.GreaterOrEqual(t, d, baseRetryDelay)
		assert.LessOrEqual(t, d, maxRetryDelay+maxRetryDelay/4)
	}
}
