package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"maa/internal/domain"
)

// --- Mocks ---

type mockLLM struct {
	mu        sync.Mutex
	responses []domain.ChatResponse
	errs      []error
	requests  []domain.ChatRequest
	callIdx   int
}

func (m *mockLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.callIdx
	m.callIdx++
	m.requests = append(m.requests, req)
	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx >= len(m.responses) {
		return &domain.ChatResponse{
			Message: domain.ChatMessage{Role: domain.RoleAssistant, Content: "fallback"},
		}, nil
	}
	return new(m.responses[idx]), nil
}

func (m *mockLLM) Name() string { return "mock" }

func (m *mockLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callIdx
}

func textResponse(content string) domain.ChatResponse {
	return domain.ChatResponse{
		Message: domain.ChatMessage{Role: domain.RoleAssistant, Content: content},
		Usage:   domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func toolResponse(calls ...domain.ToolCall) domain.ChatResponse {
	return domain.ChatResponse{
		Message: domain.ChatMessage{Role: domain.RoleAssistant, ToolCalls: calls},
		Usage:   domain.Usage{TotalTokens: 7},
	}
}

type mockToolExecutor struct {
	tools   map[string]domain.Tool
	schemas []domain.ToolSchema
}

func (m *mockToolExecutor) Get(name string) (domain.Tool, error) {
	t, ok := m.tools[name]
	if !ok {
		return nil, domain.ErrToolNotFound
	}
	return t, nil
}

func (m *mockToolExecutor) Schemas() []domain.ToolSchema { return m.schemas }

type staticTool struct {
	name    string
	result  string
	isError bool
	err     error

	mu   sync.Mutex
	args []json.RawMessage
}

func (t *staticTool) Name() string        { return t.name }
func (t *staticTool) Description() string { return t.name + " tool" }
func (t *staticTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: t.Description(), Parameters: json.RawMessage(`{"type":"object"}`)}
}

func (t *staticTool) Execute(_ context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	t.mu.Lock()
	t.args = append(t.args, params)
	t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	return &domain.ToolResult{Content: t.result, IsError: t.isError}, nil
}

func newTestToolExecutor(tools ...*staticTool) *mockToolExecutor {
	m := &mockToolExecutor{tools: map[string]domain.Tool{}}
	for _, t := range tools {
		m.tools[t.name] = t
		m.schemas = append(m.schemas, t.Schema())
	}
	return m
}

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}
func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *recordingBus) Close()                                                 {}

func (b *recordingBus) count(t domain.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")

func userMsg(seq int64, content string) domain.Message {
	return domain.Message{Seq: seq, Role: domain.AuthorUser, Content: content}
}

func agentMsg(seq int64, author, content string) domain.Message {
	return domain.Message{Seq: seq, Role: domain.AuthorAgent, Author: author, Content: content}
}
