package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolSchema describes a tool for the LLM function-calling protocol.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents an LLM's request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing a tool.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// Tool is the interface every tool must implement.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolExecutor abstracts tool lookup and execution.
type ToolExecutor interface {
	Get(name string) (Tool, error)
	Schemas() []ToolSchema
}

// ToolWarning records a failed tool invocation attached to an agent's turn.
// It never aborts the turn.
type ToolWarning struct {
	Tool   string `json:"tool"`
	CallID string `json:"call_id,omitempty"`
	Detail string `json:"detail"`
}

// Err returns the warning as an error wrapping ErrToolInvocation.
func (w ToolWarning) Err() error {
	return fmt.Errorf("%w: %s: %s", ErrToolInvocation, w.Tool, w.Detail)
}

func (w ToolWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Tool, w.Detail)
}
