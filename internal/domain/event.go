package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventUserMessageAdded  EventType = "chat.user_message.added"
	EventAgentSelected     EventType = "chat.agent.selected"
	EventMessageAppended   EventType = "chat.message.appended"
	EventChatTerminated    EventType = "chat.terminated"
	EventChatReset         EventType = "chat.reset"
	EventChatError         EventType = "chat.error"
	EventLLMCallStarted    EventType = "llm.call.started"
	EventLLMCallCompleted  EventType = "llm.call.completed"
	EventToolCallStarted   EventType = "tool.call.started"
	EventToolCallCompleted EventType = "tool.call.completed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type           EventType       `json:"type"`
	Timestamp      time.Time       `json:"timestamp"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// AgentSelectedPayload accompanies EventAgentSelected.
type AgentSelectedPayload struct {
	Agent   string `json:"agent"`
	Round   int    `json:"round"`
	Initial bool   `json:"initial"`
}

// MessageAppendedPayload accompanies EventMessageAppended and EventUserMessageAdded.
type MessageAppendedPayload struct {
	Seq    int64  `json:"seq"`
	Author string `json:"author"`
	Round  int    `json:"round"`
}

// TerminatedPayload accompanies EventChatTerminated.
type TerminatedPayload struct {
	Reason string `json:"reason"`
	Round  int    `json:"round"`
}

// LLMCallPayload accompanies EventLLMCallStarted and EventLLMCallCompleted.
type LLMCallPayload struct {
	Agent    string `json:"agent"`
	Provider string `json:"provider"`
	Tokens   int    `json:"tokens,omitempty"`
}

// ToolCallPayload accompanies EventToolCallStarted and EventToolCallCompleted.
type ToolCallPayload struct {
	Agent   string `json:"agent"`
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
}

// ErrorPayload accompanies EventChatError.
type ErrorPayload struct {
	Code  ErrorCode `json:"code"`
	Error string    `json:"error"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// NewEvent builds an event stamped with the current time and the conversation ID
// carried by ctx. A payload that cannot be marshalled is left empty.
func NewEvent(ctx context.Context, typ EventType, payload any) Event {
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	return Event{
		Type:           typ,
		Timestamp:      time.Now(),
		ConversationID: ConversationIDFromContext(ctx),
		Payload:        raw,
	}
}

type conversationIDKey struct{}

// ContextWithConversationID stores the conversation ID in ctx.
func ContextWithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationIDKey{}, id)
}

// ConversationIDFromContext returns the conversation ID stored in ctx, or "".
func ConversationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(conversationIDKey{}).(string)
	return id
}
