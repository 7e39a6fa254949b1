package usecase

import (
	"time"

	"maa/internal/domain"
)

// ContextBuilder turns the shared group-chat transcript into the chat request
// of one agent. The agent's own turns become assistant messages; user input and
// the turns of other agents become user messages tagged with the author name.
type ContextBuilder struct {
	agent        string
	instructions string
	model        string
	temperature  float64
	maxTokens    int
	maxMessages  int
}

// NewContextBuilder creates a context builder for the named agent.
func NewContextBuilder(agent, instructions, model string) *ContextBuilder {
	return &ContextBuilder{
		agent:        agent,
		instructions: instructions,
		model:        model,
	}
}

// SetGeneration sets the sampling temperature and the completion token limit.
// Zero values leave the provider defaults in place.
func (cb *ContextBuilder) SetGeneration(temperature float64, maxTokens int) {
	cb.temperature = temperature
	cb.maxTokens = maxTokens
}

// SetMaxMessages limits the transcript to its last n messages. 0 keeps all.
func (cb *ContextBuilder) SetMaxMessages(n int) {
	cb.maxMessages = n
}

// Build assembles: instructions + transcript.
func (cb *ContextBuilder) Build(history []domain.Message, tools []domain.ToolSchema) domain.ChatRequest {
	hist := cb.truncateHistory(history)
	messages := make([]domain.ChatMessage, 0, 1+len(hist))

	if cb.instructions != "" {
		messages = append(messages, domain.ChatMessage{
			Role:      domain.RoleSystem,
			Content:   cb.instructions,
			Timestamp: time.Now(),
		})
	}
	for _, m := range hist {
		messages = append(messages, cb.chatMessage(m))
	}

	return domain.ChatRequest{
		Model:       cb.model,
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   cb.maxTokens,
		Temperature: cb.temperature,
	}
}

func (cb *ContextBuilder) chatMessage(m domain.Message) domain.ChatMessage {
	switch {
	case m.IsUser():
		return domain.ChatMessage{Role: domain.RoleUser, Content: m.Content, Timestamp: m.Timestamp}
	case m.Author == cb.agent:
		return domain.ChatMessage{Role: domain.RoleAssistant, Content: m.Content, Timestamp: m.Timestamp}
	default:
		return domain.ChatMessage{Role: domain.RoleUser, Name: m.Author, Content: m.Content, Timestamp: m.Timestamp}
	}
}

func (cb *ContextBuilder) truncateHistory(history []domain.Message) []domain.Message {
	if cb.maxMessages <= 0 || len(history) <= cb.maxMessages {
		return history
	}
	return history[len(history)-cb.maxMessages:]
}
