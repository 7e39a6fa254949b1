package domain

import "context"

// LLMProvider is the interface for any text-generation backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "azure", "openai").
	Name() string
}
