package usecase

import (
	"context"
	"strings"
	"sync"

	"maa/internal/domain"
)

// ScriptedAgent replies from a fixed list, cycling when it runs out. It backs
// offline mode and tests.
type ScriptedAgent struct {
	identity domain.AgentIdentity

	mu      sync.Mutex
	replies []string
	next    int
}

// NewScriptedAgent creates an agent that answers with replies in order.
func NewScriptedAgent(identity domain.AgentIdentity, replies ...string) *ScriptedAgent {
	return &ScriptedAgent{identity: identity, replies: replies}
}

// Identity implements domain.Agent.
func (a *ScriptedAgent) Identity() domain.AgentIdentity { return a.identity }

// Invoke implements domain.Agent.
func (a *ScriptedAgent) Invoke(ctx context.Context, _ []domain.Message) (*domain.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.replies) == 0 {
		return nil, domain.GenerationError("ScriptedAgent.Invoke", a.identity.Name, domain.ErrEmptyResponse)
	}
	content := a.replies[a.next%len(a.replies)]
	a.next++
	if strings.TrimSpace(content) == "" {
		return nil, domain.GenerationError("ScriptedAgent.Invoke", a.identity.Name, domain.ErrEmptyResponse)
	}
	return &domain.Reply{Content: content}, nil
}

// Reset rewinds the script to its first reply.
func (a *ScriptedAgent) Reset() {
	a.mu.Lock()
	a.next = 0
	a.mu.Unlock()
}
