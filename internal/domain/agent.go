package domain

import "context"

// AgentIdentity names a participant of a group chat. Names are unique within a pool
// and are the value a selection strategy must emit to pick an agent.
type AgentIdentity struct {
	Name        string `json:"name"                  yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Reply is what an agent produces for one turn. The orchestrator turns it into a
// transcript Message.
type Reply struct {
	Content  string        `json:"content"`
	Warnings []ToolWarning `json:"warnings,omitempty"`
	Usage    Usage         `json:"usage"`
}

// Agent produces exactly one reply given the shared transcript.
// Implementations must not retain or mutate history.
type Agent interface {
	Identity() AgentIdentity
	Invoke(ctx context.Context, history []Message) (*Reply, error)
}

// AgentNames returns the names of the given identities, in order.
func AgentNames(ids []AgentIdentity) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.Name
	}
	return names
}
