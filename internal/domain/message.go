package domain

import "time"

// AuthorRole tags who produced a transcript message.
type AuthorRole string

// Transcript author roles.
const (
	AuthorUser  AuthorRole = "user"
	AuthorAgent AuthorRole = "agent"
)

// Message is a single immutable entry of a group-chat transcript.
type Message struct {
	ID        string        `json:"id"`
	Seq       int64         `json:"seq"`
	Role      AuthorRole    `json:"role"`
	Author    string        `json:"author,omitempty"` // agent name; empty for user messages
	Content   string        `json:"content"`
	Warnings  []ToolWarning `json:"warnings,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// IsUser reports whether the message was supplied by the user.
func (m Message) IsUser() bool { return m.Role == AuthorUser }

// AuthorName returns the agent name, or "user" for user messages.
func (m Message) AuthorName() string {
	if m.Role == AuthorUser || m.Author == "" {
		return string(AuthorUser)
	}
	return m.Author
}
