package groupchat

import (
	"fmt"
	"sync"

	"maa/internal/domain"
)

// Transcript is the append-only, ordered message log of a conversation.
// It is safe for concurrent use.
type Transcript struct {
	mu       sync.RWMutex
	messages []domain.Message
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append adds msg to the end of the log. The sequence number must be greater
// than the last one appended.
func (t *Transcript) Append(msg domain.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.messages); n > 0 && msg.Seq <= t.messages[n-1].Seq {
		return domain.NewDomainError("Transcript.Append", domain.ErrInvalidState,
			fmt.Sprintf("sequence %d is not after %d", msg.Seq, t.messages[n-1].Seq))
	}
	if msg.Seq <= 0 {
		return domain.NewDomainError("Transcript.Append", domain.ErrInvalidState,
			fmt.Sprintf("sequence %d must be positive", msg.Seq))
	}
	msg.Warnings = cloneWarnings(msg.Warnings)
	t.messages = append(t.messages, msg)
	return nil
}

// All returns a copy of the messages in insertion order.
func (t *Transcript) All() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return cloneMessages(t.messages)
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Last returns the most recent message, if any.
func (t *Transcript) Last() (domain.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.messages) == 0 {
		return domain.Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// NextSeq returns the sequence number the next appended message should carry.
func (t *Transcript) NextSeq() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.messages) == 0 {
		return 1
	}
	return t.messages[len(t.messages)-1].Seq + 1
}

// Reset clears the log. Numbering restarts at 1.
func (t *Transcript) Reset() {
	t.mu.Lock()
	t.messages = nil
	t.mu.Unlock()
}

func cloneMessages(in []domain.Message) []domain.Message {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Message, len(in))
	copy(out, in)
	for i := range out {
		out[i].Warnings = cloneWarnings(out[i].Warnings)
	}
	return out
}

func cloneWarnings(in []domain.ToolWarning) []domain.ToolWarning {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.ToolWarning, len(in))
	copy(out, in)
	return out
}
