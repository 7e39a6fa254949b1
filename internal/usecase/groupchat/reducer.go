package groupchat

import "maa/internal/domain"

// HistoryReducer derives the view of the transcript a strategy decides on.
// Implementations must not modify their input.
type HistoryReducer interface {
	Reduce(history []domain.Message) []domain.Message
}

// DefaultHistoryDepth keeps only the most recent message.
const DefaultHistoryDepth = 1

// TruncationReducer keeps the last Keep messages. Keep <= 0 keeps everything.
type TruncationReducer struct {
	Keep int
}

// NewTruncationReducer returns a reducer keeping the last keep messages.
func NewTruncationReducer(keep int) TruncationReducer {
	return TruncationReducer{Keep: keep}
}

// Reduce returns a fresh slice holding the tail of history.
func (r TruncationReducer) Reduce(history []domain.Message) []domain.Message {
	start := 0
	if r.Keep > 0 && len(history) > r.Keep {
		start = len(history) - r.Keep
	}
	return cloneMessages(history[start:])
}

// KeepAllReducer returns the whole transcript.
type KeepAllReducer struct{}

// Reduce returns a copy of history.
func (KeepAllReducer) Reduce(history []domain.Message) []domain.Message {
	return cloneMessages(history)
}

// ReducerFor maps a configured depth to a reducer: 0 keeps all, otherwise the
// last depth messages.
func ReducerFor(depth int) HistoryReducer {
	if depth <= 0 {
		return KeepAllReducer{}
	}
	return NewTruncationReducer(depth)
}
