package console

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maa/internal/domain"
)

// fakeChat answers every user message with one scripted turn.
type fakeChat struct {
	added  []string
	resets int
	turns  [][]turnItem
}

type turnItem struct {
	msg domain.Message
	err error
}

func (f *fakeChat) AddUserMessage(_ context.Context, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, domain.NewDomainError("AddUserMessage", domain.ErrInvalidInput, "blank")
	}
	f.added = append(f.added, content)
	return domain.Message{Role: domain.AuthorUser, Content: content}, nil
}

func (f *fakeChat) Invoke(context.Context) iter.Seq2[domain.Message, error] {
	return func(yield func(domain.Message, error) bool) {
		if len(f.turns) == 0 {
			return
		}
		turn := f.turns[0]
		f.turns = f.turns[1:]
		for _, it := range turn {
			if !yield(it.msg, it.err) {
				return
			}
		}
	}
}

func (f *fakeChat) Reset(context.Context) { f.resets++ }

func agentMsg(name, content string) turnItem {
	return turnItem{msg: domain.Message{Role: domain.AuthorAgent, Author: name, Content: content}}
}

func runREPL(t *testing.T, chat *fakeChat, input string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	repl := NewREPL(chat, NewReader(strings.NewReader(input), &out), NewRenderer(&out), nil)
	err := repl.Run(context.Background())
	return out.String(), err
}

func TestREPLConversation(t *testing.T) {
	chat := &fakeChat{turns: [][]turnItem{
		{agentMsg("Coach", "INTENT_STOCK"), agentMsg("StockManager", "Excavator #12 is in Ghent.")},
	}}

	out, err := runREPL(t, chat, "Where is excavator #12?\nRESET\nexit\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"Where is excavator #12?"}, chat.added)
	assert.Equal(t, 1, chat.resets)
	coach := strings.Index(out, "COACH:\nINTENT_STOCK")
	stock := strings.Index(out, "STOCKMANAGER:\nExcavator #12 is in Ghent.")
	require.NotEqual(t, -1, coach)
	require.NotEqual(t, -1, stock)
	assert.Less(t, coach, stock, "messages are printed in arrival order")
	assert.Contains(t, out, "[Conversation has been reset]")
}

func TestREPLRecoverableErrorKeepsRunning(t *testing.T) {
	genErr := domain.GenerationError("ChatAgent.Invoke", "Expert", fmt.Errorf("%w: 503", domain.ErrProviderError))
	chat := &fakeChat{turns: [][]turnItem{
		{agentMsg("Coach", "INTENT_OTHER"), {err: genErr}},
		{agentMsg("Expert", "Here is how.")},
	}}

	out, err := runREPL(t, chat, "first\nsecond\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, chat.added)
	assert.Contains(t, out, "[GENERATION]")
	assert.Contains(t, out, "EXPERT:\n")
	assert.Contains(t, out, "Here is how.")
}

func TestREPLInvalidStateIsFatal(t *testing.T) {
	fatal := domain.NewDomainError("Transcript.Append", domain.ErrInvalidState, "sequence went backwards")
	chat := &fakeChat{turns: [][]turnItem{{{err: fatal}}}}

	_, err := runREPL(t, chat, "hello\nnever sent\n")
	require.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, []string{"hello"}, chat.added)
}

func TestREPLCancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chat := &fakeChat{}
	repl := NewREPL(chat, NewReader(strings.NewReader("hello\n"), nil), NewRenderer(&bytes.Buffer{}), nil)

	require.NoError(t, repl.Run(ctx))
	assert.Empty(t, chat.added)
}
