package groupchat

import (
	"context"
	"errors"
	"sync"
	"time"

	"maa/internal/domain"
)

// stubAgent replies from a queue; an exhausted queue repeats the last entry.
type stubAgent struct {
	name string

	mu      sync.Mutex
	replies []stubReply
	calls   int
	seen    [][]domain.Message
}

type stubReply struct {
	content  string
	warnings []domain.ToolWarning
	err      error
	block    chan struct{} // if set, Invoke waits for it or ctx
}

func newStubAgent(name string, replies ...stubReply) *stubAgent {
	return &stubAgent{name: name, replies: replies}
}

func says(content string) stubReply { return stubReply{content: content} }

func fails(err error) stubReply { return stubReply{err: err} }

func (a *stubAgent) Identity() domain.AgentIdentity {
	return domain.AgentIdentity{Name: a.name}
}

func (a *stubAgent) Invoke(ctx context.Context, history []domain.Message) (*domain.Reply, error) {
	a.mu.Lock()
	a.calls++
	a.seen = append(a.seen, history)
	var r stubReply
	switch {
	case len(a.replies) == 0:
		r = says(a.name + " reply")
	case a.calls <= len(a.replies):
		r = a.replies[a.calls-1]
	default:
		r = a.replies[len(a.replies)-1]
	}
	a.mu.Unlock()

	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &domain.Reply{Content: r.content, Warnings: r.warnings}, nil
}

func (a *stubAgent) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// scriptedDecision returns outputs in order and counts calls.
type scriptedDecision struct {
	mu      sync.Mutex
	outputs []string
	errs    []error
	calls   int
	inputs  []DecisionInput
}

func decides(outputs ...string) *scriptedDecision {
	return &scriptedDecision{outputs: outputs}
}

func (d *scriptedDecision) Decide(_ context.Context, in DecisionInput) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	d.calls++
	d.inputs = append(d.inputs, in)
	if i < len(d.errs) && d.errs[i] != nil {
		return "", d.errs[i]
	}
	if len(d.outputs) == 0 {
		return "", errors.New("no scripted output")
	}
	if i >= len(d.outputs) {
		return d.outputs[len(d.outputs)-1], nil
	}
	return d.outputs[i], nil
}

func (d *scriptedDecision) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// recordingBus captures published events synchronously.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *recordingBus) Close()                                                 {}

func (b *recordingBus) Types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventType, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

// countingMetrics records calls of the Metrics hooks.
type countingMetrics struct {
	mu           sync.Mutex
	rounds       int
	selected     []string
	appended     []string
	terminations []string
	failures     []string
	turns        int
}

func (m *countingMetrics) RoundCompleted() { m.mu.Lock(); m.rounds++; m.mu.Unlock() }
func (m *countingMetrics) AgentSelected(agent string, _ bool) {
	m.mu.Lock()
	m.selected = append(m.selected, agent)
	m.mu.Unlock()
}
func (m *countingMetrics) MessageAppended(author string) {
	m.mu.Lock()
	m.appended = append(m.appended, author)
	m.mu.Unlock()
}
func (m *countingMetrics) Terminated(reason string) {
	m.mu.Lock()
	m.terminations = append(m.terminations, reason)
	m.mu.Unlock()
}
func (m *countingMetrics) RoundFailed(code string) {
	m.mu.Lock()
	m.failures = append(m.failures, code)
	m.mu.Unlock()
}
func (m *countingMetrics) ObserveTurn(string, time.Duration) { m.mu.Lock(); m.turns++; m.mu.Unlock() }

// fixedClock returns the same instant on every call.
func fixedClock() time.Time {
	return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
}

// collect drains an Invoke sequence.
func collect(seq func(func(domain.Message, error) bool)) ([]domain.Message, error) {
	var msgs []domain.Message
	var firstErr error
	seq(func(m domain.Message, err error) bool {
		if err != nil {
			firstErr = err
			return false
		}
		msgs = append(msgs, m)
		return true
	})
	return msgs, firstErr
}

func authors(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.AuthorName()
	}
	return out
}
