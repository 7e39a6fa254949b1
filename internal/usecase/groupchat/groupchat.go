package groupchat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"maa/internal/domain"
	"maa/internal/infra/tracer"
)

// Phase is the orchestrator's position in the round loop.
type Phase string

// Round loop phases.
const (
	PhaseIdle       Phase = "idle"
	PhaseSelecting  Phase = "selecting"
	PhaseInvoking   Phase = "invoking"
	PhaseTerminated Phase = "terminated"
)

// Termination reasons reported to metrics and events.
const (
	ReasonDecision      = "decision"
	ReasonMaxIterations = "max_iterations"
)

// RoundState is a snapshot of the round loop.
type RoundState struct {
	Round      int    // completed rounds since the last user message
	Terminated bool   // no more rounds until a user message or SetComplete(false)
	Active     string // agent of the current or last round, "" when none
	Phase      Phase
}

// Metrics receives round loop measurements. All methods must be safe for
// concurrent use.
type Metrics interface {
	RoundCompleted()
	AgentSelected(agent string, initial bool)
	MessageAppended(author string)
	Terminated(reason string)
	RoundFailed(code string)
	ObserveTurn(agent string, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RoundCompleted()                   {}
func (nopMetrics) AgentSelected(string, bool)        {}
func (nopMetrics) MessageAppended(string)            {}
func (nopMetrics) Terminated(string)                 {}
func (nopMetrics) RoundFailed(string)                {}
func (nopMetrics) ObserveTurn(string, time.Duration) {}

// iterationLimited is implemented by termination strategies with a round cap.
type iterationLimited interface {
	MaximumIterations() int
}

// Settings holds the collaborators of a GroupChat.
type Settings struct {
	Selection   SelectionStrategy   // required
	Termination TerminationStrategy // required
	Logger      *slog.Logger        // optional
	Bus         domain.EventBus     // optional, nil = no events
	Metrics     Metrics             // optional
	Now         func() time.Time    // optional, for tests
}

// GroupChat runs the turn-taking loop over a pool of agents sharing one
// transcript: select, invoke, append, check termination.
type GroupChat struct {
	selection   SelectionStrategy
	termination TerminationStrategy
	logger      *slog.Logger
	bus         domain.EventBus
	metrics     Metrics
	now         func() time.Time

	agents map[string]domain.Agent
	pool   []domain.AgentIdentity

	transcript *Transcript

	// loop serialises Invoke calls for their whole duration.
	loop sync.Mutex

	mu             sync.RWMutex
	state          RoundState
	epoch          uint64 // bumped by Reset; a round started in an older epoch is discarded
	conversationID string
	entropy        *ulid.MonotonicEntropy
}

// New creates a GroupChat over agents. Agent names must be unique.
func New(settings Settings, agents ...domain.Agent) (*GroupChat, error) {
	const op = "groupchat.New"
	if len(agents) == 0 {
		return nil, domain.NewDomainError(op, domain.ErrInvalidInput, "at least one agent is required")
	}
	if settings.Selection == nil || settings.Termination == nil {
		return nil, domain.NewDomainError(op, domain.ErrInvalidInput, "selection and termination strategies are required")
	}
	if settings.Logger == nil {
		settings.Logger = slog.New(slog.DiscardHandler)
	}
	if settings.Metrics == nil {
		settings.Metrics = nopMetrics{}
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}

	byName := make(map[string]domain.Agent, len(agents))
	pool := make([]domain.AgentIdentity, 0, len(agents))
	for _, a := range agents {
		if a == nil {
			return nil, domain.NewDomainError(op, domain.ErrInvalidInput, "nil agent")
		}
		id := a.Identity()
		if strings.TrimSpace(id.Name) == "" {
			return nil, domain.NewDomainError(op, domain.ErrInvalidInput, "agent name must not be empty")
		}
		if _, dup := byName[id.Name]; dup {
			return nil, domain.NewDomainError(op, domain.ErrDuplicate, fmt.Sprintf("agent %q", id.Name))
		}
		byName[id.Name] = a
		pool = append(pool, id)
	}

	now := settings.Now()
	c := &GroupChat{
		selection:   settings.Selection,
		termination: settings.Termination,
		logger:      settings.Logger,
		bus:         settings.Bus,
		metrics:     settings.Metrics,
		now:         settings.Now,
		agents:      byName,
		pool:        pool,
		transcript:  NewTranscript(),
		state:       RoundState{Phase: PhaseIdle},
		entropy:     ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0),
	}
	c.conversationID = c.newID(now)
	return c, nil
}

// Agents returns the identities of the pool in registration order.
func (c *GroupChat) Agents() []domain.AgentIdentity {
	out := make([]domain.AgentIdentity, len(c.pool))
	copy(out, c.pool)
	return out
}

// ConversationID identifies the current conversation. It changes on Reset.
func (c *GroupChat) ConversationID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conversationID
}

// History returns a copy of the transcript.
func (c *GroupChat) History() []domain.Message {
	return c.transcript.All()
}

// State returns a snapshot of the round state.
func (c *GroupChat) State() RoundState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsComplete reports whether the loop has terminated.
func (c *GroupChat) IsComplete() bool {
	return c.State().Terminated
}

// SetComplete sets or clears the terminated flag.
func (c *GroupChat) SetComplete(done bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Terminated = done
	if done {
		c.state.Phase = PhaseTerminated
	} else {
		c.state.Phase = PhaseIdle
		c.state.Round = 0
	}
}

// AddUserMessage appends a user message and starts a new exchange: the
// terminated flag and the round count are cleared.
func (c *GroupChat) AddUserMessage(ctx context.Context, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, domain.NewDomainError("GroupChat.AddUserMessage", domain.ErrInvalidInput, "message is empty")
	}

	c.mu.Lock()
	now := c.now()
	msg := domain.Message{
		ID:        c.newID(now),
		Seq:       c.transcript.NextSeq(),
		Role:      domain.AuthorUser,
		Content:   content,
		Timestamp: now,
	}
	if err := c.transcript.Append(msg); err != nil {
		c.mu.Unlock()
		return domain.Message{}, err
	}
	c.state.Terminated = false
	c.state.Round = 0
	c.state.Phase = PhaseIdle
	convID := c.conversationID
	c.mu.Unlock()

	ctx = domain.ContextWithConversationID(ctx, convID)
	c.logger.DebugContext(ctx, "user message added", "seq", msg.Seq)
	c.metrics.MessageAppended(msg.AuthorName())
	c.publishEvent(ctx, domain.EventUserMessageAdded, domain.MessageAppendedPayload{
		Seq:    msg.Seq,
		Author: msg.AuthorName(),
	})
	return msg, nil
}

// Reset clears the transcript and round state and resets both strategies, so
// the next round picks the initial agent again. Agents with a Reset method are
// rewound too. A round in flight is discarded.
func (c *GroupChat) Reset(ctx context.Context) {
	c.mu.Lock()
	c.transcript.Reset()
	c.state = RoundState{Phase: PhaseIdle}
	c.epoch++
	c.conversationID = c.newID(c.now())
	convID := c.conversationID
	c.mu.Unlock()

	c.selection.Reset()
	c.termination.Reset()
	for _, a := range c.agents {
		if r, ok := a.(interface{ Reset() }); ok {
			r.Reset()
		}
	}

	ctx = domain.ContextWithConversationID(ctx, convID)
	c.logger.InfoContext(ctx, "conversation reset")
	c.publishEvent(ctx, domain.EventChatReset, nil)
}

// Invoke runs rounds until termination, the round cap, an error, cancellation
// of ctx or the consumer stopping. Each message is appended before it is
// yielded. An error is yielded once and ends the sequence; the failed round
// leaves the transcript and round count untouched. Concurrent calls run one
// after the other.
func (c *GroupChat) Invoke(ctx context.Context) iter.Seq2[domain.Message, error] {
	return func(yield func(domain.Message, error) bool) {
		c.loop.Lock()
		defer c.loop.Unlock()

		ctx := domain.ContextWithConversationID(ctx, c.ConversationID())
		ctx, span := tracer.StartSpan(ctx, "groupchat.invoke")
		defer span.End()

		if c.IsComplete() {
			c.logger.DebugContext(ctx, "invoke on completed chat")
			tracer.SetOK(span)
			return
		}
		if c.transcript.Len() == 0 {
			err := domain.NewDomainError("GroupChat.Invoke", domain.ErrInvalidInput, "transcript is empty")
			tracer.RecordError(span, err)
			yield(domain.Message{}, err)
			return
		}

		for {
			if err := ctx.Err(); err != nil {
				c.fail(ctx, err)
				tracer.RecordError(span, err)
				yield(domain.Message{}, err)
				return
			}

			msg, done, err := c.round(ctx)
			if errors.Is(err, errDiscarded) {
				tracer.SetOK(span)
				return
			}
			if err != nil {
				c.fail(ctx, err)
				tracer.RecordError(span, err)
				yield(domain.Message{}, err)
				return
			}
			if !yield(msg, nil) {
				c.logger.DebugContext(ctx, "consumer stopped")
				tracer.SetOK(span)
				return
			}
			if done {
				tracer.SetOK(span)
				return
			}
		}
	}
}

// errDiscarded marks a round whose conversation was reset while it ran.
var errDiscarded = errors.New("round discarded")

// round runs one select, invoke, evaluate, append cycle.
func (c *GroupChat) round(ctx context.Context) (domain.Message, bool, error) {
	c.mu.Lock()
	epoch := c.epoch
	number := c.state.Round + 1
	c.state.Phase = PhaseSelecting
	c.state.Active = ""
	c.mu.Unlock()

	ctx, span := tracer.StartSpan(ctx, "groupchat.round",
		trace.WithAttributes(tracer.IntAttr("round", number)),
	)
	defer span.End()

	history := c.transcript.All()
	initial := !hasAgentMessage(history)

	id, err := c.selection.Next(ctx, history, c.Agents())
	if err != nil {
		tracer.RecordError(span, err)
		return domain.Message{}, false, err
	}
	agent, ok := c.agents[id.Name]
	if !ok {
		err := domain.NewDomainError("GroupChat.round", domain.ErrSelection,
			fmt.Sprintf("strategy picked %q which is not in the pool", id.Name))
		tracer.RecordError(span, err)
		return domain.Message{}, false, err
	}
	span.SetAttributes(tracer.StringAttr("agent", id.Name), tracer.BoolAttr("initial", initial))

	c.mu.Lock()
	c.state.Phase = PhaseInvoking
	c.state.Active = id.Name
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "agent selected", "agent", id.Name, "round", number, "initial", initial)
	c.metrics.AgentSelected(id.Name, initial)
	c.publishEvent(ctx, domain.EventAgentSelected, domain.AgentSelectedPayload{
		Agent:   id.Name,
		Round:   number,
		Initial: initial,
	})

	start := time.Now()
	reply, err := agent.Invoke(ctx, history)
	c.metrics.ObserveTurn(id.Name, time.Since(start))
	if err == nil && reply == nil {
		err = domain.ErrEmptyResponse
	}
	if err != nil {
		if !errors.Is(err, domain.ErrGeneration) && ctx.Err() == nil {
			err = domain.GenerationError("GroupChat.round", id.Name, err)
		}
		tracer.RecordError(span, err)
		return domain.Message{}, false, err
	}

	now := c.now()
	msg := domain.Message{
		Seq:       c.transcript.NextSeq(),
		Role:      domain.AuthorAgent,
		Author:    id.Name,
		Content:   reply.Content,
		Warnings:  reply.Warnings,
		Timestamp: now,
	}
	for _, w := range reply.Warnings {
		c.logger.WarnContext(ctx, "tool invocation failed", "agent", id.Name, "tool", w.Tool, "detail", w.Detail)
	}

	// Termination sees the transcript as it will be once msg is appended.
	candidate := append(history, msg)
	done, err := c.termination.ShouldTerminate(ctx, candidate, number)
	if err != nil {
		tracer.RecordError(span, err)
		return domain.Message{}, false, err
	}
	reason := ""
	switch {
	case number >= c.limit():
		done, reason = true, ReasonMaxIterations
	case done:
		reason = ReasonDecision
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.InfoContext(ctx, "round discarded after reset", "agent", id.Name)
		return domain.Message{}, false, errDiscarded
	}
	msg.ID = c.newID(now)
	msg.Seq = c.transcript.NextSeq()
	if err := c.transcript.Append(msg); err != nil {
		c.mu.Unlock()
		tracer.RecordError(span, err)
		return domain.Message{}, false, err
	}
	c.state.Round = number
	c.state.Terminated = done
	if done {
		c.state.Phase = PhaseTerminated
	} else {
		c.state.Phase = PhaseIdle
	}
	c.mu.Unlock()

	c.metrics.MessageAppended(id.Name)
	c.metrics.RoundCompleted()
	c.publishEvent(ctx, domain.EventMessageAppended, domain.MessageAppendedPayload{
		Seq:    msg.Seq,
		Author: id.Name,
		Round:  number,
	})
	if done {
		c.logger.InfoContext(ctx, "conversation terminated", "reason", reason, "round", number)
		c.metrics.Terminated(reason)
		c.publishEvent(ctx, domain.EventChatTerminated, domain.TerminatedPayload{Reason: reason, Round: number})
	}

	tracer.SetOK(span)
	return msg, done, nil
}

// fail returns the loop to Idle after a failed round.
func (c *GroupChat) fail(ctx context.Context, err error) {
	c.mu.Lock()
	c.state.Phase = PhaseIdle
	c.state.Active = ""
	c.mu.Unlock()

	code := domain.ErrorCodeOf(err)
	c.logger.WarnContext(ctx, "round failed", "code", string(code), "error", err)
	c.metrics.RoundFailed(string(code))
	c.publishEvent(ctx, domain.EventChatError, domain.ErrorPayload{Code: code, Error: err.Error()})
}

// limit returns the round cap of the termination strategy.
func (c *GroupChat) limit() int {
	if l, ok := c.termination.(iterationLimited); ok && l.MaximumIterations() > 0 {
		return l.MaximumIterations()
	}
	return DefaultMaximumIterations
}

// newID returns a ULID. Callers hold c.mu or own c exclusively.
func (c *GroupChat) newID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), c.entropy).String()
}

// publishEvent publishes a domain event on the bus if it is configured.
func (c *GroupChat) publishEvent(ctx context.Context, eventType domain.EventType, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(ctx, domain.NewEvent(ctx, eventType, payload))
}
