package groupchat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"maa/internal/domain"
)

// TerminationStrategy decides whether the conversation is done after a round.
// round is the number of completed rounds, the one just finished included.
type TerminationStrategy interface {
	ShouldTerminate(ctx context.Context, history []domain.Message, round int) (bool, error)
	// Reset returns the strategy to its initial state.
	Reset()
}

// DefaultMaximumIterations bounds the rounds per exchange.
const DefaultMaximumIterations = 12

// TerminationGate holds the checks shared by termination strategies: the
// agents whose messages are evaluated and the hard round cap.
type TerminationGate struct {
	Agents            []string // evaluated agents; empty = every agent
	MaximumIterations int      // <= 0 = DefaultMaximumIterations
}

// evaluate returns (done, true) when the gate alone decides.
func (g TerminationGate) evaluate(history []domain.Message, round int) (done, decided bool) {
	if round >= g.Limit() {
		return true, true
	}
	if len(history) == 0 {
		return false, true
	}
	last := history[len(history)-1]
	if last.IsUser() || !g.Evaluates(last.Author) {
		return false, true
	}
	return false, false
}

// Evaluates reports whether messages by agent are checked for termination.
func (g TerminationGate) Evaluates(agent string) bool {
	if len(g.Agents) == 0 {
		return true
	}
	for _, a := range g.Agents {
		if a == agent {
			return true
		}
	}
	return false
}

// Limit returns the effective round cap.
func (g TerminationGate) Limit() int {
	if g.MaximumIterations <= 0 {
		return DefaultMaximumIterations
	}
	return g.MaximumIterations
}

// ContainsToken reports whether output contains token, ignoring case.
func ContainsToken(output, token string) bool {
	if token == "" {
		return false
	}
	return strings.Contains(strings.ToLower(output), strings.ToLower(token))
}

// DecisionTerminationConfig configures a DecisionTermination.
type DecisionTerminationConfig struct {
	TerminationGate
	Token    string            // required
	Decision DecisionProcedure // required
	Reducer  HistoryReducer    // nil = last message only
	Logger   *slog.Logger
}

// DecisionTermination asks a decision procedure whether the last evaluated
// message settles the conversation.
type DecisionTermination struct {
	gate     TerminationGate
	token    string
	decision DecisionProcedure
	reducer  HistoryReducer
	logger   *slog.Logger
}

// NewDecisionTermination creates a DecisionTermination.
func NewDecisionTermination(cfg DecisionTerminationConfig) (*DecisionTermination, error) {
	if cfg.Decision == nil {
		return nil, domain.NewDomainError("NewDecisionTermination", domain.ErrInvalidInput, "decision procedure is required")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, domain.NewDomainError("NewDecisionTermination", domain.ErrInvalidInput, "termination token is required")
	}
	if cfg.Reducer == nil {
		cfg.Reducer = NewTruncationReducer(DefaultHistoryDepth)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &DecisionTermination{
		gate:     cfg.TerminationGate,
		token:    cfg.Token,
		decision: cfg.Decision,
		reducer:  cfg.Reducer,
		logger:   cfg.Logger,
	}, nil
}

// ShouldTerminate implements TerminationStrategy. The cap and the evaluated
// agent set are checked before any decision call.
func (t *DecisionTermination) ShouldTerminate(ctx context.Context, history []domain.Message, round int) (bool, error) {
	if done, decided := t.gate.evaluate(history, round); decided {
		return done, nil
	}

	out, err := t.decision.Decide(ctx, DecisionInput{History: t.reducer.Reduce(history)})
	if err != nil {
		if errors.Is(err, domain.ErrGeneration) || ctx.Err() != nil {
			return false, err
		}
		return false, domain.GenerationError("DecisionTermination.ShouldTerminate", "termination decision", err)
	}
	done := ContainsToken(out, t.token)
	t.logger.DebugContext(ctx, "termination decision", "output", out, "terminate", done)
	return done, nil
}

// MaximumIterations returns the round cap.
func (t *DecisionTermination) MaximumIterations() int { return t.gate.Limit() }

// Reset is a no-op; the round count is owned by the caller.
func (t *DecisionTermination) Reset() {}

// KeywordTermination ends the conversation when an evaluated agent's message
// itself contains the token. No text-generation call is made.
type KeywordTermination struct {
	gate  TerminationGate
	token string
}

// NewKeywordTermination creates a KeywordTermination.
func NewKeywordTermination(gate TerminationGate, token string) *KeywordTermination {
	return &KeywordTermination{gate: gate, token: token}
}

// ShouldTerminate implements TerminationStrategy.
func (t *KeywordTermination) ShouldTerminate(_ context.Context, history []domain.Message, round int) (bool, error) {
	if done, decided := t.gate.evaluate(history, round); decided {
		return done, nil
	}
	return ContainsToken(history[len(history)-1].Content, t.token), nil
}

// MaximumIterations returns the round cap.
func (t *KeywordTermination) MaximumIterations() int { return t.gate.Limit() }

// Reset is a no-op.
func (t *KeywordTermination) Reset() {}
