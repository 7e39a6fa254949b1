package groupchat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"maa/internal/domain"
)

func newTermination(t *testing.T, d DecisionProcedure, limit int) *DecisionTermination {
	t.Helper()
	term, err := NewDecisionTermination(DecisionTerminationConfig{
		TerminationGate: TerminationGate{Agents: []string{"Coach"}, MaximumIterations: limit},
		Token:           "yes",
		Decision:        d,
	})
	require.NoError(t, err)
	return term
}

func TestDecisionTerminationToken(t *testing.T) {
	ctx := context.Background()
	hist := []domain.Message{agentMsg(1, "Coach", "Excavator #12 is in Ghent.")}

	done, err := newTermination(t, decides("YES"), 12).ShouldTerminate(ctx, hist, 1)
	require.NoError(t, err)
	assert.True(t, done)

	done, err = newTermination(t, decides("no, keep going"), 12).ShouldTerminate(ctx, hist, 1)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestDecisionTerminationSkipsOtherAgents(t *testing.T) {
	d := decides("yes")
	term := newTermination(t, d, 12)

	done, err := term.ShouldTerminate(context.Background(), []domain.Message{agentMsg(1, "StockManager", "yes")}, 1)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 0, d.Calls())

	done, err = term.ShouldTerminate(context.Background(), []domain.Message{userMsg(1, "yes")}, 0)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 0, d.Calls())
}

func TestDecisionTerminationCapWithoutDecision(t *testing.T) {
	d := decides("no")
	term := newTermination(t, d, 2)

	done, err := term.ShouldTerminate(context.Background(), []domain.Message{agentMsg(1, "StockManager", "x")}, 2)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 0, d.Calls())
	assert.Equal(t, 2, term.MaximumIterations())
}

func TestDecisionTerminationDefaultCap(t *testing.T) {
	term := newTermination(t, decides("no"), 0)
	assert.Equal(t, DefaultMaximumIterations, term.MaximumIterations())

	done, err := term.ShouldTerminate(context.Background(), []domain.Message{agentMsg(1, "Coach", "x")}, 11)
	require.NoError(t, err)
	assert.False(t, done)
	done, err = term.ShouldTerminate(context.Background(), []domain.Message{agentMsg(1, "Coach", "x")}, 12)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestDecisionTerminationGenerationError(t *testing.T) {
	d := &scriptedDecision{errs: []error{errors.New("503 from upstream")}}
	term := newTermination(t, d, 12)

	_, err := term.ShouldTerminate(context.Background(), []domain.Message{agentMsg(1, "Coach", "x")}, 1)
	assert.ErrorIs(t, err, domain.ErrGeneration)
}

func TestDecisionTerminationEmptyAgentsEvaluatesAll(t *testing.T) {
	d := decides("yes")
	term, err := NewDecisionTermination(DecisionTerminationConfig{Token: "yes", Decision: d})
	require.NoError(t, err)

	done, err := term.ShouldTerminate(context.Background(), []domain.Message{agentMsg(1, "Expert", "x")}, 1)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestNewDecisionTerminationValidation(t *testing.T) {
	_, err := NewDecisionTermination(DecisionTerminationConfig{Token: "yes"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = NewDecisionTermination(DecisionTerminationConfig{Token: " ", Decision: decides("yes")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestKeywordTermination(t *testing.T) {
	term := NewKeywordTermination(TerminationGate{Agents: []string{"Coach"}, MaximumIterations: 3}, "DONE")
	ctx := context.Background()

	done, _ := term.ShouldTerminate(ctx, []domain.Message{agentMsg(1, "Coach", "all done.")}, 1)
	assert.True(t, done)
	done, _ = term.ShouldTerminate(ctx, []domain.Message{agentMsg(1, "Expert", "done")}, 1)
	assert.False(t, done)
	done, _ = term.ShouldTerminate(ctx, []domain.Message{agentMsg(1, "Coach", "working")}, 1)
	assert.False(t, done)
	done, _ = term.ShouldTerminate(ctx, []domain.Message{agentMsg(1, "Expert", "working")}, 3)
	assert.True(t, done)
	done, _ = term.ShouldTerminate(ctx, nil, 0)
	assert.False(t, done)
}

func TestContainsTokenProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		token := rapid.StringMatching(`[a-z]{1,6}`).Draw(t, "token")
		before := rapid.StringMatching(`[ 0-9.,]{0,10}`).Draw(t, "before")
		after := rapid.StringMatching(`[ 0-9.,]{0,10}`).Draw(t, "after")
		upper := rapid.Bool().Draw(t, "upper")

		word := token
		if upper {
			word = strings.ToUpper(token)
		}
		if !ContainsToken(before+word+after, token) {
			t.Fatalf("token %q not found in %q", token, before+word+after)
		}
		if ContainsToken(before+after, token) {
			t.Fatalf("token %q found in %q", token, before+after)
		}
	})
}

func TestTerminationCapProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 20).Draw(t, "limit")
		round := rapid.IntRange(0, 30).Draw(t, "round")
		author := rapid.SampledFrom([]string{"Coach", "StockManager", "Expert"}).Draw(t, "author")

		d := decides("no")
		term := NewKeywordTermination(TerminationGate{Agents: []string{"Coach"}, MaximumIterations: limit}, "yes")
		dt, err := NewDecisionTermination(DecisionTerminationConfig{
			TerminationGate: TerminationGate{Agents: []string{"Coach"}, MaximumIterations: limit},
			Token:           "yes",
			Decision:        d,
		})
		if err != nil {
			t.Fatal(err)
		}
		hist := []domain.Message{agentMsg(1, author, "no")}

		for _, s := range []TerminationStrategy{term, dt} {
			done, err := s.ShouldTerminate(context.Background(), hist, round)
			if err != nil {
				t.Fatal(err)
			}
			if done != (round >= limit) {
				t.Fatalf("%T round=%d limit=%d author=%s: done=%v", s, round, limit, author, done)
			}
		}
		if author != "Coach" && d.Calls() != 0 {
			t.Fatalf("decision called for non-evaluated author %s", author)
		}
	})
}
