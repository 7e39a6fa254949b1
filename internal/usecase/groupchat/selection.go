package groupchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"maa/internal/domain"
)

// SelectionStrategy decides which agent of the pool acts next.
type SelectionStrategy interface {
	Next(ctx context.Context, history []domain.Message, pool []domain.AgentIdentity) (domain.AgentIdentity, error)
	// Reset returns the strategy to its initial state.
	Reset()
}

// DefaultSelectionAttempts is how many times the decision is asked before
// giving up with ErrSelection.
const DefaultSelectionAttempts = 2

// DecisionSelectionConfig configures a DecisionSelection.
type DecisionSelectionConfig struct {
	InitialAgent string            // picked without a decision until an agent has spoken; empty = always decide
	Decision     DecisionProcedure // required
	Reducer      HistoryReducer    // nil = last message only
	MaxAttempts  int               // <= 0 = DefaultSelectionAttempts
	Logger       *slog.Logger
}

// DecisionSelection routes the first turn to a fixed agent and classifies
// every later turn with a decision procedure.
type DecisionSelection struct {
	initial     string
	decision    DecisionProcedure
	reducer     HistoryReducer
	maxAttempts int
	logger      *slog.Logger

	gate initialGate
}

// NewDecisionSelection creates a DecisionSelection.
func NewDecisionSelection(cfg DecisionSelectionConfig) (*DecisionSelection, error) {
	if cfg.Decision == nil {
		return nil, domain.NewDomainError("NewDecisionSelection", domain.ErrInvalidInput, "decision procedure is required")
	}
	if cfg.Reducer == nil {
		cfg.Reducer = NewTruncationReducer(DefaultHistoryDepth)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultSelectionAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &DecisionSelection{
		initial:     cfg.InitialAgent,
		decision:    cfg.Decision,
		reducer:     cfg.Reducer,
		maxAttempts: cfg.MaxAttempts,
		logger:      cfg.Logger,
	}, nil
}

// Next implements SelectionStrategy.
func (s *DecisionSelection) Next(ctx context.Context, history []domain.Message, pool []domain.AgentIdentity) (domain.AgentIdentity, error) {
	const op = "DecisionSelection.Next"
	if len(pool) == 0 {
		return domain.AgentIdentity{}, domain.NewDomainError(op, domain.ErrInvalidState, "agent pool is empty")
	}

	if s.gate.pending(s.initial, history) {
		return initialAgent(op, s.initial, pool)
	}

	in := DecisionInput{
		History:      s.reducer.Reduce(history),
		Participants: domain.AgentNames(pool),
	}
	var last string
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		out, err := s.decision.Decide(ctx, in)
		if err != nil {
			if errors.Is(err, domain.ErrGeneration) || ctx.Err() != nil {
				return domain.AgentIdentity{}, err
			}
			return domain.AgentIdentity{}, domain.GenerationError(op, "selection decision", err)
		}
		if id, ok := ParseAgentName(out, pool); ok {
			return id, nil
		}
		last = out
		s.logger.WarnContext(ctx, "selection named no participant",
			"output", out,
			"attempt", attempt,
			"max_attempts", s.maxAttempts,
		)
	}

	return domain.AgentIdentity{}, domain.NewDomainError(op, domain.ErrSelection,
		fmt.Sprintf("decision named no participant after %d attempts", s.maxAttempts)).
		WithData("output", last).
		WithData("participants", strings.Join(in.Participants, ", "))
}

// Reset makes the next call pick the initial agent again.
func (s *DecisionSelection) Reset() { s.gate.reset() }

// initialGate tracks whether the initial agent still owns the next turn. It
// switches to routing once any agent message is in the transcript, so a
// failed first turn is retried with the initial agent.
type initialGate struct {
	mu      sync.Mutex
	routing bool
}

func (g *initialGate) pending(initial string, history []domain.Message) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.routing || initial == "" {
		return false
	}
	if hasAgentMessage(history) {
		g.routing = true
		return false
	}
	return true
}

func (g *initialGate) reset() {
	g.mu.Lock()
	g.routing = false
	g.mu.Unlock()
}

func initialAgent(op, initial string, pool []domain.AgentIdentity) (domain.AgentIdentity, error) {
	if id, ok := findAgent(pool, initial); ok {
		return id, nil
	}
	return domain.AgentIdentity{}, domain.NewDomainError(op, domain.ErrSelection,
		fmt.Sprintf("initial agent %q is not in the pool", initial))
}

// KeywordRule routes to Next when the last message matches. An empty Author
// matches any author ("user" matches user messages); an empty Keyword matches
// any content.
type KeywordRule struct {
	Author  string
	Keyword string
	Next    string
}

func (r KeywordRule) matches(m domain.Message) bool {
	if r.Author != "" && !strings.EqualFold(r.Author, m.AuthorName()) {
		return false
	}
	return r.Keyword == "" || strings.Contains(strings.ToLower(m.Content), strings.ToLower(r.Keyword))
}

// KeywordSelection routes on tags agents put in their replies, e.g. a
// receptionist answering with INTENT_STOCK. No text-generation call is made.
type KeywordSelection struct {
	initial string
	rules   []KeywordRule

	gate initialGate
}

// NewKeywordSelection creates a KeywordSelection. Until an agent has spoken
// the initial agent is picked without looking at the rules. Later user
// messages route to initial unless a rule matches first.
func NewKeywordSelection(initial string, rules ...KeywordRule) *KeywordSelection {
	return &KeywordSelection{initial: initial, rules: rules}
}

// Next implements SelectionStrategy. The first matching rule wins.
func (s *KeywordSelection) Next(_ context.Context, history []domain.Message, pool []domain.AgentIdentity) (domain.AgentIdentity, error) {
	const op = "KeywordSelection.Next"
	if len(pool) == 0 {
		return domain.AgentIdentity{}, domain.NewDomainError(op, domain.ErrInvalidState, "agent pool is empty")
	}

	if s.gate.pending(s.initial, history) {
		return initialAgent(op, s.initial, pool)
	}

	var last domain.Message
	if n := len(history); n > 0 {
		last = history[n-1]
		for _, r := range s.rules {
			if !r.matches(last) {
				continue
			}
			if id, ok := findAgent(pool, r.Next); ok {
				return id, nil
			}
			return domain.AgentIdentity{}, domain.NewDomainError(op, domain.ErrSelection,
				fmt.Sprintf("rule target %q is not in the pool", r.Next))
		}
	}

	if (len(history) == 0 || last.IsUser()) && s.initial != "" {
		if id, ok := findAgent(pool, s.initial); ok {
			return id, nil
		}
	}
	return domain.AgentIdentity{}, domain.NewDomainError(op, domain.ErrSelection, "no routing rule matched").
		WithData("author", last.AuthorName()).
		WithData("output", last.Content)
}

// Reset makes the next call pick the initial agent again.
func (s *KeywordSelection) Reset() { s.gate.reset() }

// SequentialSelection takes turns in pool order starting at the initial agent.
// Every new user message restarts the rotation.
type SequentialSelection struct {
	initial string

	mu   sync.Mutex
	turn int
}

// NewSequentialSelection creates a SequentialSelection.
func NewSequentialSelection(initial string) *SequentialSelection {
	return &SequentialSelection{initial: initial}
}

// Next implements SelectionStrategy.
func (s *SequentialSelection) Next(_ context.Context, history []domain.Message, pool []domain.AgentIdentity) (domain.AgentIdentity, error) {
	if len(pool) == 0 {
		return domain.AgentIdentity{}, domain.NewDomainError("SequentialSelection.Next", domain.ErrInvalidState, "agent pool is empty")
	}
	start := 0
	for i, id := range pool {
		if id.Name == s.initial {
			start = i
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(history); n == 0 || history[n-1].IsUser() {
		s.turn = 0
	}
	id := pool[(start+s.turn)%len(pool)]
	s.turn++
	return id, nil
}

// Reset restarts the rotation at the initial agent.
func (s *SequentialSelection) Reset() {
	s.mu.Lock()
	s.turn = 0
	s.mu.Unlock()
}

// ParseAgentName extracts exactly one pool member from free-form decision
// output. It accepts the bare name (case-insensitive, surrounding quotes and
// punctuation ignored) or text in which exactly one pool name occurs as a
// whole word.
func ParseAgentName(output string, pool []domain.AgentIdentity) (domain.AgentIdentity, bool) {
	trimmed := strings.TrimFunc(output, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	if trimmed == "" {
		return domain.AgentIdentity{}, false
	}
	for _, id := range pool {
		if strings.EqualFold(trimmed, id.Name) {
			return id, true
		}
	}

	lower := strings.ToLower(output)
	var found []domain.AgentIdentity
	for _, id := range pool {
		if id.Name != "" && containsWord(lower, strings.ToLower(id.Name)) {
			found = append(found, id)
		}
	}
	if len(found) != 1 {
		return domain.AgentIdentity{}, false
	}
	return found[0], true
}

// containsWord reports whether word occurs in s bounded by non-word runes.
func containsWord(s, word string) bool {
	for from := 0; from <= len(s)-len(word); {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(word)
		if !isWordRuneBefore(s, start) && !isWordRuneAt(s, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func isWordRuneBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return isWordRune(r)
}

func isWordRuneAt(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func findAgent(pool []domain.AgentIdentity, name string) (domain.AgentIdentity, bool) {
	for _, id := range pool {
		if id.Name == name {
			return id, true
		}
	}
	return domain.AgentIdentity{}, false
}

func hasAgentMessage(history []domain.Message) bool {
	for _, m := range history {
		if m.Role == domain.AuthorAgent {
			return true
		}
	}
	return false
}
