package groupchat

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"go.opentelemetry.io/otel/trace"

	"maa/internal/domain"
	"maa/internal/infra/tracer"
)

// DecisionInput is what a decision procedure sees: the reduced history and the
// names it may choose from.
type DecisionInput struct {
	History      []domain.Message
	Participants []string
}

// DecisionProcedure turns a reduced history into free text that a strategy
// parses into a discrete decision. Output may be malformed.
type DecisionProcedure interface {
	Decide(ctx context.Context, in DecisionInput) (string, error)
}

// DecisionFunc adapts a function to DecisionProcedure.
type DecisionFunc func(ctx context.Context, in DecisionInput) (string, error)

// Decide calls f.
func (f DecisionFunc) Decide(ctx context.Context, in DecisionInput) (string, error) {
	return f(ctx, in)
}

// promptData is the data a decision prompt template is rendered with.
type promptData struct {
	History      string
	LastMessage  string
	Participants []string
	Token        string
}

// PromptDecision asks the text-generation service a templated question.
type PromptDecision struct {
	name        string
	provider    domain.LLMProvider
	tmpl        *template.Template
	model       string
	token       string
	maxTokens   int
	temperature float64
}

// PromptOption configures a PromptDecision.
type PromptOption func(*PromptDecision)

// WithModel overrides the provider's default model.
func WithModel(model string) PromptOption {
	return func(d *PromptDecision) { d.model = model }
}

// WithToken exposes the termination token to the template as {{.Token}}.
func WithToken(token string) PromptOption {
	return func(d *PromptDecision) { d.token = token }
}

// WithTemperature sets the sampling temperature of the decision call.
func WithTemperature(t float64) PromptOption {
	return func(d *PromptDecision) { d.temperature = t }
}

// WithMaxTokens bounds the decision reply length.
func WithMaxTokens(n int) PromptOption {
	return func(d *PromptDecision) { d.maxTokens = n }
}

// NewPromptDecision parses prompt as a text/template. name labels spans and errors.
func NewPromptDecision(name string, provider domain.LLMProvider, prompt string, opts ...PromptOption) (*PromptDecision, error) {
	if provider == nil {
		return nil, domain.NewDomainError("NewPromptDecision", domain.ErrInvalidInput, "provider is required")
	}
	tmpl, err := template.New(name).Parse(prompt)
	if err != nil {
		return nil, domain.NewDomainError("NewPromptDecision", domain.ErrInvalidInput, err.Error())
	}
	d := &PromptDecision{
		name:      name,
		provider:  provider,
		tmpl:      tmpl,
		maxTokens: 64,
	}
	for _, opt := range opts {
		opt(d)
	}
	// Catch references to unknown fields before the first round.
	if _, err := d.Render(DecisionInput{Participants: []string{name}}); err != nil {
		return nil, domain.NewDomainError("NewPromptDecision", domain.ErrInvalidInput, err.Error())
	}
	return d, nil
}

// Render returns the prompt text for in.
func (d *PromptDecision) Render(in DecisionInput) (string, error) {
	data := promptData{
		History:      renderHistory(in.History),
		Participants: in.Participants,
		Token:        d.token,
	}
	if n := len(in.History); n > 0 {
		data.LastMessage = in.History[n-1].Content
	}
	var sb strings.Builder
	if err := d.tmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Decide renders the prompt and returns the trimmed model output.
func (d *PromptDecision) Decide(ctx context.Context, in DecisionInput) (string, error) {
	op := "decision." + d.name
	ctx, span := tracer.StartSpan(ctx, "groupchat.decide",
		trace.WithAttributes(
			tracer.StringAttr("decision.name", d.name),
			tracer.StringAttr("llm.provider", d.provider.Name()),
		),
	)
	defer span.End()

	prompt, err := d.Render(in)
	if err != nil {
		err = domain.NewDomainError(op, domain.ErrInvalidState, fmt.Sprintf("render prompt: %v", err))
		tracer.RecordError(span, err)
		return "", err
	}

	resp, err := d.provider.Chat(ctx, domain.ChatRequest{
		Model: d.model,
		Messages: []domain.ChatMessage{
			{Role: domain.RoleUser, Content: prompt},
		},
		MaxTokens:   d.maxTokens,
		Temperature: d.temperature,
	})
	if err != nil {
		gerr := domain.GenerationError(op, d.provider.Name(), err)
		tracer.RecordError(span, gerr)
		return "", gerr
	}
	out := strings.TrimSpace(resp.Message.Content)
	if out == "" {
		gerr := domain.GenerationError(op, d.provider.Name(), domain.ErrEmptyResponse)
		tracer.RecordError(span, gerr)
		return "", gerr
	}

	tracer.SetOK(span)
	return out, nil
}

// renderHistory formats messages one per line as "Author: content".
func renderHistory(history []domain.Message) string {
	var sb strings.Builder
	for i, m := range history {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(m.AuthorName())
		sb.WriteString(": ")
		sb.WriteString(m.Content)
	}
	return sb.String()
}
