package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/trace"

	"maa/internal/domain"
	"maa/internal/infra/config"
	"maa/internal/infra/tracer"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicProvider implements domain.LLMProvider for the Anthropic Messages API.
type AnthropicProvider struct {
	name      string
	model     string
	maxTokens int
	client    anthropic.Client
	logger    *slog.Logger
}

// NewAnthropicProvider creates a provider for the Anthropic Messages API.
// Retries are left to the agent's error classifier.
func NewAnthropicProvider(cfg config.ProviderConfig, logger *slog.Logger) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithHTTPClient(NewHTTPClient(cfg)),
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &AnthropicProvider{
		name:      cfg.Name,
		model:     cfg.Model,
		maxTokens: maxTokens,
		client:    anthropic.NewClient(opts...),
		logger:    logger,
	}
}

// Chat implements domain.LLMProvider.
func (p *AnthropicProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if req.Model == "" {
		req.Model = p.model
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = p.maxTokens
	}

	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
		),
	)
	defer span.End()

	params, err := toAnthropicParams(req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		err = mapAnthropicError(err)
		tracer.RecordError(span, err)
		return nil, err
	}

	result := fromAnthropicMessage(resp)
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(ctx, p.logger, p.name, result)

	return result, nil
}

// Name implements domain.LLMProvider.
func (p *AnthropicProvider) Name() string { return p.name }

// mapAnthropicError gives SDK API errors the same domain sentinels as the
// HTTP providers.
func mapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("anthropic: %w", mapHTTPError(apiErr.StatusCode, []byte(apiErr.Error())))
	}
	return fmt.Errorf("anthropic: %w", err)
}

// toAnthropicParams converts a domain request. The Messages API has no
// participant names, so messages from other agents are prefixed with the
// author. Consecutive tool results are merged into one user turn.
func toAnthropicParams(req domain.ChatRequest) (anthropic.MessageNewParams, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	var system []string
	var pendingResults []anthropic.ContentBlockParamUnion
	flushResults := func() {
		if len(pendingResults) > 0 {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, m.Content)
			continue
		case domain.RoleTool:
			isError := strings.HasPrefix(m.Content, "error: ")
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, isError))
			continue
		}
		flushResults()

		if m.Role == domain.RoleAssistant {
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			if len(blocks) > 0 {
				params.Messages = append(params.Messages, anthropic.NewAssistantMessage(blocks...))
			}
			continue
		}

		content := m.Content
		if m.Name != "" {
			content = m.Name + ": " + content
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
	}
	flushResults()

	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}

	for _, t := range req.Tools {
		tool, err := toAnthropicTool(t)
		if err != nil {
			return params, err
		}
		params.Tools = append(params.Tools, tool)
	}
	return params, nil
}

func toAnthropicTool(t domain.ToolSchema) (anthropic.ToolUnionParam, error) {
	var schema struct {
		Properties any      `json:"properties"`
		Required   []string `json:"required"`
	}
	if len(t.Parameters) > 0 {
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			return anthropic.ToolUnionParam{}, fmt.Errorf("tool %q schema: %w", t.Name, err)
		}
	}
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema.Properties,
				Required:   schema.Required,
			},
		},
	}, nil
}

func fromAnthropicMessage(resp *anthropic.Message) *domain.ChatResponse {
	result := &domain.ChatResponse{
		ID:    resp.ID,
		Model: string(resp.Model),
		Usage: domain.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
		CreatedAt: time.Now(),
	}

	msg := domain.ChatMessage{
		Role:      domain.RoleAssistant,
		Timestamp: result.CreatedAt,
	}
	var text []string
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}
	msg.Content = strings.Join(text, "")
	result.Message = msg
	return result
}
