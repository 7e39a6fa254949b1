package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atotto/clipboard"
	"go.opentelemetry.io/otel/trace"

	"maa/internal/domain"
	"maa/internal/infra/tracer"
)

// ClipboardToolName is the function name the model calls.
const ClipboardToolName = "set_clipboard"

// ClipboardTool copies text to the operating system clipboard.
type ClipboardTool struct {
	write  func(string) error
	logger *slog.Logger
}

// NewClipboardTool creates the set_clipboard tool backed by the system clipboard.
func NewClipboardTool(logger *slog.Logger) *ClipboardTool {
	return newClipboardTool(clipboard.WriteAll, logger)
}

func newClipboardTool(write func(string) error, logger *slog.Logger) *ClipboardTool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ClipboardTool{write: write, logger: logger}
}

func (t *ClipboardTool) Name() string { return ClipboardToolName }
func (t *ClipboardTool) Description() string {
	return "Copies the given text to the user's clipboard."
}

func (t *ClipboardTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"content": {
					"type": "string",
					"description": "The text to copy to the clipboard"
				}
			},
			"required": ["content"]
		}`),
	}
}

type clipboardParams struct {
	Content string `json:"content"`
}

// Execute implements domain.Tool. Blank content leaves the clipboard as it is.
func (t *ClipboardTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.set_clipboard", t.logger, params,
		func(ctx context.Context, span trace.Span, p clipboardParams) (any, error) {
			span.SetAttributes(tracer.IntAttr("tool.clipboard.length", len(p.Content)))
			if strings.TrimSpace(p.Content) == "" {
				return "nothing to copy", nil
			}
			if err := t.write(p.Content); err != nil {
				return nil, fmt.Errorf("copy to clipboard: %w", err)
			}
			t.logger.DebugContext(ctx, "clipboard updated", "length", len(p.Content))
			return "copied to clipboard", nil
		},
	)
}
