package console

import (
	"context"
	"errors"
	"iter"
	"log/slog"

	"maa/internal/domain"
)

// Chat is the part of the group chat the console drives.
type Chat interface {
	AddUserMessage(ctx context.Context, content string) (domain.Message, error)
	Invoke(ctx context.Context) iter.Seq2[domain.Message, error]
	Reset(ctx context.Context)
}

// REPL runs the read-invoke-print loop of the console chat.
type REPL struct {
	chat     Chat
	reader   *Reader
	renderer *Renderer
	logger   *slog.Logger
}

// NewREPL wires a chat to console input and output.
func NewREPL(chat Chat, reader *Reader, renderer *Renderer, logger *slog.Logger) *REPL {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &REPL{chat: chat, reader: reader, renderer: renderer, logger: logger}
}

// Run loops until EXIT, end of input or cancellation of ctx. Recoverable
// errors are printed and the loop continues; an ErrInvalidState error ends
// Run and is returned.
func (r *REPL) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		in, err := r.reader.Next()
		if err != nil {
			return err
		}

		switch in.Kind {
		case InputExit:
			r.logger.Debug("console exit requested")
			return nil
		case InputReset:
			r.chat.Reset(ctx)
			r.renderer.Reset()
			continue
		}

		if _, err := r.chat.AddUserMessage(ctx, in.Text); err != nil {
			r.renderer.Error(err)
			continue
		}
		if err := r.turn(ctx); err != nil {
			return err
		}
	}
}

// turn prints every message of one chat invocation. It returns only fatal errors.
func (r *REPL) turn(ctx context.Context) error {
	for msg, err := range r.chat.Invoke(ctx) {
		if err == nil {
			r.renderer.Message(msg)
			continue
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil
		}
		r.renderer.Error(err)
		if !domain.IsRecoverable(err) {
			r.logger.Error("chat entered an invalid state", "error", err)
			return err
		}
		r.logger.Warn("chat turn failed", "code", domain.ErrorCodeOf(err), "error", err)
	}
	return nil
}
