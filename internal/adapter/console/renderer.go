package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"maa/internal/domain"
)

// markdownWidth is the word-wrap width for message bodies.
const markdownWidth = 100

// Renderer writes chat output to the console.
type Renderer struct {
	out    io.Writer
	styles styles
	md     *glamour.TermRenderer
	mdErr  error
}

// NewRenderer creates a renderer writing to out.
func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out, styles: newStyles(out)}
}

// Ready announces the participants once the chat is set up.
func (r *Renderer) Ready(agents []domain.AgentIdentity) {
	names := strings.Join(domain.AgentNames(agents), ", ")
	fmt.Fprintln(r.out, r.styles.notice.Render("Ready! Participants: "+names))
	fmt.Fprintln(r.out, r.styles.detail.Render("Type EXIT to quit, RESET to start over, @path to send a file."))
}

// Message prints an agent message under its upper-cased author name,
// followed by any tool warnings of the turn.
func (r *Renderer) Message(m domain.Message) {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, r.styles.author.Render(strings.ToUpper(m.AuthorName())+":"))
	fmt.Fprintln(r.out, r.markdown(m.Content))
	for _, w := range m.Warnings {
		fmt.Fprintln(r.out, r.styles.warning.Render(symbolWarning+" tool "+w.String()))
	}
}

// markdown renders content as terminal markdown. Without a terminal the auto
// style degrades to plain text; on any failure content is returned as is.
func (r *Renderer) markdown(content string) string {
	if r.md == nil && r.mdErr == nil {
		r.md, r.mdErr = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(markdownWidth),
		)
	}
	if r.mdErr != nil {
		return content
	}
	rendered, err := r.md.Render(content)
	if err != nil || strings.TrimSpace(rendered) == "" {
		return content
	}
	lines := strings.Split(strings.Trim(rendered, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return strings.Join(lines, "\n")
}

// Reset prints the notice shown after the conversation was cleared.
func (r *Renderer) Reset() {
	fmt.Fprintln(r.out, r.styles.notice.Render("[Conversation has been reset]"))
}

// Notice prints an informational line.
func (r *Renderer) Notice(text string) {
	fmt.Fprintln(r.out, r.styles.notice.Render(text))
}

// Error prints err, its cause chain, structured diagnostic data as indented
// JSON and recovery hints.
func (r *Renderer) Error(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, r.styles.errText.Render(fmt.Sprintf("%s [%s] %s", symbolError, domain.ErrorCodeOf(err), err)))
	for _, cause := range causeChain(err) {
		fmt.Fprintln(r.out, r.styles.detail.Render("  caused by: "+cause))
	}

	var de *domain.DomainError
	if errors.As(err, &de) && len(de.Data) > 0 {
		if data, jerr := json.MarshalIndent(de.Data, "", "  "); jerr == nil {
			fmt.Fprintln(r.out, r.styles.detail.Render(string(data)))
		}
	}

	if hints := hintsFor(err); len(hints) > 0 {
		fmt.Fprintln(r.out, r.styles.detail.Render("  Suggestions:"))
		for _, h := range hints {
			fmt.Fprintln(r.out, r.styles.detail.Render(fmt.Sprintf("    %s %s", symbolBullet, h)))
		}
	}
}

// causeChain lists the messages of the errors wrapped by err, outermost
// first. For joined errors the last one is followed, since wrappers put the
// sentinel first and the cause last.
func causeChain(err error) []string {
	var chain []string
	seen := map[string]bool{err.Error(): true}
	for err != nil {
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			errs := u.Unwrap()
			if len(errs) == 0 {
				err = nil
			} else {
				err = errs[len(errs)-1]
			}
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		default:
			err = nil
		}
		if err != nil && !seen[err.Error()] {
			seen[err.Error()] = true
			chain = append(chain, err.Error())
		}
	}
	return chain
}
