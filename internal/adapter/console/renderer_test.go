package console

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"maa/internal/domain"
)

func TestRendererMessage(t *testing.T) {
	var out bytes.Buffer
	NewRenderer(&out).Message(domain.Message{
		Role:    domain.AuthorAgent,
		Author:  "StockManager",
		Content: "Excavator #12 is in Ghent.",
		Warnings: []domain.ToolWarning{
			{Tool: "set_clipboard", Detail: "no clipboard utilities available"},
		},
	})

	got := out.String()
	assert.Contains(t, got, "STOCKMANAGER:\n")
	assert.Contains(t, got, "Excavator #12 is in Ghent.")
	assert.Less(t, strings.Index(got, "STOCKMANAGER:"), strings.Index(got, "Excavator"))
	assert.Contains(t, got, "tool set_clipboard: no clipboard utilities available")
}

func TestRendererMessageRendersMarkdown(t *testing.T) {
	var out bytes.Buffer
	NewRenderer(&out).Message(domain.Message{
		Role:    domain.AuthorAgent,
		Author:  "Expert",
		Content: "Check the **hydraulic** hoses:\n\n- left arm\n- right arm",
	})

	got := out.String()
	assert.Contains(t, got, "hydraulic")
	assert.Contains(t, got, "left arm")
	assert.Contains(t, got, "right arm")
	for _, line := range strings.Split(got, "\n") {
		assert.Equal(t, strings.TrimRight(line, " "), line, "trailing padding is trimmed")
	}
}

func TestRendererErrorShowsChainAndData(t *testing.T) {
	cause := fmt.Errorf("%w: API error 429: slow down", domain.ErrRateLimit)
	err := domain.GenerationError("ChatAgent.Invoke", "Coach", cause)
	err.WithData("agent", "Coach")

	var out bytes.Buffer
	NewRenderer(&out).Error(err)
	got := out.String()

	assert.Contains(t, got, "[GENERATION]")
	assert.Contains(t, got, "caused by: rate limit exceeded: API error 429: slow down")
	assert.Contains(t, got, "{\n  \"agent\": \"Coach\"\n}")
	assert.Contains(t, got, "Suggestions:")
}

func TestRendererErrorWithoutData(t *testing.T) {
	var out bytes.Buffer
	NewRenderer(&out).Error(errors.New("boom"))
	got := out.String()

	assert.Contains(t, got, "[UNKNOWN] boom")
	assert.NotContains(t, got, "caused by")
	assert.NotContains(t, got, "{")

	out.Reset()
	NewRenderer(&out).Error(nil)
	assert.Empty(t, out.String())
}

func TestRendererResetAndReady(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out)
	r.Ready([]domain.AgentIdentity{{Name: "Coach"}, {Name: "Expert"}})
	r.Reset()

	got := out.String()
	assert.Contains(t, got, "Participants: Coach, Expert")
	assert.Contains(t, got, "[Conversation has been reset]")
}

func TestCauseChain(t *testing.T) {
	root := errors.New("dial tcp: connection refused")
	wrapped := fmt.Errorf("http request: %w", root)
	err := domain.NewDomainError("op", wrapped, "")

	chain := causeChain(err)
	assert.Equal(t, []string{"http request: dial tcp: connection refused", "dial tcp: connection refused"}, chain)
	assert.True(t, strings.Contains(strings.Join(hintsFor(err), " "), "endpoint"))
}

func TestHintsFor(t *testing.T) {
	assert.Nil(t, hintsFor(nil))
	assert.Nil(t, hintsFor(errors.New("something odd")))
	assert.NotEmpty(t, hintsFor(fmt.Errorf("x: %w", domain.ErrAuthInvalid)))
	assert.NotEmpty(t, hintsFor(domain.NewDomainError("Select", domain.ErrSelection, "")))
}
