package console

import (
	"context"
	"errors"
	"strings"

	"maa/internal/domain"
)

type hintRule struct {
	match func(err error) bool
	hints []string
}

// hintRules are checked in order; the first match wins.
var hintRules = []hintRule{
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrAuthInvalid) },
		hints: []string{"Check the API key (--key or AZURE_OPENAI_API_KEY)", "Verify the endpoint matches the key's resource"},
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrRateLimit) },
		hints: []string{"Wait a moment and send the message again", "Lower llm.rate_limit.requests_per_minute"},
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrCircuitOpen) },
		hints: []string{"The provider failed repeatedly; it is retried automatically after a cool-down"},
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrContextOverflow) },
		hints: []string{"Type RESET to start a fresh conversation", "Lower agents[].max_messages"},
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrSelection) },
		hints: []string{"Rephrase your request", "Check chat.selection.prompt names the participants"},
	},
	{
		match: func(err error) bool {
			return errors.Is(err, domain.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
		},
		hints: []string{"The provider took too long; try again", "Increase the provider resp_timeout"},
	},
	{
		match: containsAny("connection refused", "no such host"),
		hints: []string{"Check the endpoint URL (--endpoint or AZURE_OPENAI_ENDPOINT)", "Check your network connection"},
	},
}

// hintsFor returns recovery suggestions for err, or nil when none apply.
func hintsFor(err error) []string {
	if err == nil {
		return nil
	}
	for _, rule := range hintRules {
		if rule.match(err) {
			return rule.hints
		}
	}
	return nil
}

// containsAny returns a match func that checks if the error string contains
// any of the given substrings (case-insensitive).
func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}
