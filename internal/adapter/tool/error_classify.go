package tool

import (
	"errors"
	"strings"

	"maa/internal/domain"
)

var transientSentinels = []error{
	domain.ErrTimeout,
	domain.ErrProviderError,
	domain.ErrRateLimit,
}

// transientPatterns are checked case-insensitively against errors without a sentinel.
var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"deadline exceeded",
	"temporarily unavailable",
	"resource busy",
	"try again",
}

// isTransient reports whether a tool failure may succeed if the model calls
// the tool again.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	for _, sentinel := range transientSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	lower := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
