package usecase

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"maa/internal/domain"
)

// ErrorCategory indicates whether a provider error is worth retrying.
type ErrorCategory int

const (
	ErrorCategoryUnknown   ErrorCategory = iota
	ErrorCategoryRetryable               // 429, 5xx, timeouts, connection errors
	ErrorCategoryPermanent               // 401, 403, 4xx, open circuit, cancellation
)

// ClassifiedError holds the result of error classification.
type ClassifiedError struct {
	Original   error
	Category   ErrorCategory
	Sentinel   error // mapped domain sentinel, or nil
	StatusCode int   // extracted HTTP status, or 0 if unknown
}

// Retryable reports whether the call may succeed when repeated.
func (c ClassifiedError) Retryable() bool { return c.Category == ErrorCategoryRetryable }

// ErrorClassifier sorts text-generation errors into retryable and permanent.
type ErrorClassifier struct{}

// NewErrorClassifier creates a new classifier.
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// apiErrorPattern matches "API error <status_code>:" produced by the HTTP providers.
var apiErrorPattern = regexp.MustCompile(`API error (\d+):`)

// Classify inspects an error returned by an LLM provider.
func (c *ErrorClassifier) Classify(err error) ClassifiedError {
	if err == nil {
		return ClassifiedError{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassifiedError{Original: err, Category: ErrorCategoryPermanent}
	}
	if classified := c.classifyBySentinel(err); classified.Category != ErrorCategoryUnknown {
		if m := apiErrorPattern.FindStringSubmatch(err.Error()); len(m) == 2 {
			classified.StatusCode, _ = strconv.Atoi(m[1])
		}
		return classified
	}
	if m := apiErrorPattern.FindStringSubmatch(err.Error()); len(m) == 2 {
		code, _ := strconv.Atoi(m[1])
		return c.classifyByStatus(err, code)
	}
	return c.classifyByString(err)
}

func (c *ErrorClassifier) classifyBySentinel(err error) ClassifiedError {
	retryable := func(s error) ClassifiedError {
		return ClassifiedError{Original: err, Category: ErrorCategoryRetryable, Sentinel: s}
	}
	permanent := func(s error) ClassifiedError {
		return ClassifiedError{Original: err, Category: ErrorCategoryPermanent, Sentinel: s}
	}
	switch {
	case errors.Is(err, domain.ErrCircuitOpen):
		return permanent(domain.ErrCircuitOpen)
	case errors.Is(err, domain.ErrAuthInvalid):
		return permanent(domain.ErrAuthInvalid)
	case errors.Is(err, domain.ErrContextOverflow):
		return permanent(domain.ErrContextOverflow)
	case errors.Is(err, domain.ErrRateLimit):
		return retryable(domain.ErrRateLimit)
	case errors.Is(err, domain.ErrTimeout):
		return retryable(domain.ErrTimeout)
	case errors.Is(err, domain.ErrProviderError):
		return retryable(domain.ErrProviderError)
	default:
		return ClassifiedError{Original: err, Category: ErrorCategoryUnknown}
	}
}

func (c *ErrorClassifier) classifyByStatus(err error, code int) ClassifiedError {
	out := ClassifiedError{Original: err, Category: ErrorCategoryPermanent, StatusCode: code}
	switch {
	case code == 429:
		out.Category, out.Sentinel = ErrorCategoryRetryable, domain.ErrRateLimit
	case code == 401 || code == 403:
		out.Sentinel = domain.ErrAuthInvalid
	case code == 408:
		out.Category, out.Sentinel = ErrorCategoryRetryable, domain.ErrTimeout
	case code >= 500 && code < 600:
		out.Category, out.Sentinel = ErrorCategoryRetryable, domain.ErrProviderError
	}
	return out
}

var (
	rateLimitPatterns = []string{"rate limit", "too many requests"}
	transientPatterns = []string{
		"connection refused", "no such host", "timeout",
		"connection reset", "eof", "temporarily unavailable",
	}
)

func (c *ErrorClassifier) classifyByString(err error) ClassifiedError {
	lower := strings.ToLower(err.Error())
	for _, p := range rateLimitPatterns {
		if strings.Contains(lower, p) {
			return ClassifiedError{Original: err, Category: ErrorCategoryRetryable, Sentinel: domain.ErrRateLimit}
		}
	}
	for _, p := range transientPatterns {
		if strings.Contains(lower, p) {
			return ClassifiedError{Original: err, Category: ErrorCategoryRetryable}
		}
	}
	return ClassifiedError{Original: err, Category: ErrorCategoryUnknown}
}
