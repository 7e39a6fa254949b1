package domain

import (
	"context"
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Group-chat sentinels.
var (
	// ErrGeneration: the text-generation service failed for an agent turn or a
	// strategy decision call. Recoverable.
	ErrGeneration = fmt.Errorf("generation failed")
	// ErrSelection: the selection decision named no agent of the pool. Recoverable.
	ErrSelection = fmt.Errorf("agent selection failed")
	// ErrToolInvocation: a tool invoked during generation failed. Reported as a warning.
	ErrToolInvocation = fmt.Errorf("tool invocation failed")
	// ErrInvalidState: an orchestrator contract was violated. Fatal.
	ErrInvalidState = fmt.Errorf("invalid state")
)

// Provider / infrastructure sentinels.
var (
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrAgentNotFound    = fmt.Errorf("agent not found")
	ErrToolNotFound     = fmt.Errorf("tool not found")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrContextOverflow  = fmt.Errorf("context window exceeded")
	ErrRateLimit        = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid      = fmt.Errorf("authentication failed")
	ErrEmptyResponse    = fmt.Errorf("empty response")
	ErrCircuitOpen      = fmt.Errorf("provider circuit open")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string            // operation name (e.g., "GroupChat.Invoke")
	Err    error             // underlying sentinel or wrapped error
	Detail string            // human-readable detail
	Data   map[string]string // structured diagnostic data, optional
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WithData attaches a key/value pair of diagnostic data and returns e.
func (e *DomainError) WithData(key, value string) *DomainError {
	if e.Data == nil {
		e.Data = make(map[string]string)
	}
	e.Data[key] = value
	return e
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// GenerationError wraps cause as an ErrGeneration DomainError. The cause stays
// reachable through errors.Is / errors.As.
func GenerationError(op, detail string, cause error) *DomainError {
	return &DomainError{Op: op, Err: &chainError{sentinel: ErrGeneration, cause: cause}, Detail: detail}
}

// chainError reports both a sentinel and its cause in the unwrap chain.
type chainError struct {
	sentinel error
	cause    error
}

func (c *chainError) Error() string {
	if c.cause == nil {
		return c.sentinel.Error()
	}
	return fmt.Sprintf("%s: %s", c.sentinel, c.cause)
}

func (c *chainError) Unwrap() []error {
	if c.cause == nil {
		return []error{c.sentinel}
	}
	return []error{c.sentinel, c.cause}
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout)
}

// IsRecoverable reports whether the conversation loop can continue after err.
// Only ErrInvalidState is unrecoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	return !errors.Is(err, ErrInvalidState)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeGeneration       ErrorCode = "GENERATION"
	CodeSelection        ErrorCode = "SELECTION"
	CodeToolInvocation   ErrorCode = "TOOL_INVOCATION"
	CodeInvalidState     ErrorCode = "INVALID_STATE"
	CodeProviderNotFound ErrorCode = "PROVIDER_NOT_FOUND"
	CodeAgentNotFound    ErrorCode = "AGENT_NOT_FOUND"
	CodeToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
	CodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	CodeContextOverflow  ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid      ErrorCode = "AUTH_INVALID"
	CodeEmptyResponse    ErrorCode = "EMPTY_RESPONSE"
	CodeCircuitOpen      ErrorCode = "CIRCUIT_OPEN"
	CodeCanceled         ErrorCode = "CANCELED"

	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeDuplicate     ErrorCode = "DUPLICATE"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeProviderError ErrorCode = "PROVIDER_ERROR"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:      CodeNotFound,
	ErrDuplicate:     CodeDuplicate,
	ErrTimeout:       CodeTimeout,
	ErrInvalidInput:  CodeInvalidInput,
	ErrProviderError: CodeProviderError,

	ErrGeneration:       CodeGeneration,
	ErrSelection:        CodeSelection,
	ErrToolInvocation:   CodeToolInvocation,
	ErrInvalidState:     CodeInvalidState,
	ErrProviderNotFound: CodeProviderNotFound,
	ErrAgentNotFound:    CodeAgentNotFound,
	ErrToolNotFound:     CodeToolNotFound,
	ErrConfigLoad:       CodeConfigLoad,
	ErrContextOverflow:  CodeContextOverflow,
	ErrRateLimit:        CodeRateLimit,
	ErrAuthInvalid:      CodeAuthInvalid,
	ErrEmptyResponse:    CodeEmptyResponse,
	ErrCircuitOpen:      CodeCircuitOpen,
}

// codePriority orders sentinels for chain walks, most specific first. Group-chat
// sentinels win over transport causes so that a generation failure caused by a
// rate limit still reports GENERATION.
var codePriority = []error{
	ErrInvalidState,
	ErrSelection,
	ErrGeneration,
	ErrToolInvocation,
	ErrProviderNotFound,
	ErrAgentNotFound,
	ErrToolNotFound,
	ErrConfigLoad,
	ErrContextOverflow,
	ErrRateLimit,
	ErrAuthInvalid,
	ErrEmptyResponse,
	ErrCircuitOpen,
	ErrNotFound,
	ErrDuplicate,
	ErrTimeout,
	ErrInvalidInput,
	ErrProviderError,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, sentinel := range codePriority {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
