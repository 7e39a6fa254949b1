package llm

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"maa/internal/domain"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusUnauthorized, domain.ErrAuthInvalid},
		{http.StatusForbidden, domain.ErrAuthInvalid},
		{http.StatusRequestEntityTooLarge, domain.ErrContextOverflow},
		{http.StatusRequestTimeout, domain.ErrTimeout},
		{http.StatusGatewayTimeout, domain.ErrTimeout},
		{http.StatusInternalServerError, domain.ErrProviderError},
		{http.StatusBadGateway, domain.ErrProviderError},
		{http.StatusServiceUnavailable, domain.ErrProviderError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := mapHTTPError(tt.status, []byte(`{"error":"x"}`))
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("mapHTTPError(%d) = %v, want %v", tt.status, err, tt.sentinel)
			}
		})
	}
}

func TestMapHTTPErrorUnknownStatus(t *testing.T) {
	err := mapHTTPError(418, []byte(`I'm a teapot`))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, s := range []error{domain.ErrRateLimit, domain.ErrAuthInvalid, domain.ErrContextOverflow, domain.ErrProviderError} {
		if errors.Is(err, s) {
			t.Errorf("unknown status wrapped %v", s)
		}
	}
	if !strings.Contains(err.Error(), "API error 418: I'm a teapot") {
		t.Errorf("error = %q, want status and body", err)
	}
}

func TestMapHTTPErrorTruncatesBody(t *testing.T) {
	err := mapHTTPError(http.StatusBadRequest, []byte(strings.Repeat("x", 2000)))
	if len(err.Error()) > 600 {
		t.Errorf("error length = %d, want the body truncated", len(err.Error()))
	}
}
