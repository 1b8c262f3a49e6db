package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"

	"github.com/soyeahso/dealflow/internal/httpclient"
)

// ErrNoProvider is returned when no AI provider is configured.
var ErrNoProvider = errors.New("no AI provider configured")

// ProviderError is returned when an AI provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP-like status code (401, 429, 500, etc.)
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// wrapError converts SDK and transport errors into a ProviderError carrying
// the status code when one is known. Context errors pass through unchanged.
func wrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	pe := &ProviderError{Provider: provider, Message: err.Error(), Err: err}

	var oaErr *openai.Error
	var anErr *anthropic.Error
	var stErr *httpclient.StatusError
	switch {
	case errors.As(err, &oaErr):
		pe.Code = oaErr.StatusCode
	case errors.As(err, &anErr):
		pe.Code = anErr.StatusCode
	case errors.As(err, &stErr):
		pe.Code = stErr.Code
		pe.Message = stErr.Body
	}
	return pe
}

// IsRetryable checks if the error suggests trying another provider.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Code {
		case 401, 403, 429, 500, 502, 503, 529:
			return true
		}
	}

	msg := err.Error()
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "capacity") ||
		strings.Contains(msg, "timeout")
}
