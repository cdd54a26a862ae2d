// Package llm implements content.Generator on an OpenAI-compatible chat
// completion API (Groq by default). Every failure degrades to built-in
// fallback content.
package llm

import (
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/youlearn/youlearn-progress/pkg/retry"
)

var (
	// ErrRateLimited is returned by the local limiter or on HTTP 429.
	ErrRateLimited = errors.New("llm: rate limited")

	// ErrUnavailable covers transport errors and 5xx responses.
	ErrUnavailable = errors.New("llm: provider unavailable")

	// ErrEmptyResponse means the completion had no choices.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// InvalidResponseError is returned when the completion is not the JSON we asked for.
type InvalidResponseError struct {
	Content string
	Err     error
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("llm: invalid response: %v", e.Err)
}

func (e *InvalidResponseError) Unwrap() error { return e.Err }

func mapAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		default:
			return retry.Permanent(err)
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode >= 400 && reqErr.HTTPStatusCode < 500 &&
		reqErr.HTTPStatusCode != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// classify retries rate limits and outages only.
func classify(err error) retry.ErrorClass {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable) {
		return retry.Retry
	}
	return retry.Stop
}
