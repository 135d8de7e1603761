package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrChainNotSupported means a candidate has no contract on the requested chain.
	ErrChainNotSupported = errors.New("token not deployed on requested chain")
	// ErrNoListing means no market data exists for the token. It is the only
	// pipeline-fatal condition.
	ErrNoListing = errors.New("no market listing found")
	// ErrRenderTimeout means the browser did not finish loading a page in time.
	ErrRenderTimeout = errors.New("render timed out")
	// ErrTemplate means a template resource is missing or broken.
	ErrTemplate = errors.New("template unavailable")
)

// ValidationError is malformed user input. Its message is safe to show.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// UpstreamError is a non-2xx answer from a required API.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
	// BlockedBy names the bot-protection vendor that answered instead of
	// the API, if any.
	BlockedBy string
}

func (e *UpstreamError) Error() string {
	if e.BlockedBy != "" {
		return fmt.Sprintf("%s: blocked by %s (status %d)", e.Service, e.BlockedBy, e.StatusCode)
	}
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
}

// RetryAfterError signals HTTP 429. It is resolved by waiting and never
// reaches a user.
type RetryAfterError struct {
	Service string
	Wait    time.Duration // zero when the server sent no hint
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s", e.Service, e.Wait)
}

// StorageError is a failed artifact upload.
type StorageError struct {
	Object string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: upload %s: %v", e.Object, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// UserMessage turns any error into a short reply for the chat surface.
// Internal detail is only echoed for validation errors.
func UserMessage(err error) string {
	var (
		verr *ValidationError
		uerr *UpstreamError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return verr.Msg
	case errors.As(err, &uerr) && uerr.BlockedBy != "":
		return "The data provider is refusing requests right now. Please try again later."
	case errors.Is(err, ErrNoListing):
		return "Could not find this token. Check the address and chain."
	case errors.Is(err, ErrChainNotSupported):
		return "This token is not available on the requested chain."
	case errors.Is(err, ErrRenderTimeout):
		return "The visualization took too long to render. Please try again later."
	default:
		return "Something went wrong while processing your request. Please try again later."
	}
}
