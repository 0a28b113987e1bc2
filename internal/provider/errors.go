package provider

import (
	"errors"
	"fmt"
	"time"
)

// ErrRangeTooLarge is returned by a source when a block range holds more
// results than the provider will page through. The client splits the range.
var ErrRangeTooLarge = errors.New("block range result window too large")

// FetchError is the terminal error of a fetch. Retryable errors are expected
// to succeed on a later run; non-retryable errors need operator attention.
type FetchError struct {
	Op        string
	Retryable bool
	Attempts  int
	Err       error
}

func (e *FetchError) Error() string {
	kind := "non-retryable"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s failed after %d attempt(s) (%s): %v", e.Op, e.Attempts, kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a retryable FetchError.
func IsRetryable(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr) && fetchErr.Retryable
}

// StatusError is a non-200 HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// ProviderError is an API level error carried in a 200 response.
type ProviderError struct {
	Message string
	Result  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error: %s: %s", e.Message, e.Result)
}

// SchemaError is a response that does not match the expected shape.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("malformed response: %v", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}
