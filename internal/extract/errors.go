package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/sells-group/childcare-cli/internal/model"
)

// ErrUnknownPromptVersion is returned when no template exists for a
// (pass, prompt version) pair. It is a configuration error and never retried.
var ErrUnknownPromptVersion = errors.New("unknown prompt version")

// DocumentTooLongError is returned when a rendered prompt exceeds the token
// limit. No model call is made.
type DocumentTooLongError struct {
	Tokens int64
	Limit  int64
}

func (e *DocumentTooLongError) Error() string {
	return fmt.Sprintf("document too long: %d tokens (limit %d)", e.Tokens, e.Limit)
}

// MalformedResponseError is returned when the model's answer does not match
// the pass's response schema.
type MalformedResponseError struct {
	Pass model.Pass
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s response: %v", e.Pass, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a model-call failure may be retried. Oversized
// documents, unknown prompt versions and cancellation are final; everything
// else, malformed responses included, is treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var tooLong *DocumentTooLongError
	switch {
	case errors.As(err, &tooLong),
		errors.Is(err, ErrUnknownPromptVersion),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func unknownVersion(pass model.Pass, version string) error {
	return fmt.Errorf("%w: %s pass has no template %q", ErrUnknownPromptVersion, pass, version)
}
