package core

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds shared by every knowledge component. Callers match them with errors.Is.
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrEmbeddingFailure     = errors.New("embedding failure")
	ErrStorageFailure       = errors.New("storage failure")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrCompletionFailure    = errors.New("completion failure")
	ErrTimeout              = errors.New("timeout")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidRequest, "invalid_request"},
	{ErrInvalidConfiguration, "invalid_configuration"},
	{ErrEmbeddingFailure, "embedding_failure"},
	{ErrStorageFailure, "storage_failure"},
	{ErrCompletionFailure, "completion_failure"},
	{ErrTimeout, "timeout"},
}

// KindOf names the first error kind found in err's chain, or "unknown".
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "unknown"
}

// WrapKind tags cause with kind. Deadline errors additionally carry ErrTimeout.
func WrapKind(kind error, op string, cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, kind) {
		return cause
	}
	if errors.Is(cause, context.DeadlineExceeded) && !errors.Is(cause, ErrTimeout) {
		return fmt.Errorf("%w: %s: %w: %w", kind, op, ErrTimeout, cause)
	}
	return fmt.Errorf("%w: %s: %w", kind, op, cause)
}
