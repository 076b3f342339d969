package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid executor context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Pipeline error taxonomy. ErrServiceUnavailable is the only retryable
	// class; everything else fails the current stage immediately.
	ErrServiceUnavailable = errors.New("inference service unavailable")
	ErrInvalidInput       = errors.New("invalid model input")
	ErrModelError         = errors.New("model returned an error")
	ErrInvalidArtifact    = errors.New("malformed stage artifact")
	ErrJobFinished        = errors.New("job already reached a terminal state")
	ErrArtifactExists     = errors.New("stage artifact already written")
)

// Retryable reports whether an error should be retried with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}
