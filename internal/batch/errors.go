package batch

import (
	"errors"
	"fmt"
	"strings"
)

// QueryFailure names one failed query within a batch and its cause.
type QueryFailure struct {
	Name string
	Err  error
}

// BatchError reports that one or more queries in a concurrent batch
// failed. The whole batch call fails; no partial results are surfaced.
// Every failed query is listed, not just the first observed.
type BatchError struct {
	Failures []QueryFailure
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("query %q: %v", f.Name, f.Err)
	}
	return "batch execution failed: " + strings.Join(parts, "; ")
}

// FailedQueries returns the names of the queries that failed.
func (e *BatchError) FailedQueries() []string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Name
	}
	return names
}

// AsBatchError extracts a BatchError from an error chain.
func AsBatchError(err error) (*BatchError, bool) {
	var be *BatchError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
