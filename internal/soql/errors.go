package soql

import (
	"errors"
	"fmt"
)

// BuildError represents a problem detected while constructing or inspecting
// a SOQL query string. These are caller errors, raised before any network
// call is made.
type BuildError struct {
	// Code identifies the error category.
	Code BuildErrorCode

	// Message is a human-readable description.
	Message string
}

// BuildErrorCode categorizes query construction errors.
type BuildErrorCode string

const (
	// ErrCodeInvalidQuerySpec indicates an empty column list or table name.
	ErrCodeInvalidQuerySpec BuildErrorCode = "INVALID_QUERY_SPEC"

	// ErrCodeMalformedQuery indicates a query with no FROM clause.
	ErrCodeMalformedQuery BuildErrorCode = "MALFORMED_QUERY"
)

// Error implements the error interface.
func (e *BuildError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvalidQuerySpec returns true if the error is an invalid query spec error.
// Uses errors.As to handle wrapped errors.
func IsInvalidQuerySpec(err error) bool {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Code == ErrCodeInvalidQuerySpec
	}
	return false
}

// IsMalformedQuery returns true if the error is a malformed query error.
// Uses errors.As to handle wrapped errors.
func IsMalformedQuery(err error) bool {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Code == ErrCodeMalformedQuery
	}
	return false
}
