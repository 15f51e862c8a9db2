package salesforce

import (
	"errors"
	"fmt"
)

// APIError represents an error response from a Salesforce API. The body of
// a failed call carries an error code and message which are preserved here
// alongside the HTTP status.
type APIError struct {
	// StatusCode is the HTTP status of the failed call.
	StatusCode int

	// ErrorCode is the Salesforce error code (e.g. "INVALID_SESSION_ID").
	// Empty when the body could not be parsed.
	ErrorCode string

	// Message is the human-readable description from the response body.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("salesforce: HTTP %d %s: %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("salesforce: HTTP %d: %s", e.StatusCode, e.Message)
}

// UnsupportedQuery returns true if the error indicates the synchronous
// query API cannot serve this query at all (e.g. a bulk-only object).
// Callers use this to decide whether the bulk query path applies.
func (e *APIError) UnsupportedQuery() bool {
	switch e.ErrorCode {
	case "INVALID_TYPE_FOR_OPERATION", "OPERATION_TOO_LARGE":
		return true
	}
	return false
}

// AsAPIError extracts an APIError from an error chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
