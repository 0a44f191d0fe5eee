package dataverse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error types for Dataverse Web API responses.
var (
	// ErrUnauthorised indicates the access token is invalid or expired.
	ErrUnauthorised = errors.New("dataverse: unauthorised")

	// ErrForbidden indicates the caller lacks permission for the requested resource.
	ErrForbidden = errors.New("dataverse: forbidden")

	// ErrNotFound indicates the entity set or record does not exist.
	ErrNotFound = errors.New("dataverse: not found")

	// ErrRateLimited indicates the request was throttled by Dataverse
	// service protection limits.
	ErrRateLimited = errors.New("dataverse: rate limited")

	// ErrBadRequest indicates the request was malformed.
	ErrBadRequest = errors.New("dataverse: bad request")

	// ErrServerError indicates a server-side error from Dataverse.
	ErrServerError = errors.New("dataverse: server error")
)

// WrapError converts an HTTP status code to an appropriate error.
func WrapError(statusCode int) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorised
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusBadRequest:
		return ErrBadRequest
	default:
		if statusCode >= 500 {
			return ErrServerError
		}
		return nil
	}
}

// APIError is a non-2xx response from the Dataverse Web API.
// It wraps the matching sentinel error so callers can use errors.Is.
type APIError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int
	// Code is the Dataverse error code (e.g. "0x80040217").
	Code string
	// Message is the error message from the OData error body.
	Message string
	// RetryAfter is the Retry-After value in seconds for 429 responses.
	RetryAfter int

	err error
}

// odataErrorBody is the error envelope returned by the Web API.
type odataErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newAPIError builds an APIError from a response status and body.
// The body is parsed on a best-effort basis; throttled and proxy responses
// are not always JSON.
func newAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		err:        WrapError(statusCode),
	}

	var parsed odataErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Code = parsed.Error.Code
		apiErr.Message = parsed.Error.Message
	}

	return apiErr
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("dataverse: status %d: %s (code %s)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("dataverse: status %d", e.StatusCode)
}

// Unwrap returns the sentinel error matching the status code.
func (e *APIError) Unwrap() error {
	return e.err
}

// IsRetryable checks if the error is potentially transient and can be retried.
func IsRetryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout
}

// IsNotFound checks if the status code indicates a missing resource.
func IsNotFound(statusCode int) bool {
	return statusCode == http.StatusNotFound
}

// IsRateLimited checks if the status code indicates service protection throttling.
func IsRateLimited(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests
}
