// Package auth provides Microsoft Entra ID token providers for the
// Dataverse Web API: client-credential, username/password (ROPC) and
// static-token flows.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// loginBaseURL is the Microsoft Entra ID login endpoint.
const loginBaseURL = "https://login.microsoftonline.com"

// expirySkew is how long before actual expiry a cached token is considered
// stale. Keeps long-running requests from going out with a token that
// expires mid-flight.
const expirySkew = 2 * time.Minute

// ErrNoToken indicates the provider could not produce a token.
var ErrNoToken = errors.New("auth: no access token available")

// Error is a failed token request against the Entra ID token endpoint.
type Error struct {
	// StatusCode is the HTTP status of the token response.
	StatusCode int
	// Code is the AAD error code (e.g. "invalid_grant").
	Code string
	// Description is the AAD error description.
	Description string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth: token request failed with status %d: %s: %s",
			e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("auth: token request failed with status %d", e.StatusCode)
}

// tokenResponse is the Entra ID token endpoint success body.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// errorResponse is the Entra ID token endpoint error body.
type errorResponse struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

// newTokenError decodes an AAD error body into an *Error.
func newTokenError(statusCode int, body []byte) *Error {
	tokenErr := &Error{StatusCode: statusCode}

	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		tokenErr.Code = parsed.Code
		tokenErr.Description = parsed.Description
	}

	return tokenErr
}

// unmarshalToken decodes a token endpoint success body.
func unmarshalToken(body []byte, dst *tokenResponse) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	return nil
}

// resourceURL normalises an environment URL for use in a scope.
func resourceURL(environmentURL string) string {
	return strings.TrimSuffix(strings.TrimSpace(environmentURL), "/")
}
