package vaultsdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// Error codes as returned in the `error` field of error responses. They
// mirror the service's error taxonomy.
const (
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeMFARequired    = "mfa_required"
	ErrorCodeLoginFailed    = "login_failed"
	ErrorCodeRateLimited    = "rate_limited"
	ErrorCodeTimeout        = "timeout"
	ErrorCodeProvisioning   = "provisioning_failed"
	ErrorCodeNavigation     = "navigation_failed"
	ErrorCodeStorage        = "storage_unavailable"
	ErrorCodeInternal       = "internal_error"
)

// APIError is the structured error response from the service.
type APIError struct {
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`

	// Code is the machine-readable error code.
	Code string `json:"error"`

	// Description is a human-readable description of the error.
	Description string `json:"error_description"`

	// RetryAfter is the server's Retry-After hint in seconds, when present.
	RetryAfter int `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// MFARequired reports whether the service is asking for a resubmission with a
// one-time code.
func (e *APIError) MFARequired() bool { return e.Code == ErrorCodeMFARequired }

// Retryable reports whether repeating the same request may succeed.
func (e *APIError) Retryable() bool {
	switch e.Code {
	case ErrorCodeRateLimited, ErrorCodeTimeout, ErrorCodeProvisioning,
		ErrorCodeNavigation, ErrorCodeStorage:
		return true
	}
	return false
}

// parseAPIError decodes an error response body. Undecodable bodies become a
// generic error carrying the status code.
func parseAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = ErrorCodeInternal
		apiErr.Description = fmt.Sprintf("unexpected response (status %d)", resp.StatusCode)
	}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			apiErr.RetryAfter = secs
		}
	}
	return apiErr
}
