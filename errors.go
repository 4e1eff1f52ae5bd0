package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Machine-readable error codes the API attaches to business-rule denials.
const (
	CodeAccountLocked    = "account_locked"
	CodeEmailNotVerified = "email_not_verified"
)

// APIError is a non-2xx response from the API, decoded into the error
// shape the backend uses: a detail/message string, an optional machine
// code, and optionally a field -> errors mapping for validation failures.
type APIError struct {
	StatusCode     int                 `json:"-"`
	Code           string              `json:"code,omitempty"`
	Detail         string              `json:"detail,omitempty"`
	Msg            string              `json:"message,omitempty"`
	FieldErrors    map[string][]string `json:"errors,omitempty"`
	NonFieldErrors []string            `json:"non_field_errors,omitempty"`
	LockedUntil    string              `json:"locked_until,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message())
}

// Message picks the most specific human-readable string: the first field
// error, then the first non-field error, then detail/message, then a
// generic fallback.
func (e *APIError) Message() string {
	for _, msgs := range e.FieldErrors {
		if len(msgs) > 0 {
			return msgs[0]
		}
	}
	if len(e.NonFieldErrors) > 0 {
		return e.NonFieldErrors[0]
	}
	if e.Detail != "" {
		return e.Detail
	}
	if e.Msg != "" {
		return e.Msg
	}
	return "An unexpected error occurred"
}

func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

func (e *APIError) IsForbidden() bool {
	return e.StatusCode == http.StatusForbidden
}

// IsValidation reports whether the response carried per-field errors.
func (e *APIError) IsValidation() bool {
	return len(e.FieldErrors) > 0
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	// an empty or non-JSON body still classifies by status
	_ = json.Unmarshal(body, apiErr)
	return apiErr
}

// ErrorMessage converts any error from this package into a string fit for
// direct display next to a form control or in a toast.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized:
			return "Authentication failed. Please sign in again."
		case http.StatusForbidden:
			return "Access forbidden. Please try again."
		}
		return apiErr.Message()
	}

	var fieldErrs FieldErrors
	if errors.As(err, &fieldErrs) {
		return fieldErrs.First()
	}

	return err.Error()
}
