package processor

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ErrMissingPaymentID is returned when the processor accepts a create request but returns no payment id.
var ErrMissingPaymentID = errors.New("processor returned an outbound payment without an id")

// Error is an error response from the processor API.
type Error struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("processor error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("processor error %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether repeating the request could succeed. Client errors other than
// timeouts, idempotency conflicts and rate limits are permanent.
func (e *Error) Retryable() bool {
	switch {
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusConflict,
		e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 400:
		return false
	}
	return true
}

func parseError(statusCode int, body []byte) *Error {
	var envelope struct {
		Error *Error `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.StatusCode = statusCode
		if envelope.Error.Message == "" {
			envelope.Error.Message = http.StatusText(statusCode)
		}
		return envelope.Error
	}
	return &Error{StatusCode: statusCode, Message: http.StatusText(statusCode)}
}

// IsRetryable reports whether err from a processor call is worth retrying. Transport failures
// and anything that is not a permanent API error are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}
