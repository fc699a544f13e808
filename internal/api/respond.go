// Package api provides the shared response-writing helpers used by all
// HTTP handlers. Every error leaving the service goes through this package
// so the wire shape ({error:{code,message,details?}}) stays uniform.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/lotwise/lotwise/internal/domain"
)

type errorBody struct {
	Error domain.APIError `json:"error"`
}

type quotaErrorBody struct {
	Error domain.APIError  `json:"error"`
	Usage domain.UsageInfo `json:"usage"`
}

// JSON writes v as a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes an error response with the standard body shape.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, errorBody{Error: domain.APIError{Code: code, Message: message}})
}

// ErrorDetails writes an error response carrying a details string.
func ErrorDetails(w http.ResponseWriter, status int, code, message, details string) {
	JSON(w, status, errorBody{Error: domain.APIError{Code: code, Message: message, Details: details}})
}

// QuotaError writes a 402 response with the caller's usage snapshot so
// clients can render the remaining balance next to the error.
func QuotaError(w http.ResponseWriter, code, message string, usage domain.UsageInfo) {
	JSON(w, http.StatusPaymentRequired, quotaErrorBody{
		Error: domain.APIError{Code: code, Message: message},
		Usage: usage,
	})
}

// RateLimited writes a 429 response with a Retry-After header.
func RateLimited(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	Error(w, http.StatusTooManyRequests, domain.ErrCodeRateLimited, "rate limit exceeded, slow down")
}
