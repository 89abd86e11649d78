// Package response writes the JSON envelope every API endpoint returns:
// {"data": ..., "error": null} or {"data": null, "error": {...}}.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/agentstation/seatwatch/pkg/errors"
)

// Response is the envelope.
type Response struct {
	Data  any    `json:"data"`
	Error *Error `json:"error"`
}

// Error is the error half of the envelope. Code is one of the constants
// below; Details is safe to show to API clients.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error codes.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeNotFound     = "NOT_FOUND"
	CodeRateLimited  = "RATE_LIMITED"
	CodeInternal     = "INTERNAL_ERROR"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
)

// JSON writes resp with status.
func JSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; an encoding error cannot be reported.
	_ = json.NewEncoder(w).Encode(resp)
}

func fail(w http.ResponseWriter, status int, code, message, details string) {
	JSON(w, status, Response{Error: &Error{Code: code, Message: message, Details: details}})
}

// OK writes data with 200.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Response{Data: data})
}

// Created writes data with 201.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, Response{Data: data})
}

// NoContent writes a bare 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// BadRequest writes a 400.
func BadRequest(w http.ResponseWriter, message, details string) {
	fail(w, http.StatusBadRequest, CodeBadRequest, message, details)
}

// Unauthorized writes a 401.
func Unauthorized(w http.ResponseWriter, message, details string) {
	fail(w, http.StatusUnauthorized, CodeUnauthorized, message, details)
}

// RateLimited writes a 429.
func RateLimited(w http.ResponseWriter, details string) {
	fail(w, http.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", details)
}

// ServiceUnavailable writes a 503.
func ServiceUnavailable(w http.ResponseWriter, details string) {
	fail(w, http.StatusServiceUnavailable, CodeUnavailable, "Service unavailable", details)
}

// InternalError writes a 500 without err's text, which may name database
// paths or credentials. Callers log err themselves.
func InternalError(w http.ResponseWriter, _ error) {
	fail(w, http.StatusInternalServerError, CodeInternal, "Internal server error", "")
}

// FromError maps store and validation errors to a status: missing
// profiles and subscriptions are 404, bad input is 400, an unreachable
// catalog source is 503 and anything else is 500.
func FromError(w http.ResponseWriter, err error) {
	var nf *errors.NotFoundError
	var ve *errors.ValidationError
	switch {
	case errors.As(err, &nf):
		fail(w, http.StatusNotFound, CodeNotFound, nf.Error(), "")
	case errors.As(err, &ve):
		BadRequest(w, ve.Error(), "")
	case errors.IsRateLimited(err):
		RateLimited(w, err.Error())
	case errors.IsUnavailable(err):
		ServiceUnavailable(w, err.Error())
	default:
		InternalError(w, err)
	}
}
