// Package errors defines the coded errors returned by the HTTP API.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is a machine readable error class.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrRateLimited    ErrorCode = "RATE_LIMITED"    // 429
	ErrUpstream       ErrorCode = "UPSTREAM"        // 502
	ErrTimeout        ErrorCode = "TIMEOUT"         // 504
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// APIError is an error with an HTTP status and optional details.
type APIError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error.
func NewInvalidRequest(msg string) *APIError {
	return &APIError{Code: ErrInvalidRequest, Status: http.StatusBadRequest, Message: msg}
}

// NewNotFound creates a 404 error for a missing resource.
func NewNotFound(what string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("not found: %s", what),
		Details: map[string]any{"resource": what},
	}
}

// NewRateLimited creates a 429 error.
func NewRateLimited() *APIError {
	return &APIError{Code: ErrRateLimited, Status: http.StatusTooManyRequests, Message: "too many concurrent requests, try again shortly"}
}

// NewUpstream creates a 502 error for a failing data source.
func NewUpstream(err error) *APIError {
	return &APIError{Code: ErrUpstream, Status: http.StatusBadGateway, Message: messageOf(err, "upstream unavailable")}
}

// NewTimeout creates a 504 error. The body carries "timeout": true.
func NewTimeout(msg string) *APIError {
	return &APIError{
		Code:    ErrTimeout,
		Status:  http.StatusGatewayTimeout,
		Message: msg,
		Details: map[string]any{"timeout": true},
	}
}

// NewInternal creates a 500 error.
func NewInternal(err error) *APIError {
	return &APIError{Code: ErrInternal, Status: http.StatusInternalServerError, Message: messageOf(err, "internal error")}
}

// Is reports whether err is an APIError with the given code.
func Is(err error, code ErrorCode) bool {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// Body renders the JSON error body: {"error": message, "code": code, ...details}.
func (e *APIError) Body() map[string]any {
	body := make(map[string]any, len(e.Details)+2)
	for k, v := range e.Details {
		body[k] = v
	}
	body["error"] = e.Message
	body["code"] = e.Code
	return body
}

func messageOf(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}
