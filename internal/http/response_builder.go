// Package http serves the budget API: authentication, period lifecycle,
// line items, categories, invoices and a websocket feed of period state.
//
// This file implements the builder used for every JSON response.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"budgetbuddy/internal/core"
	"budgetbuddy/internal/identity"
	"budgetbuddy/internal/lifecycle"
	"budgetbuddy/internal/ports"
	"budgetbuddy/internal/store"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// errorBody is the payload of every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *JSONResponseBuilder) JSON(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	data, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"encoding failed"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(data)
}

// ErrorResponse creates a standard JSON error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).JSON(errorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// ConflictError creates a 409 Conflict error response.
func ConflictError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusConflict, message)
}

// UnauthorizedError creates a 401 Unauthorized error response.
func UnauthorizedError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, message)
}

// ServiceUnavailableError creates a 503 response asking the client to retry.
func ServiceUnavailableError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusServiceUnavailable, message).Header("Retry-After", "1")
}

var validationErrors = []error{
	core.ErrInvalidDate, core.ErrInvalidAmount,
	core.ErrEmptyCategory, core.ErrEmptyName, core.ErrInvalidCategory,
	core.ErrInvalidPeriodRange, core.ErrZeroDate,
	identity.ErrInvalidEmail, identity.ErrWeakPassword,
}

// ErrorFor maps a domain error to its response. Unknown errors become a
// 500 that does not leak the error text.
func ErrorFor(err error) *JSONResponseBuilder {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return UnprocessableEntityError(err.Error())
		}
	}
	switch {
	case errors.Is(err, lifecycle.ErrNoCurrentPeriod), errors.Is(err, lifecycle.ErrActivePeriod):
		return ConflictError(err.Error())
	case errors.Is(err, lifecycle.ErrItemNotFound), errors.Is(err, ports.ErrNotFound):
		return NotFoundError("not found")
	case errors.Is(err, store.ErrDuplicateCategory), errors.Is(err, identity.ErrEmailTaken):
		return ConflictError(err.Error())
	case errors.Is(err, store.ErrDefaultCategory):
		return ErrorResponse(http.StatusForbidden, err.Error())
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, ports.ErrNotAuthenticated):
		return UnauthorizedError(err.Error())
	case errors.Is(err, lifecycle.ErrClosed):
		return ServiceUnavailableError("session is restarting, retry")
	case errors.Is(err, lifecycle.ErrSaveFailed), errors.Is(err, lifecycle.ErrArchiveFailed):
		return ServiceUnavailableError(err.Error())
	default:
		return InternalServerError("internal error")
	}
}
