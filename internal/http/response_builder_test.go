package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"budgetbuddy/internal/core"
	"budgetbuddy/internal/identity"
	"budgetbuddy/internal/lifecycle"
	"budgetbuddy/internal/ports"
	"budgetbuddy/internal/store"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Custom", "value").
		JSON(map[string]int{"n": 1}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("X-Custom"); got != "value" {
		t.Errorf("X-Custom = %q", got)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"n":1}` {
		t.Errorf("Body = %q", got)
	}
}

func TestJSONResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)

	if w.Code != http.StatusNoContent {
		t.Errorf("Status code = %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Body = %q, want empty", w.Body.String())
	}
	if w.Header().Get("Content-Type") != "" {
		t.Error("Content-Type set on empty response")
	}
}

func TestJSONResponseBuilder_UnencodableBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().JSON(map[string]any{"ch": make(chan int)}).Write(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status code = %d", w.Code)
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		builder *JSONResponseBuilder
		want    int
	}{
		{"bad request", BadRequestError("x"), http.StatusBadRequest},
		{"unprocessable", UnprocessableEntityError("x"), http.StatusUnprocessableEntity},
		{"not found", NotFoundError("x"), http.StatusNotFound},
		{"conflict", ConflictError("x"), http.StatusConflict},
		{"unauthorized", UnauthorizedError("x"), http.StatusUnauthorized},
		{"internal", InternalServerError("x"), http.StatusInternalServerError},
		{"unavailable", ServiceUnavailableError("x"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)
			if w.Code != tt.want {
				t.Errorf("Status code = %d, want %d", w.Code, tt.want)
			}
			if !strings.Contains(w.Body.String(), `"error":"x"`) {
				t.Errorf("Body = %q", w.Body.String())
			}
		})
	}
}

func TestErrorFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{fmt.Errorf("invalid startDate: %w", core.ErrInvalidDate), http.StatusUnprocessableEntity},
		{lifecycle.ErrActivePeriod, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", core.ErrInvalidPeriodRange), http.StatusUnprocessableEntity},
		{identity.ErrWeakPassword, http.StatusUnprocessableEntity},
		{lifecycle.ErrNoCurrentPeriod, http.StatusConflict},
		{lifecycle.ErrItemNotFound, http.StatusNotFound},
		{ports.ErrNotFound, http.StatusNotFound},
		{store.ErrDuplicateCategory, http.StatusConflict},
		{identity.ErrEmailTaken, http.StatusConflict},
		{store.ErrDefaultCategory, http.StatusForbidden},
		{identity.ErrInvalidCredentials, http.StatusUnauthorized},
		{lifecycle.ErrClosed, http.StatusServiceUnavailable},
		{lifecycle.ErrSaveFailed, http.StatusServiceUnavailable},
		{lifecycle.ErrArchiveFailed, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			ErrorFor(tt.err).Write(w)
			if w.Code != tt.want {
				t.Errorf("Status code = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestErrorFor_HidesInternalErrors(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorFor(errors.New("dial tcp 10.0.0.1: refused")).Write(w)
	if strings.Contains(w.Body.String(), "10.0.0.1") {
		t.Errorf("internal error leaked: %s", w.Body.String())
	}
}
