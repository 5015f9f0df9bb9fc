// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for decoding and validating JSON request
// bodies into domain values.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"budgetbuddy/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

var errEmptyBody = errors.New("request body is empty")

// decodeJSON reads one JSON object from r into dst. Unknown fields and
// trailing data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errEmptyBody
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		default:
			return fmt.Errorf("invalid JSON: %w", err)
		}
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// periodRequest is the body of period creation and rollover.
type periodRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

func (p periodRequest) parse() (start, end core.Date, err error) {
	if start, err = core.ParseDate(sanitizeInput(p.StartDate)); err != nil {
		return core.Date{}, core.Date{}, fmt.Errorf("invalid startDate: %w", err)
	}
	if end, err = core.ParseDate(sanitizeInput(p.EndDate)); err != nil {
		return core.Date{}, core.Date{}, fmt.Errorf("invalid endDate: %w", err)
	}
	return start, end, nil
}

// lineItemRequest is the body of income and expense creation. Amount is a
// decimal string such as "12.50" or "12,50". Fixed only applies to expenses.
type lineItemRequest struct {
	Amount   string `json:"amount"`
	Category string `json:"category"`
	Fixed    bool   `json:"fixed"`
}

func (l lineItemRequest) parse() (core.Money, string, error) {
	amount, err := core.ParseMoney(sanitizeInput(l.Amount))
	if err != nil {
		return core.Money{}, "", err
	}
	category := sanitizeInput(l.Category)
	if category == "" {
		return core.Money{}, "", core.ErrEmptyCategory
	}
	return amount, category, nil
}

func (l lineItemRequest) income() (core.Income, error) {
	amount, category, err := l.parse()
	if err != nil {
		return core.Income{}, err
	}
	return core.Income{Amount: amount, Category: category}, nil
}

func (l lineItemRequest) expense() (core.Expense, error) {
	amount, category, err := l.parse()
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{Amount: amount, Category: category, Fixed: l.Fixed}, nil
}

type categoryRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type invoiceRequest struct {
	Amount     string `json:"amount"`
	Category   string `json:"category"`
	ExpiryDate string `json:"expiryDate"`
}

func (i invoiceRequest) parse() (core.Invoice, error) {
	amount, err := core.ParseMoney(sanitizeInput(i.Amount))
	if err != nil {
		return core.Invoice{}, err
	}
	expiry, err := core.ParseDate(sanitizeInput(i.ExpiryDate))
	if err != nil {
		return core.Invoice{}, fmt.Errorf("invalid expiryDate: %w", err)
	}
	inv := core.Invoice{
		Amount:     amount,
		Category:   sanitizeInput(i.Category),
		ExpiryDate: expiry,
	}
	return inv, inv.Validate()
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// parseCategoryType accepts the stored type names case-insensitively.
func parseCategoryType(s string) (core.CategoryType, error) {
	t := core.CategoryType(strings.ToLower(sanitizeInput(s)))
	if !t.Valid() {
		return "", core.ErrInvalidCategory
	}
	return t, nil
}
