package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"budgetbuddy/internal/core"
	"budgetbuddy/internal/ports"
)

// Record field names.
const (
	fieldID               = "id"
	fieldStartDate        = "startDate"
	fieldEndDate          = "endDate"
	fieldIncomes          = "incomes"
	fieldFixedExpenses    = "fixedExpenses"
	fieldVariableExpenses = "variableExpenses"
	fieldExpired          = "expired"
	fieldArchivedAt       = "archivedAt"
	fieldAmountCents      = "amountCents"
	fieldCategory         = "category"
	fieldFixed            = "fixed"
	fieldName             = "name"
	fieldType             = "type"
	fieldProcessed        = "processed"
	fieldExpiryDate       = "expiryDate"
)

var ErrMalformedRecord = errors.New("malformed record")

// EncodePeriod flattens p into a record of primitives and arrays.
func EncodePeriod(p core.BudgetPeriod) ports.Record {
	rec := ports.Record{
		fieldID:               p.ID,
		fieldStartDate:        p.StartDate.String(),
		fieldEndDate:          p.EndDate.String(),
		fieldIncomes:          encodeIncomes(p.Incomes),
		fieldFixedExpenses:    encodeExpenses(p.FixedExpenses),
		fieldVariableExpenses: encodeExpenses(p.VariableExpenses),
		fieldExpired:          p.Expired,
	}
	if !p.ArchivedAt.IsZero() {
		rec[fieldArchivedAt] = p.ArchivedAt.UnixMilli()
	}
	return rec
}

// DecodePeriod rebuilds a period. Missing optional fields take zero values;
// a missing id or unparseable bounds yield ErrMalformedRecord.
func DecodePeriod(rec ports.Record) (core.BudgetPeriod, error) {
	id := stringField(rec, fieldID)
	if id == "" {
		return core.BudgetPeriod{}, fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}
	start, err := core.ParseDate(stringField(rec, fieldStartDate))
	if err != nil {
		return core.BudgetPeriod{}, fmt.Errorf("%w: start date: %v", ErrMalformedRecord, err)
	}
	end, err := core.ParseDate(stringField(rec, fieldEndDate))
	if err != nil {
		return core.BudgetPeriod{}, fmt.Errorf("%w: end date: %v", ErrMalformedRecord, err)
	}

	p := core.NewBudgetPeriod(id, start, end)
	p.Incomes = decodeIncomes(rec[fieldIncomes])
	p.FixedExpenses = decodeExpenses(rec[fieldFixedExpenses], true)
	p.VariableExpenses = decodeExpenses(rec[fieldVariableExpenses], false)
	p.Expired = boolField(rec, fieldExpired)
	if ms, ok := int64Value(rec[fieldArchivedAt]); ok && ms > 0 {
		p.ArchivedAt = time.UnixMilli(ms)
	}
	return p, nil
}

func encodeIncomes(in []core.Income) []any {
	out := make([]any, 0, len(in))
	for _, i := range in {
		out = append(out, map[string]any{
			fieldID:          i.ID,
			fieldAmountCents: i.Amount.Cents,
			fieldCategory:    i.Category,
		})
	}
	return out
}

func encodeExpenses(in []core.Expense) []any {
	out := make([]any, 0, len(in))
	for _, e := range in {
		out = append(out, map[string]any{
			fieldID:          e.ID,
			fieldAmountCents: e.Amount.Cents,
			fieldCategory:    e.Category,
			fieldFixed:       e.Fixed,
		})
	}
	return out
}

func decodeIncomes(v any) []core.Income {
	out := []core.Income{}
	for _, m := range maps(v) {
		cents, _ := int64Value(m[fieldAmountCents])
		out = append(out, core.Income{
			ID:       stringField(m, fieldID),
			Amount:   core.Money{Cents: cents},
			Category: stringField(m, fieldCategory),
		})
	}
	return out
}

// decodeExpenses forces Fixed from the list the item was stored in.
func decodeExpenses(v any, fixed bool) []core.Expense {
	out := []core.Expense{}
	for _, m := range maps(v) {
		cents, _ := int64Value(m[fieldAmountCents])
		out = append(out, core.Expense{
			ID:       stringField(m, fieldID),
			Amount:   core.Money{Cents: cents},
			Category: stringField(m, fieldCategory),
			Fixed:    fixed,
		})
	}
	return out
}

// EncodeCategory flattens a custom category.
func EncodeCategory(c core.Category) ports.Record {
	return ports.Record{
		fieldID:   c.ID,
		fieldName: c.Name,
		fieldType: string(c.Type),
	}
}

func DecodeCategory(rec ports.Record) (core.Category, error) {
	c := core.Category{
		ID:   stringField(rec, fieldID),
		Name: stringField(rec, fieldName),
		Type: core.CategoryType(stringField(rec, fieldType)),
	}
	if c.ID == "" || !c.Type.Valid() {
		return core.Category{}, ErrMalformedRecord
	}
	return c, nil
}

func EncodeInvoice(inv core.Invoice) ports.Record {
	return ports.Record{
		fieldID:          inv.ID,
		fieldAmountCents: inv.Amount.Cents,
		fieldCategory:    inv.Category,
		fieldProcessed:   inv.Processed,
		fieldExpiryDate:  inv.ExpiryDate.String(),
	}
}

func DecodeInvoice(rec ports.Record) (core.Invoice, error) {
	id := stringField(rec, fieldID)
	if id == "" {
		return core.Invoice{}, fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}
	expiry, err := core.ParseDate(stringField(rec, fieldExpiryDate))
	if err != nil {
		return core.Invoice{}, fmt.Errorf("%w: expiry date: %v", ErrMalformedRecord, err)
	}
	cents, _ := int64Value(rec[fieldAmountCents])
	return core.Invoice{
		ID:         id,
		Amount:     core.Money{Cents: cents},
		Category:   stringField(rec, fieldCategory),
		Processed:  boolField(rec, fieldProcessed),
		ExpiryDate: expiry,
	}, nil
}

func maps(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

// int64Value accepts the numeric shapes a record can hold after a JSON round
// trip or before one.
func int64Value(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return int64(math.Round(f)), true
	case float64:
		return int64(math.Round(n)), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
