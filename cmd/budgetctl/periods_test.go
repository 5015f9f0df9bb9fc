package main

import (
	"testing"

	"budgetbuddy/internal/core"
)

func TestNewPeriodLine(t *testing.T) {
	p := core.BudgetPeriod{
		ID:        "p1",
		StartDate: core.NewDate(2025, 3, 1),
		EndDate:   core.NewDate(2025, 3, 31),
		Incomes:   []core.Income{{ID: "i1", Amount: core.Money{Cents: 200000}, Category: "Salary"}},
		FixedExpenses: []core.Expense{
			{ID: "e1", Amount: core.Money{Cents: 80000}, Category: "Rent", Fixed: true},
		},
		VariableExpenses: []core.Expense{
			{ID: "e2", Amount: core.Money{Cents: 4550}, Category: "Food"},
		},
	}

	got := newPeriodLine(p, "active")

	if got.ID != "p1" || got.State != "active" {
		t.Errorf("id/state = %q/%q", got.ID, got.State)
	}
	if got.StartDate != p.StartDate.String() || got.EndDate != p.EndDate.String() {
		t.Errorf("dates = %s..%s", got.StartDate, got.EndDate)
	}
	if got.Income != "2000.00" {
		t.Errorf("income = %s, want 2000.00", got.Income)
	}
	if got.Expenses != "845.50" {
		t.Errorf("expenses = %s, want 845.50", got.Expenses)
	}
	if got.Remaining != "1154.50" {
		t.Errorf("remaining = %s, want 1154.50", got.Remaining)
	}
}
