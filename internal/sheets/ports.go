package sheets

import (
	"context"

	"budgetbuddy/internal/core"
)

// PeriodExporter appends a summary row for an archived period.
type PeriodExporter interface {
	ExportPeriod(ctx context.Context, userID string, p core.BudgetPeriod) (rowRef string, err error)
}

// Header is the column layout ExportPeriod writes.
var Header = []any{"User", "Period", "Start", "End", "Income", "Fixed", "Variable", "Remaining", "Archived At"}

// PeriodRow converts a period to one sheet row. Amounts are euros.
func PeriodRow(userID string, p core.BudgetPeriod) []any {
	s := p.Summary()
	archived := ""
	if !p.ArchivedAt.IsZero() {
		archived = p.ArchivedAt.Format("2006-01-02 15:04")
	}
	return []any{
		userID,
		p.ID,
		p.StartDate.String(),
		p.EndDate.String(),
		s.TotalIncome.Euros(),
		s.TotalFixed.Euros(),
		s.TotalVariable.Euros(),
		s.Remaining.Euros(),
		archived,
	}
}
