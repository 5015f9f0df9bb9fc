// Package memory is an in-process PeriodExporter for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"budgetbuddy/internal/core"
	ports "budgetbuddy/internal/sheets"
)

type Exporter struct {
	mu   sync.Mutex
	rows [][]any
}

var _ ports.PeriodExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{}
}

// ExportPeriod records the row and returns a synthetic reference.
func (e *Exporter) ExportPeriod(_ context.Context, userID string, p core.BudgetPeriod) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows = append(e.rows, ports.PeriodRow(userID, p))
	return fmt.Sprintf("mem:%d", len(e.rows)), nil
}

// Rows returns a copy of the exported rows.
func (e *Exporter) Rows() [][]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]any, len(e.rows))
	copy(out, e.rows)
	return out
}
