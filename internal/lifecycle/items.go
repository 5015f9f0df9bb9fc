package lifecycle

import (
	"budgetbuddy/internal/core"
	"budgetbuddy/internal/log"
)

// AddIncome appends in to the current period, saves it and republishes.
// The returned income carries the assigned id.
func (m *Manager) AddIncome(in core.Income) (core.Income, *Task) {
	if in.ID == "" {
		in.ID = m.newID()
	}
	if err := in.Validate(); err != nil {
		return in, completedTask(err)
	}
	return in, m.mutateCurrent("add_income", func(p *core.BudgetPeriod) error {
		p.AddIncome(in)
		return nil
	})
}

// AddExpense appends e to the fixed or variable list of the current period.
func (m *Manager) AddExpense(e core.Expense) (core.Expense, *Task) {
	if e.ID == "" {
		e.ID = m.newID()
	}
	if err := e.Validate(); err != nil {
		return e, completedTask(err)
	}
	return e, m.mutateCurrent("add_expense", func(p *core.BudgetPeriod) error {
		p.AddExpense(e)
		return nil
	})
}

// RemoveLineItem deletes an income or expense from the current period.
func (m *Manager) RemoveLineItem(id string) *Task {
	return m.mutateCurrent("remove_line_item", func(p *core.BudgetPeriod) error {
		if !p.RemoveLineItem(id) {
			return ErrItemNotFound
		}
		return nil
	})
}

// mutateCurrent applies edit to a copy of the current period, persists it
// and publishes the copy. Edits are serialized so none is lost.
func (m *Manager) mutateCurrent(op string, edit func(*core.BudgetPeriod) error) *Task {
	t := newTask()
	started := m.spawn(func() {
		m.mutMu.Lock()
		defer m.mutMu.Unlock()

		cur := m.current.Value()
		if cur == nil {
			t.finish(ErrNoCurrentPeriod)
			return
		}
		p := cur.Clone()
		if err := edit(&p); err != nil {
			t.finish(err)
			return
		}
		if !m.store.SaveBudgetPeriod(m.ctx, p) {
			m.logger.ErrorContext(m.ctx, "Failed to save line item change",
				append(periodFields(p), log.FieldOperation, op)...)
			t.finish(ErrSaveFailed)
			return
		}
		m.publishAndWait(t, func() error {
			// An expiry archive by a load may have cleared it meanwhile.
			if now := m.current.Value(); now != nil && now.ID == p.ID {
				m.applyWrite(p)
			}
			return nil
		})
	})
	if !started {
		t.finish(ErrClosed)
	}
	return t
}
