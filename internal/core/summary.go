package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// PeriodSummary is a compact set of totals for one budget period.
type PeriodSummary struct {
	TotalIncome   Money
	TotalFixed    Money
	TotalVariable Money
	Remaining     Money // income minus all expenses, may be negative
	ByCategory    []CategoryAmount
}

// Summary totals the period's line items. Expense categories keep first-seen order.
func (p BudgetPeriod) Summary() PeriodSummary {
	var s PeriodSummary
	for _, in := range p.Incomes {
		s.TotalIncome.Cents += in.Amount.Cents
	}

	byCat := map[string]int{}
	add := func(e Expense) {
		idx, ok := byCat[e.Category]
		if !ok {
			idx = len(s.ByCategory)
			byCat[e.Category] = idx
			s.ByCategory = append(s.ByCategory, CategoryAmount{Name: e.Category})
		}
		s.ByCategory[idx].Amount.Cents += e.Amount.Cents
	}
	for _, e := range p.FixedExpenses {
		s.TotalFixed.Cents += e.Amount.Cents
		add(e)
	}
	for _, e := range p.VariableExpenses {
		s.TotalVariable.Cents += e.Amount.Cents
		add(e)
	}

	s.Remaining.Cents = s.TotalIncome.Cents - s.TotalFixed.Cents - s.TotalVariable.Cents
	return s
}
