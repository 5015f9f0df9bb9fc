package core

var defaultCategoryNames = map[CategoryType][]string{
	IncomeCategory:          {"Salary", "Freelance", "Investments", "Gifts", "Other"},
	FixedExpenseCategory:    {"Rent", "Utilities", "Insurance", "Subscriptions", "Loan", "Internet"},
	VariableExpenseCategory: {"Groceries", "Transport", "Dining", "Entertainment", "Health", "Shopping", "Other"},
}

// DefaultCategories returns the built-in categories for t.
// Default ids are derived from the type and name so they stay stable across calls.
func DefaultCategories(t CategoryType) []Category {
	names := defaultCategoryNames[t]
	out := make([]Category, 0, len(names))
	for _, n := range names {
		out = append(out, Category{ID: "default:" + string(t) + ":" + n, Name: n, Type: t})
	}
	return out
}

// IsDefaultCategoryID reports whether id names a built-in category.
func IsDefaultCategoryID(id string) bool {
	return len(id) > 8 && id[:8] == "default:"
}
