package http

import (
	"budgetbuddy/internal/core"
	"budgetbuddy/internal/ports"
)

// Amounts travel as integer cents plus a display string.

type moneyDTO struct {
	Cents     int64  `json:"cents"`
	Formatted string `json:"formatted"`
}

type incomeDTO struct {
	ID       string   `json:"id"`
	Amount   moneyDTO `json:"amount"`
	Category string   `json:"category"`
}

type expenseDTO struct {
	ID       string   `json:"id"`
	Amount   moneyDTO `json:"amount"`
	Category string   `json:"category"`
	Fixed    bool     `json:"fixed"`
}

type categoryAmountDTO struct {
	Name   string   `json:"name"`
	Amount moneyDTO `json:"amount"`
}

type summaryDTO struct {
	TotalIncome   moneyDTO            `json:"totalIncome"`
	TotalFixed    moneyDTO            `json:"totalFixed"`
	TotalVariable moneyDTO            `json:"totalVariable"`
	Remaining     moneyDTO            `json:"remaining"`
	ByCategory    []categoryAmountDTO `json:"byCategory"`
}

type periodDTO struct {
	ID               string       `json:"id"`
	StartDate        string       `json:"startDate"`
	EndDate          string       `json:"endDate"`
	Expired          bool         `json:"expired"`
	ArchivedAt       string       `json:"archivedAt,omitempty"`
	Incomes          []incomeDTO  `json:"incomes"`
	FixedExpenses    []expenseDTO `json:"fixedExpenses"`
	VariableExpenses []expenseDTO `json:"variableExpenses"`
	Summary          summaryDTO   `json:"summary"`
}

// currentDTO wraps the current period so "none" is an explicit null.
type currentDTO struct {
	Period *periodDTO `json:"period"`
}

type historyDTO struct {
	Periods []periodDTO `json:"periods"`
}

type categoryDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Default bool   `json:"default"`
}

type invoiceDTO struct {
	ID         string   `json:"id"`
	Amount     moneyDTO `json:"amount"`
	Category   string   `json:"category"`
	ExpiryDate string   `json:"expiryDate"`
	Processed  bool     `json:"processed"`
}

type userDTO struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type tokenDTO struct {
	Token     string  `json:"token"`
	ExpiresAt string  `json:"expiresAt"`
	User      userDTO `json:"user"`
}

// stateDTO is one websocket frame. Only the field that changed is set.
type stateDTO struct {
	Type       string      `json:"type"`
	Current    *periodDTO  `json:"current,omitempty"`
	Historical []periodDTO `json:"historical,omitempty"`
	Loading    *bool       `json:"loading,omitempty"`
}

func toMoneyDTO(m core.Money) moneyDTO {
	return moneyDTO{Cents: m.Cents, Formatted: formatEuros(m)}
}

func toExpenseDTOs(in []core.Expense) []expenseDTO {
	out := make([]expenseDTO, 0, len(in))
	for _, e := range in {
		out = append(out, expenseDTO{ID: e.ID, Amount: toMoneyDTO(e.Amount), Category: e.Category, Fixed: e.Fixed})
	}
	return out
}

func toPeriodDTO(p core.BudgetPeriod) periodDTO {
	incomes := make([]incomeDTO, 0, len(p.Incomes))
	for _, in := range p.Incomes {
		incomes = append(incomes, incomeDTO{ID: in.ID, Amount: toMoneyDTO(in.Amount), Category: in.Category})
	}

	s := p.Summary()
	byCat := make([]categoryAmountDTO, 0, len(s.ByCategory))
	for _, c := range s.ByCategory {
		byCat = append(byCat, categoryAmountDTO{Name: c.Name, Amount: toMoneyDTO(c.Amount)})
	}

	return periodDTO{
		ID:               p.ID,
		StartDate:        p.StartDate.String(),
		EndDate:          p.EndDate.String(),
		Expired:          p.Expired,
		ArchivedAt:       formatTimestamp(p.ArchivedAt),
		Incomes:          incomes,
		FixedExpenses:    toExpenseDTOs(p.FixedExpenses),
		VariableExpenses: toExpenseDTOs(p.VariableExpenses),
		Summary: summaryDTO{
			TotalIncome:   toMoneyDTO(s.TotalIncome),
			TotalFixed:    toMoneyDTO(s.TotalFixed),
			TotalVariable: toMoneyDTO(s.TotalVariable),
			Remaining:     toMoneyDTO(s.Remaining),
			ByCategory:    byCat,
		},
	}
}

func toCurrentDTO(p *core.BudgetPeriod) currentDTO {
	if p == nil {
		return currentDTO{}
	}
	dto := toPeriodDTO(*p)
	return currentDTO{Period: &dto}
}

func toPeriodDTOs(list []core.BudgetPeriod) []periodDTO {
	out := make([]periodDTO, 0, len(list))
	for _, p := range list {
		out = append(out, toPeriodDTO(p))
	}
	return out
}

func toCategoryDTOs(list []core.Category) []categoryDTO {
	out := make([]categoryDTO, 0, len(list))
	for _, c := range list {
		out = append(out, categoryDTO{
			ID:      c.ID,
			Name:    c.Name,
			Type:    string(c.Type),
			Default: core.IsDefaultCategoryID(c.ID),
		})
	}
	return out
}

func toInvoiceDTO(inv core.Invoice) invoiceDTO {
	return invoiceDTO{
		ID:         inv.ID,
		Amount:     toMoneyDTO(inv.Amount),
		Category:   inv.Category,
		ExpiryDate: inv.ExpiryDate.String(),
		Processed:  inv.Processed,
	}
}

func toUserDTO(u ports.User) userDTO {
	return userDTO{ID: u.ID, Email: u.Email}
}
