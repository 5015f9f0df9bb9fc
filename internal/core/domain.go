package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	IncomeCategory          CategoryType = "income"
	FixedExpenseCategory    CategoryType = "fixed_expense"
	VariableExpenseCategory CategoryType = "variable_expense"
)

// DateLayout is the calendar-date layout used on the wire and in storage.
const DateLayout = "2006-01-02"

type (
	CategoryType string

	// Date is a calendar date. Time of day is not significant.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Category struct {
		ID   string
		Name string
		Type CategoryType
	}

	Income struct {
		ID       string
		Amount   Money
		Category string
	}

	Expense struct {
		ID       string
		Amount   Money
		Category string
		Fixed    bool
	}

	Invoice struct {
		ID         string
		Amount     Money
		Category   string
		Processed  bool
		ExpiryDate Date
	}

	// BudgetPeriod is one budgeting interval. StartDate and EndDate are inclusive.
	BudgetPeriod struct {
		ID               string
		StartDate        Date
		EndDate          Date
		Incomes          []Income
		FixedExpenses    []Expense
		VariableExpenses []Expense
		Expired          bool
		ArchivedAt       time.Time // zero while active
	}
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyCategory      = errors.New("empty category")
	ErrEmptyName          = errors.New("empty name")
	ErrInvalidCategory    = errors.New("invalid category type")
	ErrInvalidPeriodRange = errors.New("start date is after end date")
	ErrZeroDate           = errors.New("date cannot be zero")
)

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// NewDate creates a Date at local midnight.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)}
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	return Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())}
}

// ParseDate parses a YYYY-MM-DD string as a local calendar date. Days and
// months out of range, such as 2025-02-30, are rejected.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	t, err := time.ParseInLocation(DateLayout, s, time.Local)
	if err != nil {
		return Date{}, fmt.Errorf("%w %q: want YYYY-MM-DD", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	return nil
}

// Before compares calendar dates only.
func (d Date) Before(other Date) bool {
	return d.key() < other.key()
}

// Equal compares calendar dates only.
func (d Date) Equal(other Date) bool {
	return d.key() == other.key()
}

func (d Date) key() int {
	y, m, day := d.Date()
	return y*10000 + int(m)*100 + day
}

// Today returns local midnight of the day now falls on.
func Today(now time.Time) Date {
	return DateOf(now)
}

// ValidatePeriodRange rejects zero dates and start dates after end dates.
func ValidatePeriodRange(start, end Date) error {
	if err := start.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}
	if err := end.Validate(); err != nil {
		return errors.New("invalid end date: " + err.Error())
	}
	if end.Before(start) {
		return ErrInvalidPeriodRange
	}
	return nil
}

func (t CategoryType) Valid() bool {
	switch t {
	case IncomeCategory, FixedExpenseCategory, VariableExpenseCategory:
		return true
	default:
		return false
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	if !c.Type.Valid() {
		return ErrInvalidCategory
	}
	return nil
}

func (i Income) Validate() error {
	if err := i.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(i.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (inv Invoice) Validate() error {
	if err := inv.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(inv.Category) == "" {
		return ErrEmptyCategory
	}
	if err := inv.ExpiryDate.Validate(); err != nil {
		return errors.New("invalid expiry date: " + err.Error())
	}
	return nil
}

// NewBudgetPeriod builds an active period with empty line-item lists.
func NewBudgetPeriod(id string, start, end Date) BudgetPeriod {
	return BudgetPeriod{
		ID:               id,
		StartDate:        start,
		EndDate:          end,
		Incomes:          []Income{},
		FixedExpenses:    []Expense{},
		VariableExpenses: []Expense{},
	}
}

// IsExpired reports whether EndDate is strictly before local midnight of now.
func (p BudgetPeriod) IsExpired(now time.Time) bool {
	end := time.Date(p.EndDate.Year(), p.EndDate.Month(), p.EndDate.Day(), 0, 0, 0, 0, now.Location())
	return end.Before(Today(now).Time)
}

// Clone returns a deep copy so callers can mutate line items freely.
func (p BudgetPeriod) Clone() BudgetPeriod {
	out := p
	out.Incomes = append([]Income{}, p.Incomes...)
	out.FixedExpenses = append([]Expense{}, p.FixedExpenses...)
	out.VariableExpenses = append([]Expense{}, p.VariableExpenses...)
	return out
}

// AddIncome appends an income, assigning an id when missing.
func (p *BudgetPeriod) AddIncome(i Income) Income {
	if i.ID == "" {
		i.ID = NewID()
	}
	p.Incomes = append(p.Incomes, i)
	return i
}

// AddExpense appends to the fixed or variable list based on the Fixed flag.
func (p *BudgetPeriod) AddExpense(e Expense) Expense {
	if e.ID == "" {
		e.ID = NewID()
	}
	if e.Fixed {
		p.FixedExpenses = append(p.FixedExpenses, e)
	} else {
		p.VariableExpenses = append(p.VariableExpenses, e)
	}
	return e
}

// RemoveLineItem deletes the income or expense with the given id.
// It reports whether anything was removed.
func (p *BudgetPeriod) RemoveLineItem(id string) bool {
	for i, in := range p.Incomes {
		if in.ID == id {
			p.Incomes = append(p.Incomes[:i], p.Incomes[i+1:]...)
			return true
		}
	}
	for i, e := range p.FixedExpenses {
		if e.ID == id {
			p.FixedExpenses = append(p.FixedExpenses[:i], p.FixedExpenses[i+1:]...)
			return true
		}
	}
	for i, e := range p.VariableExpenses {
		if e.ID == id {
			p.VariableExpenses = append(p.VariableExpenses[:i], p.VariableExpenses[i+1:]...)
			return true
		}
	}
	return false
}
