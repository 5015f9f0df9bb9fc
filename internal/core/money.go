package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseDecimalToCents converts a positive decimal string to cents.
//
// Dot and comma separators are both accepted. The third fractional digit is
// rounded half-up and anything after it is ignored. Zero, negative and
// malformed values return ErrInvalidAmount.
//
//	ParseDecimalToCents("12,34")  -> 1234
//	ParseDecimalToCents("12.346") -> 1235
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	if strings.Contains(fracPart, ".") {
		return 0, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	if !allDigits(intPart) || !allDigits(fracPart) {
		return 0, ErrInvalidAmount
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}

	var frac int64
	if len(fracPart) > 0 {
		frac = int64(fracPart[0]-'0') * 10
	}
	if len(fracPart) > 1 {
		frac += int64(fracPart[1] - '0')
	}
	if len(fracPart) > 2 && fracPart[2] >= '5' {
		frac++
	}

	cents := iv*100 + frac
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ParseMoney is ParseDecimalToCents returning a Money.
func ParseMoney(s string) (Money, error) {
	c, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: c}, nil
}

// Euros returns the value as a float64 for display only.
func (m Money) Euros() float64 {
	return float64(m.Cents) / 100.0
}

// String formats the amount with two decimals, e.g. "-12.05".
func (m Money) String() string {
	c := m.Cents
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
