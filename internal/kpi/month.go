package kpi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrBadMonth = errors.New("month must be YYYY-MM")

type Month struct {
	Year  int
	Month int
}

// ParseMonth accepts "YYYY-MM" with a year in 2020..2100.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	if len(s) != 7 || s[4] != '-' {
		return Month{}, ErrBadMonth
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return Month{}, ErrBadMonth
	}
	m, err := strconv.Atoi(s[5:])
	if err != nil {
		return Month{}, ErrBadMonth
	}
	if y < 2020 || y > 2100 || m < 1 || m > 12 {
		return Month{}, ErrBadMonth
	}
	return Month{Year: y, Month: m}, nil
}

// Range returns the half-open [start, end) date prefixes of the month.
func (m Month) Range() (string, string) {
	start := fmt.Sprintf("%04d-%02d-01", m.Year, m.Month)
	if m.Month == 12 {
		return start, fmt.Sprintf("%04d-01-01", m.Year+1)
	}
	return start, fmt.Sprintf("%04d-%02d-01", m.Year, m.Month+1)
}

func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, m.Month) }
