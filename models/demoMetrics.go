package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MonthMetrics are the reported CRM KPIs for one month.
type MonthMetrics struct {
	Month              string          `json:"month"`
	LeadsCreated       int64           `json:"leadsCreated"`
	ContactsCreated    int64           `json:"contactsCreated"`
	CompaniesCreated   int64           `json:"companiesCreated"`
	DealsCreated       int64           `json:"dealsCreated"`
	ClosedWonCount     int64           `json:"closedWonCount"`
	ClosedWonValue     decimal.Decimal `json:"closedWonValue"`
	PipelineAddedValue decimal.Decimal `json:"pipelineAddedValue"`
	ActivitiesCreated  int64           `json:"activitiesCreated"`
}

// Add returns the field-wise sum of m and o, keeping m's month.
func (m MonthMetrics) Add(o MonthMetrics) MonthMetrics {
	m.LeadsCreated += o.LeadsCreated
	m.ContactsCreated += o.ContactsCreated
	m.CompaniesCreated += o.CompaniesCreated
	m.DealsCreated += o.DealsCreated
	m.ClosedWonCount += o.ClosedWonCount
	m.ClosedWonValue = m.ClosedWonValue.Add(o.ClosedWonValue)
	m.PipelineAddedValue = m.PipelineAddedValue.Add(o.PipelineAddedValue)
	m.ActivitiesCreated += o.ActivitiesCreated
	return m
}

// ApplyOverride adds every set field of o to the base metrics.
func (m MonthMetrics) ApplyOverride(o MetricOverride) MonthMetrics {
	if o.ContactsCreated != nil {
		m.ContactsCreated += *o.ContactsCreated
	}
	if o.CompaniesCreated != nil {
		m.CompaniesCreated += *o.CompaniesCreated
	}
	if o.DealsCreated != nil {
		m.DealsCreated += *o.DealsCreated
	}
	if o.ClosedWonCount != nil {
		m.ClosedWonCount += *o.ClosedWonCount
	}
	if o.ClosedWonValue != nil {
		m.ClosedWonValue = m.ClosedWonValue.Add(*o.ClosedWonValue)
	}
	if o.ActivitiesCreated != nil {
		m.ActivitiesCreated += *o.ActivitiesCreated
	}
	return m
}

// FoldOverrides returns base with the overrides of matching months applied.
func FoldOverrides(base []MonthMetrics, overrides []MetricOverride) []MonthMetrics {
	byMonth := make(map[string]MetricOverride, len(overrides))
	for _, o := range overrides {
		byMonth[o.Month] = o
	}
	out := make([]MonthMetrics, len(base))
	for i, m := range base {
		if o, ok := byMonth[m.Month]; ok {
			m = m.ApplyOverride(o)
		}
		out[i] = m
	}
	return out
}

const MonthLayout = "2006-01"

// ParseMonth parses a YYYY-MM key.
func ParseMonth(month string) (time.Time, error) {
	if len(month) != len(MonthLayout) {
		return time.Time{}, fmt.Errorf("month %q is not YYYY-MM", month)
	}
	t, err := time.Parse(MonthLayout, month)
	if err != nil {
		return time.Time{}, fmt.Errorf("month %q is not YYYY-MM", month)
	}
	return t, nil
}

// MonthBounds returns [start, end) of month in loc.
func MonthBounds(month string, loc *time.Location) (time.Time, time.Time, error) {
	t, err := ParseMonth(month)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0), nil
}

// MonthKey formats t as YYYY-MM in its own location.
func MonthKey(t time.Time) string {
	return t.Format(MonthLayout)
}

// MaxMonthSpan caps plans and month ranges.
const MaxMonthSpan = 60

// MonthRange lists every month key from start to end inclusive. Ranges longer than
// MaxMonthSpan are rejected.
func MonthRange(start, end string) ([]string, error) {
	s, err := ParseMonth(start)
	if err != nil {
		return nil, err
	}
	e, err := ParseMonth(end)
	if err != nil {
		return nil, err
	}
	if e.Before(s) {
		return nil, fmt.Errorf("month range %s..%s is reversed", start, end)
	}
	if span := (e.Year()-s.Year())*12 + int(e.Month()-s.Month()) + 1; span > MaxMonthSpan {
		return nil, fmt.Errorf("month range %s..%s spans %d months, at most %d allowed", start, end, span, MaxMonthSpan)
	}
	var out []string
	for t := s; !t.After(e); t = t.AddDate(0, 1, 0) {
		out = append(out, MonthKey(t))
	}
	return out, nil
}
