package demogen

import (
	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/shopspring/decimal"
)

// Metric names used in verification reports and patch diffs.
const (
	MetricLeads      = "leadsCreated"
	MetricContacts   = "contactsCreated"
	MetricCompanies  = "companiesCreated"
	MetricDeals      = "dealsCreated"
	MetricWonCount   = "closedWonCount"
	MetricWonValue   = "closedWonValue"
	MetricPipeline   = "pipelineAddedValue"
	MetricActivities = "activitiesCreated"
)

// CheckCount passes when actual is within tol of target.
func CheckCount(metric string, target, actual, tol int64) models.MetricCheck {
	delta := actual - target
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	c := models.MetricCheck{
		Metric: metric,
		Target: decimal.NewFromInt(target),
		Actual: decimal.NewFromInt(actual),
		Delta:  decimal.NewFromInt(delta),
		Passed: abs <= tol,
	}
	if target != 0 {
		c.DeltaPc = pct(c.Delta, c.Target)
	}
	return c
}

// CheckValue passes when actual is within the fractional tol of target; a zero target
// passes only on a zero actual. With constrained unset the generator kept raw values, so
// the check is skipped.
func CheckValue(metric string, target, actual decimal.Decimal, tol float64, constrained bool) models.MetricCheck {
	delta := actual.Sub(target)
	c := models.MetricCheck{Metric: metric, Target: target, Actual: actual, Delta: delta}
	if !constrained {
		c.Skipped = true
		return c
	}
	if target.IsZero() {
		c.Passed = actual.IsZero()
		return c
	}
	c.DeltaPc = pct(delta, target)
	c.Passed = !delta.Abs().Div(target.Abs()).GreaterThan(decimal.NewFromFloat(tol))
	return c
}

// freeValues reports which value metrics of t were left to raw deal draws: a zero value
// target over deals that exist.
func freeValues(t models.MonthlyMetricTargets) (won, pipeline bool) {
	return t.ClosedWonValue.IsZero() && t.ClosedWonCount > 0,
		t.PipelineAddedValue.IsZero() && t.DealsCreated > 0
}

func pct(delta, target decimal.Decimal) float64 {
	return delta.Div(target).Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
}

func checkMonth(t models.MonthlyMetricTargets, a models.MonthMetrics, tol models.ToleranceConfig, freeWon, freePipeline bool) []models.MetricCheck {
	return []models.MetricCheck{
		CheckCount(MetricLeads, t.LeadsCreated, a.LeadsCreated, tol.CountTolerance),
		CheckCount(MetricContacts, t.ContactsCreated, a.ContactsCreated, tol.CountTolerance),
		CheckCount(MetricCompanies, t.CompaniesCreated, a.CompaniesCreated, tol.CountTolerance),
		CheckCount(MetricDeals, t.DealsCreated, a.DealsCreated, tol.CountTolerance),
		CheckCount(MetricWonCount, t.ClosedWonCount, a.ClosedWonCount, tol.CountTolerance),
		CheckValue(MetricWonValue, t.ClosedWonValue, a.ClosedWonValue, tol.ValueTolerance, !freeWon),
		CheckValue(MetricPipeline, t.PipelineAddedValue, a.PipelineAddedValue, tol.ValueTolerance, !freePipeline),
	}
}

func allPassed(checks []models.MetricCheck) bool {
	for _, c := range checks {
		if !c.Passed && !c.Skipped {
			return false
		}
	}
	return true
}

// Verify compares actual metrics by source month with the targets, per month and in
// aggregate. Months without actuals count as zero.
func Verify(targets []models.MonthlyTarget, actuals map[string]models.MonthMetrics, tol models.ToleranceConfig) models.VerificationReport {
	report := models.VerificationReport{Passed: true, Tolerance: tol}
	var total models.MonthMetrics
	var anyFreeWon, anyFreePipeline bool
	for _, m := range targets {
		a := actuals[m.Month]
		a.Month = m.Month
		total = total.Add(a)
		freeWon, freePipeline := freeValues(m.Targets)
		anyFreeWon = anyFreeWon || freeWon
		anyFreePipeline = anyFreePipeline || freePipeline
		checks := checkMonth(m.Targets, a, tol, freeWon, freePipeline)
		mv := models.MonthVerification{Month: m.Month, Checks: checks, Passed: allPassed(checks)}
		report.Passed = report.Passed && mv.Passed
		report.Months = append(report.Months, mv)
	}
	// one unconstrained month leaves the sum unconstrained too
	report.Aggregate = checkMonth(SumTargets(targets), total, tol, anyFreeWon, anyFreePipeline)
	report.Passed = report.Passed && allPassed(report.Aggregate)
	return report
}
