package demogen

import (
	"testing"

	"github.com/davidprivate500/gonthia-crm-sub001/models"
)

func TestCheckCountTolerance(t *testing.T) {
	cases := []struct {
		target, actual, tol int64
		pass                bool
	}{
		{100, 100, 0, true},
		{100, 101, 0, false},
		{100, 98, 2, true},
		{100, 97, 2, false},
		{0, 0, 0, true},
	}
	for _, c := range cases {
		got := CheckCount(MetricContacts, c.target, c.actual, c.tol)
		if got.Passed != c.pass {
			t.Fatalf("CheckCount(%d, %d, tol %d).Passed = %v", c.target, c.actual, c.tol, got.Passed)
		}
		if got.Delta.IntPart() != c.actual-c.target {
			t.Fatalf("delta = %s", got.Delta)
		}
	}
}

func TestCheckValueTolerance(t *testing.T) {
	cases := []struct {
		name           string
		target, actual string
		constrained    bool
		pass, skipped  bool
	}{
		{"exact", "100000", "100000", true, true, false},
		{"within half a percent", "100000", "100499.99", true, true, false},
		{"on the boundary", "100000", "100500", true, true, false},
		{"outside", "100000", "100600", true, false, false},
		{"below", "100000", "99000", true, false, false},
		{"zero target zero actual", "0", "0", true, true, false},
		{"zero target non-zero actual", "0", "5000", true, false, false},
		{"unconstrained", "0", "1234.56", false, false, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := CheckValue(MetricWonValue, dec(c.target), dec(c.actual), 0.005, c.constrained)
			if got.Passed != c.pass || got.Skipped != c.skipped {
				t.Fatalf("passed=%v skipped=%v, want %v/%v", got.Passed, got.Skipped, c.pass, c.skipped)
			}
		})
	}
}

func TestVerifyAggregatesAndMissingMonths(t *testing.T) {
	targets := []models.MonthlyTarget{
		month("2025-01", 4, 10, 2, 3, 1, "1000", "3000"),
		month("2025-02", 4, 10, 2, 3, 1, "1000", "3000"),
	}
	actuals := map[string]models.MonthMetrics{
		"2025-01": {LeadsCreated: 4, ContactsCreated: 10, CompaniesCreated: 2, DealsCreated: 3, ClosedWonCount: 1,
			ClosedWonValue: dec("1000"), PipelineAddedValue: dec("3000")},
	}
	report := Verify(targets, actuals, models.DefaultTolerance())
	if report.Passed {
		t.Fatalf("report passed with an empty month")
	}
	if len(report.Months) != 2 || !report.Months[0].Passed || report.Months[1].Passed {
		t.Fatalf("unexpected month results: %+v", report.Months)
	}
	for _, c := range report.Aggregate {
		if c.Metric == MetricContacts && (!c.Target.Equal(dec("20")) || !c.Actual.Equal(dec("10"))) {
			t.Fatalf("aggregate contacts = %+v", c)
		}
	}

	actuals["2025-02"] = actuals["2025-01"]
	if report := Verify(targets, actuals, models.DefaultTolerance()); !report.Passed {
		t.Fatalf("matching actuals failed: %+v", report)
	}
}

func TestVerifySkippedValueDoesNotFail(t *testing.T) {
	targets := []models.MonthlyTarget{month("2025-01", 0, 5, 0, 2, 0, "0", "0")}
	actuals := map[string]models.MonthMetrics{
		"2025-01": {ContactsCreated: 5, DealsCreated: 2, PipelineAddedValue: dec("18000")},
	}
	report := Verify(targets, actuals, models.DefaultTolerance())
	if !report.Passed {
		t.Fatalf("unconstrained pipeline value failed verification: %+v", report.Months[0].Checks)
	}
}

func TestVerifyZeroValueTargetWithoutDealsFails(t *testing.T) {
	targets := []models.MonthlyTarget{month("2025-01", 0, 5, 0, 0, 0, "0", "0")}
	actuals := map[string]models.MonthMetrics{
		"2025-01": {ContactsCreated: 5, ClosedWonValue: dec("5000"), PipelineAddedValue: dec("5000")},
	}
	report := Verify(targets, actuals, models.DefaultTolerance())
	if report.Passed {
		t.Fatalf("value without deals passed verification")
	}
	for _, c := range report.Months[0].Checks {
		if (c.Metric == MetricWonValue || c.Metric == MetricPipeline) && (c.Passed || c.Skipped) {
			t.Fatalf("%s: passed=%v skipped=%v", c.Metric, c.Passed, c.Skipped)
		}
	}
}
