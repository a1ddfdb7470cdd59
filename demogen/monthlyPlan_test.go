package demogen

import (
	"errors"
	"testing"

	"github.com/davidprivate500/gonthia-crm-sub001/models"
)

func month(m string, leads, contacts, companies, deals, won int64, wonValue, pipeline string) models.MonthlyTarget {
	return models.MonthlyTarget{Month: m, Targets: models.MonthlyMetricTargets{
		LeadsCreated:       leads,
		ContactsCreated:    contacts,
		CompaniesCreated:   companies,
		DealsCreated:       deals,
		ClosedWonCount:     won,
		ClosedWonValue:     dec(wonValue),
		PipelineAddedValue: dec(pipeline),
	}}
}

func issuePaths(issues []Issue) map[string]string {
	out := map[string]string{}
	for _, is := range issues {
		out[is.Path] = is.Code
	}
	return out
}

func TestValidateMonthlyPlanValid(t *testing.T) {
	plan := models.MonthlyPlan{PlanVersion: models.MonthlyPlanVersion, Months: []models.MonthlyTarget{
		month("2025-01", 40, 100, 20, 25, 8, "96000", "250000"),
		month("2025-02", 0, 0, 0, 0, 0, "0", "0"),
		month("2025-03", 10, 10, 5, 3, 0, "0", "30000"),
	}}
	if issues := ValidateMonthlyPlan(plan, planNow); len(issues) != 0 {
		t.Fatalf("unexpected issues: %+v", issues)
	}
}

func TestValidateMonthlyPlanIssues(t *testing.T) {
	cases := []struct {
		name string
		plan models.MonthlyPlan
		path string
		code string
	}{
		{
			name: "version",
			plan: models.MonthlyPlan{PlanVersion: 2, Months: []models.MonthlyTarget{month("2025-01", 0, 1, 0, 0, 0, "0", "0")}},
			path: "planVersion", code: "version",
		},
		{
			name: "empty",
			plan: models.MonthlyPlan{PlanVersion: 1},
			path: "months", code: "required",
		},
		{
			name: "format",
			plan: models.MonthlyPlan{PlanVersion: 1, Months: []models.MonthlyTarget{month("2025-1", 0, 1, 0, 0, 0, "0", "0")}},
			path: "months[0].month", code: "format",
		},
		{
			name: "future",
			plan: models.MonthlyPlan{PlanVersion: 1, Months: []models.MonthlyTarget{month("2025-07", 0, 1, 0, 0, 0, "0", "0")}},
			path: "months[0].month", code: "future",
		},
		{
			name: "order",
			plan: models.MonthlyPlan{PlanVersion: 1, Months: []models.MonthlyTarget{
				month("2025-02", 0, 1, 0, 0, 0, "0", "0"),
				month("2025-02", 0, 1, 0, 0, 0, "0", "0"),
			}},
			path: "months[1].month", code: "order",
		},
		{
			name: "negative",
			plan: models.MonthlyPlan{PlanVersion: 1, Months: []models.MonthlyTarget{month("2025-01", -1, 1, 0, 0, 0, "0", "0")}},
			path: "months[0].targets.leadsCreated", code: "gte",
		},
		{
			name: "leads above contacts",
			plan: models.MonthlyPlan{PlanVersion: 1, Months: []models.MonthlyTarget{month("2025-01", 5, 4, 0, 0, 0, "0", "0")}},
			path: "months[0].targets.leadsCreated", code: "lte",
		},
		{
			name: "won above deals",
			plan: models.MonthlyPlan{PlanVersion: 1, Months: []models.MonthlyTarget{month("2025-01", 0, 4, 0, 2, 3, "300", "300")}},
			path: "months[0].targets.closedWonCount", code: "lte",
		},
		{
			name: "won value without wins",
			plan: models.MonthlyPlan{PlanVersion: 1, Months: []models.MonthlyTarget{month("2025-01", 0, 4, 0, 2, 0, "300", "300")}},
			path: "months[0].targets.closedWonValue", code: "requires",
		},
		{
			name: "wins without value",
			plan: models.MonthlyPlan{PlanVersion: 1, Months: []models.MonthlyTarget{month("2025-01", 0, 4, 0, 2, 1, "0", "100")}},
			path: "months[0].targets.closedWonCount", code: "requires",
		},
		{
			name: "pipeline below won",
			plan: models.MonthlyPlan{PlanVersion: 1, Months: []models.MonthlyTarget{month("2025-01", 0, 4, 0, 2, 1, "500", "100")}},
			path: "months[0].targets.pipelineAddedValue", code: "gte",
		},
		{
			name: "pipeline without deals",
			plan: models.MonthlyPlan{PlanVersion: 1, Months: []models.MonthlyTarget{month("2025-01", 0, 4, 0, 0, 0, "0", "100")}},
			path: "months[0].targets.pipelineAddedValue", code: "requires",
		},
		{
			name: "open pipeline without open deals",
			plan: models.MonthlyPlan{PlanVersion: 1, Months: []models.MonthlyTarget{month("2025-01", 0, 10, 0, 4, 4, "40000", "100000")}},
			path: "months[0].targets.pipelineAddedValue", code: "requires",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			paths := issuePaths(ValidateMonthlyPlan(c.plan, planNow))
			if got, ok := paths[c.path]; !ok || got != c.code {
				t.Fatalf("want %s at %s, got %v", c.code, c.path, paths)
			}
		})
	}
}

func TestValidateMonthlyPlanCollectsAll(t *testing.T) {
	plan := models.MonthlyPlan{PlanVersion: 3, Months: []models.MonthlyTarget{
		month("2025-08", 5, 4, 0, 0, 0, "0", "0"),
		month("2025-01", 0, 1, -2, 0, 0, "0", "0"),
	}}
	issues := ValidateMonthlyPlan(plan, planNow)
	if len(issues) < 5 {
		t.Fatalf("expected every issue to be reported, got %+v", issues)
	}
}

func TestValidateJobConfigModes(t *testing.T) {
	planner := NewPlanner()
	growth := &models.GrowthConfig{StartMonth: "2025-01", Months: 3, Curve: models.CurveLinear}
	plan := &models.MonthlyPlan{PlanVersion: 1, Months: []models.MonthlyTarget{month("2025-01", 1, 2, 1, 1, 0, "0", "100")}}

	ok := models.JobConfig{Mode: models.GenerationModeGrowthCurve, TenantName: "Acme", Country: "US", Timezone: "UTC", Growth: growth}
	if err := ValidateJobConfig(ok, planNow, planner, nil); err != nil {
		t.Fatalf("valid growth config rejected: %v", err)
	}

	both := ok
	both.Monthly = plan
	err := ValidateJobConfig(both, planNow, planner, nil)
	var verr *ValidationError
	if !errors.As(err, &verr) || issuePaths(verr.Issues)["monthlyPlan"] != "excluded" {
		t.Fatalf("expected monthlyPlan excluded, got %v", err)
	}

	missing := models.JobConfig{Mode: models.GenerationModeMonthlyPlan, TenantName: "Acme"}
	if err := ValidateJobConfig(missing, planNow, planner, nil); !errors.As(err, &verr) || issuePaths(verr.Issues)["monthlyPlan"] != "required" {
		t.Fatalf("expected monthlyPlan required, got %v", err)
	}

	badMode := models.JobConfig{Mode: "weekly", TenantName: "Acme"}
	if err := ValidateJobConfig(badMode, planNow, planner, nil); !errors.As(err, &verr) || issuePaths(verr.Issues)["mode"] != "oneof" {
		t.Fatalf("expected mode oneof, got %v", err)
	}

	country := ok
	country.Country = "FR"
	if err := ValidateJobConfig(country, planNow, planner, []string{"us", "gb"}); !errors.As(err, &verr) || issuePaths(verr.Issues)["country"] != "oneof" {
		t.Fatalf("expected country rejected, got %v", err)
	}

	tz := ok
	tz.Timezone = "Mars/Olympus"
	if err := ValidateJobConfig(tz, planNow, planner, nil); !errors.As(err, &verr) || issuePaths(verr.Issues)["timezone"] != "timezone" {
		t.Fatalf("expected timezone rejected, got %v", err)
	}
}
