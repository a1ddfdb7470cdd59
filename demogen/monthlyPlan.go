package demogen

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/davidprivate500/gonthia-crm-sub001/utils"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report JSON names so issue paths match the request body
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// structIssues runs validator tags on v and turns failures into issues.
func structIssues(v any, prefix string) []Issue {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var issues issueList
	fields := utils.ProcessValidationErrors(err)
	for _, ns := range sortedKeys(fields) {
		path := ns
		if i := strings.Index(ns, "."); i >= 0 {
			path = ns[i+1:]
		}
		issues.add(prefix+path, fields[ns], "failed %q check", fields[ns])
	}
	return issues
}

// ValidateMonthlyPlan checks a caller-supplied monthly plan and returns every issue found.
func ValidateMonthlyPlan(plan models.MonthlyPlan, now time.Time) []Issue {
	return validateMonthlyPlan(plan, now, "")
}

func validateMonthlyPlan(plan models.MonthlyPlan, now time.Time, prefix string) []Issue {
	var issues issueList
	if plan.PlanVersion != models.MonthlyPlanVersion {
		issues.add(prefix+"planVersion", "version", "unsupported plan version %d", plan.PlanVersion)
	}
	if len(plan.Months) == 0 {
		issues.add(prefix+"months", "required", "plan has no months")
	}
	if len(plan.Months) > maxPlanMonths {
		issues.add(prefix+"months", "max", "plan has more than %d months", maxPlanMonths)
	}
	issues = append(issues, validateMonthSequence(plan.Months, now, prefix)...)
	for i, m := range plan.Months {
		issues = append(issues, validateMonthTargets(m.Targets, fmt.Sprintf("%smonths[%d].targets.", prefix, i))...)
	}
	return issues
}

// validateMonthSequence checks month format, the current-month ceiling and strict ordering.
func validateMonthSequence(months []models.MonthlyTarget, now time.Time, prefix string) []Issue {
	var issues issueList
	current := models.MonthKey(now)
	prev := ""
	for i, m := range months {
		path := fmt.Sprintf("%smonths[%d].month", prefix, i)
		if _, err := models.ParseMonth(m.Month); err != nil {
			issues.add(path, "format", "month %q is not YYYY-MM", m.Month)
			continue
		}
		if m.Month > current {
			issues.add(path, "future", "month %s is after the current month %s", m.Month, current)
		}
		if prev != "" && m.Month <= prev {
			issues.add(path, "order", "month %s does not follow %s", m.Month, prev)
		}
		prev = m.Month
	}
	return issues
}

func validateMonthTargets(t models.MonthlyMetricTargets, prefix string) []Issue {
	var issues issueList
	negative := false
	for _, c := range []struct {
		name string
		v    int64
	}{
		{"leadsCreated", t.LeadsCreated}, {"contactsCreated", t.ContactsCreated},
		{"companiesCreated", t.CompaniesCreated}, {"dealsCreated", t.DealsCreated},
		{"closedWonCount", t.ClosedWonCount},
	} {
		if c.v < 0 {
			issues.add(prefix+c.name, "gte", "%s must not be negative", c.name)
			negative = true
		}
	}
	if t.ClosedWonValue.IsNegative() {
		issues.add(prefix+"closedWonValue", "gte", "closedWonValue must not be negative")
		negative = true
	}
	if t.PipelineAddedValue.IsNegative() {
		issues.add(prefix+"pipelineAddedValue", "gte", "pipelineAddedValue must not be negative")
		negative = true
	}
	if negative {
		return issues
	}

	if t.LeadsCreated > t.ContactsCreated {
		issues.add(prefix+"leadsCreated", "lte", "leadsCreated (%d) exceeds contactsCreated (%d)", t.LeadsCreated, t.ContactsCreated)
	}
	if t.ClosedWonCount > t.DealsCreated {
		issues.add(prefix+"closedWonCount", "lte", "closedWonCount (%d) exceeds dealsCreated (%d)", t.ClosedWonCount, t.DealsCreated)
	}
	if t.ClosedWonValue.IsPositive() && t.ClosedWonCount == 0 {
		issues.add(prefix+"closedWonValue", "requires", "closedWonValue needs closedWonCount > 0")
	}
	if t.ClosedWonCount > 0 && t.ClosedWonValue.IsZero() {
		issues.add(prefix+"closedWonCount", "requires", "closedWonCount needs closedWonValue > 0")
	}
	if t.PipelineAddedValue.LessThan(t.ClosedWonValue) {
		issues.add(prefix+"pipelineAddedValue", "gte", "pipelineAddedValue is below closedWonValue")
	}
	if t.PipelineAddedValue.IsPositive() && t.DealsCreated == 0 {
		issues.add(prefix+"pipelineAddedValue", "requires", "pipelineAddedValue needs dealsCreated > 0")
	}
	if t.DealsCreated > 0 && t.DealsCreated <= t.ClosedWonCount && t.PipelineAddedValue.GreaterThan(t.ClosedWonValue) {
		issues.add(prefix+"pipelineAddedValue", "requires", "pipelineAddedValue above closedWonValue needs deals that are not won")
	}
	return issues
}

// ValidateJobConfig checks a job configuration for either mode. allowed restricts the
// tenant country when non-empty.
func ValidateJobConfig(cfg models.JobConfig, now time.Time, planner *Planner, allowed []string) error {
	issues := structIssues(cfg, "")
	switch cfg.Mode {
	case models.GenerationModeGrowthCurve:
		if cfg.Monthly != nil {
			issues = append(issues, Issue{Path: "monthlyPlan", Code: "excluded", Message: "monthlyPlan is not used in growth-curve mode"})
		}
		issues = append(issues, planner.validate(cfg.Growth, now, "growth.")...)
	case models.GenerationModeMonthlyPlan:
		if cfg.Growth != nil {
			issues = append(issues, Issue{Path: "growth", Code: "excluded", Message: "growth is not used in monthly-plan mode"})
		}
		if cfg.Monthly == nil {
			issues = append(issues, Issue{Path: "monthlyPlan", Code: "required", Message: "monthlyPlan is required in monthly-plan mode"})
		} else {
			issues = append(issues, validateMonthlyPlan(*cfg.Monthly, now, "monthlyPlan.")...)
		}
	default:
		// structIssues already reported the oneof failure
	}
	if len(allowed) > 0 && cfg.Country != "" && !containsFold(allowed, cfg.Country) {
		issues = append(issues, Issue{Path: "country", Code: "oneof", Message: fmt.Sprintf("country %s is not enabled for demo tenants", cfg.Country)})
	}
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			issues = append(issues, Issue{Path: "timezone", Code: "timezone", Message: fmt.Sprintf("unknown timezone %q", cfg.Timezone)})
		}
	}
	return issuesErr(issues)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
