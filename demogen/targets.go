package demogen

import (
	"fmt"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/models"
)

// TargetSource supplies per-month targets to the generator. Both job modes share every
// phase; only the source of targets differs.
type TargetSource interface {
	Months() []models.MonthlyTarget
	// ChannelMix maps a lead source to its percentage share; nil uses the default sources.
	ChannelMix() map[string]float64
}

type growthTargets struct {
	months []models.MonthlyTarget
	mix    map[string]float64
}

func (s growthTargets) Months() []models.MonthlyTarget { return s.months }

func (s growthTargets) ChannelMix() map[string]float64 { return s.mix }

type monthlyPlanTargets struct {
	plan models.MonthlyPlan
}

func (s monthlyPlanTargets) Months() []models.MonthlyTarget { return s.plan.Months }

func (s monthlyPlanTargets) ChannelMix() map[string]float64 { return nil }

// targetSourceFor selects the strategy for cfg. The config was validated when the job was
// created, so allocation here never fails on content.
func targetSourceFor(cfg models.JobConfig, planner *Planner, now time.Time) (TargetSource, error) {
	switch cfg.Mode {
	case models.GenerationModeGrowthCurve:
		if cfg.Growth == nil {
			return nil, fmt.Errorf("growth-curve job without growth config")
		}
		return growthTargets{months: planner.allocate(cfg.Growth, now), mix: cfg.Growth.ChannelMix}, nil
	case models.GenerationModeMonthlyPlan:
		if cfg.Monthly == nil {
			return nil, fmt.Errorf("monthly-plan job without plan")
		}
		if cfg.Monthly.PlanVersion != models.MonthlyPlanVersion {
			return nil, fmt.Errorf("unsupported plan version %d", cfg.Monthly.PlanVersion)
		}
		return monthlyPlanTargets{plan: *cfg.Monthly}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
}

// SumTargets totals a list of monthly targets.
func SumTargets(months []models.MonthlyTarget) models.MonthlyMetricTargets {
	var t models.MonthlyMetricTargets
	for _, m := range months {
		t.LeadsCreated += m.Targets.LeadsCreated
		t.ContactsCreated += m.Targets.ContactsCreated
		t.CompaniesCreated += m.Targets.CompaniesCreated
		t.DealsCreated += m.Targets.DealsCreated
		t.ClosedWonCount += m.Targets.ClosedWonCount
		t.ClosedWonValue = t.ClosedWonValue.Add(m.Targets.ClosedWonValue)
		t.PipelineAddedValue = t.PipelineAddedValue.Add(m.Targets.PipelineAddedValue)
	}
	return t
}
