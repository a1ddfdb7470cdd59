package demogen

import (
	"math"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/config"
	"github.com/davidprivate500/gonthia-crm-sub001/models"
)

// PlanPreview is the read-only estimate returned before a job is created.
type PlanPreview struct {
	Mode                 models.GenerationMode       `json:"mode"`
	Months               []models.MonthlyTarget      `json:"months"`
	Totals               models.MonthlyMetricTargets `json:"totals"`
	EstimatedActivities  int64                       `json:"estimatedActivities"`
	EstimatedRows        int64                       `json:"estimatedRows"`
	EstimatedSeconds     float64                     `json:"estimatedSeconds"`
	EstimatedInvocations int                         `json:"estimatedInvocations"`
}

// Estimator turns monthly targets into row and duration estimates.
type Estimator struct {
	Settings config.DemoSettings
	Pools    *Pools
}

func (e Estimator) Preview(mode models.GenerationMode, months []models.MonthlyTarget) *PlanPreview {
	p := &PlanPreview{Mode: mode, Months: months, Totals: SumTargets(months)}
	leadAvg, otherAvg := e.activityAverages()
	t := p.Totals
	p.EstimatedActivities = int64(math.Round(float64(t.LeadsCreated)*leadAvg + float64(t.ContactsCreated-t.LeadsCreated)*otherAvg))
	p.EstimatedRows = t.CompaniesCreated + t.ContactsCreated + t.DealsCreated + p.EstimatedActivities
	if e.Settings.RowsPerSecond > 0 {
		p.EstimatedSeconds = math.Round(float64(p.EstimatedRows)/e.Settings.RowsPerSecond*10) / 10
	}
	p.EstimatedInvocations = 1
	if e.Settings.MaxRowsPerInvocation > 0 && p.EstimatedRows > 0 {
		p.EstimatedInvocations = int(math.Ceil(float64(p.EstimatedRows) / float64(e.Settings.MaxRowsPerInvocation)))
	}
	return p
}

// activityAverages returns the expected activities per lead and per non-lead contact.
func (e Estimator) activityAverages() (float64, float64) {
	pools := e.Pools
	if pools == nil {
		pools = DefaultPools()
	}
	mean := func(s models.ContactStatus) float64 {
		r := pools.ActivitiesPerStatus[s]
		return float64(r[0]+r[1]) / 2
	}
	var sum, weight float64
	for _, w := range pools.ContactFunnel {
		sum += w.Weight * mean(w.Item)
		weight += w.Weight
	}
	other := 0.0
	if weight > 0 {
		other = sum / weight
	}
	return mean(models.ContactStatusLead), other
}

// Preview plans cfg without persisting anything.
func (p *Planner) Preview(cfg *models.GrowthConfig, now time.Time, est Estimator) (*PlanPreview, error) {
	months, err := p.Plan(cfg, now)
	if err != nil {
		return nil, err
	}
	return est.Preview(models.GenerationModeGrowthCurve, months), nil
}
