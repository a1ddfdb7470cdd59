package demogen

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/shopspring/decimal"
)

const maxPlanMonths = models.MaxMonthSpan

// PlannerDefaults fill in growth targets the caller left out.
type PlannerDefaults struct {
	ContactsPerMonth    int64
	LeadShare           float64
	CompaniesPerContact float64
	DealsPerContact     float64
	WinRate             float64
	AvgWonValue         decimal.Decimal
	// WonShareOfPipeline derives pipeline value from won value.
	WonShareOfPipeline float64
	ExponentialRate    float64
}

func DefaultPlannerDefaults() PlannerDefaults {
	return PlannerDefaults{
		ContactsPerMonth:    100,
		LeadShare:           0.40,
		CompaniesPerContact: 0.20,
		DealsPerContact:     0.25,
		WinRate:             0.30,
		AvgWonValue:         decimal.NewFromInt(12000),
		WonShareOfPipeline:  0.35,
		ExponentialRate:     0.10,
	}
}

// Planner spreads growth targets over months.
type Planner struct {
	Defaults PlannerDefaults
}

func NewPlanner() *Planner {
	return &Planner{Defaults: DefaultPlannerDefaults()}
}

// seasonality is a calendar factor, January first.
var seasonality = [12]float64{0.90, 0.95, 1.05, 1.00, 1.05, 1.00, 0.90, 0.85, 1.05, 1.10, 1.10, 0.95}

type growthTotals struct {
	Leads, Contacts, Companies, Deals, Won int64
	WonValue, Pipeline                     decimal.Decimal
}

func (p *Planner) totals(cfg *models.GrowthConfig) growthTotals {
	d := p.Defaults
	t := cfg.Targets
	span := int64(cfg.Months)
	var out growthTotals

	out.Contacts = orDefault(t.Contacts, d.ContactsPerMonth*span)
	out.Leads = orDefault(t.Leads, roundShare(out.Contacts, d.LeadShare))
	out.Companies = orDefault(t.Companies, roundShare(out.Contacts, d.CompaniesPerContact))
	out.Deals = orDefault(t.Deals, roundShare(out.Contacts, d.DealsPerContact))
	out.Won = orDefault(t.ClosedWonCount, roundShare(out.Deals, d.WinRate))

	if t.ClosedWonValue != nil {
		out.WonValue = t.ClosedWonValue.Round(2)
	} else {
		out.WonValue = d.AvgWonValue.Mul(decimal.NewFromInt(out.Won))
	}
	switch {
	case t.PipelineValue != nil:
		out.Pipeline = t.PipelineValue.Round(2)
	case out.Deals <= out.Won:
		out.Pipeline = out.WonValue
	case out.WonValue.IsPositive():
		out.Pipeline = out.WonValue.Div(decimal.NewFromFloat(d.WonShareOfPipeline)).Round(2)
	default:
		out.Pipeline = d.AvgWonValue.Mul(decimal.NewFromInt(out.Deals - out.Won))
	}
	return out
}

func orDefault(v *int64, def int64) int64 {
	if v != nil {
		return *v
	}
	return def
}

func roundShare(n int64, share float64) int64 {
	return int64(math.Round(float64(n) * share))
}

// Validate collects every problem of cfg. Paths are relative to the growth config.
func (p *Planner) Validate(cfg *models.GrowthConfig, now time.Time) error {
	return issuesErr(p.validate(cfg, now, ""))
}

func (p *Planner) validate(cfg *models.GrowthConfig, now time.Time, prefix string) []Issue {
	var issues issueList
	if cfg == nil {
		issues.add(strings.TrimSuffix(prefix, "."), "required", "growth config is required for growth-curve mode")
		return issues
	}
	if cfg.Months <= 0 || cfg.Months > maxPlanMonths {
		issues.add(prefix+"months", "range", "months must be between 1 and %d", maxPlanMonths)
	}
	current := models.MonthKey(now)
	if cfg.StartMonth != "" {
		if _, err := models.ParseMonth(cfg.StartMonth); err != nil {
			issues.add(prefix+"startMonth", "format", "startMonth must be YYYY-MM")
		} else if cfg.StartMonth > current {
			issues.add(prefix+"startMonth", "future", "startMonth %s is after the current month %s", cfg.StartMonth, current)
		} else if cfg.Months > 0 && cfg.Months <= maxPlanMonths {
			months := planMonths(cfg.StartMonth, cfg.Months)
			if last := months[len(months)-1]; last > current {
				issues.add(prefix+"months", "future", "plan ends in %s, after the current month %s", last, current)
			}
		}
	}
	switch cfg.Curve {
	case models.CurveLinear, models.CurveExponential, models.CurveLogistic, models.CurveStep:
	default:
		issues.add(prefix+"curve", "oneof", "unknown growth curve %q", cfg.Curve)
	}
	if r := cfg.MonthlyGrowthRate; r != nil && (*r <= -0.9 || *r > 5) {
		issues.add(prefix+"monthlyGrowthRate", "range", "monthlyGrowthRate must be in (-0.9, 5]")
	}

	t := cfg.Targets
	counts := []struct {
		name string
		v    *int64
	}{
		{"leads", t.Leads}, {"contacts", t.Contacts}, {"companies", t.Companies},
		{"deals", t.Deals}, {"closedWonCount", t.ClosedWonCount},
	}
	negative := false
	for _, c := range counts {
		if c.v != nil && *c.v < 0 {
			issues.add(prefix+"targets."+c.name, "gte", "%s must not be negative", c.name)
			negative = true
		}
	}
	for name, v := range map[string]*decimal.Decimal{"closedWonValue": t.ClosedWonValue, "pipelineValue": t.PipelineValue} {
		if v != nil && v.IsNegative() {
			issues.add(prefix+"targets."+name, "gte", "%s must not be negative", name)
			negative = true
		}
	}

	var mixTotal float64
	for _, channel := range sortedKeys(cfg.ChannelMix) {
		share := cfg.ChannelMix[channel]
		if share < 0 {
			issues.add(prefix+"channelMix."+channel, "gte", "channel share must not be negative")
		}
		mixTotal += share
	}
	if mixTotal > 100 {
		issues.add(prefix+"channelMix", "max", "channel mix adds up to %.1f%%, more than 100%%", mixTotal)
	}

	if negative || cfg.Months <= 0 {
		sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
		return issues
	}
	tot := p.totals(cfg)
	if tot.Leads > tot.Contacts {
		issues.add(prefix+"targets.leads", "lte", "leads (%d) exceed contacts (%d)", tot.Leads, tot.Contacts)
	}
	if tot.Won > tot.Deals {
		issues.add(prefix+"targets.closedWonCount", "lte", "closed-won count (%d) exceeds deals (%d)", tot.Won, tot.Deals)
	}
	if tot.WonValue.IsPositive() && tot.Won == 0 {
		issues.add(prefix+"targets.closedWonValue", "requires", "closed-won value needs a closed-won count")
	}
	if tot.Pipeline.LessThan(tot.WonValue) {
		issues.add(prefix+"targets.pipelineValue", "gte", "pipeline value is below closed-won value")
	}
	if tot.Pipeline.GreaterThan(tot.WonValue) && tot.Deals <= tot.Won {
		issues.add(prefix+"targets.pipelineValue", "requires", "open pipeline value needs deals that are not won")
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
	return issues
}

// Plan validates cfg and returns one target per month whose sums equal the totals exactly.
func (p *Planner) Plan(cfg *models.GrowthConfig, now time.Time) ([]models.MonthlyTarget, error) {
	if err := p.Validate(cfg, now); err != nil {
		return nil, err
	}
	return p.allocate(cfg, now), nil
}

// allocate assumes a valid config. now only matters when StartMonth is empty.
func (p *Planner) allocate(cfg *models.GrowthConfig, now time.Time) []models.MonthlyTarget {
	start := cfg.StartMonth
	if start == "" {
		start = DefaultStartMonth(now, cfg.Months)
	}
	months := planMonths(start, cfg.Months)
	weights := p.weights(cfg, months)
	tot := p.totals(cfg)

	contacts := allocate(tot.Contacts, weights)
	leads := capTo(allocate(tot.Leads, weights), contacts)
	companies := allocate(tot.Companies, weights)
	deals := allocate(tot.Deals, weights)
	won := capTo(allocate(tot.Won, weights), deals)

	wonValue := allocateCents(tot.WonValue, toWeights(won))
	open := make([]int64, len(deals))
	for i := range deals {
		open[i] = deals[i] - won[i]
	}
	openValue := allocateCents(tot.Pipeline.Sub(tot.WonValue), toWeights(open))

	out := make([]models.MonthlyTarget, len(months))
	for i, m := range months {
		out[i] = models.MonthlyTarget{
			Month: m,
			Targets: models.MonthlyMetricTargets{
				LeadsCreated:       leads[i],
				ContactsCreated:    contacts[i],
				CompaniesCreated:   companies[i],
				DealsCreated:       deals[i],
				ClosedWonCount:     won[i],
				ClosedWonValue:     wonValue[i],
				PipelineAddedValue: wonValue[i].Add(openValue[i]),
			},
		}
	}
	return out
}

func (p *Planner) weights(cfg *models.GrowthConfig, months []string) []float64 {
	n := len(months)
	rate := p.Defaults.ExponentialRate
	if cfg.MonthlyGrowthRate != nil {
		rate = *cfg.MonthlyGrowthRate
	}
	k := 8 / float64(n)
	mid := float64(n-1) / 2
	w := make([]float64, n)
	for i := range w {
		switch cfg.Curve {
		case models.CurveExponential:
			w[i] = math.Pow(1+rate, float64(i))
		case models.CurveLogistic:
			w[i] = 1 / (1 + math.Exp(-k*(float64(i)-mid)))
		case models.CurveStep:
			w[i] = 1
			if i >= n/2 {
				w[i] = 2
			}
		default:
			w[i] = 1
		}
		if cfg.Seasonality {
			t, _ := models.ParseMonth(months[i])
			w[i] *= seasonality[t.Month()-1]
		}
	}
	return w
}

// DefaultStartMonth makes a span of n months end at the month of now.
func DefaultStartMonth(now time.Time, n int) string {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return models.MonthKey(first.AddDate(0, -(n - 1), 0))
}

func planMonths(start string, n int) []string {
	t, err := models.ParseMonth(start)
	if err != nil || n <= 0 {
		return nil
	}
	out := make([]string, n)
	for i := range out {
		out[i] = models.MonthKey(t.AddDate(0, i, 0))
	}
	return out
}

// allocate splits total by weights with cumulative rounding: every share is non-negative
// and the shares sum to total exactly. Zero total weight yields all zeros.
func allocate(total int64, weights []float64) []int64 {
	out := make([]int64, len(weights))
	var sum float64
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	if sum == 0 || total == 0 {
		return out
	}
	var cum float64
	var prev int64
	for i, w := range weights {
		if w > 0 {
			cum += w
		}
		next := int64(math.Round(float64(total) * cum / sum))
		if i == len(weights)-1 {
			next = total
		}
		out[i] = next - prev
		prev = next
	}
	return out
}

// allocateCents is allocate over money, exact to the cent.
func allocateCents(total decimal.Decimal, weights []float64) []decimal.Decimal {
	cents := allocate(total.Shift(2).Round(0).IntPart(), weights)
	out := make([]decimal.Decimal, len(cents))
	for i, c := range cents {
		out[i] = decimal.New(c, -2)
	}
	return out
}

// capTo limits values[i] to caps[i], moving the overflow to months with room. The caller
// guarantees sum(values) <= sum(caps).
func capTo(values, caps []int64) []int64 {
	out := append([]int64(nil), values...)
	var overflow int64
	for i := range out {
		if out[i] > caps[i] {
			overflow += out[i] - caps[i]
			out[i] = caps[i]
		}
	}
	for i := len(out) - 1; i >= 0 && overflow > 0; i-- {
		room := caps[i] - out[i]
		if room <= 0 {
			continue
		}
		moved := min(room, overflow)
		out[i] += moved
		overflow -= moved
	}
	return out
}

func toWeights(counts []int64) []float64 {
	out := make([]float64, len(counts))
	for i, c := range counts {
		out[i] = float64(c)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
