package demogen

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/shopspring/decimal"
)

const (
	minDealValue = 500
	maxDealValue = 2_500_000
)

func buildDeals(ctx context.Context, env *unitEnv, t unitTargets) ([]models.Deal, error) {
	n := int(t.DealsCreated)
	if n <= 0 {
		return nil, nil
	}
	contacts, err := env.Store.ListContacts(ctx, env.Tenant.ID, env.End)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	companies, err := env.Store.ListCompanies(ctx, env.Tenant.ID, env.End)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	companyNames := make(map[string]string, len(companies))
	for _, c := range companies {
		companyNames[c.ID] = c.Name
	}
	var customers, prospects, warm []*models.Contact
	for i := range contacts {
		c := &contacts[i]
		switch c.Status {
		case models.ContactStatusCustomer:
			customers = append(customers, c)
			warm = append(warm, c)
		case models.ContactStatusProspect:
			prospects = append(prospects, c)
			warm = append(warm, c)
		}
	}

	r := env.Rand
	p := env.Pools
	won := Shuffle(r, wonFlags(n, int(t.ClosedWonCount)))
	last := minTime(env.End.Add(-time.Second), env.Now)

	rows := make([]models.Deal, n)
	raw := make([]float64, n)
	for i := range rows {
		kind := models.StageKindWon
		if !won[i] {
			kind = PickFrom(r, p.OpenStages)
		}
		var contact *models.Contact
		switch {
		case kind == models.StageKindWon && len(customers) > 0:
			contact = Pick(r, customers)
		case len(warm) > 0:
			contact = Pick(r, warm)
		case len(contacts) > 0:
			contact = &contacts[r.Int(0, len(contacts)-1)]
		}

		from := env.Start
		d := models.Deal{
			ID:             env.entityID(models.EntityDeal, i),
			TenantId:       env.Tenant.ID,
			Currency:       env.Tenant.Currency,
			StageId:        env.Stages[kind],
			StageKind:      kind,
			OwnerId:        env.owner(),
			DemoProvenance: env.provenance(),
		}
		account := ""
		if contact != nil {
			id := contact.ID
			d.ContactId = &id
			d.CompanyId = contact.CompanyId
			d.OwnerId = contact.OwnerId
			from = maxTime(from, contact.CreatedAt)
			account = contact.LastName
			if contact.CompanyId != nil {
				if name, ok := companyNames[*contact.CompanyId]; ok {
					account = name
				}
			}
		}
		if account == "" {
			account = Pick(r, p.CompanyCores)
		}
		d.Title = dealTitle(r, p, account)
		d.CreatedAt = between(r, from, last).UTC()
		d.UpdatedAt = d.CreatedAt
		if kind.IsClosed() {
			closed := between(r, d.CreatedAt, last).UTC()
			d.ClosedAt = &closed
			d.ExpectedCloseDate = &closed
			d.UpdatedAt = closed
		} else {
			expected := d.CreatedAt.AddDate(0, 0, r.Int(14, 90))
			d.ExpectedCloseDate = &expected
		}
		raw[i] = drawDealValue(r, env.Settings.SmallDealShare, env.Settings.MidDealShare)
		rows[i] = d
	}

	assignDealValues(rows, raw, t.ClosedWonValue, t.PipelineAddedValue)
	return rows, nil
}

func wonFlags(n, won int) []bool {
	out := make([]bool, n)
	for i := 0; i < won && i < n; i++ {
		out[i] = true
	}
	return out
}

func dealTitle(r *Rand, p *Pools, account string) string {
	return strings.NewReplacer("{company}", account, "{product}", Pick(r, p.DealProducts)).Replace(Pick(r, p.DealTitles))
}

// drawDealValue samples the three-tier mixture: most deals small, a mid tier, and a thin
// Pareto tail of large deals.
func drawDealValue(r *Rand, smallShare, midShare float64) float64 {
	var v float64
	switch u := r.Next(); {
	case u < smallShare:
		v = r.LogNormal(6000, 0.6)
	case u < midShare:
		v = r.LogNormal(30000, 0.5)
	default:
		v = r.Pareto(1.6, 80000)
	}
	return math.Min(math.Max(v, minDealValue), maxDealValue)
}

// assignDealValues sets deal values. Won deals are scaled to sum to wonTarget and the rest
// to pipelineTarget minus the won sum, both exact to the cent. A zero target keeps the raw
// draws for that group.
func assignDealValues(rows []models.Deal, raw []float64, wonTarget, pipelineTarget decimal.Decimal) {
	var wonIdx, openIdx []int
	for i := range rows {
		if rows[i].StageKind == models.StageKindWon {
			wonIdx = append(wonIdx, i)
		} else {
			openIdx = append(openIdx, i)
		}
	}
	wonSum := scaleGroup(rows, raw, wonIdx, wonTarget)
	if pipelineTarget.IsPositive() {
		openTarget := pipelineTarget.Sub(wonSum)
		if openTarget.IsNegative() {
			openTarget = decimal.Zero
		}
		forceGroup(rows, raw, openIdx, openTarget)
		return
	}
	scaleGroup(rows, raw, openIdx, decimal.Zero)
}

// scaleGroup scales a group to target, or keeps raw values when target is zero. It returns
// the resulting group sum.
func scaleGroup(rows []models.Deal, raw []float64, idx []int, target decimal.Decimal) decimal.Decimal {
	if target.IsPositive() {
		return forceGroup(rows, raw, idx, target)
	}
	sum := decimal.Zero
	for _, i := range idx {
		rows[i].Value = decimal.NewFromFloat(raw[i]).Round(2)
		sum = sum.Add(rows[i].Value)
	}
	return sum
}

func forceGroup(rows []models.Deal, raw []float64, idx []int, target decimal.Decimal) decimal.Decimal {
	if len(idx) == 0 {
		return decimal.Zero
	}
	weights := make([]float64, len(idx))
	for k, i := range idx {
		weights[k] = raw[i]
	}
	values := allocateCents(target, weights)
	for k, i := range idx {
		rows[i].Value = values[k]
	}
	return target.Round(2)
}

// rescaleDeals forces the value of deals to sum to target, proportional to current values.
func rescaleDeals(deals []models.Deal, target decimal.Decimal) {
	if len(deals) == 0 {
		return
	}
	weights := make([]float64, len(deals))
	for i, d := range deals {
		weights[i] = math.Max(d.Value.InexactFloat64(), 1)
	}
	values := allocateCents(target, weights)
	for i := range deals {
		deals[i].Value = values[i]
	}
}
