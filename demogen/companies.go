package demogen

import (
	"context"
	"fmt"
	"sort"

	"github.com/davidprivate500/gonthia-crm-sub001/models"
)

const companyNameAttempts = 8

func buildCompanies(ctx context.Context, env *unitEnv, n int) ([]models.Company, error) {
	if n <= 0 {
		return nil, nil
	}
	taken, err := env.Store.CompanyNames(ctx, env.Tenant.ID, env.key())
	if err != nil {
		return nil, fmt.Errorf("load company names: %w", err)
	}
	r := env.Rand
	p := env.Pools
	win := env.window()
	times := win.PlaceN(r, n)

	rows := make([]models.Company, n)
	for i := range rows {
		name, stem := uniqueCompanyName(r, p, taken)
		taken[name] = struct{}{}
		rows[i] = models.Company{
			ID:             env.entityID(models.EntityCompany, i),
			TenantId:       env.Tenant.ID,
			Name:           name,
			Domain:         slug(stem) + "." + env.Locale.TLD,
			Industry:       PickFrom(r, p.Industries),
			SizeBand:       PickFrom(r, p.SizeBands),
			Country:        env.Locale.Country,
			City:           PickFrom(r, env.Locale.Cities),
			Phone:          Phone(r, env.Locale.Country),
			OwnerId:        env.owner(),
			DemoProvenance: env.provenance(),
			CreatedAt:      times[i].UTC(),
			UpdatedAt:      times[i].UTC(),
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	return rows, nil
}

// uniqueCompanyName retries on collision and, once the attempts run out, accepts a numbered
// variant of the last draw. It returns the display name and the stem used for the domain.
func uniqueCompanyName(r *Rand, p *Pools, taken map[string]struct{}) (string, string) {
	var name, stem string
	for attempt := 0; attempt < companyNameAttempts; attempt++ {
		name, stem = companyName(r, p)
		if _, dup := taken[name]; !dup {
			return name, stem
		}
	}
	n := len(taken) + 1
	return fmt.Sprintf("%s %d", name, n), fmt.Sprintf("%s%d", stem, n)
}

func companyName(r *Rand, p *Pools) (string, string) {
	core := Pick(r, p.CompanyCores)
	suffix := Pick(r, p.CompanySuffixes)
	if r.Bool(0.5) {
		prefix := Pick(r, p.CompanyPrefixes)
		return prefix + " " + core + " " + suffix, prefix + core
	}
	return core + " " + suffix, core + suffix
}
