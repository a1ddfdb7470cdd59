package demogen

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/davidprivate500/gonthia-crm-sub001/models"
)

const emailAttempts = 6

func buildContacts(ctx context.Context, env *unitEnv, n, leads int) ([]models.Contact, error) {
	if n <= 0 {
		return nil, nil
	}
	companies, err := env.Store.ListCompanies(ctx, env.Tenant.ID, env.End)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	emails, err := env.Store.ContactEmails(ctx, env.Tenant.ID, env.key())
	if err != nil {
		return nil, fmt.Errorf("load contact emails: %w", err)
	}
	r := env.Rand
	p := env.Pools
	win := env.window()
	times := win.PlaceN(r, n)
	statuses := contactStatuses(r, p, n, leads)
	sources := newSourcePicker(env.Mix, p.LeadSources)

	rows := make([]models.Contact, n)
	for i := range rows {
		created := times[i]
		first := Pick(r, env.Locale.FirstNames)
		last := Pick(r, env.Locale.LastNames)

		var company *models.Company
		if r.Bool(env.Settings.LinkCompany) {
			// only companies that existed when the contact was created
			eligible := sort.Search(len(companies), func(j int) bool { return companies[j].CreatedAt.After(created) })
			if eligible > 0 {
				company = &companies[r.Int(0, eligible-1)]
			}
		}
		domain := Pick(r, env.Locale.FreeMailDomains)
		owner := env.owner()
		var companyID *string
		if company != nil {
			domain = company.Domain
			owner = company.OwnerId
			id := company.ID
			companyID = &id
		}
		email := uniqueEmail(r, p, first, last, domain, emails)
		emails[email] = struct{}{}

		rows[i] = models.Contact{
			ID:             env.entityID(models.EntityContact, i),
			TenantId:       env.Tenant.ID,
			FirstName:      first,
			LastName:       last,
			Email:          email,
			Phone:          Phone(r, env.Locale.Country),
			JobTitle:       Pick(r, p.JobTitles),
			Status:         statuses[i],
			Source:         sources.pick(r),
			CompanyId:      companyID,
			OwnerId:        owner,
			DemoProvenance: env.provenance(),
			CreatedAt:      created.UTC(),
			UpdatedAt:      created.UTC(),
		}
	}
	return rows, nil
}

// contactStatuses returns exactly leads lead statuses; the rest follow the funnel weights.
func contactStatuses(r *Rand, p *Pools, n, leads int) []models.ContactStatus {
	out := make([]models.ContactStatus, n)
	for i := range out {
		if i < leads {
			out[i] = models.ContactStatusLead
			continue
		}
		out[i] = PickFrom(r, p.ContactFunnel)
	}
	return Shuffle(r, out)
}

// uniqueEmail retries with a numeric suffix and accepts the last draw when every attempt
// collides.
func uniqueEmail(r *Rand, p *Pools, first, last, domain string, taken map[string]struct{}) string {
	var email string
	for attempt := 0; attempt < emailAttempts; attempt++ {
		local := emailLocal(PickFrom(r, p.EmailFormats), first, last)
		if attempt > 0 {
			local += strconv.Itoa(r.Int(2, 999))
		}
		email = local + "@" + domain
		if _, dup := taken[email]; !dup {
			return email
		}
	}
	return email
}

func emailLocal(format, first, last string) string {
	f, l := slug(first), slug(last)
	local := strings.NewReplacer(
		"{fi}", firstRune(f),
		"{li}", firstRune(l),
		"{f}", f,
		"{l}", l,
	).Replace(format)
	if local == "" || local == "." || local == "_" {
		return "contact"
	}
	return local
}

// sourcePicker draws lead sources from a channel mix. Shares left unassigned by the mix
// fall back to the default source weights.
type sourcePicker struct {
	table    []Weighted[string]
	defaults []Weighted[string]
}

func newSourcePicker(mix map[string]float64, defaults []Weighted[string]) sourcePicker {
	if len(mix) == 0 {
		return sourcePicker{table: defaults}
	}
	var table []Weighted[string]
	var total float64
	for _, channel := range sortedKeys(mix) {
		if share := mix[channel]; share > 0 {
			table = append(table, Weighted[string]{Item: channel, Weight: share})
			total += share
		}
	}
	if rest := 100 - total; rest > 0 {
		table = append(table, Weighted[string]{Item: "", Weight: rest})
	}
	return sourcePicker{table: table, defaults: defaults}
}

func (s sourcePicker) pick(r *Rand) string {
	if len(s.table) == 0 {
		return ""
	}
	src := PickFrom(r, s.table)
	if src == "" && len(s.defaults) > 0 {
		return PickFrom(r, s.defaults)
	}
	return src
}
