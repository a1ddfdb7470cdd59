package demogen

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// farFuture bounds listings that should see every row of a tenant.
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// ranked orders ids by preference group first, then newest first.
type ranked struct {
	id      string
	group   int
	created time.Time
}

func pickRanked(items []ranked, n int) []string {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].group != items[j].group {
			return items[i].group < items[j].group
		}
		if !items[i].created.Equal(items[j].created) {
			return items[i].created.After(items[j].created)
		}
		return items[i].id > items[j].id
	})
	n = min(n, len(items))
	out := make([]string, n)
	for i := range out {
		out[i] = items[i].id
	}
	return out
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// reconcileMonth moves the generated rows of month toward absolute targets: surplus rows are
// soft-deleted, contact statuses and deal outcomes are flipped, and the returned delta is
// what is still missing and must be created. It reads the current state every time, so a
// repeated call after a crash converges on the same result.
func (p *PatchEngine) reconcileMonth(ctx context.Context, job *models.DemoPatchJob, tenant *models.Tenant, state *models.PatchState, month models.MonthlyTarget) (models.MonthlyMetricTargets, error) {
	store := p.g.Store
	t := month.Targets
	start, end, err := models.MonthBounds(month.Month, tenant.Location())
	if err != nil {
		return t, err
	}
	companies, err := store.GeneratedCompaniesIn(ctx, tenant.ID, start, end)
	if err != nil {
		return t, fmt.Errorf("list companies: %w", err)
	}
	contacts, err := store.GeneratedContactsIn(ctx, tenant.ID, start, end)
	if err != nil {
		return t, fmt.Errorf("list contacts: %w", err)
	}
	deals, err := store.GeneratedDealsIn(ctx, tenant.ID, start, end)
	if err != nil {
		return t, fmt.Errorf("list deals: %w", err)
	}

	// companies: unreferenced ones go first; references to removed ones are cleared
	if surplus := int64(len(companies)) - t.CompaniesCreated; surplus > 0 {
		all, err := store.ListContacts(ctx, tenant.ID, farFuture)
		if err != nil {
			return t, fmt.Errorf("list contacts: %w", err)
		}
		used := map[string]bool{}
		for _, c := range all {
			if c.CompanyId != nil {
				used[*c.CompanyId] = true
			}
		}
		items := make([]ranked, len(companies))
		for i, c := range companies {
			items[i] = ranked{id: c.ID, created: c.CreatedAt}
			if used[c.ID] {
				items[i].group = 1
			}
		}
		ids := pickRanked(items, int(surplus))
		if err := store.ClearCompany(ctx, tenant.ID, ids); err != nil {
			return t, fmt.Errorf("clear company links: %w", err)
		}
		if err := store.SoftDelete(ctx, models.EntityCompany, ids); err != nil {
			return t, fmt.Errorf("delete companies: %w", err)
		}
		gone := idSet(ids)
		companies = filter(companies, func(c models.Company) bool { return !gone[c.ID] })
		p.log(job, logrus.InfoLevel, fmt.Sprintf("%s: removed %d surplus companies", month.Month, len(ids)))
	}

	// contacts: ones without deals go first, ones with deals in other months last. A removed
	// contact takes its deals of this month along; later deals move to another contact.
	if surplus := int64(len(contacts)) - t.ContactsCreated; surplus > 0 {
		ids := make([]string, len(contacts))
		for i, c := range contacts {
			ids[i] = c.ID
		}
		owned, err := store.ListDealsForContacts(ctx, tenant.ID, ids)
		if err != nil {
			return t, fmt.Errorf("list deals: %w", err)
		}
		dealsOf := map[string][]models.Deal{}
		for _, d := range owned {
			dealsOf[*d.ContactId] = append(dealsOf[*d.ContactId], d)
		}
		items := make([]ranked, len(contacts))
		for i, c := range contacts {
			items[i] = ranked{id: c.ID, created: c.CreatedAt}
			for _, d := range dealsOf[c.ID] {
				if !inMonth(d.CreatedAt, start, end) {
					items[i].group = 2
					break
				}
				items[i].group = 1
			}
		}
		removed := pickRanked(items, int(surplus))
		var dealIDs []string
		var later []models.Deal
		for _, id := range removed {
			for _, d := range dealsOf[id] {
				if inMonth(d.CreatedAt, start, end) {
					dealIDs = append(dealIDs, d.ID)
				} else {
					later = append(later, d)
				}
			}
		}
		if err := p.retireLinks(ctx, job, tenant.ID, month.Month, start, end, removed, dealIDs, later); err != nil {
			return t, err
		}
		if err := store.SoftDelete(ctx, models.EntityDeal, dealIDs); err != nil {
			return t, fmt.Errorf("delete deals: %w", err)
		}
		if err := store.SoftDelete(ctx, models.EntityContact, removed); err != nil {
			return t, fmt.Errorf("delete contacts: %w", err)
		}
		gone := idSet(removed)
		contacts = filter(contacts, func(c models.Contact) bool { return !gone[c.ID] })
		goneDeals := idSet(dealIDs)
		deals = filter(deals, func(d models.Deal) bool { return !goneDeals[d.ID] })
		p.log(job, logrus.InfoLevel, fmt.Sprintf("%s: removed %d surplus contacts and %d of their deals, moved %d later deals",
			month.Month, len(removed), len(dealIDs), len(later)))
	}

	// deals: open first, then lost, then won
	if surplus := int64(len(deals)) - t.DealsCreated; surplus > 0 {
		items := make([]ranked, len(deals))
		for i, d := range deals {
			items[i] = ranked{id: d.ID, created: d.CreatedAt}
			switch d.StageKind {
			case models.StageKindLost:
				items[i].group = 1
			case models.StageKindWon:
				items[i].group = 2
			}
		}
		removed := pickRanked(items, int(surplus))
		if err := p.retireLinks(ctx, job, tenant.ID, month.Month, start, end, nil, removed, nil); err != nil {
			return t, err
		}
		if err := store.SoftDelete(ctx, models.EntityDeal, removed); err != nil {
			return t, fmt.Errorf("delete deals: %w", err)
		}
		gone := idSet(removed)
		deals = filter(deals, func(d models.Deal) bool { return !gone[d.ID] })
		p.log(job, logrus.InfoLevel, fmt.Sprintf("%s: removed %d surplus deals", month.Month, len(removed)))
	}

	delta := models.MonthlyMetricTargets{
		CompaniesCreated: max(t.CompaniesCreated-int64(len(companies)), 0),
		ContactsCreated:  max(t.ContactsCreated-int64(len(contacts)), 0),
		DealsCreated:     max(t.DealsCreated-int64(len(deals)), 0),
	}

	leads, err := p.reconcileLeads(ctx, job, month.Month, contacts, t.LeadsCreated, delta.ContactsCreated)
	if err != nil {
		return t, err
	}
	delta.LeadsCreated = leads

	won, err := p.reconcileWon(ctx, job, state, month.Month, deals, t.ClosedWonCount, delta.DealsCreated, end)
	if err != nil {
		return t, err
	}
	delta.ClosedWonCount = won
	job.CurrentStep = "reconciled " + month.Month
	return delta, nil
}

func inMonth(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

// retireLinks settles the rows that point at contacts and deals about to be removed from one
// month. Their activities inside the month are soft-deleted. Deals and activities of later
// months move to a live contact created before the month ended, so the numbers of other
// months stay as they are. Without such a contact, moved deals lose their contact and
// orphaned activities are soft-deleted.
func (p *PatchEngine) retireLinks(ctx context.Context, job *models.DemoPatchJob, tenantID, month string, start, end time.Time, contactIDs, dealIDs []string, later []models.Deal) error {
	if len(contactIDs) == 0 && len(dealIDs) == 0 {
		return nil
	}
	store := p.g.Store
	goneContacts, goneDeals := idSet(contactIDs), idSet(dealIDs)

	var heirs []models.Contact
	if len(contactIDs) > 0 {
		live, err := store.ListContacts(ctx, tenantID, end)
		if err != nil {
			return fmt.Errorf("list contacts: %w", err)
		}
		heirs = filter(live, func(c models.Contact) bool { return !goneContacts[c.ID] })
	}
	r := NewRand(SeedFromString(job.Seed)).Derive("rehome", month)
	heir := func() *models.Contact {
		if len(heirs) == 0 {
			return nil
		}
		return &heirs[r.Int(0, len(heirs)-1)]
	}

	movedTo := map[string]*models.Contact{}
	for i := range later {
		d := &later[i]
		h := heir()
		movedTo[d.ID] = h
		d.ContactId = nil
		if h != nil {
			id := h.ID
			d.ContactId = &id
			d.CompanyId = h.CompanyId
			d.OwnerId = h.OwnerId
		}
		if err := store.UpdateDealContact(ctx, d); err != nil {
			return fmt.Errorf("move deal %s: %w", d.ID, err)
		}
	}

	acts, err := store.ListActivitiesFor(ctx, tenantID, contactIDs, dealIDs)
	if err != nil {
		return fmt.Errorf("list activities: %w", err)
	}
	var drop []string
	moved := 0
	for i := range acts {
		a := &acts[i]
		if inMonth(a.CreatedAt, start, end) {
			drop = append(drop, a.ID)
			continue
		}
		if a.DealId != nil && goneDeals[*a.DealId] {
			a.DealId = nil
		}
		if goneContacts[a.ContactId] {
			var h *models.Contact
			ok := false
			if a.DealId != nil {
				h, ok = movedTo[*a.DealId]
			}
			if !ok {
				h = heir()
				a.DealId = nil
			}
			if h == nil {
				drop = append(drop, a.ID)
				continue
			}
			a.ContactId = h.ID
			a.OwnerId = h.OwnerId
		}
		if err := store.UpdateActivityLinks(ctx, a); err != nil {
			return fmt.Errorf("move activity %s: %w", a.ID, err)
		}
		moved++
	}
	if err := store.SoftDelete(ctx, models.EntityActivity, drop); err != nil {
		return fmt.Errorf("delete activities: %w", err)
	}
	if len(drop) > 0 || moved > 0 {
		p.log(job, logrus.InfoLevel, fmt.Sprintf("%s: removed %d activities, relinked %d", month, len(drop), moved))
	}
	return nil
}

// reconcileLeads flips contact statuses so the month ends with target leads and returns the
// leads that new contacts must supply.
func (p *PatchEngine) reconcileLeads(ctx context.Context, job *models.DemoPatchJob, month string, contacts []models.Contact, target, creating int64) (int64, error) {
	var leads, others []ranked
	for _, c := range contacts {
		r := ranked{id: c.ID, created: c.CreatedAt}
		if c.Status == models.ContactStatusLead {
			leads = append(leads, r)
			continue
		}
		if c.Status == models.ContactStatusCustomer {
			r.group = 1
		}
		others = append(others, r)
	}
	current := int64(len(leads))
	if current > target {
		ids := pickRanked(leads, int(current-target))
		if err := p.g.Store.UpdateContactStatus(ctx, ids, models.ContactStatusProspect); err != nil {
			return 0, fmt.Errorf("demote leads: %w", err)
		}
		p.log(job, logrus.InfoLevel, fmt.Sprintf("%s: %d leads moved to prospect", month, len(ids)))
		return 0, nil
	}
	deficit := target - current
	fromNew := min(deficit, creating)
	if flip := deficit - fromNew; flip > 0 {
		ids := pickRanked(others, int(flip))
		if err := p.g.Store.UpdateContactStatus(ctx, ids, models.ContactStatusLead); err != nil {
			return 0, fmt.Errorf("promote leads: %w", err)
		}
		p.log(job, logrus.InfoLevel, fmt.Sprintf("%s: %d contacts moved back to lead", month, len(ids)))
	}
	return fromNew, nil
}

// reconcileWon flips deal outcomes so the month ends with target won deals and returns the
// won deals that new deals must supply.
func (p *PatchEngine) reconcileWon(ctx context.Context, job *models.DemoPatchJob, state *models.PatchState, month string, deals []models.Deal, target, creating int64, end time.Time) (int64, error) {
	store := p.g.Store
	byID := map[string]*models.Deal{}
	var won, others []ranked
	for i := range deals {
		d := &deals[i]
		byID[d.ID] = d
		r := ranked{id: d.ID, created: d.CreatedAt}
		if d.StageKind == models.StageKindWon {
			won = append(won, r)
			continue
		}
		if d.StageKind == models.StageKindLost {
			r.group = 1
		}
		others = append(others, r)
	}
	current := int64(len(won))
	if current > target {
		for _, id := range pickRanked(won, int(current-target)) {
			d := byID[id]
			d.StageKind = models.StageKindLost
			d.StageId = state.StageIds[models.StageKindLost]
			if err := store.UpdateDeal(ctx, d); err != nil {
				return 0, fmt.Errorf("mark deal lost: %w", err)
			}
		}
		p.log(job, logrus.InfoLevel, fmt.Sprintf("%s: %d won deals marked lost", month, current-target))
		return 0, nil
	}
	deficit := target - current
	fromNew := min(deficit, creating)
	flip := deficit - fromNew
	if flip <= 0 {
		return fromNew, nil
	}
	r := NewRand(SeedFromString(job.Seed)).Derive(string(models.PhaseReconcile), month)
	last := minTime(end.Add(-time.Second), *job.StartedAt).UTC()
	for _, id := range pickRanked(others, int(flip)) {
		d := byID[id]
		closed := between(r, d.CreatedAt, last).UTC()
		d.StageKind = models.StageKindWon
		d.StageId = state.StageIds[models.StageKindWon]
		d.ClosedAt = &closed
		d.ExpectedCloseDate = &closed
		if err := store.UpdateDeal(ctx, d); err != nil {
			return 0, fmt.Errorf("mark deal won: %w", err)
		}
	}
	p.log(job, logrus.InfoLevel, fmt.Sprintf("%s: %d open deals marked won", month, flip))
	return fromNew, nil
}

// rescaleMonth sets deal values of month so won value and pipeline match the targets to
// the cent. Zero targets leave values as they are.
func (p *PatchEngine) rescaleMonth(ctx context.Context, job *models.DemoPatchJob, tenant *models.Tenant, month models.MonthlyTarget) error {
	start, end, err := models.MonthBounds(month.Month, tenant.Location())
	if err != nil {
		return err
	}
	deals, err := p.g.Store.GeneratedDealsIn(ctx, tenant.ID, start, end)
	if err != nil {
		return fmt.Errorf("list deals: %w", err)
	}
	var won, rest []models.Deal
	for _, d := range deals {
		if d.StageKind == models.StageKindWon {
			won = append(won, d)
		} else {
			rest = append(rest, d)
		}
	}
	t := month.Targets
	if t.ClosedWonValue.IsPositive() {
		rescaleDeals(won, t.ClosedWonValue)
	}
	wonSum := decimal.Zero
	for _, d := range won {
		wonSum = wonSum.Add(d.Value)
	}
	if t.PipelineAddedValue.IsPositive() {
		rescaleDeals(rest, decimal.Max(t.PipelineAddedValue.Sub(wonSum), decimal.Zero))
	}
	for _, group := range [][]models.Deal{won, rest} {
		for i := range group {
			if err := p.g.Store.UpdateDeal(ctx, &group[i]); err != nil {
				return fmt.Errorf("update deal value: %w", err)
			}
		}
	}
	job.CurrentStep = "rescaled " + month.Month
	return nil
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := items[:0:0]
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}
