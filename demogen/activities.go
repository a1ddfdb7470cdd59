package demogen

import (
	"context"
	"fmt"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/models"
)

// buildActivities creates the lifecycle activities of the contacts written by the contacts
// unit of the same origin and month. Generated activities run up to now; patch activities
// end with the month.
func buildActivities(ctx context.Context, env *unitEnv) ([]models.Activity, error) {
	contactKey := batchKey(env.Origin, models.PhaseContacts, env.Month)
	contacts, err := env.Store.ListContactsByBatch(ctx, contactKey)
	if err != nil {
		return nil, fmt.Errorf("list contacts of %s: %w", contactKey, err)
	}
	if len(contacts) == 0 {
		return nil, nil
	}
	ids := make([]string, len(contacts))
	for i, c := range contacts {
		ids[i] = c.ID
	}
	deals, err := env.Store.ListDealsForContacts(ctx, env.Tenant.ID, ids)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	dealsByContact := map[string][]models.Deal{}
	for _, d := range deals {
		if d.ContactId != nil {
			dealsByContact[*d.ContactId] = append(dealsByContact[*d.ContactId], d)
		}
	}

	r := env.Rand
	p := env.Pools
	now := env.Now.UTC()
	until := now
	if env.PatchID != nil {
		until = minTime(env.End.Add(-time.Second), now).UTC()
	}
	var rows []models.Activity
	for _, c := range contacts {
		span, ok := p.ActivitiesPerStatus[c.Status]
		if !ok {
			span = [2]int{1, 3}
		}
		n := r.Int(span[0], span[1])
		for j := 0; j < n; j++ {
			typ := PickFrom(r, p.ActivityTypes)
			from := c.CreatedAt
			var dealID *string
			if ds := dealsByContact[c.ID]; len(ds) > 0 && r.Bool(env.Settings.LinkDeal) {
				d := Pick(r, ds)
				id := d.ID
				dealID = &id
				from = maxTime(from, d.CreatedAt)
			}
			scheduled := between(r, from, until).UTC()
			var completed *time.Time
			if scheduled.Before(now) && r.Bool(0.9) {
				done := minTime(scheduled.Add(time.Duration(r.Int(5, 90))*time.Minute), now)
				completed = &done
			}
			rows = append(rows, models.Activity{
				ID:             env.entityID(models.EntityActivity, len(rows)),
				TenantId:       env.Tenant.ID,
				Type:           typ,
				Subject:        Pick(r, p.ActivitySubjects[typ]),
				Description:    Pick(r, p.ActivityNotes[typ]),
				ContactId:      c.ID,
				DealId:         dealID,
				OwnerId:        c.OwnerId,
				ScheduledAt:    scheduled,
				CompletedAt:    completed,
				DemoProvenance: env.provenance(),
				CreatedAt:      scheduled,
				UpdatedAt:      scheduled,
			})
		}
	}
	return rows, nil
}
