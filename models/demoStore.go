package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/config"
	"github.com/davidprivate500/gonthia-crm-sub001/utils"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DemoStore is the gorm persistence behind the demo generator and patch engine.
type DemoStore struct {
	DB *gorm.DB
}

func NewDemoStore(db *gorm.DB) *DemoStore {
	return &DemoStore{DB: db}
}

func (s *DemoStore) db(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(utils.SystemContext(ctx))
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorRecordNotFound
	}
	return err
}

/* generation jobs */

func (s *DemoStore) CreateJob(ctx context.Context, job *GenerationJob) error {
	return s.db(ctx).Create(job).Error
}

func (s *DemoStore) GetJob(ctx context.Context, id string) (*GenerationJob, error) {
	var job GenerationJob
	if err := s.db(ctx).Where("id = ?", id).Take(&job).Error; err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

var jobProgressColumns = []string{
	"status", "progress", "current_step", "generation_phase", "generation_state", "logs",
	"metrics", "verification_report", "verification_passed", "error_message", "error_stack",
	"next_run_at", "started_at", "completed_at",
}

func (s *DemoStore) SaveJobProgress(ctx context.Context, job *GenerationJob) error {
	return s.db(ctx).Model(job).Select(jobProgressColumns).Updates(job).Error
}

func (s *DemoStore) SetJobTenant(ctx context.Context, jobID string, tenantID string) error {
	return s.db(ctx).Model(&GenerationJob{}).Where("id = ?", jobID).
		Update("created_tenant_id", tenantID).Error
}

func (s *DemoStore) AcquireJobLease(ctx context.Context, jobID, owner string, now, until time.Time) (bool, error) {
	return s.acquireLease(ctx, &GenerationJob{}, jobID, owner, now, until)
}

func (s *DemoStore) ReleaseJobLease(ctx context.Context, jobID, owner string) error {
	return s.releaseLease(ctx, &GenerationJob{}, jobID, owner)
}

func (s *DemoStore) acquireLease(ctx context.Context, model any, id, owner string, now, until time.Time) (bool, error) {
	res := s.db(ctx).Model(model).
		Where("id = ?", id).
		Where("(locked_until IS NULL OR locked_until < ? OR locked_by = ?)", now, owner).
		Updates(map[string]interface{}{
			"locked_by":    owner,
			"locked_until": until,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *DemoStore) releaseLease(ctx context.Context, model any, id, owner string) error {
	return s.db(ctx).Model(model).
		Where("id = ? AND locked_by = ?", id, owner).
		Updates(map[string]interface{}{
			"locked_by":    nil,
			"locked_until": nil,
		}).Error
}

/* patch jobs */

func (s *DemoStore) CreatePatchJob(ctx context.Context, job *DemoPatchJob) error {
	return s.db(ctx).Create(job).Error
}

func (s *DemoStore) GetPatchJob(ctx context.Context, id string) (*DemoPatchJob, error) {
	var job DemoPatchJob
	if err := s.db(ctx).Where("id = ?", id).Take(&job).Error; err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

var patchProgressColumns = []string{
	"status", "progress", "current_step", "state", "logs", "metrics", "before", "after", "diff",
	"error_message", "error_stack", "next_run_at", "started_at", "completed_at",
}

func (s *DemoStore) SavePatchProgress(ctx context.Context, job *DemoPatchJob) error {
	return s.db(ctx).Model(job).Select(patchProgressColumns).Updates(job).Error
}

func (s *DemoStore) AcquirePatchLease(ctx context.Context, patchID, owner string, now, until time.Time) (bool, error) {
	return s.acquireLease(ctx, &DemoPatchJob{}, patchID, owner, now, until)
}

func (s *DemoStore) ReleasePatchLease(ctx context.Context, patchID, owner string) error {
	return s.releaseLease(ctx, &DemoPatchJob{}, patchID, owner)
}

// UpsertOverride relies on the (tenant_id, month) unique index: concurrent patches of the
// same month collapse into one row instead of inserting twice. An accumulating write is
// skipped when the row already carries patchID, so a resumed patch never adds twice.
func (s *DemoStore) UpsertOverride(ctx context.Context, tenantID, patchID string, o MetricOverride, accumulate bool) error {
	row := NewDemoMetricOverride(tenantID, o)
	row.LastPatchId = &patchID

	assignments := map[string]interface{}{
		"last_patch_id": patchID,
		"updated_at":    time.Now().UTC(),
	}
	setCount := func(col string, v *int64) {
		if v == nil {
			return
		}
		if accumulate {
			assignments[col] = gorm.Expr(fmt.Sprintf("CASE WHEN last_patch_id = ? THEN %s WHEN %s < 0 THEN ? ELSE %s + ? END", col, col, col), patchID, *v, *v)
			return
		}
		assignments[col] = *v
	}
	setCount("contacts_created", o.ContactsCreated)
	setCount("companies_created", o.CompaniesCreated)
	setCount("deals_created", o.DealsCreated)
	setCount("closed_won_count", o.ClosedWonCount)
	setCount("activities_created", o.ActivitiesCreated)
	if o.ClosedWonValue != nil {
		if accumulate {
			assignments["closed_won_value"] = gorm.Expr("CASE WHEN last_patch_id = ? THEN closed_won_value WHEN closed_won_value < 0 THEN ? ELSE closed_won_value + ? END", patchID, *o.ClosedWonValue, *o.ClosedWonValue)
		} else {
			assignments["closed_won_value"] = *o.ClosedWonValue
		}
	}

	return s.db(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "month"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&row).Error
}

// ListOverrides returns the overrides of tenantID for months, sentinel already decoded.
func (s *DemoStore) ListOverrides(ctx context.Context, tenantID string, months []string) ([]MetricOverride, error) {
	return ListMetricOverrides(s.db(ctx), tenantID, months)
}

func ListMetricOverrides(db *gorm.DB, tenantID string, months []string) ([]MetricOverride, error) {
	if len(months) == 0 {
		return nil, nil
	}
	var rows []DemoMetricOverride
	if err := db.Where("tenant_id = ? AND month IN ?", tenantID, months).Order("month").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]MetricOverride, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToOverride())
	}
	return out, nil
}

/* tenants */

func (s *DemoStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	if err := s.db(ctx).Where("id = ?", id).Take(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// ListTenants loads the tenants with the given ids; unknown ids are absent from the result.
func (s *DemoStore) ListTenants(ctx context.Context, ids []string) ([]Tenant, error) {
	var rows []Tenant
	err := inChunks(ids, func(part []string) error {
		var batch []Tenant
		if err := s.db(ctx).Where("id IN ?", part).Find(&batch).Error; err != nil {
			return err
		}
		rows = append(rows, batch...)
		return nil
	})
	return rows, err
}

// CreateTenant inserts tenant. Tenant ids are derived from the job id, so a duplicate key
// means a concurrent setup already created it.
func (s *DemoStore) CreateTenant(ctx context.Context, tenant *Tenant) error {
	err := s.db(ctx).Create(tenant).Error
	if config.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

func (s *DemoStore) ListUsers(ctx context.Context, tenantID string) ([]User, error) {
	var users []User
	err := s.db(ctx).Where("tenant_id = ?", tenantID).Order("created_at, id").Find(&users).Error
	return users, err
}

func (s *DemoStore) CreateUsers(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}
	return s.db(ctx).Create(&users).Error
}

func (s *DemoStore) ListStages(ctx context.Context, tenantID string) ([]PipelineStage, error) {
	var stages []PipelineStage
	err := s.db(ctx).Where("tenant_id = ?", tenantID).Order("position").Find(&stages).Error
	return stages, err
}

func (s *DemoStore) CreateStages(ctx context.Context, stages []PipelineStage) error {
	if len(stages) == 0 {
		return nil
	}
	return s.db(ctx).Create(&stages).Error
}

func (s *DemoStore) DeleteTenantCascade(ctx context.Context, tenantID string) error {
	return s.db(ctx).Transaction(func(tx *gorm.DB) error {
		// children first
		for _, model := range []any{&Activity{}, &Deal{}, &Contact{}, &Company{}, &PipelineStage{}, &User{}, &DemoMetricOverride{}} {
			if err := tx.Unscoped().Where("tenant_id = ?", tenantID).Delete(model).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("id = ?", tenantID).Delete(&Tenant{}).Error; err != nil {
			return err
		}
		// A continuation racing this delete sees a missing tenant reference and starts over
		// instead of writing into the removed tenant.
		return tx.Model(&GenerationJob{}).
			Where("created_tenant_id = ?", tenantID).
			Updates(map[string]interface{}{
				"created_tenant_id": nil,
				"generation_phase":  PhaseInit,
				"generation_state":  datatypes.NewJSONType(GenerationState{Version: GenerationStateVersion}),
				"progress":          0,
				"current_step":      "tenant deleted",
				"status":            gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", GenerationStatusRunning, GenerationStatusFailed),
			}).Error
	})
}

/* generated entities */

func (s *DemoStore) InsertCompanies(ctx context.Context, rows []Company) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db(ctx).Create(&rows).Error
}

func (s *DemoStore) InsertContacts(ctx context.Context, rows []Contact) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db(ctx).Create(&rows).Error
}

func (s *DemoStore) InsertDeals(ctx context.Context, rows []Deal) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db(ctx).Create(&rows).Error
}

func (s *DemoStore) InsertActivities(ctx context.Context, rows []Activity) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db(ctx).Create(&rows).Error
}

func entityModel(kind EntityKind) (any, error) {
	switch kind {
	case EntityCompany:
		return &Company{}, nil
	case EntityContact:
		return &Contact{}, nil
	case EntityDeal:
		return &Deal{}, nil
	case EntityActivity:
		return &Activity{}, nil
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
}

func (s *DemoStore) CountBatch(ctx context.Context, kind EntityKind, batchKey string) (int, error) {
	model, err := entityModel(kind)
	if err != nil {
		return 0, err
	}
	var n int64
	// Unscoped: rows soft-deleted by a later reconcile still count as written.
	err = s.db(ctx).Unscoped().Model(model).Where("demo_batch_key = ?", batchKey).Count(&n).Error
	return int(n), err
}

func (s *DemoStore) CompanyNames(ctx context.Context, tenantID, excludeBatch string) (map[string]struct{}, error) {
	var names []string
	err := s.db(ctx).Model(&Company{}).
		Where("tenant_id = ? AND demo_batch_key <> ?", tenantID, excludeBatch).
		Pluck("name", &names).Error
	if err != nil {
		return nil, err
	}
	return toSet(names), nil
}

func (s *DemoStore) ContactEmails(ctx context.Context, tenantID, excludeBatch string) (map[string]struct{}, error) {
	var emails []string
	err := s.db(ctx).Model(&Contact{}).
		Where("tenant_id = ? AND demo_batch_key <> ?", tenantID, excludeBatch).
		Pluck("email", &emails).Error
	if err != nil {
		return nil, err
	}
	return toSet(emails), nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func (s *DemoStore) ListCompanies(ctx context.Context, tenantID string, before time.Time) ([]Company, error) {
	var rows []Company
	err := s.db(ctx).Where("tenant_id = ? AND created_at < ?", tenantID, before.UTC()).
		Order("created_at, id").Find(&rows).Error
	return rows, err
}

func (s *DemoStore) ListContacts(ctx context.Context, tenantID string, before time.Time) ([]Contact, error) {
	var rows []Contact
	err := s.db(ctx).Where("tenant_id = ? AND created_at < ?", tenantID, before.UTC()).
		Order("created_at, id").Find(&rows).Error
	return rows, err
}

func (s *DemoStore) ListContactsByBatch(ctx context.Context, batchKey string) ([]Contact, error) {
	var rows []Contact
	err := s.db(ctx).Where("demo_batch_key = ?", batchKey).Order("created_at, id").Find(&rows).Error
	return rows, err
}

func (s *DemoStore) ListDealsForContacts(ctx context.Context, tenantID string, contactIDs []string) ([]Deal, error) {
	var rows []Deal
	err := inChunks(contactIDs, func(part []string) error {
		var found []Deal
		if err := s.db(ctx).Where("tenant_id = ? AND contact_id IN ?", tenantID, part).
			Order("created_at, id").Find(&found).Error; err != nil {
			return err
		}
		rows = append(rows, found...)
		return nil
	})
	return rows, err
}

// inChunks splits IN lists to stay under placeholder limits.
func inChunks(ids []string, fn func(part []string) error) error {
	const chunk = 500
	for start := 0; start < len(ids); start += chunk {
		if err := fn(ids[start:min(start+chunk, len(ids))]); err != nil {
			return err
		}
	}
	return nil
}

// ListActivitiesFor returns the activities of the given contacts or deals, each row once.
func (s *DemoStore) ListActivitiesFor(ctx context.Context, tenantID string, contactIDs, dealIDs []string) ([]Activity, error) {
	seen := map[string]bool{}
	var rows []Activity
	collect := func(column string, ids []string) error {
		return inChunks(ids, func(part []string) error {
			var found []Activity
			if err := s.db(ctx).Where("tenant_id = ? AND "+column+" IN ?", tenantID, part).
				Order("created_at, id").Find(&found).Error; err != nil {
				return err
			}
			for _, a := range found {
				if !seen[a.ID] {
					seen[a.ID] = true
					rows = append(rows, a)
				}
			}
			return nil
		})
	}
	if err := collect("contact_id", contactIDs); err != nil {
		return nil, err
	}
	if err := collect("deal_id", dealIDs); err != nil {
		return nil, err
	}
	return rows, nil
}

type monthCount struct {
	Month string
	Total int64
}

type dealValueRow struct {
	Month     string
	StageKind StageKind
	Value     decimal.Decimal
}

func (s *DemoStore) JobMonthMetrics(ctx context.Context, tenantID, jobID string) (map[string]MonthMetrics, error) {
	out := map[string]MonthMetrics{}
	get := func(month string) MonthMetrics {
		m, ok := out[month]
		if !ok {
			m = MonthMetrics{Month: month}
		}
		return m
	}
	countBy := func(model any, extra string, apply func(m *MonthMetrics, n int64)) error {
		var rows []monthCount
		q := s.db(ctx).Model(model).
			Select("demo_source_month AS month, COUNT(*) AS total").
			Where("tenant_id = ? AND demo_job_id = ? AND demo_patch_id IS NULL", tenantID, jobID)
		if extra != "" {
			q = q.Where(extra)
		}
		if err := q.Group("demo_source_month").Scan(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			m := get(r.Month)
			apply(&m, r.Total)
			out[r.Month] = m
		}
		return nil
	}

	if err := countBy(&Company{}, "", func(m *MonthMetrics, n int64) { m.CompaniesCreated = n }); err != nil {
		return nil, err
	}
	if err := countBy(&Contact{}, "", func(m *MonthMetrics, n int64) { m.ContactsCreated = n }); err != nil {
		return nil, err
	}
	if err := countBy(&Contact{}, fmt.Sprintf("status = '%s'", ContactStatusLead), func(m *MonthMetrics, n int64) { m.LeadsCreated = n }); err != nil {
		return nil, err
	}
	if err := countBy(&Activity{}, "", func(m *MonthMetrics, n int64) { m.ActivitiesCreated = n }); err != nil {
		return nil, err
	}

	// Values are summed in Go so every driver yields exact decimals.
	var deals []dealValueRow
	if err := s.db(ctx).Model(&Deal{}).
		Select("demo_source_month AS month, stage_kind, value").
		Where("tenant_id = ? AND demo_job_id = ? AND demo_patch_id IS NULL", tenantID, jobID).
		Scan(&deals).Error; err != nil {
		return nil, err
	}
	for _, d := range deals {
		m := get(d.Month)
		m.DealsCreated++
		m.PipelineAddedValue = m.PipelineAddedValue.Add(d.Value)
		if d.StageKind == StageKindWon {
			m.ClosedWonCount++
			m.ClosedWonValue = m.ClosedWonValue.Add(d.Value)
		}
		out[d.Month] = m
	}
	for k, m := range out {
		m.ClosedWonValue = m.ClosedWonValue.Round(2)
		m.PipelineAddedValue = m.PipelineAddedValue.Round(2)
		out[k] = m
	}
	return out, nil
}

func (s *DemoStore) GeneratedCompaniesIn(ctx context.Context, tenantID string, from, to time.Time) ([]Company, error) {
	var rows []Company
	err := s.db(ctx).Where("tenant_id = ? AND demo_generated = ? AND created_at >= ? AND created_at < ?", tenantID, true, from.UTC(), to.UTC()).
		Order("created_at, id").Find(&rows).Error
	return rows, err
}

func (s *DemoStore) GeneratedContactsIn(ctx context.Context, tenantID string, from, to time.Time) ([]Contact, error) {
	var rows []Contact
	err := s.db(ctx).Where("tenant_id = ? AND demo_generated = ? AND created_at >= ? AND created_at < ?", tenantID, true, from.UTC(), to.UTC()).
		Order("created_at, id").Find(&rows).Error
	return rows, err
}

func (s *DemoStore) GeneratedDealsIn(ctx context.Context, tenantID string, from, to time.Time) ([]Deal, error) {
	var rows []Deal
	err := s.db(ctx).Where("tenant_id = ? AND demo_generated = ? AND created_at >= ? AND created_at < ?", tenantID, true, from.UTC(), to.UTC()).
		Order("created_at, id").Find(&rows).Error
	return rows, err
}

func (s *DemoStore) SoftDelete(ctx context.Context, kind EntityKind, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	model, err := entityModel(kind)
	if err != nil {
		return err
	}
	return s.db(ctx).Where("id IN ?", ids).Delete(model).Error
}

func (s *DemoStore) UpdateContactStatus(ctx context.Context, ids []string, status ContactStatus) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db(ctx).Model(&Contact{}).Where("id IN ?", ids).Update("status", status).Error
}

// ClearCompany drops references to the given companies from contacts and deals.
func (s *DemoStore) ClearCompany(ctx context.Context, tenantID string, companyIDs []string) error {
	return inChunks(companyIDs, func(part []string) error {
		for _, model := range []any{&Contact{}, &Deal{}} {
			if err := s.db(ctx).Model(model).Where("tenant_id = ? AND company_id IN ?", tenantID, part).
				Update("company_id", gorm.Expr("NULL")).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateDealContact moves a deal to another contact (or none) with that contact's company and owner.
func (s *DemoStore) UpdateDealContact(ctx context.Context, deal *Deal) error {
	return s.db(ctx).Model(deal).Select("contact_id", "company_id", "owner_id").Updates(deal).Error
}

func (s *DemoStore) UpdateActivityLinks(ctx context.Context, activity *Activity) error {
	return s.db(ctx).Model(activity).Select("contact_id", "deal_id", "owner_id").Updates(activity).Error
}

func (s *DemoStore) UpdateDeal(ctx context.Context, deal *Deal) error {
	return s.db(ctx).Model(deal).
		Select("stage_id", "stage_kind", "value", "closed_at", "expected_close_date").
		Updates(deal).Error
}
