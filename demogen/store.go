package demogen

import (
	"context"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/models"
)

// JobStore persists generation jobs. Not-found lookups return utils.ErrorRecordNotFound.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.GenerationJob) error
	GetJob(ctx context.Context, id string) (*models.GenerationJob, error)
	// SaveJobProgress writes execution columns only. It never touches the tenant
	// reference or the lease, so it cannot undo a concurrent teardown.
	SaveJobProgress(ctx context.Context, job *models.GenerationJob) error
	SetJobTenant(ctx context.Context, jobID string, tenantID string) error
	AcquireJobLease(ctx context.Context, jobID, owner string, now, until time.Time) (bool, error)
	ReleaseJobLease(ctx context.Context, jobID, owner string) error
}

type PatchStore interface {
	CreatePatchJob(ctx context.Context, job *models.DemoPatchJob) error
	GetPatchJob(ctx context.Context, id string) (*models.DemoPatchJob, error)
	SavePatchProgress(ctx context.Context, job *models.DemoPatchJob) error
	AcquirePatchLease(ctx context.Context, patchID, owner string, now, until time.Time) (bool, error)
	ReleasePatchLease(ctx context.Context, patchID, owner string) error
	// UpsertOverride writes the (tenant, month) override row atomically. With accumulate
	// set, stored values are increased by the set fields; otherwise they are replaced.
	UpsertOverride(ctx context.Context, tenantID, patchID string, o models.MetricOverride, accumulate bool) error
}

type TenantStore interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	ListUsers(ctx context.Context, tenantID string) ([]models.User, error)
	CreateUsers(ctx context.Context, users []models.User) error
	ListStages(ctx context.Context, tenantID string) ([]models.PipelineStage, error)
	CreateStages(ctx context.Context, stages []models.PipelineStage) error
	// DeleteTenantCascade removes the tenant and every row it owns in one transaction,
	// then detaches generation jobs that point at it.
	DeleteTenantCascade(ctx context.Context, tenantID string) error
}

// EntityStore writes and reads generated CRM rows. Listing methods return rows in
// (created_at, id) order so regenerated units see identical inputs.
type EntityStore interface {
	InsertCompanies(ctx context.Context, rows []models.Company) error
	InsertContacts(ctx context.Context, rows []models.Contact) error
	InsertDeals(ctx context.Context, rows []models.Deal) error
	InsertActivities(ctx context.Context, rows []models.Activity) error

	CountBatch(ctx context.Context, kind models.EntityKind, batchKey string) (int, error)
	CompanyNames(ctx context.Context, tenantID, excludeBatch string) (map[string]struct{}, error)
	ContactEmails(ctx context.Context, tenantID, excludeBatch string) (map[string]struct{}, error)

	ListCompanies(ctx context.Context, tenantID string, before time.Time) ([]models.Company, error)
	ListContacts(ctx context.Context, tenantID string, before time.Time) ([]models.Contact, error)
	ListContactsByBatch(ctx context.Context, batchKey string) ([]models.Contact, error)
	ListDealsForContacts(ctx context.Context, tenantID string, contactIDs []string) ([]models.Deal, error)
	ListActivitiesFor(ctx context.Context, tenantID string, contactIDs, dealIDs []string) ([]models.Activity, error)

	// JobMonthMetrics aggregates rows of one generation job by source month.
	JobMonthMetrics(ctx context.Context, tenantID, jobID string) (map[string]models.MonthMetrics, error)

	GeneratedCompaniesIn(ctx context.Context, tenantID string, from, to time.Time) ([]models.Company, error)
	GeneratedContactsIn(ctx context.Context, tenantID string, from, to time.Time) ([]models.Contact, error)
	GeneratedDealsIn(ctx context.Context, tenantID string, from, to time.Time) ([]models.Deal, error)
	SoftDelete(ctx context.Context, kind models.EntityKind, ids []string) error
	UpdateContactStatus(ctx context.Context, ids []string, status models.ContactStatus) error
	UpdateDeal(ctx context.Context, deal *models.Deal) error
	UpdateDealContact(ctx context.Context, deal *models.Deal) error
	UpdateActivityLinks(ctx context.Context, activity *models.Activity) error
	ClearCompany(ctx context.Context, tenantID string, companyIDs []string) error
}

// Store is everything the generator and patch engine persist through.
type Store interface {
	JobStore
	PatchStore
	TenantStore
	EntityStore
}

// MetricsSource is the reporting view of a tenant: base aggregates by creation month in
// the tenant timezone, optionally with metric overrides folded in.
type MetricsSource interface {
	BaseMetrics(ctx context.Context, tenantID string, months []string) ([]models.MonthMetrics, error)
	PeriodMetrics(ctx context.Context, tenantID string, months []string) ([]models.MonthMetrics, error)
	InvalidateTenant(ctx context.Context, tenantID string) error
}

// Unlocker releases a lock obtained from a Locker.
type Unlocker interface {
	Release(ctx context.Context) error
}

// Locker is a best-effort distributed mutex guarding duplicate continuation triggers.
// Obtain returns ErrLockNotObtained when another holder owns key.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Unlocker, error)
}
