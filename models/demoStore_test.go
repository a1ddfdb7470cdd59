package models_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/config"
	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/davidprivate500/gonthia-crm-sub001/utils"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

func newDemoStore(t *testing.T) *models.DemoStore {
	t.Helper()
	db, err := config.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return models.NewDemoStore(db)
}

func seedDemoTenant(t *testing.T, s *models.DemoStore, id string) {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateTenant(ctx, &models.Tenant{ID: id, Name: "Demo " + id, Country: "US", Currency: "USD", Timezone: "UTC", IsDemo: true}); err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
}

func TestCreateTenantTwiceKeepsFirst(t *testing.T) {
	s := newDemoStore(t)
	ctx := context.Background()
	seedDemoTenant(t, s, "t1")
	if err := s.CreateTenant(ctx, &models.Tenant{ID: "t1", Name: "Other", Country: "GB", Currency: "GBP", Timezone: "UTC", IsDemo: true}); err != nil {
		t.Fatalf("second CreateTenant: %v", err)
	}
	got, err := s.GetTenant(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if got.Name != "Demo t1" {
		t.Fatalf("tenant overwritten: %+v", got)
	}
}

func TestUpsertOverrideAccumulateIsIdempotentPerPatch(t *testing.T) {
	s := newDemoStore(t)
	ctx := context.Background()
	seedDemoTenant(t, s, "t1")

	add := func(patch string, contacts int64, value string) {
		t.Helper()
		v := decimal.RequireFromString(value)
		o := models.MetricOverride{Month: "2025-01", ContactsCreated: &contacts, ClosedWonValue: &v}
		if err := s.UpsertOverride(ctx, "t1", patch, o, true); err != nil {
			t.Fatalf("UpsertOverride: %v", err)
		}
	}
	add("p1", 30, "1000")
	add("p1", 30, "1000") // resumed patch
	add("p2", 20, "500.25")

	got, err := s.ListOverrides(ctx, "t1", []string{"2025-01", "2025-02"})
	if err != nil {
		t.Fatalf("ListOverrides: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("overrides = %+v", got)
	}
	o := got[0]
	if o.ContactsCreated == nil || *o.ContactsCreated != 50 {
		t.Fatalf("contacts = %v, want 50", o.ContactsCreated)
	}
	if o.ClosedWonValue == nil || !o.ClosedWonValue.Equal(decimal.RequireFromString("1500.25")) {
		t.Fatalf("won value = %v", o.ClosedWonValue)
	}
	if o.DealsCreated != nil {
		t.Fatalf("deals never set but read as %d", *o.DealsCreated)
	}
}

func TestUpsertOverrideReplace(t *testing.T) {
	s := newDemoStore(t)
	ctx := context.Background()
	seedDemoTenant(t, s, "t1")
	for _, n := range []int64{40, 15} {
		v := n
		if err := s.UpsertOverride(ctx, "t1", "p", models.MetricOverride{Month: "2025-03", DealsCreated: &v}, false); err != nil {
			t.Fatalf("UpsertOverride: %v", err)
		}
	}
	got, _ := s.ListOverrides(ctx, "t1", []string{"2025-03"})
	if len(got) != 1 || got[0].DealsCreated == nil || *got[0].DealsCreated != 15 {
		t.Fatalf("overrides = %+v", got)
	}
}

func TestJobLease(t *testing.T) {
	s := newDemoStore(t)
	ctx := context.Background()
	job := &models.GenerationJob{ID: "job-1", Status: models.GenerationStatusPending, Mode: models.GenerationModeGrowthCurve,
		Seed: "42", GenerationPhase: models.PhaseInit}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ok, err := s.AcquireJobLease(ctx, job.ID, "a", now, now.Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("first acquire: %v %v", ok, err)
	}
	if ok, _ := s.AcquireJobLease(ctx, job.ID, "b", now.Add(time.Second), now.Add(time.Minute)); ok {
		t.Fatalf("second worker took a live lease")
	}
	if ok, _ := s.AcquireJobLease(ctx, job.ID, "a", now.Add(time.Second), now.Add(2*time.Minute)); !ok {
		t.Fatalf("owner could not extend its lease")
	}
	if err := s.ReleaseJobLease(ctx, job.ID, "a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := s.AcquireJobLease(ctx, job.ID, "b", now.Add(time.Second), now.Add(time.Minute)); !ok {
		t.Fatalf("released lease not available")
	}
	if ok, _ := s.AcquireJobLease(ctx, job.ID, "c", now.Add(2*time.Minute), now.Add(3*time.Minute)); !ok {
		t.Fatalf("expired lease not taken over")
	}

	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("GetJob missing: %v", err)
	}
}

func TestDeleteTenantCascade(t *testing.T) {
	s := newDemoStore(t)
	ctx := context.Background()
	seedDemoTenant(t, s, "t1")
	seedDemoTenant(t, s, "t2")

	jobID := "job-1"
	month := "2025-01"
	prov := func(batch string) models.DemoProvenance {
		return models.DemoProvenance{DemoGenerated: true, DemoJobId: &jobID, DemoSourceMonth: &month, DemoBatchKey: batch}
	}
	created := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	for _, tenant := range []string{"t1", "t2"} {
		if err := s.InsertCompanies(ctx, []models.Company{{ID: tenant + "-co", TenantId: tenant, Name: "Co", DemoProvenance: prov(tenant + ":companies"), CreatedAt: created}}); err != nil {
			t.Fatalf("InsertCompanies: %v", err)
		}
		if err := s.InsertContacts(ctx, []models.Contact{{ID: tenant + "-c", TenantId: tenant, FirstName: "A", LastName: "B", Status: models.ContactStatusLead, DemoProvenance: prov(tenant + ":contacts"), CreatedAt: created}}); err != nil {
			t.Fatalf("InsertContacts: %v", err)
		}
	}
	tenantID := "t1"
	job := &models.GenerationJob{ID: jobID, Status: models.GenerationStatusRunning, Mode: models.GenerationModeGrowthCurve,
		Seed: "42", GenerationPhase: models.PhaseDeals, CreatedTenantId: &tenantID,
		GenerationState: datatypes.NewJSONType(models.GenerationState{Version: models.GenerationStateVersion, Invocations: 3})}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	// soft-deleted rows go too
	if err := s.SoftDelete(ctx, models.EntityContact, []string{"t1-c"}); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	if err := s.DeleteTenantCascade(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTenantCascade: %v", err)
	}
	if _, err := s.GetTenant(ctx, "t1"); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("tenant survived: %v", err)
	}
	var left int64
	s.DB.Unscoped().Model(&models.Contact{}).Where("tenant_id = ?", "t1").Count(&left)
	if left != 0 {
		t.Fatalf("%d contacts survived", left)
	}
	if n, _ := s.CountBatch(ctx, models.EntityCompany, "t2:companies"); n != 1 {
		t.Fatalf("other tenant lost rows: %d", n)
	}

	got, err := s.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.CreatedTenantId != nil || got.Status != models.GenerationStatusFailed || got.GenerationPhase != models.PhaseInit {
		t.Fatalf("job after teardown = %s %s tenant %v", got.Status, got.GenerationPhase, got.CreatedTenantId)
	}
	if got.GenerationState.Data().Invocations != 0 {
		t.Fatalf("generation state not reset: %+v", got.GenerationState.Data())
	}
}

func TestJobMonthMetricsIgnoresPatchRows(t *testing.T) {
	s := newDemoStore(t)
	ctx := context.Background()
	seedDemoTenant(t, s, "t1")

	jobID, patchID := "job-1", "patch-1"
	jan, feb := "2025-01", "2025-02"
	won := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	deals := []models.Deal{
		{ID: "d1", TenantId: "t1", StageKind: models.StageKindWon, Value: decimal.RequireFromString("1200.50"), ClosedAt: &won,
			DemoProvenance: models.DemoProvenance{DemoGenerated: true, DemoJobId: &jobID, DemoSourceMonth: &jan, DemoBatchKey: "b1"}, CreatedAt: won},
		{ID: "d2", TenantId: "t1", StageKind: models.StageKindProposal, Value: decimal.RequireFromString("800"),
			DemoProvenance: models.DemoProvenance{DemoGenerated: true, DemoJobId: &jobID, DemoSourceMonth: &jan, DemoBatchKey: "b1"}, CreatedAt: won},
		{ID: "d3", TenantId: "t1", StageKind: models.StageKindWon, Value: decimal.RequireFromString("5000"), ClosedAt: &won,
			DemoProvenance: models.DemoProvenance{DemoGenerated: true, DemoJobId: &jobID, DemoPatchId: &patchID, DemoSourceMonth: &jan, DemoBatchKey: "b2"}, CreatedAt: won},
		{ID: "d4", TenantId: "t1", StageKind: models.StageKindNew, Value: decimal.RequireFromString("300"),
			DemoProvenance: models.DemoProvenance{DemoGenerated: true, DemoJobId: &jobID, DemoSourceMonth: &feb, DemoBatchKey: "b3"}, CreatedAt: won.AddDate(0, 1, 0)},
	}
	if err := s.InsertDeals(ctx, deals); err != nil {
		t.Fatalf("InsertDeals: %v", err)
	}
	got, err := s.JobMonthMetrics(ctx, "t1", jobID)
	if err != nil {
		t.Fatalf("JobMonthMetrics: %v", err)
	}
	j := got["2025-01"]
	if j.DealsCreated != 2 || j.ClosedWonCount != 1 {
		t.Fatalf("january = %+v", j)
	}
	if !j.ClosedWonValue.Equal(decimal.RequireFromString("1200.5")) || !j.PipelineAddedValue.Equal(decimal.RequireFromString("2000.5")) {
		t.Fatalf("january values: won %s pipeline %s", j.ClosedWonValue, j.PipelineAddedValue)
	}
	if got["2025-02"].DealsCreated != 1 {
		t.Fatalf("february = %+v", got["2025-02"])
	}
}
