package demogen

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/config"
	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTestGenerator(t *testing.T, tune func(*config.DemoSettings)) (*Generator, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	settings := config.DefaultDemoSettings()
	if tune != nil {
		tune(&settings)
	}
	g := NewGenerator(models.NewDemoStore(db), settings, logger)
	g.Now = func() time.Time { return planNow }
	return g, db
}

// threeMonthConfig asks for 100 contacts, 40 leads, 20 companies, 25 deals and 8 wins
// worth 96000 out of 250000 pipeline in each of 2025-01..2025-03.
func threeMonthConfig() models.JobConfig {
	return models.JobConfig{
		Mode:       models.GenerationModeGrowthCurve,
		TenantName: "Acme Demo",
		Country:    "US",
		Currency:   "USD",
		Timezone:   "UTC",
		TeamSize:   4,
		Growth: &models.GrowthConfig{
			StartMonth: "2025-01",
			Months:     3,
			Curve:      models.CurveLinear,
			Targets: models.GrowthTargets{
				Contacts:       i64(300),
				Leads:          i64(120),
				Companies:      i64(60),
				Deals:          i64(75),
				ClosedWonCount: i64(24),
				ClosedWonValue: decPtr("288000"),
				PipelineValue:  decPtr("750000"),
			},
		},
	}
}

func runToCompletion(t *testing.T, g *Generator, jobID string) int {
	t.Helper()
	ctx := context.Background()
	res, err := g.Start(ctx, jobID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	steps := 1
	for !res.Done() {
		if steps > 500 {
			t.Fatalf("job did not finish after %d steps (phase %s)", steps, res.Phase)
		}
		if res, err = g.Continue(ctx, jobID); err != nil {
			t.Fatalf("Continue #%d: %v", steps, err)
		}
		steps++
	}
	return steps
}

func assertExactMonths(t *testing.T, g *Generator, job *models.GenerationJob) {
	t.Helper()
	actuals, err := g.Store.JobMonthMetrics(context.Background(), *job.CreatedTenantId, job.ID)
	if err != nil {
		t.Fatalf("JobMonthMetrics: %v", err)
	}
	for _, m := range []string{"2025-01", "2025-02", "2025-03"} {
		a := actuals[m]
		if a.ContactsCreated != 100 || a.LeadsCreated != 40 || a.CompaniesCreated != 20 ||
			a.DealsCreated != 25 || a.ClosedWonCount != 8 {
			t.Fatalf("%s counts = %+v", m, a)
		}
		if !a.ClosedWonValue.Equal(dec("96000")) || !a.PipelineAddedValue.Equal(dec("250000")) {
			t.Fatalf("%s values: won %s pipeline %s", m, a.ClosedWonValue, a.PipelineAddedValue)
		}
	}
}

func countRows(t *testing.T, db *gorm.DB, model any, tenantID string) int64 {
	t.Helper()
	var n int64
	if err := db.Unscoped().Model(model).Where("tenant_id = ?", tenantID).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestGenerateGrowthCurveCompletes(t *testing.T) {
	g, db := newTestGenerator(t, nil)
	ctx := context.Background()

	job, err := g.CreateJob(ctx, CreateJobRequest{Config: threeMonthConfig(), Seed: "42"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.Status != models.GenerationStatusPending || job.CreatedTenantId != nil {
		t.Fatalf("new job = %s tenant %v", job.Status, job.CreatedTenantId)
	}
	runToCompletion(t, g, job.ID)

	done, err := g.Status(ctx, job.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if done.Status != models.GenerationStatusCompleted || done.Progress != 100 || done.GenerationPhase != models.PhaseDone {
		t.Fatalf("job = %s %d%% %s", done.Status, done.Progress, done.GenerationPhase)
	}
	if done.VerificationPassed == nil || !*done.VerificationPassed {
		t.Fatalf("verification failed: %+v", done.VerificationReport.Data())
	}
	if done.CreatedTenantId == nil {
		t.Fatalf("completed job has no tenant")
	}
	assertExactMonths(t, g, done)

	tenant, err := g.Store.GetTenant(ctx, *done.CreatedTenantId)
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if !tenant.IsDemo || tenant.Name != "Acme Demo" || tenant.DemoJobId == nil || *tenant.DemoJobId != job.ID {
		t.Fatalf("tenant = %+v", tenant)
	}
	if n := countRows(t, db, &models.User{}, tenant.ID); n != 4 {
		t.Fatalf("users = %d, want 4", n)
	}
	if n := countRows(t, db, &models.Contact{}, tenant.ID); n != 300 {
		t.Fatalf("contacts = %d, want 300", n)
	}
	if n := countRows(t, db, &models.Activity{}, tenant.ID); n == 0 {
		t.Fatalf("no activities generated")
	}
	var unmarked int64
	if err := db.Unscoped().Model(&models.Contact{}).
		Where("tenant_id = ? AND (demo_generated = ? OR demo_source_month IS NULL OR demo_source_month NOT IN ?)",
			tenant.ID, false, []string{"2025-01", "2025-02", "2025-03"}).
		Count(&unmarked).Error; err != nil {
		t.Fatalf("count unmarked contacts: %v", err)
	}
	if unmarked != 0 {
		t.Fatalf("%d contacts without demo provenance in 2025-01..03", unmarked)
	}

	metrics := done.Metrics.Data()
	if metrics == nil || metrics.Contacts != 300 || metrics.Companies != 60 || metrics.Deals != 75 {
		t.Fatalf("job metrics = %+v", metrics)
	}
	if !metrics.WonValue.Equal(dec("288000")) {
		t.Fatalf("job won value = %s", metrics.WonValue)
	}

	// no generated row is dated after the moment generation started
	var late int64
	db.Model(&models.Deal{}).Where("tenant_id = ? AND created_at > ?", tenant.ID, planNow).Count(&late)
	if late != 0 {
		t.Fatalf("%d deals created in the future", late)
	}
}

func TestGenerateResumesInSmallSteps(t *testing.T) {
	g, db := newTestGenerator(t, func(s *config.DemoSettings) {
		s.MaxRowsPerInvocation = 40
		s.BatchSize = 15
	})
	ctx := context.Background()
	job, err := g.CreateJob(ctx, CreateJobRequest{Config: threeMonthConfig(), Seed: "42"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	res, err := g.Start(ctx, job.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !res.Yielded || res.Done() || res.NextRunAt == nil {
		t.Fatalf("first step should yield: %+v", res)
	}
	if res.RowsWritten < 40 || res.RowsWritten > 40+15 {
		t.Fatalf("first step wrote %d rows", res.RowsWritten)
	}

	steps := 1
	for !res.Done() {
		if res, err = g.Continue(ctx, job.ID); err != nil {
			t.Fatalf("Continue: %v", err)
		}
		steps++
		if steps > 500 {
			t.Fatalf("no completion after %d steps", steps)
		}
	}
	if steps < 10 {
		t.Fatalf("only %d steps for a budget of 40 rows", steps)
	}
	done, _ := g.Status(ctx, job.ID)
	if done.VerificationPassed == nil || !*done.VerificationPassed {
		t.Fatalf("verification failed: %+v", done.VerificationReport.Data())
	}
	if got := done.GenerationState.Data().Invocations; got != steps {
		t.Fatalf("invocations = %d, want %d", got, steps)
	}
	assertExactMonths(t, g, done)
	if n := countRows(t, db, &models.Company{}, *done.CreatedTenantId); n != 60 {
		t.Fatalf("companies = %d, want 60", n)
	}
}

var phaseOrder = map[models.GenerationPhase]int{
	models.PhaseInit: 0, models.PhaseTenantSetup: 1, models.PhaseCompanies: 2, models.PhaseContacts: 3,
	models.PhaseDeals: 4, models.PhaseActivities: 5, models.PhaseVerify: 6, models.PhaseDone: 7,
}

func TestResumeAfterCompaniesKeepsCompanies(t *testing.T) {
	g, db := newTestGenerator(t, func(s *config.DemoSettings) {
		s.MaxRowsPerInvocation = 10
		s.BatchSize = 5
	})
	ctx := context.Background()
	job, err := g.CreateJob(ctx, CreateJobRequest{Config: threeMonthConfig(), Seed: "42"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := g.Start(ctx, job.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cur, _ := g.Status(ctx, job.ID)
	for i := 0; cur.GenerationPhase != models.PhaseContacts; i++ {
		if i > 100 || phaseOrder[cur.GenerationPhase] > phaseOrder[models.PhaseContacts] {
			t.Fatalf("never stopped in contacts, now %s", cur.GenerationPhase)
		}
		if _, err := g.Continue(ctx, job.ID); err != nil {
			t.Fatalf("Continue: %v", err)
		}
		cur, _ = g.Status(ctx, job.ID)
	}
	tenantID := *cur.CreatedTenantId
	companies := countRows(t, db, &models.Company{}, tenantID)
	if companies != 60 {
		t.Fatalf("companies after the companies phase = %d, want 60", companies)
	}

	if _, err := g.Continue(ctx, job.ID); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	resumed, _ := g.Status(ctx, job.ID)
	if phaseOrder[resumed.GenerationPhase] < phaseOrder[models.PhaseContacts] {
		t.Fatalf("resumed job went back to %s", resumed.GenerationPhase)
	}
	if n := countRows(t, db, &models.Company{}, tenantID); n != companies {
		t.Fatalf("companies after resume = %d, want %d", n, companies)
	}
}

func TestGenerateRecoversRowsWrittenBeforeCursorSaved(t *testing.T) {
	g, db := newTestGenerator(t, func(s *config.DemoSettings) {
		s.MaxRowsPerInvocation = 40
		s.BatchSize = 15
	})
	ctx := context.Background()
	job, err := g.CreateJob(ctx, CreateJobRequest{Config: threeMonthConfig(), Seed: "7"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := g.Start(ctx, job.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := g.Continue(ctx, job.ID); err != nil {
			t.Fatalf("Continue: %v", err)
		}
	}

	// An invocation that dies after inserting but before saving its cursor.
	snapshot, _ := g.Status(ctx, job.ID)
	res, err := g.Continue(ctx, job.ID)
	if err != nil || res.RowsWritten == 0 {
		t.Fatalf("Continue: %v (%d rows)", err, res.RowsWritten)
	}
	if err := g.Store.SaveJobProgress(ctx, snapshot); err != nil {
		t.Fatalf("restore snapshot: %v", err)
	}

	for !res.Done() {
		if res, err = g.Continue(ctx, job.ID); err != nil {
			t.Fatalf("Continue: %v", err)
		}
	}
	done, _ := g.Status(ctx, job.ID)
	if done.VerificationPassed == nil || !*done.VerificationPassed {
		t.Fatalf("verification failed: %+v", done.VerificationReport.Data())
	}
	assertExactMonths(t, g, done)
	tenantID := *done.CreatedTenantId
	if n := countRows(t, db, &models.Contact{}, tenantID); n != 300 {
		t.Fatalf("contacts = %d, want 300", n)
	}
	if n := countRows(t, db, &models.Company{}, tenantID); n != 60 {
		t.Fatalf("companies = %d, want 60", n)
	}
	if m := done.Metrics.Data(); m.Contacts+m.Companies != 360 {
		t.Fatalf("progress accounting drifted: %+v", m)
	}
}

func TestSameSeedSameContent(t *testing.T) {
	g, db := newTestGenerator(t, nil)
	ctx := context.Background()
	var tenants []string
	for i := 0; i < 2; i++ {
		job, err := g.CreateJob(ctx, CreateJobRequest{Config: threeMonthConfig(), Seed: "1337"})
		if err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
		runToCompletion(t, g, job.ID)
		done, _ := g.Status(ctx, job.ID)
		tenants = append(tenants, *done.CreatedTenantId)
	}
	if tenants[0] == tenants[1] {
		t.Fatalf("two jobs share tenant %s", tenants[0])
	}
	names := func(tenantID string) []string {
		var out []string
		db.Model(&models.Company{}).Where("tenant_id = ?", tenantID).Order("created_at, name").Pluck("name", &out)
		return out
	}
	a, b := names(tenants[0]), names(tenants[1])
	if len(a) != 60 || len(a) != len(b) {
		t.Fatalf("company counts %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("company %d differs: %q vs %q", i, a[i], b[i])
		}
	}
}

func TestStepStatusRules(t *testing.T) {
	g, _ := newTestGenerator(t, nil)
	ctx := context.Background()

	if _, err := g.Continue(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("unknown job: %v", err)
	}

	job, err := g.CreateJob(ctx, CreateJobRequest{Config: threeMonthConfig(), Seed: "42"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := g.Continue(ctx, job.ID); !errors.Is(err, ErrJobNotStarted) {
		t.Fatalf("continue pending: %v", err)
	}
	if _, err := g.Retry(ctx, job.ID); !errors.Is(err, ErrJobNotFailed) {
		t.Fatalf("retry pending: %v", err)
	}

	runToCompletion(t, g, job.ID)
	before, _ := g.Status(ctx, job.ID)
	for i := 0; i < 2; i++ {
		res, err := g.Continue(ctx, job.ID)
		if err != nil {
			t.Fatalf("continue completed: %v", err)
		}
		if res.Status != models.GenerationStatusCompleted || res.RowsWritten != 0 {
			t.Fatalf("duplicate continue did work: %+v", res)
		}
	}
	if res, err := g.Start(ctx, job.ID); err != nil || res.RowsWritten != 0 {
		t.Fatalf("start completed: %+v %v", res, err)
	}
	after, _ := g.Status(ctx, job.ID)
	if after.GenerationState.Data().Invocations != before.GenerationState.Data().Invocations {
		t.Fatalf("completed job was advanced")
	}
	if _, err := g.Retry(ctx, job.ID); !errors.Is(err, ErrJobNotFailed) {
		t.Fatalf("retry completed: %v", err)
	}
}

func TestStepSkipsWhenLeaseHeld(t *testing.T) {
	g, _ := newTestGenerator(t, nil)
	ctx := context.Background()
	job, err := g.CreateJob(ctx, CreateJobRequest{Config: threeMonthConfig(), Seed: "42"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	ok, err := g.Store.AcquireJobLease(ctx, job.ID, "other-worker", planNow, planNow.Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("AcquireJobLease: %v %v", ok, err)
	}
	res, err := g.Start(ctx, job.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !res.Skipped || res.Status != models.GenerationStatusPending {
		t.Fatalf("expected skipped pending step, got %+v", res)
	}

	// an expired lease is taken over
	g.Now = func() time.Time { return planNow.Add(2 * time.Minute) }
	if res, err = g.Start(ctx, job.ID); err != nil || res.Skipped {
		t.Fatalf("expired lease not taken over: %+v %v", res, err)
	}
}

func TestTeardownDuringGenerationThenRetry(t *testing.T) {
	g, db := newTestGenerator(t, func(s *config.DemoSettings) {
		s.MaxRowsPerInvocation = 100
		s.BatchSize = 50
	})
	ctx := context.Background()
	job, err := g.CreateJob(ctx, CreateJobRequest{Config: threeMonthConfig(), Seed: "42"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	res, err := g.Start(ctx, job.ID)
	if err != nil || res.Done() {
		t.Fatalf("Start: %+v %v", res, err)
	}
	running, _ := g.Status(ctx, job.ID)
	tenantID := *running.CreatedTenantId

	if err := g.DeleteTenant(ctx, tenantID); err != nil {
		t.Fatalf("DeleteTenant: %v", err)
	}
	if _, err := g.Store.GetTenant(ctx, tenantID); err == nil {
		t.Fatalf("tenant still present")
	}
	if n := countRows(t, db, &models.Company{}, tenantID); n != 0 {
		t.Fatalf("%d companies survived teardown", n)
	}
	failed, _ := g.Status(ctx, job.ID)
	if failed.Status != models.GenerationStatusFailed || failed.CreatedTenantId != nil || failed.GenerationPhase != models.PhaseInit {
		t.Fatalf("job after teardown = %s tenant %v phase %s", failed.Status, failed.CreatedTenantId, failed.GenerationPhase)
	}
	if _, err := g.Continue(ctx, job.ID); !errors.Is(err, ErrJobFailed) {
		t.Fatalf("continue failed job: %v", err)
	}

	res, err = g.Retry(ctx, job.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	for !res.Done() {
		if res, err = g.Continue(ctx, job.ID); err != nil {
			t.Fatalf("Continue: %v", err)
		}
	}
	done, _ := g.Status(ctx, job.ID)
	if done.VerificationPassed == nil || !*done.VerificationPassed {
		t.Fatalf("verification after retry failed: %+v", done.VerificationReport.Data())
	}
	assertExactMonths(t, g, done)
	if n := countRows(t, db, &models.Contact{}, *done.CreatedTenantId); n != 300 {
		t.Fatalf("contacts after retry = %d, want 300", n)
	}
}

func TestDeleteTenantRules(t *testing.T) {
	g, db := newTestGenerator(t, nil)
	ctx := context.Background()
	if err := g.DeleteTenant(ctx, "nope"); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("missing tenant: %v", err)
	}
	plain := models.Tenant{ID: "real-tenant", Name: "Real Co", Country: "US", Currency: "USD", Timezone: "UTC"}
	if err := db.Create(&plain).Error; err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	if err := g.DeleteTenant(ctx, plain.ID); !errors.Is(err, ErrNotDemoTenant) {
		t.Fatalf("non-demo tenant: %v", err)
	}
}

func TestCreateJobRejectsInvalidConfig(t *testing.T) {
	g, db := newTestGenerator(t, nil)
	cfg := threeMonthConfig()
	cfg.Growth.StartMonth = "2026-01"
	_, err := g.CreateJob(context.Background(), CreateJobRequest{Config: cfg, Seed: "42"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	var n int64
	db.Model(&models.GenerationJob{}).Count(&n)
	if n != 0 {
		t.Fatalf("%d jobs stored for an invalid request", n)
	}
}
