package demogen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/config"
	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/davidprivate500/gonthia-crm-sub001/models/reports"
	"gorm.io/gorm"
)

// newPatchFixture generates a one-month demo tenant for 2025-01 with 100 contacts, 40 leads,
// 20 companies and 25 deals of which 8 won for 96000 out of 250000 pipeline.
func newPatchFixture(t *testing.T, tune func(*config.DemoSettings)) (*PatchEngine, *gorm.DB, string) {
	t.Helper()
	g, db := newTestGenerator(t, tune)
	metrics := reports.NewDemoMetricsReader(db, g.Logger)
	g.Metrics = metrics

	cfg := threeMonthConfig()
	cfg.Growth.Months = 1
	cfg.Growth.Targets = models.GrowthTargets{
		Contacts:       i64(100),
		Leads:          i64(40),
		Companies:      i64(20),
		Deals:          i64(25),
		ClosedWonCount: i64(8),
		ClosedWonValue: decPtr("96000"),
		PipelineValue:  decPtr("250000"),
	}
	job, err := g.CreateJob(context.Background(), CreateJobRequest{Config: cfg, Seed: "42"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	runToCompletion(t, g, job.ID)
	done, _ := g.Status(context.Background(), job.ID)
	return NewPatchEngine(g, metrics), db, *done.CreatedTenantId
}

func runPatch(t *testing.T, p *PatchEngine, req PatchRequest) *models.DemoPatchJob {
	t.Helper()
	ctx := context.Background()
	job, err := p.CreatePatch(ctx, req)
	if err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}
	for i := 0; ; i++ {
		if i > 500 {
			t.Fatalf("patch did not finish")
		}
		res, err := p.Run(ctx, job.ID)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if res.Done() {
			break
		}
	}
	done, err := p.Status(ctx, job.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if done.Status != models.GenerationStatusCompleted || done.Progress != 100 {
		t.Fatalf("patch = %s %d%%", done.Status, done.Progress)
	}
	return done
}

func reported(t *testing.T, p *PatchEngine, tenantID string, base bool) models.MonthMetrics {
	t.Helper()
	read := p.Metrics.PeriodMetrics
	if base {
		read = p.Metrics.BaseMetrics
	}
	out, err := read(context.Background(), tenantID, []string{"2025-01"})
	if err != nil || len(out) != 1 {
		t.Fatalf("metrics: %v %v", out, err)
	}
	return out[0]
}

func TestMetricsOnlyDeltasAccumulate(t *testing.T) {
	p, db, tenantID := newPatchFixture(t, nil)
	before := reported(t, p, tenantID, false)
	if before.ContactsCreated != 100 {
		t.Fatalf("fixture contacts = %d", before.ContactsCreated)
	}

	first := runPatch(t, p, PatchRequest{
		TenantId: tenantID, Mode: models.PatchModeMetricsOnly, PlanType: models.PatchPlanDeltas,
		Months: []models.MonthlyTarget{month("2025-01", 0, 30, 0, 0, 0, "0", "0")},
	})
	if got := reported(t, p, tenantID, false).ContactsCreated; got != 130 {
		t.Fatalf("after +30 contacts = %d, want 130", got)
	}

	// a completed patch run again is a no-op
	if res, err := p.Run(context.Background(), first.ID); err != nil || !res.Done() {
		t.Fatalf("rerun: %+v %v", res, err)
	}
	if got := reported(t, p, tenantID, false).ContactsCreated; got != 130 {
		t.Fatalf("rerun changed contacts to %d", got)
	}

	runPatch(t, p, PatchRequest{
		TenantId: tenantID, Mode: models.PatchModeMetricsOnly, PlanType: models.PatchPlanDeltas,
		Months: []models.MonthlyTarget{month("2025-01", 0, 20, 0, 0, 0, "0", "0")},
	})
	after := reported(t, p, tenantID, false)
	if after.ContactsCreated != 150 {
		t.Fatalf("after +20 contacts = %d, want 150", after.ContactsCreated)
	}
	if base := reported(t, p, tenantID, true); base.ContactsCreated != 100 {
		t.Fatalf("metrics-only patch touched rows: base contacts = %d", base.ContactsCreated)
	}
	var rows int64
	db.Model(&models.DemoMetricOverride{}).Where("tenant_id = ?", tenantID).Count(&rows)
	if rows != 1 {
		t.Fatalf("override rows = %d, want 1", rows)
	}
}

func TestMetricsOnlyTargetsReplace(t *testing.T) {
	p, _, tenantID := newPatchFixture(t, nil)
	for i := 0; i < 2; i++ {
		done := runPatch(t, p, PatchRequest{
			TenantId: tenantID, Mode: models.PatchModeMetricsOnly, PlanType: models.PatchPlanTargets,
			Months: []models.MonthlyTarget{month("2025-01", 40, 150, 20, 25, 8, "96000", "250000")},
		})
		got := reported(t, p, tenantID, false)
		if got.ContactsCreated != 150 || got.CompaniesCreated != 20 || !got.ClosedWonValue.Equal(dec("96000")) {
			t.Fatalf("patch %d: reported %+v", i, got)
		}
		diff := done.Diff.Data()
		if diff == nil || len(diff.Months) != 1 {
			t.Fatalf("diff = %+v", diff)
		}
	}
}

func TestReconcileRemovesSurplus(t *testing.T) {
	p, db, tenantID := newPatchFixture(t, nil)
	done := runPatch(t, p, PatchRequest{
		TenantId: tenantID, Mode: models.PatchModeReconcile, PlanType: models.PatchPlanTargets,
		Months: []models.MonthlyTarget{month("2025-01", 30, 80, 15, 20, 5, "50000", "150000")},
	})

	got := reported(t, p, tenantID, true)
	if got.ContactsCreated != 80 || got.LeadsCreated != 30 || got.CompaniesCreated != 15 ||
		got.DealsCreated != 20 || got.ClosedWonCount != 5 {
		t.Fatalf("reconciled counts = %+v", got)
	}
	if !got.ClosedWonValue.Equal(dec("50000")) || !got.PipelineAddedValue.Equal(dec("150000")) {
		t.Fatalf("reconciled values: won %s pipeline %s", got.ClosedWonValue, got.PipelineAddedValue)
	}

	// surplus rows are soft-deleted, never hard-deleted
	var all int64
	db.Unscoped().Model(&models.Contact{}).Where("tenant_id = ?", tenantID).Count(&all)
	if all != 100 {
		t.Fatalf("contacts incl. deleted = %d, want 100", all)
	}

	diff := done.Diff.Data()
	for _, m := range diff.Months[0].Metrics {
		if m.Metric != MetricContacts {
			continue
		}
		if !m.Before.Equal(dec("100")) || !m.After.Equal(dec("80")) || m.Target == nil || !m.Target.Equal(dec("80")) {
			t.Fatalf("contacts diff = %+v", m)
		}
	}
}

func TestReconcileLeavesOtherMonthsAlone(t *testing.T) {
	g, db := newTestGenerator(t, nil)
	metrics := reports.NewDemoMetricsReader(db, g.Logger)
	g.Metrics = metrics
	ctx := context.Background()
	job, err := g.CreateJob(ctx, CreateJobRequest{Config: threeMonthConfig(), Seed: "42"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	runToCompletion(t, g, job.ID)
	done, _ := g.Status(ctx, job.ID)
	tenantID := *done.CreatedTenantId
	p := NewPatchEngine(g, metrics)

	months := []string{"2025-01", "2025-02", "2025-03"}
	before, err := metrics.BaseMetrics(ctx, tenantID, months)
	if err != nil {
		t.Fatalf("BaseMetrics: %v", err)
	}
	runPatch(t, p, PatchRequest{
		TenantId: tenantID, Mode: models.PatchModeReconcile, PlanType: models.PatchPlanTargets,
		Months: []models.MonthlyTarget{month("2025-01", 2, 5, 2, 2, 1, "10000", "20000")},
	})
	after, err := metrics.BaseMetrics(ctx, tenantID, months)
	if err != nil {
		t.Fatalf("BaseMetrics: %v", err)
	}

	jan := after[0]
	if jan.ContactsCreated != 5 || jan.LeadsCreated != 2 || jan.CompaniesCreated != 2 || jan.DealsCreated != 2 || jan.ClosedWonCount != 1 {
		t.Fatalf("2025-01 = %+v", jan)
	}
	for i := 1; i < len(months); i++ {
		b, a := before[i], after[i]
		if a.ContactsCreated != b.ContactsCreated || a.LeadsCreated != b.LeadsCreated ||
			a.CompaniesCreated != b.CompaniesCreated || a.DealsCreated != b.DealsCreated ||
			a.ClosedWonCount != b.ClosedWonCount || a.ActivitiesCreated != b.ActivitiesCreated ||
			!a.ClosedWonValue.Equal(b.ClosedWonValue) || !a.PipelineAddedValue.Equal(b.PipelineAddedValue) {
			t.Fatalf("%s changed:\nbefore %+v\nafter  %+v", months[i], b, a)
		}
	}

	// no live row points at a removed one
	dangling := []struct {
		name string
		sql  string
	}{
		{"activities of removed contacts", "SELECT COUNT(*) FROM activities a JOIN contacts c ON c.id = a.contact_id WHERE a.deleted_at IS NULL AND c.deleted_at IS NOT NULL"},
		{"activities of removed deals", "SELECT COUNT(*) FROM activities a JOIN deals d ON d.id = a.deal_id WHERE a.deleted_at IS NULL AND d.deleted_at IS NOT NULL"},
		{"deals of removed contacts", "SELECT COUNT(*) FROM deals d JOIN contacts c ON c.id = d.contact_id WHERE d.deleted_at IS NULL AND c.deleted_at IS NOT NULL"},
		{"contacts of removed companies", "SELECT COUNT(*) FROM contacts c JOIN companies co ON co.id = c.company_id WHERE c.deleted_at IS NULL AND co.deleted_at IS NOT NULL"},
		{"deals of removed companies", "SELECT COUNT(*) FROM deals d JOIN companies co ON co.id = d.company_id WHERE d.deleted_at IS NULL AND co.deleted_at IS NOT NULL"},
	}
	for _, q := range dangling {
		var n int64
		if err := db.Raw(q.sql).Scan(&n).Error; err != nil {
			t.Fatalf("%s: %v", q.name, err)
		}
		if n != 0 {
			t.Fatalf("%s: %d live rows", q.name, n)
		}
	}
}

func TestAdditiveTargetsFillsGap(t *testing.T) {
	p, _, tenantID := newPatchFixture(t, func(s *config.DemoSettings) {
		s.MaxRowsPerInvocation = 10
		s.BatchSize = 4
	})
	done := runPatch(t, p, PatchRequest{
		TenantId: tenantID, Mode: models.PatchModeAdditive, PlanType: models.PatchPlanTargets,
		Months: []models.MonthlyTarget{month("2025-01", 50, 120, 25, 30, 10, "120000", "300000")},
	})
	got := reported(t, p, tenantID, true)
	if got.ContactsCreated != 120 || got.LeadsCreated != 50 || got.CompaniesCreated != 25 ||
		got.DealsCreated != 30 || got.ClosedWonCount != 10 {
		t.Fatalf("patched counts = %+v", got)
	}
	if !got.ClosedWonValue.Equal(dec("120000")) || !got.PipelineAddedValue.Equal(dec("300000")) {
		t.Fatalf("patched values: won %s pipeline %s", got.ClosedWonValue, got.PipelineAddedValue)
	}
	if m := done.Metrics.Data(); m == nil || m.Contacts != 20 || m.Companies != 5 || m.Deals != 5 {
		t.Fatalf("patch metrics = %+v", m)
	}
}

func TestAdditiveNeverRemoves(t *testing.T) {
	p, _, tenantID := newPatchFixture(t, nil)
	runPatch(t, p, PatchRequest{
		TenantId: tenantID, Mode: models.PatchModeAdditive, PlanType: models.PatchPlanTargets,
		Months: []models.MonthlyTarget{month("2025-01", 10, 50, 5, 10, 2, "1000", "5000")},
	})
	got := reported(t, p, tenantID, true)
	if got.ContactsCreated != 100 || got.DealsCreated != 25 {
		t.Fatalf("additive patch removed rows: %+v", got)
	}
}

func TestCreatePatchRejects(t *testing.T) {
	p, db, tenantID := newPatchFixture(t, nil)
	ctx := context.Background()
	plan := []models.MonthlyTarget{month("2025-01", 0, 1, 0, 0, 0, "0", "0")}

	if _, err := p.CreatePatch(ctx, PatchRequest{TenantId: "missing", Mode: models.PatchModeAdditive, PlanType: models.PatchPlanDeltas, Months: plan}); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("missing tenant: %v", err)
	}
	plain := models.Tenant{ID: "plain", Name: "Plain", Country: "US", Currency: "USD", Timezone: "UTC"}
	db.Create(&plain)
	if _, err := p.CreatePatch(ctx, PatchRequest{TenantId: plain.ID, Mode: models.PatchModeAdditive, PlanType: models.PatchPlanDeltas, Months: plan}); !errors.Is(err, ErrNotDemoTenant) {
		t.Fatalf("non-demo tenant: %v", err)
	}

	_, err := p.CreatePatch(ctx, PatchRequest{TenantId: tenantID, Mode: models.PatchModeReconcile, PlanType: models.PatchPlanDeltas, Months: plan})
	var verr *ValidationError
	if !errors.As(err, &verr) || issuePaths(verr.Issues)["planType"] != "oneof" {
		t.Fatalf("reconcile with deltas: %v", err)
	}

	_, err = p.CreatePatch(ctx, PatchRequest{TenantId: tenantID, Mode: models.PatchModeAdditive, PlanType: models.PatchPlanDeltas,
		RangeStart: "2025-02", RangeEnd: "2025-03", Months: plan})
	if !errors.As(err, &verr) || issuePaths(verr.Issues)["plan.months[0].month"] != "range" {
		t.Fatalf("month outside range: %v", err)
	}

	_, err = p.CreatePatch(ctx, PatchRequest{TenantId: tenantID, Mode: models.PatchModeAdditive, PlanType: models.PatchPlanDeltas,
		RangeStart: "0001-01", RangeEnd: "2025-01", Months: plan})
	if !errors.As(err, &verr) || issuePaths(verr.Issues)["rangeStart"] != "range" {
		t.Fatalf("unbounded range: %v", err)
	}

	if _, err := p.Run(ctx, "missing"); !errors.Is(err, ErrPatchNotFound) {
		t.Fatalf("unknown patch: %v", err)
	}
}

func TestDiffSnapshots(t *testing.T) {
	before := &models.KPISnapshot{Months: []models.MonthMetrics{
		{Month: "2025-01", ContactsCreated: 100, ClosedWonValue: dec("1000")},
	}}
	after := &models.KPISnapshot{CapturedAt: time.Now(), Months: []models.MonthMetrics{
		{Month: "2025-01", ContactsCreated: 130, ClosedWonValue: dec("1500")},
		{Month: "2025-02", ContactsCreated: 5},
	}}
	plan := models.PatchPlan{PlanType: models.PatchPlanTargets, Months: []models.MonthlyTarget{
		month("2025-01", 0, 130, 0, 0, 1, "1500", "1500"),
	}}
	diff := DiffSnapshots(before, after, plan)
	if len(diff.Months) != 2 {
		t.Fatalf("months = %d", len(diff.Months))
	}
	for _, m := range diff.Months[0].Metrics {
		switch m.Metric {
		case MetricContacts:
			if !m.Delta.Equal(dec("30")) || m.Target == nil || !m.Target.Equal(dec("130")) {
				t.Fatalf("contacts diff = %+v", m)
			}
		case MetricWonValue:
			if !m.Delta.Equal(dec("500")) {
				t.Fatalf("won value diff = %+v", m)
			}
		case MetricActivities:
			if m.Target != nil {
				t.Fatalf("activities have no target: %+v", m)
			}
		}
	}
	for _, m := range diff.Months[1].Metrics {
		if m.Target != nil {
			t.Fatalf("2025-02 is outside the plan but has a target: %+v", m)
		}
		if m.Metric == MetricContacts && !m.Before.IsZero() {
			t.Fatalf("missing before month should read as zero: %+v", m)
		}
	}

	deltas := DiffSnapshots(before, after, models.PatchPlan{PlanType: models.PatchPlanDeltas, Months: plan.Months})
	for _, m := range deltas.Months[0].Metrics {
		if m.Target != nil {
			t.Fatalf("deltas plan should carry no targets: %+v", m)
		}
	}
}
