package demogen

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/config"
	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/davidprivate500/gonthia-crm-sub001/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
)

// PatchEngine adjusts existing demo tenants. It shares the generator's store, builders
// and budgets; Metrics is the reporting view used for snapshots and target deltas.
type PatchEngine struct {
	g       *Generator
	Metrics MetricsSource
}

func NewPatchEngine(g *Generator, metrics MetricsSource) *PatchEngine {
	return &PatchEngine{g: g, Metrics: metrics}
}

// PatchRequest is the input of CreatePatch. RangeStart and RangeEnd default to the first
// and last plan month.
type PatchRequest struct {
	TenantId        string                 `json:"tenantId" validate:"required"`
	GenerationJobId *string                `json:"generationJobId,omitempty"`
	Mode            models.PatchMode       `json:"mode" validate:"oneof=additive reconcile metrics-only"`
	PlanType        models.PatchPlanType   `json:"planType" validate:"oneof=targets deltas"`
	RangeStart      string                 `json:"rangeStart,omitempty"`
	RangeEnd        string                 `json:"rangeEnd,omitempty"`
	Months          []models.MonthlyTarget `json:"months" validate:"required,min=1,max=60"`
	Seed            string                 `json:"seed,omitempty"`
	RequestedBy     string                 `json:"requestedBy,omitempty" validate:"max=100"`
}

// CreatePatch validates req against the tenant and stores a pending patch job.
func (p *PatchEngine) CreatePatch(ctx context.Context, req PatchRequest) (*models.DemoPatchJob, error) {
	g := p.g
	now := g.now()
	tenant, err := g.Store.GetTenant(ctx, req.TenantId)
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		return nil, ErrTenantNotFound
	case err != nil:
		return nil, err
	case !tenant.IsDemo:
		return nil, ErrNotDemoTenant
	}

	issues := structIssues(req, "")
	if req.Mode == models.PatchModeReconcile && req.PlanType != models.PatchPlanTargets {
		issues = append(issues, Issue{Path: "planType", Code: "oneof", Message: "reconcile needs a targets plan"})
	}
	switch req.PlanType {
	case models.PatchPlanTargets:
		issues = append(issues, validateMonthlyPlan(models.MonthlyPlan{PlanVersion: models.MonthlyPlanVersion, Months: req.Months}, now, "plan.")...)
	case models.PatchPlanDeltas:
		issues = append(issues, validateMonthSequence(req.Months, now, "plan.")...)
	}
	rangeStart, rangeEnd := req.RangeStart, req.RangeEnd
	if len(req.Months) > 0 {
		if rangeStart == "" {
			rangeStart = req.Months[0].Month
		}
		if rangeEnd == "" {
			rangeEnd = req.Months[len(req.Months)-1].Month
		}
	}
	if _, err := models.MonthRange(rangeStart, rangeEnd); err != nil {
		issues = append(issues, Issue{Path: "rangeStart", Code: "range", Message: err.Error()})
	} else {
		for i, m := range req.Months {
			if m.Month < rangeStart || m.Month > rangeEnd {
				issues = append(issues, Issue{Path: fmt.Sprintf("plan.months[%d].month", i), Code: "range", Message: fmt.Sprintf("month %s is outside %s..%s", m.Month, rangeStart, rangeEnd)})
			}
		}
	}
	if err := issuesErr(issues); err != nil {
		return nil, err
	}

	seed := strings.TrimSpace(req.Seed)
	if seed == "" {
		seed = uuid.NewString()
	}
	jobID := req.GenerationJobId
	if jobID == nil {
		jobID = tenant.DemoJobId
	}
	job := &models.DemoPatchJob{
		ID:              uuid.NewString(),
		TenantId:        tenant.ID,
		GenerationJobId: jobID,
		Mode:            req.Mode,
		PlanType:        req.PlanType,
		Plan:            datatypes.NewJSONType(models.PatchPlan{PlanType: req.PlanType, Months: req.Months}),
		Seed:            seed,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
		Status:          models.GenerationStatusPending,
		CurrentStep:     "queued",
		RequestedBy:     req.RequestedBy,
		CreatedAt:       now,
	}
	p.log(job, logrus.InfoLevel, fmt.Sprintf("%s patch created for %s..%s", req.Mode, rangeStart, rangeEnd))
	if err := g.Store.CreatePatchJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create patch job: %w", err)
	}
	return job, nil
}

func (p *PatchEngine) Status(ctx context.Context, patchID string) (*models.DemoPatchJob, error) {
	return p.loadPatch(ctx, patchID)
}

func (p *PatchEngine) loadPatch(ctx context.Context, patchID string) (*models.DemoPatchJob, error) {
	job, err := p.g.Store.GetPatchJob(ctx, patchID)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, ErrPatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load patch %s: %w", patchID, err)
	}
	return job, nil
}

func (p *PatchEngine) log(job *models.DemoPatchJob, level logrus.Level, msg string) {
	g := p.g
	step := job.State.Data().Cursor.Phase
	job.Logs = datatypes.NewJSONType(models.AppendLog(job.Logs.Data(), models.JobLogLine{
		At:      g.now(),
		Level:   level.String(),
		Phase:   string(step),
		Message: msg,
	}, g.Settings.MaxLogLines))
	g.logger().WithFields(logrus.Fields{"patch_id": job.ID, "tenant_id": job.TenantId, "mode": job.Mode}).Log(level, msg)
}

func patchResult(job *models.DemoPatchJob, rows int) *StepResult {
	return &StepResult{
		JobID:       job.ID,
		Status:      job.Status,
		Phase:       job.State.Data().Cursor.Phase,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		RowsWritten: rows,
		NextRunAt:   job.NextRunAt,
	}
}

// Run does one budget-bounded step of a patch. A pending patch is started, a failed one is
// resumed from its persisted cursor, and a completed one is a no-op.
func (p *PatchEngine) Run(ctx context.Context, patchID string) (*StepResult, error) {
	g := p.g
	ctx, span := tracer.Start(ctx, "demogen.patch", trace.WithAttributes(attribute.String("patch_id", patchID)))
	defer span.End()

	if _, err := p.loadPatch(ctx, patchID); err != nil {
		return nil, err
	}
	release, ok, err := g.acquire(ctx, "demo-patch:"+patchID,
		func(now, until time.Time) (bool, error) {
			return g.Store.AcquirePatchLease(ctx, patchID, g.WorkerID, now, until)
		},
		func(ctx context.Context) error { return g.Store.ReleasePatchLease(ctx, patchID, g.WorkerID) })
	if err != nil {
		return nil, fmt.Errorf("acquire patch lease: %w", err)
	}
	if !ok {
		job, err := p.loadPatch(ctx, patchID)
		if err != nil {
			return nil, err
		}
		res := patchResult(job, 0)
		res.Skipped = true
		return res, nil
	}
	defer release()

	job, err := p.loadPatch(ctx, patchID)
	if err != nil {
		return nil, err
	}
	now := g.now()
	switch job.Status {
	case models.GenerationStatusCompleted:
		return patchResult(job, 0), nil
	case models.GenerationStatusFailed:
		job.ErrorMessage = nil
		job.ErrorStack = nil
		p.log(job, logrus.InfoLevel, "resuming failed patch")
	case models.GenerationStatusPending:
		job.StartedAt = &now
		p.log(job, logrus.InfoLevel, "patch started")
	}
	job.Status = models.GenerationStatusRunning
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	if err := g.Store.SavePatchProgress(ctx, job); err != nil {
		return nil, fmt.Errorf("save patch status: %w", err)
	}

	written, yielded, err := p.run(ctx, job)
	if err != nil {
		p.fail(ctx, job, err)
		span.RecordError(err)
		return patchResult(job, written), err
	}
	res := patchResult(job, written)
	res.Yielded = yielded
	return res, nil
}

func (p *PatchEngine) fail(ctx context.Context, job *models.DemoPatchJob, err error) {
	msg := err.Error()
	stack := string(debug.Stack())
	var pe *panicError
	if errors.As(err, &pe) {
		stack = string(pe.stack)
	}
	job.Status = models.GenerationStatusFailed
	job.ErrorMessage = &msg
	job.ErrorStack = &stack
	job.NextRunAt = nil
	p.log(job, logrus.ErrorLevel, msg)
	config.LogError(p.g.logger(), "demogen", "PatchEngine.Run", "patch "+job.ID, job.Mode, err)
	if serr := p.g.Store.SavePatchProgress(context.WithoutCancel(ctx), job); serr != nil {
		config.LogError(p.g.logger(), "demogen", "PatchEngine.fail", "save failed patch "+job.ID, nil, serr)
	}
}

func (p *PatchEngine) rangeMonths(job *models.DemoPatchJob) ([]string, error) {
	return models.MonthRange(job.RangeStart, job.RangeEnd)
}

func (p *PatchEngine) snapshot(ctx context.Context, job *models.DemoPatchJob) (*models.KPISnapshot, error) {
	months, err := p.rangeMonths(job)
	if err != nil {
		return nil, err
	}
	metrics, err := p.Metrics.PeriodMetrics(ctx, job.TenantId, months)
	if err != nil {
		return nil, fmt.Errorf("snapshot metrics: %w", err)
	}
	return &models.KPISnapshot{CapturedAt: p.g.now(), Months: metrics}, nil
}

// run advances the patch month by month until it completes or the budget is spent.
func (p *PatchEngine) run(ctx context.Context, job *models.DemoPatchJob) (written int, yielded bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	g := p.g
	tenant, err := g.Store.GetTenant(ctx, job.TenantId)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return 0, false, ErrTenantNotFound
	}
	if err != nil {
		return 0, false, err
	}
	plan := job.Plan.Data()
	state := job.State.Data()
	if len(state.Months) != len(plan.Months) {
		state.Months = make([]models.MonthProgress, len(plan.Months))
		for i, m := range plan.Months {
			state.Months[i].Month = m.Month
		}
	}

	if job.Before.Data() == nil {
		before, err := p.snapshot(ctx, job)
		if err != nil {
			return 0, false, err
		}
		job.Before = datatypes.NewJSONType(before)
	}
	if job.Mode != models.PatchModeMetricsOnly && len(state.OwnerIds) == 0 {
		owners, stages, err := g.ensureTeamAndStages(ctx, tenant, job.Seed, job.GenerationJobId, g.Settings.TeamSize)
		if err != nil {
			return 0, false, err
		}
		state.OwnerIds = owners
		state.StageIds = stages
	}

	started := g.now()
	var unit *builtUnit
	for state.Cursor.MonthIndex < len(plan.Months) {
		idx := state.Cursor.MonthIndex
		month := plan.Months[idx]
		n, err := p.stepMonth(ctx, job, tenant, &state, month, &unit)
		written += n
		if err != nil {
			return written, false, fmt.Errorf("month %s: %w", month.Month, err)
		}
		job.Progress = min(99, state.Cursor.MonthIndex*100/len(plan.Months))
		yielded = written >= g.Settings.MaxRowsPerInvocation || g.now().Sub(started) >= g.Settings.TimeBudget || ctx.Err() != nil
		if yielded && state.Cursor.MonthIndex < len(plan.Months) {
			next := g.now().Add(g.Settings.ContinueDelay)
			job.NextRunAt = &next
			job.State = datatypes.NewJSONType(state)
			if err := g.Store.SavePatchProgress(ctx, job); err != nil {
				return written, false, fmt.Errorf("save patch progress: %w", err)
			}
			return written, true, nil
		}
		job.State = datatypes.NewJSONType(state)
		if err := g.Store.SavePatchProgress(ctx, job); err != nil {
			return written, false, fmt.Errorf("save patch progress: %w", err)
		}
	}

	g.invalidate(ctx, tenant.ID)
	after, err := p.snapshot(ctx, job)
	if err != nil {
		return written, false, err
	}
	now := g.now()
	metrics := &models.JobMetrics{}
	for _, m := range state.Months {
		metrics.Companies += m.Companies
		metrics.Contacts += m.Contacts
		metrics.Deals += m.Deals
		metrics.Activities += m.Activities
		metrics.WonValue = metrics.WonValue.Add(m.ClosedWonValue)
		metrics.Pipeline = metrics.Pipeline.Add(m.PipelineValue)
	}
	if job.StartedAt != nil {
		metrics.DurationMs = now.Sub(*job.StartedAt).Milliseconds()
	}
	diff := DiffSnapshots(job.Before.Data(), after, plan)
	job.After = datatypes.NewJSONType(after)
	job.Diff = datatypes.NewJSONType(diff)
	job.Metrics = datatypes.NewJSONType(metrics)
	job.Status = models.GenerationStatusCompleted
	job.Progress = 100
	job.CompletedAt = &now
	job.NextRunAt = nil
	job.CurrentStep = "completed"
	state.Cursor = models.PatchCursor{MonthIndex: len(plan.Months)}
	job.State = datatypes.NewJSONType(state)
	p.log(job, logrus.InfoLevel, "patch completed")
	if err := g.Store.SavePatchProgress(ctx, job); err != nil {
		return written, false, fmt.Errorf("save patch: %w", err)
	}
	return written, false, nil
}

// stepMonth does one unit of work for month and advances the cursor.
func (p *PatchEngine) stepMonth(ctx context.Context, job *models.DemoPatchJob, tenant *models.Tenant, state *models.PatchState, month models.MonthlyTarget, cache **builtUnit) (int, error) {
	cur := &state.Cursor
	switch job.Mode {
	case models.PatchModeMetricsOnly:
		if err := p.applyOverride(ctx, job, month); err != nil {
			return 0, err
		}
		p.nextMonth(cur)
		return 0, nil
	case models.PatchModeAdditive, models.PatchModeReconcile:
	default:
		return 0, fmt.Errorf("unknown patch mode %q", job.Mode)
	}

	switch cur.Phase {
	case "":
		if job.Mode == models.PatchModeReconcile {
			cur.Phase = models.PhaseReconcile
			return 0, nil
		}
		delta, err := p.additiveDelta(ctx, job, month)
		if err != nil {
			return 0, err
		}
		cur.Delta = &delta
		cur.Phase = models.PhaseCompanies
		cur.Offset = 0
		return 0, nil
	case models.PhaseReconcile:
		delta, err := p.reconcileMonth(ctx, job, tenant, state, month)
		if err != nil {
			return 0, err
		}
		cur.Delta = &delta
		cur.Phase = models.PhaseCompanies
		cur.Offset = 0
		return 0, nil
	case models.PhaseCompanies, models.PhaseContacts, models.PhaseDeals, models.PhaseActivities:
		return p.entityBatch(ctx, job, tenant, state, month.Month, cache)
	case models.PhaseRescale:
		if err := p.rescaleMonth(ctx, job, tenant, month); err != nil {
			return 0, err
		}
		p.nextMonth(cur)
		return 0, nil
	default:
		return 0, fmt.Errorf("unknown patch phase %q", cur.Phase)
	}
}

func (p *PatchEngine) nextMonth(cur *models.PatchCursor) {
	*cur = models.PatchCursor{MonthIndex: cur.MonthIndex + 1}
}

func (p *PatchEngine) entityBatch(ctx context.Context, job *models.DemoPatchJob, tenant *models.Tenant, state *models.PatchState, month string, cache **builtUnit) (int, error) {
	g := p.g
	cur := &state.Cursor
	if cur.Delta == nil {
		return 0, errors.New("patch cursor lost its frozen delta")
	}
	patchID := job.ID
	env, err := g.newEnv(tenant, job.Seed, job.ID, job.GenerationJobId, &patchID, cur.Phase, month, state.OwnerIds, state.StageIds, nil, *job.StartedAt)
	if err != nil {
		return 0, err
	}
	if *cache == nil || (*cache).key != env.key() {
		unit, err := buildUnit(ctx, env, *cur.Delta)
		if err != nil {
			return 0, err
		}
		*cache = unit
	}
	unit := *cache
	offset, n, err := unitRunner{unit: unit, batchSize: g.Settings.BatchSize}.next(ctx, g.Store, cur.Offset, &state.Months[cur.MonthIndex])
	cur.Offset = offset
	if err != nil {
		return n, err
	}
	job.CurrentStep = fmt.Sprintf("%s %s (%d/%d)", cur.Phase, month, offset, unit.size)
	if offset < unit.size {
		return n, nil
	}
	cur.Offset = 0
	switch cur.Phase {
	case models.PhaseActivities:
		if job.Mode == models.PatchModeReconcile {
			cur.Phase = models.PhaseRescale
		} else {
			p.nextMonth(cur)
		}
	default:
		cur.Phase = nextPhase(cur.Phase)
	}
	return n, nil
}

// additiveDelta is the rows to create for month. Targets plans subtract the current base;
// negative components are clamped because additive patches never remove data.
func (p *PatchEngine) additiveDelta(ctx context.Context, job *models.DemoPatchJob, month models.MonthlyTarget) (models.MonthlyMetricTargets, error) {
	delta := month.Targets
	if job.PlanType == models.PatchPlanTargets {
		base, err := p.Metrics.BaseMetrics(ctx, job.TenantId, []string{month.Month})
		if err != nil {
			return delta, fmt.Errorf("base metrics: %w", err)
		}
		var b models.MonthMetrics
		if len(base) > 0 {
			b = base[0]
		}
		delta = models.MonthlyMetricTargets{
			LeadsCreated:       delta.LeadsCreated - b.LeadsCreated,
			ContactsCreated:    delta.ContactsCreated - b.ContactsCreated,
			CompaniesCreated:   delta.CompaniesCreated - b.CompaniesCreated,
			DealsCreated:       delta.DealsCreated - b.DealsCreated,
			ClosedWonCount:     delta.ClosedWonCount - b.ClosedWonCount,
			ClosedWonValue:     delta.ClosedWonValue.Sub(b.ClosedWonValue),
			PipelineAddedValue: delta.PipelineAddedValue.Sub(b.PipelineAddedValue),
		}
	}
	clamped := clampDelta(delta)
	if !sameTargets(clamped, delta) {
		p.log(job, logrus.WarnLevel, fmt.Sprintf("%s: negative deltas clamped to zero; additive patches do not remove data", month.Month))
	}
	return clamped, nil
}

func sameTargets(a, b models.MonthlyMetricTargets) bool {
	return a.LeadsCreated == b.LeadsCreated && a.ContactsCreated == b.ContactsCreated &&
		a.CompaniesCreated == b.CompaniesCreated && a.DealsCreated == b.DealsCreated &&
		a.ClosedWonCount == b.ClosedWonCount && a.ClosedWonValue.Equal(b.ClosedWonValue) &&
		a.PipelineAddedValue.Equal(b.PipelineAddedValue)
}

// clampDelta drops negative components and keeps the count relations the builders need.
func clampDelta(d models.MonthlyMetricTargets) models.MonthlyMetricTargets {
	c := models.MonthlyMetricTargets{
		LeadsCreated:       max(d.LeadsCreated, 0),
		ContactsCreated:    max(d.ContactsCreated, 0),
		CompaniesCreated:   max(d.CompaniesCreated, 0),
		DealsCreated:       max(d.DealsCreated, 0),
		ClosedWonCount:     max(d.ClosedWonCount, 0),
		ClosedWonValue:     decimal.Max(d.ClosedWonValue, decimal.Zero),
		PipelineAddedValue: decimal.Max(d.PipelineAddedValue, decimal.Zero),
	}
	c.LeadsCreated = min(c.LeadsCreated, c.ContactsCreated)
	c.ClosedWonCount = min(c.ClosedWonCount, c.DealsCreated)
	if c.ClosedWonCount == 0 {
		c.ClosedWonValue = decimal.Zero
	}
	if c.DealsCreated == 0 {
		c.PipelineAddedValue = decimal.Zero
	}
	if c.PipelineAddedValue.IsPositive() && c.PipelineAddedValue.LessThan(c.ClosedWonValue) {
		c.PipelineAddedValue = c.ClosedWonValue
	}
	if c.PipelineAddedValue.IsPositive() && c.ClosedWonCount == c.DealsCreated {
		c.PipelineAddedValue = c.ClosedWonValue
	}
	return c
}

// applyOverride writes the metric override of one month. Targets plans store
// max(target - base, 0) replacing the row; deltas plans add to what is stored. Leads and
// pipeline have no override column.
func (p *PatchEngine) applyOverride(ctx context.Context, job *models.DemoPatchJob, month models.MonthlyTarget) error {
	t := month.Targets
	accumulate := job.PlanType == models.PatchPlanDeltas
	if !accumulate {
		base, err := p.Metrics.BaseMetrics(ctx, job.TenantId, []string{month.Month})
		if err != nil {
			return fmt.Errorf("base metrics: %w", err)
		}
		var b models.MonthMetrics
		if len(base) > 0 {
			b = base[0]
		}
		t.ContactsCreated -= b.ContactsCreated
		t.CompaniesCreated -= b.CompaniesCreated
		t.DealsCreated -= b.DealsCreated
		t.ClosedWonCount -= b.ClosedWonCount
		t.ClosedWonValue = t.ClosedWonValue.Sub(b.ClosedWonValue)
	}
	lowered := false
	count := func(v int64) *int64 {
		if v < 0 {
			lowered = true
			v = 0
		}
		return &v
	}
	value := t.ClosedWonValue
	if value.IsNegative() {
		lowered = true
		value = decimal.Zero
	}
	o := models.MetricOverride{
		Month:            month.Month,
		ContactsCreated:  count(t.ContactsCreated),
		CompaniesCreated: count(t.CompaniesCreated),
		DealsCreated:     count(t.DealsCreated),
		ClosedWonCount:   count(t.ClosedWonCount),
		ClosedWonValue:   &value,
	}
	if lowered {
		p.log(job, logrus.WarnLevel, fmt.Sprintf("%s: overrides only add to reported metrics; negative adjustments stored as zero", month.Month))
	}
	if t.LeadsCreated != 0 || !t.PipelineAddedValue.IsZero() {
		p.log(job, logrus.InfoLevel, fmt.Sprintf("%s: leads and pipeline have no override and were left unchanged", month.Month))
	}
	if err := p.g.Store.UpsertOverride(ctx, job.TenantId, job.ID, o, accumulate); err != nil {
		return fmt.Errorf("upsert override %s: %w", month.Month, err)
	}
	job.CurrentStep = "override " + month.Month
	return nil
}

var diffMetrics = []string{MetricLeads, MetricContacts, MetricCompanies, MetricDeals, MetricWonCount, MetricWonValue, MetricPipeline, MetricActivities}

func metricValue(m models.MonthMetrics, metric string) decimal.Decimal {
	switch metric {
	case MetricLeads:
		return decimal.NewFromInt(m.LeadsCreated)
	case MetricContacts:
		return decimal.NewFromInt(m.ContactsCreated)
	case MetricCompanies:
		return decimal.NewFromInt(m.CompaniesCreated)
	case MetricDeals:
		return decimal.NewFromInt(m.DealsCreated)
	case MetricWonCount:
		return decimal.NewFromInt(m.ClosedWonCount)
	case MetricWonValue:
		return m.ClosedWonValue
	case MetricPipeline:
		return m.PipelineAddedValue
	case MetricActivities:
		return decimal.NewFromInt(m.ActivitiesCreated)
	}
	return decimal.Zero
}

func targetValue(t models.MonthlyMetricTargets, metric string) (decimal.Decimal, bool) {
	switch metric {
	case MetricLeads:
		return decimal.NewFromInt(t.LeadsCreated), true
	case MetricContacts:
		return decimal.NewFromInt(t.ContactsCreated), true
	case MetricCompanies:
		return decimal.NewFromInt(t.CompaniesCreated), true
	case MetricDeals:
		return decimal.NewFromInt(t.DealsCreated), true
	case MetricWonCount:
		return decimal.NewFromInt(t.ClosedWonCount), true
	case MetricWonValue:
		return t.ClosedWonValue, true
	case MetricPipeline:
		return t.PipelineAddedValue, true
	}
	return decimal.Zero, false
}

// DiffSnapshots compares two reporting snapshots month by month. Targets are attached for
// months of a targets plan.
func DiffSnapshots(before, after *models.KPISnapshot, plan models.PatchPlan) *models.PatchDiff {
	index := func(s *models.KPISnapshot) map[string]models.MonthMetrics {
		out := map[string]models.MonthMetrics{}
		if s != nil {
			for _, m := range s.Months {
				out[m.Month] = m
			}
		}
		return out
	}
	b, a := index(before), index(after)
	targets := map[string]models.MonthlyMetricTargets{}
	if plan.PlanType == models.PatchPlanTargets {
		for _, m := range plan.Months {
			targets[m.Month] = m.Targets
		}
	}
	var months []string
	if after != nil {
		for _, m := range after.Months {
			months = append(months, m.Month)
		}
	}
	diff := &models.PatchDiff{}
	for _, month := range months {
		md := models.MonthDiff{Month: month}
		t, hasTarget := targets[month]
		for _, metric := range diffMetrics {
			bv, av := metricValue(b[month], metric), metricValue(a[month], metric)
			d := models.PatchMetricDiff{Metric: metric, Before: bv, After: av, Delta: av.Sub(bv)}
			if hasTarget {
				if tv, ok := targetValue(t, metric); ok {
					d.Target = &tv
				}
			}
			md.Metrics = append(md.Metrics, d)
		}
		diff.Months = append(diff.Months, md)
	}
	return diff
}
