package demogen

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/config"
	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/davidprivate500/gonthia-crm-sub001/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
)

var tracer = otel.Tracer("demogen")

// errTeardown stops a step whose tenant was deleted underneath it. The job row already
// reflects the teardown, so nothing is saved.
var errTeardown = errors.New("tenant was torn down during generation")

// Generator builds demo tenants. Every entry point is one invocation-bounded step of a
// persisted state machine; an external scheduler keeps calling Continue until the job
// reaches a terminal status.
type Generator struct {
	Store    Store
	Metrics  MetricsSource
	Locker   Locker
	Pools    *Pools
	Locales  *LocaleRegistry
	Planner  *Planner
	Settings config.DemoSettings
	Logger   *logrus.Logger
	Now      func() time.Time
	WorkerID string
	// AllowedCountries restricts tenant countries when non-empty.
	AllowedCountries []string
}

func NewGenerator(store Store, settings config.DemoSettings, logger *logrus.Logger) *Generator {
	return &Generator{
		Store:    store,
		Pools:    DefaultPools(),
		Locales:  DefaultLocales(),
		Planner:  NewPlanner(),
		Settings: settings,
		Logger:   logger,
		Now:      time.Now,
		WorkerID: "demogen-" + uuid.NewString()[:8],
	}
}

// CreateJobRequest is the input of CreateJob.
type CreateJobRequest struct {
	Config    models.JobConfig        `json:"config"`
	Seed      string                  `json:"seed"`
	Tolerance *models.ToleranceConfig `json:"tolerance,omitempty"`
}

// StepResult reports the job after a step.
type StepResult struct {
	JobID       string                  `json:"jobId"`
	Status      models.GenerationStatus `json:"status"`
	Phase       models.GenerationPhase  `json:"phase"`
	Progress    int                     `json:"progress"`
	CurrentStep string                  `json:"currentStep"`
	RowsWritten int                     `json:"rowsWritten"`
	// Yielded is set when the budget ran out with work left.
	Yielded bool `json:"yielded"`
	// Skipped is set when another invocation held the job.
	Skipped   bool       `json:"skipped"`
	NextRunAt *time.Time `json:"nextRunAt,omitempty"`
}

func (r *StepResult) Done() bool {
	return r.Status.IsTerminal()
}

func resultOf(job *models.GenerationJob, rows int) *StepResult {
	return &StepResult{
		JobID:       job.ID,
		Status:      job.Status,
		Phase:       job.GenerationPhase,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		RowsWritten: rows,
		NextRunAt:   job.NextRunAt,
	}
}

type entry int

const (
	entryStart entry = iota
	entryContinue
	entryRetry
)

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

func (g *Generator) logger() *logrus.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return config.GetLogger()
}

func (g *Generator) normalizeConfig(cfg models.JobConfig, now time.Time) models.JobConfig {
	cfg.Country = strings.ToUpper(strings.TrimSpace(cfg.Country))
	cfg.TenantName = strings.TrimSpace(cfg.TenantName)
	loc, _ := g.Locales.For(cfg.Country)
	if cfg.Country == "" {
		cfg.Country = loc.Country
	}
	if cfg.Currency == "" {
		cfg.Currency = loc.Currency
	}
	cfg.Currency = strings.ToUpper(cfg.Currency)
	if cfg.Timezone == "" {
		cfg.Timezone = loc.Timezone
	}
	if cfg.TeamSize == 0 {
		cfg.TeamSize = g.Settings.TeamSize
	}
	if cfg.Growth != nil {
		growth := *cfg.Growth
		if growth.StartMonth == "" && growth.Months > 0 && growth.Months <= maxPlanMonths {
			growth.StartMonth = DefaultStartMonth(now, growth.Months)
		}
		cfg.Growth = &growth
	}
	return cfg
}

// Preview validates cfg and estimates the job without persisting anything.
func (g *Generator) Preview(cfg models.JobConfig) (*PlanPreview, error) {
	now := g.now()
	cfg = g.normalizeConfig(cfg, now)
	if err := ValidateJobConfig(cfg, now, g.Planner, g.AllowedCountries); err != nil {
		return nil, err
	}
	source, err := targetSourceFor(cfg, g.Planner, now)
	if err != nil {
		return nil, err
	}
	return Estimator{Settings: g.Settings, Pools: g.Pools}.Preview(cfg.Mode, source.Months()), nil
}

// CreateJob validates the request and stores a pending job. No row is written when
// validation fails.
func (g *Generator) CreateJob(ctx context.Context, req CreateJobRequest) (*models.GenerationJob, error) {
	now := g.now()
	cfg := g.normalizeConfig(req.Config, now)
	if err := ValidateJobConfig(cfg, now, g.Planner, g.AllowedCountries); err != nil {
		return nil, err
	}
	tol := models.ToleranceConfig{
		CountTolerance: g.Settings.DefaultCountTolerance,
		ValueTolerance: g.Settings.DefaultValueTolerance,
	}
	if req.Tolerance != nil {
		tol = *req.Tolerance
		if issues := structIssues(tol, "tolerance."); len(issues) > 0 {
			return nil, issuesErr(issues)
		}
	}
	seed := strings.TrimSpace(req.Seed)
	if seed == "" {
		seed = uuid.NewString()
	}

	job := &models.GenerationJob{
		ID:              uuid.NewString(),
		Status:          models.GenerationStatusPending,
		Mode:            cfg.Mode,
		Config:          datatypes.NewJSONType(cfg),
		Seed:            seed,
		Tolerance:       datatypes.NewJSONType(tol),
		GenerationPhase: models.PhaseInit,
		GenerationState: datatypes.NewJSONType(models.GenerationState{Version: models.GenerationStateVersion}),
		CurrentStep:     "queued",
		CreatedAt:       now,
	}
	if cfg.Mode == models.GenerationModeMonthlyPlan {
		v := cfg.Monthly.PlanVersion
		job.PlanVersion = &v
	}
	g.appendLog(job, logrus.InfoLevel, "job created with seed "+seed)
	if err := g.Store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create generation job: %w", err)
	}
	return job, nil
}

// Start moves a pending job to running and does the first step. Starting a job that is
// already running is a no-op that returns its status.
func (g *Generator) Start(ctx context.Context, jobID string) (*StepResult, error) {
	return g.step(ctx, jobID, entryStart)
}

// Continue does the next step of a running job. Completed jobs are a no-op; failed jobs
// return ErrJobFailed until retried.
func (g *Generator) Continue(ctx context.Context, jobID string) (*StepResult, error) {
	return g.step(ctx, jobID, entryContinue)
}

// Retry resets a failed job to running and resumes it from its last persisted state.
func (g *Generator) Retry(ctx context.Context, jobID string) (*StepResult, error) {
	return g.step(ctx, jobID, entryRetry)
}

func (g *Generator) Status(ctx context.Context, jobID string) (*models.GenerationJob, error) {
	return g.loadJob(ctx, jobID)
}

func (g *Generator) loadJob(ctx context.Context, jobID string) (*models.GenerationJob, error) {
	job, err := g.Store.GetJob(ctx, jobID)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	return job, nil
}

// DeleteTenant tears a demo tenant down. It is safe while a continuation is stalled: jobs
// lose their tenant reference in the same transaction and start over when retried.
func (g *Generator) DeleteTenant(ctx context.Context, tenantID string) error {
	tenant, err := g.Store.GetTenant(ctx, tenantID)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return ErrTenantNotFound
	}
	if err != nil {
		return err
	}
	if !tenant.IsDemo {
		return ErrNotDemoTenant
	}
	if err := g.Store.DeleteTenantCascade(ctx, tenantID); err != nil {
		return fmt.Errorf("delete tenant %s: %w", tenantID, err)
	}
	g.invalidate(ctx, tenantID)
	g.logger().WithField("tenant_id", tenantID).Info("demo tenant deleted")
	return nil
}

func (g *Generator) invalidate(ctx context.Context, tenantID string) {
	if g.Metrics == nil {
		return
	}
	if err := g.Metrics.InvalidateTenant(ctx, tenantID); err != nil {
		g.logger().WithError(err).WithField("tenant_id", tenantID).Warn("invalidate metrics cache")
	}
}

// acquire takes the distributed lock, best effort, and then the row lease. ok is false
// when another invocation holds either.
func (g *Generator) acquire(ctx context.Context, key string, lease func(now, until time.Time) (bool, error), release func(context.Context) error) (func(), bool, error) {
	var unlock Unlocker
	if g.Locker != nil {
		l, err := g.Locker.Obtain(ctx, "lock:"+key, g.Settings.LeaseDuration)
		switch {
		case errors.Is(err, ErrLockNotObtained):
			return nil, false, nil
		case err != nil:
			g.logger().WithError(err).WithField("key", key).Warn("continuation lock unavailable, relying on lease")
		default:
			unlock = l
		}
	}
	releaseLock := func() {
		if unlock != nil {
			if err := unlock.Release(context.WithoutCancel(ctx)); err != nil {
				g.logger().WithError(err).WithField("key", key).Debug("release continuation lock")
			}
		}
	}
	now := g.now()
	ok, err := lease(now, now.Add(g.Settings.LeaseDuration))
	if err != nil || !ok {
		releaseLock()
		return nil, false, err
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			config.LogError(g.logger(), "demogen", "acquire", "release lease "+key, nil, err)
		}
		releaseLock()
	}, true, nil
}

func (g *Generator) step(ctx context.Context, jobID string, kind entry) (*StepResult, error) {
	ctx, span := tracer.Start(ctx, "demogen.step", trace.WithAttributes(attribute.String("job_id", jobID)))
	defer span.End()
	ctx = utils.SetJobIdInContext(ctx, jobID)

	if _, err := g.loadJob(ctx, jobID); err != nil {
		return nil, err
	}
	release, ok, err := g.acquire(ctx, "demo-job:"+jobID,
		func(now, until time.Time) (bool, error) {
			return g.Store.AcquireJobLease(ctx, jobID, g.WorkerID, now, until)
		},
		func(ctx context.Context) error { return g.Store.ReleaseJobLease(ctx, jobID, g.WorkerID) })
	if err != nil {
		return nil, fmt.Errorf("acquire job lease: %w", err)
	}
	if !ok {
		job, err := g.loadJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		res := resultOf(job, 0)
		res.Skipped = true
		return res, nil
	}
	defer release()

	job, err := g.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	now := g.now()
	switch job.Status {
	case models.GenerationStatusCompleted:
		return resultOf(job, 0), nil
	case models.GenerationStatusFailed:
		if kind != entryRetry {
			return resultOf(job, 0), ErrJobFailed
		}
		job.Status = models.GenerationStatusRunning
		job.ErrorMessage = nil
		job.ErrorStack = nil
		g.appendLog(job, logrus.InfoLevel, "retry requested")
	case models.GenerationStatusPending:
		switch kind {
		case entryContinue:
			return resultOf(job, 0), ErrJobNotStarted
		case entryRetry:
			return resultOf(job, 0), ErrJobNotFailed
		}
		job.Status = models.GenerationStatusRunning
		job.StartedAt = &now
		g.appendLog(job, logrus.InfoLevel, "generation started")
	case models.GenerationStatusRunning:
		switch kind {
		case entryStart:
			return resultOf(job, 0), nil
		case entryRetry:
			return resultOf(job, 0), ErrJobNotFailed
		}
	}
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	if err := g.Store.SaveJobProgress(ctx, job); err != nil {
		return nil, fmt.Errorf("save job status: %w", err)
	}

	written, yielded, err := g.run(ctx, job)
	switch {
	case errors.Is(err, errTeardown):
		g.logger().WithField("job_id", jobID).Warn("tenant deleted while generating; step abandoned")
		fresh, lerr := g.loadJob(ctx, jobID)
		if lerr != nil {
			return nil, lerr
		}
		return resultOf(fresh, written), nil
	case err != nil:
		g.fail(ctx, job, err)
		span.RecordError(err)
		return resultOf(job, written), err
	}
	res := resultOf(job, written)
	res.Yielded = yielded
	return res, nil
}

// panicError carries a recovered panic and the stack where it happened.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func (g *Generator) fail(ctx context.Context, job *models.GenerationJob, err error) {
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
	job.CurrentStep = fmt.Sprintf("failed during %s", job.GenerationPhase)
	g.appendLog(job, logrus.ErrorLevel, msg)
	config.LogError(g.logger(), "demogen", "step", "job "+job.ID, string(job.GenerationPhase), err)
	if serr := g.Store.SaveJobProgress(context.WithoutCancel(ctx), job); serr != nil {
		config.LogError(g.logger(), "demogen", "fail", "save failed job "+job.ID, nil, serr)
	}
}

// run advances the job until it completes or the invocation budget is spent. It reports
// the rows written and whether work is left.
func (g *Generator) run(ctx context.Context, job *models.GenerationJob) (written int, yielded bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()

	cfg := job.Config.Data()
	state := job.GenerationState.Data()
	if state.Version == 0 {
		state.Version = models.GenerationStateVersion
	}
	source, err := targetSourceFor(cfg, g.Planner, job.CreatedAt)
	if err != nil {
		return 0, false, err
	}
	months := source.Months()
	ensureMonthProgress(&state, months)
	state.Invocations++
	asOf := *job.StartedAt

	started := g.now()
	var unit *builtUnit
	for {
		if err := g.checkTeardown(ctx, job); err != nil {
			return written, false, err
		}
		switch phase := job.GenerationPhase; phase {
		case models.PhaseInit, "":
			state.Cursor = models.GenerationCursor{}
			job.GenerationPhase = models.PhaseTenantSetup
		case models.PhaseTenantSetup:
			if err := g.setupTenant(ctx, job, &state, cfg); err != nil {
				return written, false, fmt.Errorf("tenant setup: %w", err)
			}
			job.GenerationPhase = models.PhaseCompanies
		case models.PhaseCompanies, models.PhaseContacts, models.PhaseDeals, models.PhaseActivities:
			n, done, err := g.runEntityBatch(ctx, job, &state, months, source.ChannelMix(), asOf, &unit)
			written += n
			if err != nil {
				return written, false, fmt.Errorf("%s: %w", phase, err)
			}
			if done {
				g.appendLog(job, logrus.InfoLevel, fmt.Sprintf("%s phase complete", phase))
				job.GenerationPhase = nextPhase(phase)
				state.Cursor = models.GenerationCursor{}
			}
		case models.PhaseVerify:
			if err := g.verify(ctx, job, &state, months); err != nil {
				return written, false, fmt.Errorf("verify: %w", err)
			}
		case models.PhaseDone:
			return written, false, nil
		default:
			return written, false, fmt.Errorf("unknown generation phase %q", phase)
		}

		job.Progress = progressOf(job.GenerationPhase, state.Cursor, len(months))
		if job.GenerationPhase == models.PhaseDone {
			job.Progress = 100
		}
		yielded = job.GenerationPhase != models.PhaseDone &&
			(written >= g.Settings.MaxRowsPerInvocation || g.now().Sub(started) >= g.Settings.TimeBudget || ctx.Err() != nil)
		if yielded {
			next := g.now().Add(g.Settings.ContinueDelay)
			job.NextRunAt = &next
		}
		job.GenerationState = datatypes.NewJSONType(state)
		if err := g.Store.SaveJobProgress(ctx, job); err != nil {
			return written, false, fmt.Errorf("save progress: %w", err)
		}
		if yielded || job.GenerationPhase == models.PhaseDone {
			return written, yielded, nil
		}
	}
}

// checkTeardown detects a concurrent DeleteTenant: the job lost its tenant reference or was
// moved out of running.
func (g *Generator) checkTeardown(ctx context.Context, job *models.GenerationJob) error {
	fresh, err := g.loadJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if fresh.Status != models.GenerationStatusRunning {
		return errTeardown
	}
	if job.CreatedTenantId != nil && fresh.CreatedTenantId == nil {
		return errTeardown
	}
	return nil
}

func ensureMonthProgress(state *models.GenerationState, months []models.MonthlyTarget) {
	if len(state.Months) == len(months) {
		return
	}
	progress := make([]models.MonthProgress, len(months))
	for i, m := range months {
		progress[i].Month = m.Month
		if i < len(state.Months) && state.Months[i].Month == m.Month {
			progress[i] = state.Months[i]
		}
	}
	state.Months = progress
}

func nextPhase(p models.GenerationPhase) models.GenerationPhase {
	switch p {
	case models.PhaseCompanies:
		return models.PhaseContacts
	case models.PhaseContacts:
		return models.PhaseDeals
	case models.PhaseDeals:
		return models.PhaseActivities
	case models.PhaseActivities:
		return models.PhaseVerify
	default:
		return models.PhaseDone
	}
}

var phaseWeights = []struct {
	phase  models.GenerationPhase
	weight float64
}{
	{models.PhaseTenantSetup, 5},
	{models.PhaseCompanies, 10},
	{models.PhaseContacts, 35},
	{models.PhaseDeals, 25},
	{models.PhaseActivities, 20},
	{models.PhaseVerify, 5},
}

func progressOf(phase models.GenerationPhase, cursor models.GenerationCursor, months int) int {
	if phase == models.PhaseDone {
		return 100
	}
	var done float64
	for _, pw := range phaseWeights {
		if pw.phase == phase {
			if months > 0 {
				done += pw.weight * float64(cursor.MonthIndex) / float64(months)
			}
			return int(done)
		}
		done += pw.weight
	}
	return 0
}

func (g *Generator) appendLog(job *models.GenerationJob, level logrus.Level, msg string) {
	job.Logs = datatypes.NewJSONType(models.AppendLog(job.Logs.Data(), models.JobLogLine{
		At:      g.now(),
		Level:   level.String(),
		Phase:   string(job.GenerationPhase),
		Message: msg,
	}, g.Settings.MaxLogLines))
	g.logger().WithFields(logrus.Fields{"job_id": job.ID, "phase": job.GenerationPhase}).Log(level, msg)
}

// tenantOf loads the job's tenant; a missing tenant means it was torn down.
func (g *Generator) tenantOf(ctx context.Context, tenantID *string) (*models.Tenant, error) {
	if tenantID == nil {
		return nil, errTeardown
	}
	tenant, err := g.Store.GetTenant(ctx, *tenantID)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, errTeardown
	}
	return tenant, err
}

// newEnv prepares the unit of (phase, month). Content is drawn from a generator derived
// from the seed and the unit only, so a regenerated unit is identical.
func (g *Generator) newEnv(tenant *models.Tenant, seed, origin string, jobID, patchID *string, phase models.GenerationPhase, month string,
	owners []string, stages map[models.StageKind]string, mix map[string]float64, asOf time.Time) (*unitEnv, error) {
	start, end, err := models.MonthBounds(month, tenant.Location())
	if err != nil {
		return nil, err
	}
	locale, _ := g.Locales.For(tenant.Country)
	return &unitEnv{
		Store:    g.Store,
		Pools:    g.Pools,
		Settings: g.Settings,
		Tenant:   tenant,
		Locale:   locale,
		Origin:   origin,
		JobID:    jobID,
		PatchID:  patchID,
		Phase:    phase,
		Month:    month,
		Start:    start.UTC(),
		End:      end.UTC(),
		Now:      asOf.UTC(),
		Owners:   owners,
		Stages:   stages,
		Mix:      mix,
		Rand:     NewRand(SeedFromString(seed)).Derive(string(phase), month),
	}, nil
}

func (g *Generator) runEntityBatch(ctx context.Context, job *models.GenerationJob, state *models.GenerationState,
	months []models.MonthlyTarget, mix map[string]float64, asOf time.Time, cache **builtUnit) (int, bool, error) {
	idx := state.Cursor.MonthIndex
	if idx >= len(months) {
		return 0, true, nil
	}
	target := months[idx]
	tenant, err := g.tenantOf(ctx, job.CreatedTenantId)
	if err != nil {
		return 0, false, err
	}
	jobID := job.ID
	env, err := g.newEnv(tenant, job.Seed, job.ID, &jobID, nil, job.GenerationPhase, target.Month, state.OwnerIds, state.StageIds, mix, asOf)
	if err != nil {
		return 0, false, err
	}
	if *cache == nil || (*cache).key != env.key() {
		unit, err := buildUnit(ctx, env, target.Targets)
		if err != nil {
			return 0, false, err
		}
		*cache = unit
	}
	unit := *cache
	offset, n, err := unitRunner{unit: unit, batchSize: g.Settings.BatchSize}.next(ctx, g.Store, state.Cursor.Offset, &state.Months[idx])
	state.Cursor.Offset = offset
	if err != nil {
		return n, false, err
	}
	job.CurrentStep = fmt.Sprintf("%s %s (%d/%d)", job.GenerationPhase, target.Month, offset, unit.size)
	if offset >= unit.size {
		state.Cursor.MonthIndex++
		state.Cursor.Offset = 0
	}
	return n, state.Cursor.MonthIndex >= len(months), nil
}

func (g *Generator) setupTenant(ctx context.Context, job *models.GenerationJob, state *models.GenerationState, cfg models.JobConfig) error {
	var tenant *models.Tenant
	if job.CreatedTenantId != nil {
		t, err := g.Store.GetTenant(ctx, *job.CreatedTenantId)
		switch {
		case err == nil:
			tenant = t
		case !errors.Is(err, utils.ErrorRecordNotFound):
			return err
		}
	}
	if tenant == nil {
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(job.ID+":tenant")).String()
		t, err := g.Store.GetTenant(ctx, id)
		switch {
		case err == nil:
			tenant = t
		case errors.Is(err, utils.ErrorRecordNotFound):
			jobID := job.ID
			tenant = &models.Tenant{
				ID:        id,
				Name:      cfg.TenantName,
				Country:   cfg.Country,
				Currency:  cfg.Currency,
				Timezone:  cfg.Timezone,
				IsDemo:    true,
				DemoJobId: &jobID,
			}
			if err := g.Store.CreateTenant(ctx, tenant); err != nil {
				return fmt.Errorf("create tenant: %w", err)
			}
		default:
			return err
		}
		if err := g.Store.SetJobTenant(ctx, job.ID, tenant.ID); err != nil {
			return fmt.Errorf("link tenant: %w", err)
		}
		job.CreatedTenantId = &tenant.ID
		g.appendLog(job, logrus.InfoLevel, "created demo tenant "+tenant.ID)
	}

	owners, stages, err := g.ensureTeamAndStages(ctx, tenant, job.Seed, &job.ID, cfg.TeamSize)
	if err != nil {
		return err
	}
	state.OwnerIds = owners
	state.StageIds = stages
	job.CurrentStep = "tenant ready"
	return nil
}

// ensureTeamAndStages creates the sales team and default pipeline when the tenant has none
// and returns owner ids and stage ids by kind.
func (g *Generator) ensureTeamAndStages(ctx context.Context, tenant *models.Tenant, seed string, jobID *string, teamSize int) ([]string, map[models.StageKind]string, error) {
	users, err := g.Store.ListUsers(ctx, tenant.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list users: %w", err)
	}
	if len(users) == 0 {
		users, err = g.salesTeam(tenant, seed, jobID, teamSize)
		if err != nil {
			return nil, nil, err
		}
		if err := g.Store.CreateUsers(ctx, users); err != nil {
			return nil, nil, fmt.Errorf("create users: %w", err)
		}
	}
	owners := make([]string, 0, len(users))
	for _, u := range users {
		owners = append(owners, u.ID)
	}
	sort.Strings(owners)

	stages, err := g.Store.ListStages(ctx, tenant.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list stages: %w", err)
	}
	if len(stages) == 0 {
		for i, st := range g.Pools.DefaultStages {
			stages = append(stages, models.PipelineStage{
				ID:             uuid.NewSHA1(uuid.NameSpaceOID, []byte(tenant.ID+":stage:"+string(st.Kind))).String(),
				TenantId:       tenant.ID,
				Name:           st.Name,
				Kind:           st.Kind,
				Position:       i + 1,
				WinProbability: st.WinProbability,
			})
		}
		if err := g.Store.CreateStages(ctx, stages); err != nil {
			return nil, nil, fmt.Errorf("create stages: %w", err)
		}
		// read back so the ids come from the stored configuration
		if stages, err = g.Store.ListStages(ctx, tenant.ID); err != nil {
			return nil, nil, fmt.Errorf("list stages: %w", err)
		}
	}
	sort.SliceStable(stages, func(i, j int) bool { return stages[i].Position < stages[j].Position })
	byKind := map[models.StageKind]string{}
	for _, st := range stages {
		if _, ok := byKind[st.Kind]; !ok {
			byKind[st.Kind] = st.ID
		}
	}
	return owners, byKind, nil
}

func (g *Generator) salesTeam(tenant *models.Tenant, seed string, jobID *string, size int) ([]models.User, error) {
	if size <= 0 {
		size = 1
	}
	locale, _ := g.Locales.For(tenant.Country)
	r := NewRand(SeedFromString(seed)).Derive("team")
	domain := slug(tenant.Name)
	if domain == "" {
		domain = "demo"
	}
	domain += "." + locale.TLD
	hash, err := utils.HashPassword(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	users := make([]models.User, size)
	for i := range users {
		role := models.UserRoleSalesRep
		switch i {
		case 0:
			role = models.UserRoleAdmin
		case 1:
			role = models.UserRoleSalesManager
		}
		first := Pick(r, locale.FirstNames)
		last := Pick(r, locale.LastNames)
		users[i] = models.User{
			ID:            uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:user:%d", tenant.ID, i))).String(),
			TenantId:      tenant.ID,
			FirstName:     first,
			LastName:      last,
			Email:         fmt.Sprintf("%s.%s%d@%s", slug(first), slug(last), i+1, domain),
			Role:          role,
			PasswordHash:  string(hash),
			IsActive:      true,
			LoginDisabled: true,
			DemoGenerated: true,
			DemoJobId:     jobID,
		}
	}
	return users, nil
}

func (g *Generator) verify(ctx context.Context, job *models.GenerationJob, state *models.GenerationState, months []models.MonthlyTarget) error {
	tenant, err := g.tenantOf(ctx, job.CreatedTenantId)
	if err != nil {
		return err
	}
	actuals, err := g.Store.JobMonthMetrics(ctx, tenant.ID, job.ID)
	if err != nil {
		return fmt.Errorf("job metrics: %w", err)
	}
	now := g.now()
	report := Verify(months, actuals, job.Tolerance.Data())
	report.VerifiedAt = now
	passed := report.Passed

	metrics := &models.JobMetrics{Invocations: state.Invocations}
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

	job.VerificationReport = datatypes.NewJSONType(&report)
	job.VerificationPassed = &passed
	job.Metrics = datatypes.NewJSONType(metrics)
	job.Status = models.GenerationStatusCompleted
	job.CompletedAt = &now
	job.NextRunAt = nil
	job.GenerationPhase = models.PhaseDone
	job.CurrentStep = "completed"
	if passed {
		g.appendLog(job, logrus.InfoLevel, "verification passed")
	} else {
		g.appendLog(job, logrus.WarnLevel, "verification did not pass; see report")
	}
	g.invalidate(ctx, tenant.ID)
	return nil
}
