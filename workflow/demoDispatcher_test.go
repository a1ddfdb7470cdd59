package workflow

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bsm/redislock"
	"github.com/davidprivate500/gonthia-crm-sub001/config"
	"github.com/davidprivate500/gonthia-crm-sub001/demogen"
	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"gorm.io/gorm"
)

type fakeStepper struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeStepper) step(id string) (*demogen.StepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if f.err != nil {
		return nil, f.err
	}
	return &demogen.StepResult{JobID: id, Status: models.GenerationStatusRunning}, nil
}

func (f *fakeStepper) Continue(_ context.Context, id string) (*demogen.StepResult, error) {
	return f.step(id)
}

func (f *fakeStepper) Run(_ context.Context, id string) (*demogen.StepResult, error) {
	return f.step(id)
}

func (f *fakeStepper) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

func newDispatcherDB(t *testing.T) *gorm.DB {
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
	return db
}

func TestDispatchOncePicksDueWork(t *testing.T) {
	db := newDispatcherDB(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Minute), now.Add(time.Minute)
	other := "other-worker"

	jobs := []models.GenerationJob{
		{ID: "running-due", Status: models.GenerationStatusRunning, NextRunAt: &past},
		{ID: "running-fresh", Status: models.GenerationStatusRunning},
		{ID: "running-later", Status: models.GenerationStatusRunning, NextRunAt: &future},
		{ID: "running-locked", Status: models.GenerationStatusRunning, LockedBy: &other, LockedUntil: &future},
		{ID: "running-stale-lock", Status: models.GenerationStatusRunning, LockedBy: &other, LockedUntil: &past},
		{ID: "pending", Status: models.GenerationStatusPending},
		{ID: "failed", Status: models.GenerationStatusFailed},
		{ID: "completed", Status: models.GenerationStatusCompleted},
	}
	for i := range jobs {
		jobs[i].Mode = models.GenerationModeGrowthCurve
		jobs[i].Seed = "42"
		jobs[i].GenerationPhase = models.PhaseContacts
		jobs[i].CreatedAt = now.Add(time.Duration(i) * time.Second)
	}
	if err := db.Create(&jobs).Error; err != nil {
		t.Fatalf("create jobs: %v", err)
	}
	patches := []models.DemoPatchJob{
		{ID: "patch-pending", Status: models.GenerationStatusPending},
		{ID: "patch-running", Status: models.GenerationStatusRunning, NextRunAt: &past},
		{ID: "patch-failed", Status: models.GenerationStatusFailed},
		{ID: "patch-done", Status: models.GenerationStatusCompleted},
	}
	for i := range patches {
		patches[i].TenantId = "t1"
		patches[i].Mode = models.PatchModeAdditive
		patches[i].PlanType = models.PatchPlanDeltas
		patches[i].Seed = "42"
		patches[i].RangeStart, patches[i].RangeEnd = "2025-01", "2025-01"
	}
	if err := db.Create(&patches).Error; err != nil {
		t.Fatalf("create patches: %v", err)
	}

	stepper := &fakeStepper{}
	d := NewDemoDispatcher(db, nil, stepper, stepper)
	d.Now = func() time.Time { return now }

	if n := d.DispatchOnce(context.Background()); n != 5 {
		t.Fatalf("stepped %d, want 5 (%v)", n, stepper.seen())
	}
	want := []string{"patch-pending", "patch-running", "running-due", "running-fresh", "running-stale-lock"}
	got := stepper.seen()
	if len(got) != len(want) {
		t.Fatalf("stepped %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stepped %v, want %v", got, want)
		}
	}
}

func TestDispatchOnceRespectsBatchSize(t *testing.T) {
	db := newDispatcherDB(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		job := models.GenerationJob{ID: string(rune('a' + i)), Status: models.GenerationStatusRunning,
			Mode: models.GenerationModeGrowthCurve, Seed: "1", GenerationPhase: models.PhaseDeals}
		if err := db.Create(&job).Error; err != nil {
			t.Fatalf("create job: %v", err)
		}
	}
	stepper := &fakeStepper{err: demogen.ErrJobFailed}
	d := NewDemoDispatcher(db, nil, stepper, nil)
	d.Now = func() time.Time { return now }
	d.BatchSize = 3
	if n := d.DispatchOnce(context.Background()); n != 3 {
		t.Fatalf("stepped %d, want 3", n)
	}
}

func TestDispatchOnceWithoutDB(t *testing.T) {
	d := NewDemoDispatcher(nil, nil, &fakeStepper{}, nil)
	if n := d.DispatchOnce(context.Background()); n != 0 {
		t.Fatalf("stepped %d without a database", n)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	d := NewDemoDispatcher(nil, nil, nil, nil)
	d.PollInterval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}

func TestRedisLockerWithoutClient(t *testing.T) {
	var l demogen.Locker = NewRedisLocker(nil)
	u, err := l.Obtain(context.Background(), "lock:demo-job:1", time.Second)
	if err != nil {
		t.Fatalf("Obtain: %v", err)
	}
	if err := u.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	var _ demogen.Unlocker = (*redislock.Lock)(nil)
}
