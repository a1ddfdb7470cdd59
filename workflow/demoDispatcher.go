package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/demogen"
	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// JobContinuer advances generation jobs.
type JobContinuer interface {
	Continue(ctx context.Context, jobID string) (*demogen.StepResult, error)
}

// PatchRunner advances patch jobs.
type PatchRunner interface {
	Run(ctx context.Context, patchID string) (*demogen.StepResult, error)
}

// DemoDispatcher is the external invoker of the demo generator: it polls for runnable
// generation and patch jobs and calls one step for each. Failed jobs are never picked up;
// they wait for an explicit retry.
type DemoDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string
	Jobs         JobContinuer
	Patches      PatchRunner

	BatchSize    int
	PollInterval time.Duration
	Now          func() time.Time
}

func NewDemoDispatcher(db *gorm.DB, logger *logrus.Logger, jobs JobContinuer, patches PatchRunner) *DemoDispatcher {
	return &DemoDispatcher{
		DB:           db,
		Logger:       logger,
		DispatcherID: uuid.NewString(),
		Jobs:         jobs,
		Patches:      patches,
		BatchSize:    10,
		PollInterval: 2 * time.Second,
		Now:          time.Now,
	}
}

func (d *DemoDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

func (d *DemoDispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// runnable selects rows whose lease is free and whose continuation is due.
func runnable(tx *gorm.DB, now time.Time) *gorm.DB {
	return tx.Where("(locked_until IS NULL OR locked_until < ?)", now).
		Where("(next_run_at IS NULL OR next_run_at <= ?)", now)
}

// DispatchOnce runs one step of every due job and patch and returns how many were stepped.
func (d *DemoDispatcher) DispatchOnce(ctx context.Context) int {
	if d.DB == nil {
		return 0
	}
	now := d.now()
	db := d.DB.WithContext(ctx)
	stepped := 0

	if d.Jobs != nil {
		var ids []string
		if err := runnable(db.Model(&models.GenerationJob{}), now).
			Where("status = ?", models.GenerationStatusRunning).
			Order("next_run_at, created_at").Limit(d.BatchSize).
			Pluck("id", &ids).Error; err != nil {
			d.logError("select generation jobs", err)
		}
		for _, id := range ids {
			res, err := d.Jobs.Continue(ctx, id)
			d.logStep("generation", id, res, err)
			stepped++
		}
	}

	if d.Patches != nil {
		var ids []string
		if err := runnable(db.Model(&models.DemoPatchJob{}), now).
			Where("status IN ?", []models.GenerationStatus{models.GenerationStatusPending, models.GenerationStatusRunning}).
			Order("created_at").Limit(d.BatchSize).
			Pluck("id", &ids).Error; err != nil {
			d.logError("select patch jobs", err)
		}
		for _, id := range ids {
			res, err := d.Patches.Run(ctx, id)
			d.logStep("patch", id, res, err)
			stepped++
		}
	}
	return stepped
}

func (d *DemoDispatcher) logError(what string, err error) {
	if d.Logger == nil {
		return
	}
	d.Logger.WithFields(logrus.Fields{"field": "DemoDispatcher", "dispatcher_id": d.DispatcherID}).WithError(err).Error(what)
}

func (d *DemoDispatcher) logStep(kind, id string, res *demogen.StepResult, err error) {
	if d.Logger == nil {
		return
	}
	entry := d.Logger.WithFields(logrus.Fields{"field": "DemoDispatcher", "kind": kind, "id": id})
	switch {
	case errors.Is(err, demogen.ErrJobFailed):
		entry.Debug("job is failed; waiting for retry")
	case err != nil:
		entry.WithError(err).Error("step failed")
	case res != nil:
		entry.WithFields(logrus.Fields{
			"status":   res.Status,
			"phase":    res.Phase,
			"progress": res.Progress,
			"rows":     res.RowsWritten,
			"skipped":  res.Skipped,
		}).Info("step done")
	}
}
