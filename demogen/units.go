package demogen

import (
	"context"
	"fmt"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/config"
	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/google/uuid"
)

// unitEnv is everything a builder needs for one (origin, phase, month) unit.
type unitEnv struct {
	Store    Store
	Pools    *Pools
	Settings config.DemoSettings

	Tenant *models.Tenant
	Locale *Locale
	// Origin is the generation job or patch id that owns the rows.
	Origin  string
	JobID   *string
	PatchID *string

	Phase  models.GenerationPhase
	Month  string
	Start  time.Time
	End    time.Time
	Now    time.Time
	Owners []string
	Stages map[models.StageKind]string
	Mix    map[string]float64
	Rand   *Rand
}

// unitTargets are the rows a unit must create.
type unitTargets = models.MonthlyMetricTargets

func batchKey(origin string, phase models.GenerationPhase, month string) string {
	return fmt.Sprintf("%s:%s:%s", origin, phase, month)
}

func (e *unitEnv) key() string {
	return batchKey(e.Origin, e.Phase, e.Month)
}

// entityID is stable for a given unit and row index, so a regenerated unit reproduces the
// ids of rows that were already written.
func (e *unitEnv) entityID(kind models.EntityKind, i int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%s:%s:%d", e.Origin, kind, e.Month, i))).String()
}

func (e *unitEnv) provenance() models.DemoProvenance {
	month := e.Month
	return models.DemoProvenance{
		DemoGenerated:   true,
		DemoJobId:       e.JobID,
		DemoPatchId:     e.PatchID,
		DemoSourceMonth: &month,
		DemoBatchKey:    e.key(),
	}
}

func (e *unitEnv) window() *monthWindow {
	loc := e.Tenant.Location()
	return newMonthWindow(e.Rand, e.Start.In(loc), e.End.In(loc), e.Now.In(loc), e.Pools.WeekdayWeights, e.Settings.DayVariance)
}

func (e *unitEnv) owner() string {
	if len(e.Owners) == 0 {
		return ""
	}
	return Pick(e.Rand, e.Owners)
}

// builtUnit is a fully generated unit. Rows are inserted and accounted by index range so a
// resumed unit can skip what is already stored.
type builtUnit struct {
	kind    models.EntityKind
	key     string
	size    int
	insert  func(ctx context.Context, from, to int) error
	account func(m *models.MonthProgress, from, to int)
}

// buildUnit generates the rows of env.Phase for targets.
func buildUnit(ctx context.Context, env *unitEnv, targets unitTargets) (*builtUnit, error) {
	switch env.Phase {
	case models.PhaseCompanies:
		rows, err := buildCompanies(ctx, env, int(targets.CompaniesCreated))
		if err != nil {
			return nil, err
		}
		return &builtUnit{
			kind: models.EntityCompany, key: env.key(), size: len(rows),
			insert: func(ctx context.Context, from, to int) error { return env.Store.InsertCompanies(ctx, rows[from:to]) },
			account: func(m *models.MonthProgress, from, to int) {
				m.Companies += int64(to - from)
			},
		}, nil
	case models.PhaseContacts:
		rows, err := buildContacts(ctx, env, int(targets.ContactsCreated), int(targets.LeadsCreated))
		if err != nil {
			return nil, err
		}
		return &builtUnit{
			kind: models.EntityContact, key: env.key(), size: len(rows),
			insert: func(ctx context.Context, from, to int) error { return env.Store.InsertContacts(ctx, rows[from:to]) },
			account: func(m *models.MonthProgress, from, to int) {
				for _, c := range rows[from:to] {
					m.Contacts++
					if c.Status == models.ContactStatusLead {
						m.Leads++
					}
				}
			},
		}, nil
	case models.PhaseDeals:
		rows, err := buildDeals(ctx, env, targets)
		if err != nil {
			return nil, err
		}
		return &builtUnit{
			kind: models.EntityDeal, key: env.key(), size: len(rows),
			insert: func(ctx context.Context, from, to int) error { return env.Store.InsertDeals(ctx, rows[from:to]) },
			account: func(m *models.MonthProgress, from, to int) {
				for _, d := range rows[from:to] {
					m.Deals++
					m.PipelineValue = m.PipelineValue.Add(d.Value)
					if d.StageKind == models.StageKindWon {
						m.ClosedWon++
						m.ClosedWonValue = m.ClosedWonValue.Add(d.Value)
					}
				}
			},
		}, nil
	case models.PhaseActivities:
		rows, err := buildActivities(ctx, env)
		if err != nil {
			return nil, err
		}
		return &builtUnit{
			kind: models.EntityActivity, key: env.key(), size: len(rows),
			insert: func(ctx context.Context, from, to int) error { return env.Store.InsertActivities(ctx, rows[from:to]) },
			account: func(m *models.MonthProgress, from, to int) {
				m.Activities += int64(to - from)
			},
		}, nil
	default:
		return nil, fmt.Errorf("phase %q does not create rows", env.Phase)
	}
}

// unitRunner writes one unit batch by batch. Offset is the number of rows already stored;
// the store count is authoritative, so rows written by a call that died before saving its
// cursor are accounted and skipped rather than inserted twice.
type unitRunner struct {
	unit      *builtUnit
	batchSize int
}

// next writes one batch and returns the new offset and the rows it inserted.
func (u unitRunner) next(ctx context.Context, store Store, offset int, acc *models.MonthProgress) (int, int, error) {
	stored, err := store.CountBatch(ctx, u.unit.kind, u.unit.key)
	if err != nil {
		return offset, 0, fmt.Errorf("count %s: %w", u.unit.key, err)
	}
	stored = min(stored, u.unit.size)
	if stored > offset {
		u.unit.account(acc, offset, stored)
		offset = stored
	}
	if offset >= u.unit.size {
		return offset, 0, nil
	}
	size := u.batchSize
	if size <= 0 {
		size = u.unit.size
	}
	end := min(offset+size, u.unit.size)
	if err := u.unit.insert(ctx, offset, end); err != nil {
		return offset, 0, fmt.Errorf("insert %s rows %d-%d: %w", u.unit.key, offset, end, err)
	}
	u.unit.account(acc, offset, end)
	return end, end - offset, nil
}
