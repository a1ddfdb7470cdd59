package reports

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/davidprivate500/gonthia-crm-sub001/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DemoMetricsReader computes tenant KPIs by creation month in the tenant timezone and folds
// in the metric overrides written by metrics-only patches.
type DemoMetricsReader struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func NewDemoMetricsReader(db *gorm.DB, logger *logrus.Logger) *DemoMetricsReader {
	return &DemoMetricsReader{DB: db, Logger: logger}
}

func metricsCacheSet(tenantID string) string {
	return "demo-metrics-keys:" + tenantID
}

type createdRow struct {
	CreatedAt time.Time
	Status    models.ContactStatus
}

type dealRow struct {
	CreatedAt time.Time
	ClosedAt  *time.Time
	StageKind models.StageKind
	Value     decimal.Decimal
}

// BaseMetrics aggregates stored rows for months, without overrides. Won deals count in the
// month they closed; everything else in the month it was created.
func (r *DemoMetricsReader) BaseMetrics(ctx context.Context, tenantID string, months []string) ([]models.MonthMetrics, error) {
	if len(months) == 0 {
		return nil, nil
	}
	db := r.DB.WithContext(utils.SystemContext(ctx))
	var tenant models.Tenant
	if err := db.Where("id = ?", tenantID).Take(&tenant).Error; err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", tenantID, err)
	}
	loc := tenant.Location()

	sorted := append([]string(nil), months...)
	sort.Strings(sorted)
	from, _, err := models.MonthBounds(sorted[0], loc)
	if err != nil {
		return nil, err
	}
	_, to, err := models.MonthBounds(sorted[len(sorted)-1], loc)
	if err != nil {
		return nil, err
	}
	from, to = from.UTC(), to.UTC()

	byMonth := make(map[string]*models.MonthMetrics, len(months))
	for _, m := range months {
		byMonth[m] = &models.MonthMetrics{Month: m}
	}
	bucket := func(t time.Time) *models.MonthMetrics {
		return byMonth[models.MonthKey(t.In(loc))]
	}

	// Rows are bucketed here so month boundaries follow the tenant timezone on every driver.
	var companies []time.Time
	if err := db.Model(&models.Company{}).Where("tenant_id = ? AND created_at >= ? AND created_at < ?", tenantID, from, to).
		Pluck("created_at", &companies).Error; err != nil {
		return nil, err
	}
	for _, t := range companies {
		if m := bucket(t); m != nil {
			m.CompaniesCreated++
		}
	}

	var contacts []createdRow
	if err := db.Model(&models.Contact{}).Select("created_at, status").
		Where("tenant_id = ? AND created_at >= ? AND created_at < ?", tenantID, from, to).Scan(&contacts).Error; err != nil {
		return nil, err
	}
	for _, c := range contacts {
		if m := bucket(c.CreatedAt); m != nil {
			m.ContactsCreated++
			if c.Status == models.ContactStatusLead {
				m.LeadsCreated++
			}
		}
	}

	var deals []dealRow
	if err := db.Model(&models.Deal{}).Select("created_at, closed_at, stage_kind, value").
		Where("tenant_id = ? AND ((created_at >= ? AND created_at < ?) OR (closed_at >= ? AND closed_at < ?))", tenantID, from, to, from, to).
		Scan(&deals).Error; err != nil {
		return nil, err
	}
	for _, d := range deals {
		if !d.CreatedAt.Before(from) && d.CreatedAt.Before(to) {
			if m := bucket(d.CreatedAt); m != nil {
				m.DealsCreated++
				m.PipelineAddedValue = m.PipelineAddedValue.Add(d.Value)
			}
		}
		if d.StageKind == models.StageKindWon && d.ClosedAt != nil {
			if m := bucket(*d.ClosedAt); m != nil && !d.ClosedAt.Before(from) && d.ClosedAt.Before(to) {
				m.ClosedWonCount++
				m.ClosedWonValue = m.ClosedWonValue.Add(d.Value)
			}
		}
	}

	var activities []time.Time
	if err := db.Model(&models.Activity{}).Where("tenant_id = ? AND created_at >= ? AND created_at < ?", tenantID, from, to).
		Pluck("created_at", &activities).Error; err != nil {
		return nil, err
	}
	for _, t := range activities {
		if m := bucket(t); m != nil {
			m.ActivitiesCreated++
		}
	}

	out := make([]models.MonthMetrics, 0, len(months))
	for _, month := range months {
		m := *byMonth[month]
		m.ClosedWonValue = m.ClosedWonValue.Round(2)
		m.PipelineAddedValue = m.PipelineAddedValue.Round(2)
		out = append(out, m)
	}
	return out, nil
}

// PeriodMetrics is what reporting displays: base aggregates plus overrides. Results are
// cached per tenant and month list when the report cache is enabled.
func (r *DemoMetricsReader) PeriodMetrics(ctx context.Context, tenantID string, months []string) ([]models.MonthMetrics, error) {
	started := time.Now()
	defer logSlowReport(ctx, r.Logger, "demo_period_metrics", started, map[string]any{"tenant_id": tenantID, "months": len(months)})

	key := ""
	if reportCacheEnabled() && len(months) > 0 {
		key = fmt.Sprintf("demo-metrics:%s:%s", tenantID, strings.Join(months, ","))
		var cached []models.MonthMetrics
		if ok, err := cacheGet(ctx, key, &cached); err == nil && ok {
			return cached, nil
		}
	}

	base, err := r.BaseMetrics(ctx, tenantID, months)
	if err != nil {
		return nil, err
	}
	overrides, err := models.ListMetricOverrides(r.DB.WithContext(utils.SystemContext(ctx)), tenantID, months)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	out := models.FoldOverrides(base, overrides)

	if key != "" {
		if err := cacheSet(ctx, metricsCacheSet(tenantID), key, out, reportCacheTTL()); err != nil && r.Logger != nil {
			r.Logger.WithError(err).WithField("key", key).Warn("cache demo metrics")
		}
	}
	return out, nil
}

// InvalidateTenant drops every cached metrics result of tenantID.
func (r *DemoMetricsReader) InvalidateTenant(ctx context.Context, tenantID string) error {
	return cacheDrop(ctx, metricsCacheSet(tenantID))
}
