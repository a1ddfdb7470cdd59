package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Typed JSON payloads stored on generation and patch jobs.
// Each top-level payload carries a version or mode discriminator so readers can switch on it.

const MonthlyPlanVersion = 1
const GenerationStateVersion = 1

// JobConfig is the full input of a generation job. Exactly one of Growth or Monthly is set,
// selected by Mode.
type JobConfig struct {
	Mode       GenerationMode `json:"mode" validate:"oneof=growth-curve monthly-plan"`
	TenantName string         `json:"tenantName" validate:"required,max=120"`
	Country    string         `json:"country" validate:"omitempty,len=2"`
	Currency   string         `json:"currency" validate:"omitempty,len=3"`
	Timezone   string         `json:"timezone" validate:"omitempty,max=64"`
	TeamSize   int            `json:"teamSize" validate:"omitempty,gte=1,lte=50"`
	Growth     *GrowthConfig  `json:"growth,omitempty"`
	Monthly    *MonthlyPlan   `json:"monthlyPlan,omitempty"`
}

type GrowthConfig struct {
	StartMonth string      `json:"startMonth"`
	Months     int         `json:"months" validate:"gte=1,lte=60"`
	Curve      GrowthCurve `json:"curve" validate:"oneof=linear exponential logistic step"`
	// MonthlyGrowthRate is the per-month increase used by the exponential curve (0.1 = +10%).
	MonthlyGrowthRate *float64           `json:"monthlyGrowthRate,omitempty" validate:"omitempty,gt=-0.9,lte=5"`
	Seasonality       bool               `json:"seasonality"`
	Targets           GrowthTargets      `json:"targets"`
	ChannelMix        map[string]float64 `json:"channelMix,omitempty" validate:"omitempty,dive,gte=0,lte=100"`
}

// GrowthTargets are totals over the whole span. Omitted metrics fall back to planner baselines.
type GrowthTargets struct {
	Leads          *int64           `json:"leads,omitempty" validate:"omitempty,gte=0"`
	Contacts       *int64           `json:"contacts,omitempty" validate:"omitempty,gte=0"`
	Companies      *int64           `json:"companies,omitempty" validate:"omitempty,gte=0"`
	Deals          *int64           `json:"deals,omitempty" validate:"omitempty,gte=0"`
	ClosedWonCount *int64           `json:"closedWonCount,omitempty" validate:"omitempty,gte=0"`
	ClosedWonValue *decimal.Decimal `json:"closedWonValue,omitempty"`
	PipelineValue  *decimal.Decimal `json:"pipelineValue,omitempty"`
}

type MonthlyPlan struct {
	PlanVersion int             `json:"planVersion"`
	Months      []MonthlyTarget `json:"months"`
}

type MonthlyTarget struct {
	Month   string               `json:"month"`
	Targets MonthlyMetricTargets `json:"targets"`
}

type MonthlyMetricTargets struct {
	LeadsCreated       int64           `json:"leadsCreated"`
	ContactsCreated    int64           `json:"contactsCreated"`
	CompaniesCreated   int64           `json:"companiesCreated"`
	DealsCreated       int64           `json:"dealsCreated"`
	ClosedWonCount     int64           `json:"closedWonCount"`
	ClosedWonValue     decimal.Decimal `json:"closedWonValue"`
	PipelineAddedValue decimal.Decimal `json:"pipelineAddedValue"`
}

type ToleranceConfig struct {
	CountTolerance int64   `json:"countTolerance" validate:"gte=0"`
	ValueTolerance float64 `json:"valueTolerance" validate:"gte=0,lte=1"`
}

func DefaultTolerance() ToleranceConfig {
	return ToleranceConfig{CountTolerance: 0, ValueTolerance: 0.005}
}

// GenerationCursor points at the next unit of work inside a phase.
type GenerationCursor struct {
	MonthIndex int `json:"monthIndex"`
	// Offset is the number of rows of the current unit already written.
	Offset int `json:"offset"`
}

// MonthProgress accumulates what has been written for one target month.
type MonthProgress struct {
	Month          string          `json:"month"`
	Companies      int64           `json:"companies"`
	Contacts       int64           `json:"contacts"`
	Leads          int64           `json:"leads"`
	Deals          int64           `json:"deals"`
	ClosedWon      int64           `json:"closedWon"`
	ClosedWonValue decimal.Decimal `json:"closedWonValue"`
	PipelineValue  decimal.Decimal `json:"pipelineValue"`
	Activities     int64           `json:"activities"`
}

type GenerationState struct {
	Version  int                  `json:"version"`
	Cursor   GenerationCursor     `json:"cursor"`
	OwnerIds []string             `json:"ownerIds"`
	StageIds map[StageKind]string `json:"stageIds"`
	Months   []MonthProgress      `json:"months"`
	// Invocations counts start/continue calls that did work.
	Invocations int `json:"invocations"`
}

type JobLogLine struct {
	At      time.Time `json:"at"`
	Level   string    `json:"level"`
	Phase   string    `json:"phase,omitempty"`
	Message string    `json:"message"`
}

type JobMetrics struct {
	Companies   int64           `json:"companies"`
	Contacts    int64           `json:"contacts"`
	Deals       int64           `json:"deals"`
	Activities  int64           `json:"activities"`
	WonValue    decimal.Decimal `json:"wonValue"`
	Pipeline    decimal.Decimal `json:"pipeline"`
	Invocations int             `json:"invocations"`
	DurationMs  int64           `json:"durationMs"`
}

// MetricCheck is one target/actual comparison.
type MetricCheck struct {
	Metric  string          `json:"metric"`
	Target  decimal.Decimal `json:"target"`
	Actual  decimal.Decimal `json:"actual"`
	Delta   decimal.Decimal `json:"delta"`
	DeltaPc float64         `json:"deltaPct"`
	Passed  bool            `json:"passed"`
	Skipped bool            `json:"skipped,omitempty"`
}

type MonthVerification struct {
	Month  string        `json:"month"`
	Checks []MetricCheck `json:"checks"`
	Passed bool          `json:"passed"`
}

type VerificationReport struct {
	Passed     bool                `json:"passed"`
	Tolerance  ToleranceConfig     `json:"tolerance"`
	Months     []MonthVerification `json:"months"`
	Aggregate  []MetricCheck       `json:"aggregate"`
	VerifiedAt time.Time           `json:"verifiedAt"`
}

type KPISnapshot struct {
	CapturedAt time.Time      `json:"capturedAt"`
	Months     []MonthMetrics `json:"months"`
}

type PatchMetricDiff struct {
	Metric string          `json:"metric"`
	Before decimal.Decimal `json:"before"`
	After  decimal.Decimal `json:"after"`
	Delta  decimal.Decimal `json:"delta"`
	// Target is set for targets plans.
	Target *decimal.Decimal `json:"target,omitempty"`
}

type MonthDiff struct {
	Month   string            `json:"month"`
	Metrics []PatchMetricDiff `json:"metrics"`
}

type PatchDiff struct {
	Months []MonthDiff `json:"months"`
}

// PatchPlan is the persisted patch request payload.
type PatchPlan struct {
	PlanType PatchPlanType   `json:"planType"`
	Months   []MonthlyTarget `json:"months"`
}

type PatchCursor struct {
	MonthIndex int             `json:"monthIndex"`
	Phase      GenerationPhase `json:"phase,omitempty"`
	Offset     int             `json:"offset"`
	// Delta is frozen when a month starts so a resumed additive month creates the same rows.
	Delta *MonthlyMetricTargets `json:"delta,omitempty"`
}

type PatchState struct {
	Cursor   PatchCursor          `json:"cursor"`
	OwnerIds []string             `json:"ownerIds"`
	StageIds map[StageKind]string `json:"stageIds"`
	Months   []MonthProgress      `json:"months"`
}
