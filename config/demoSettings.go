package config

import "time"

// DemoSettings are the tuning knobs of the demo tenant generator.
type DemoSettings struct {
	// BatchSize bounds a single bulk insert.
	BatchSize int
	// MaxRowsPerInvocation and TimeBudget bound one start/continue call.
	MaxRowsPerInvocation int
	TimeBudget           time.Duration
	// LeaseDuration is how long a continuation owns a job before another may take over.
	LeaseDuration time.Duration
	// ContinueDelay is stored as next_run_at after a call yields.
	ContinueDelay time.Duration

	DefaultCountTolerance int64
	DefaultValueTolerance float64

	// RowsPerSecond feeds duration estimates in previews.
	RowsPerSecond float64
	TeamSize      int
	MaxLogLines   int

	// Distribution tuning.
	SmallDealShare float64
	MidDealShare   float64
	DayVariance    float64
	LinkCompany    float64
	LinkDeal       float64
}

func DefaultDemoSettings() DemoSettings {
	return DemoSettings{
		BatchSize:             500,
		MaxRowsPerInvocation:  5000,
		TimeBudget:            25 * time.Second,
		LeaseDuration:         2 * time.Minute,
		ContinueDelay:         time.Second,
		DefaultCountTolerance: 0,
		DefaultValueTolerance: 0.005,
		RowsPerSecond:         400,
		TeamSize:              5,
		MaxLogLines:           200,
		SmallDealShare:        0.70,
		MidDealShare:          0.95,
		DayVariance:           0.15,
		LinkCompany:           0.70,
		LinkDeal:              0.60,
	}
}

// LoadDemoSettings reads DEMO_* overrides on top of the defaults.
func LoadDemoSettings() DemoSettings {
	s := DefaultDemoSettings()
	s.BatchSize = intFromEnv("DEMO_BATCH_SIZE", s.BatchSize)
	s.MaxRowsPerInvocation = intFromEnv("DEMO_MAX_ROWS_PER_INVOCATION", s.MaxRowsPerInvocation)
	s.TimeBudget = time.Duration(intFromEnv("DEMO_TIME_BUDGET_SECONDS", int(s.TimeBudget/time.Second))) * time.Second
	s.LeaseDuration = time.Duration(intFromEnv("DEMO_LEASE_SECONDS", int(s.LeaseDuration/time.Second))) * time.Second
	s.DefaultCountTolerance = int64(intFromEnv("DEMO_COUNT_TOLERANCE", int(s.DefaultCountTolerance)))
	s.DefaultValueTolerance = floatFromEnv("DEMO_VALUE_TOLERANCE", s.DefaultValueTolerance)
	s.RowsPerSecond = floatFromEnv("DEMO_ROWS_PER_SECOND", s.RowsPerSecond)
	s.TeamSize = intFromEnv("DEMO_TEAM_SIZE", s.TeamSize)
	s.SmallDealShare = floatFromEnv("DEMO_SMALL_DEAL_SHARE", s.SmallDealShare)
	s.MidDealShare = floatFromEnv("DEMO_MID_DEAL_SHARE", s.MidDealShare)
	s.DayVariance = floatFromEnv("DEMO_DAY_VARIANCE", s.DayVariance)
	if s.BatchSize <= 0 {
		s.BatchSize = 500
	}
	if s.TeamSize <= 0 {
		s.TeamSize = 1
	}
	return s
}
