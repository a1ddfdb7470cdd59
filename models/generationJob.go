package models

import (
	"time"

	"gorm.io/datatypes"
)

// GenerationJob drives one demo tenant build. It is created pending, moves to running on
// start and advances phase by phase; every call persists phase and state before returning.
type GenerationJob struct {
	ID                 string                                  `gorm:"primaryKey;size:36" json:"id"`
	Status             GenerationStatus                        `gorm:"size:20;not null;index" json:"status"`
	Mode               GenerationMode                          `gorm:"size:20;not null" json:"mode"`
	Config             datatypes.JSONType[JobConfig]           `json:"config"`
	Seed               string                                  `gorm:"size:64;not null" json:"seed"`
	PlanVersion        *int                                    `json:"plan_version"`
	Tolerance          datatypes.JSONType[ToleranceConfig]     `json:"tolerance"`
	CreatedTenantId    *string                                 `gorm:"size:36;index" json:"created_tenant_id"`
	Progress           int                                     `gorm:"not null;default:0" json:"progress"`
	CurrentStep        string                                  `gorm:"size:255" json:"current_step"`
	GenerationPhase    GenerationPhase                         `gorm:"size:20;not null" json:"generation_phase"`
	GenerationState    datatypes.JSONType[GenerationState]     `json:"generation_state"`
	Logs               datatypes.JSONType[[]JobLogLine]        `json:"logs"`
	Metrics            datatypes.JSONType[*JobMetrics]         `json:"metrics"`
	VerificationReport datatypes.JSONType[*VerificationReport] `json:"verification_report"`
	VerificationPassed *bool                                   `json:"verification_passed"`
	ErrorMessage       *string                                 `gorm:"type:text" json:"error_message"`
	ErrorStack         *string                                 `gorm:"type:text" json:"error_stack"`
	LockedBy           *string                                 `gorm:"size:64" json:"-"`
	LockedUntil        *time.Time                              `json:"-"`
	NextRunAt          *time.Time                              `gorm:"index" json:"next_run_at"`
	CreatedAt          time.Time                               `gorm:"autoCreateTime" json:"created_at"`
	StartedAt          *time.Time                              `json:"started_at"`
	CompletedAt        *time.Time                              `json:"completed_at"`
	UpdatedAt          time.Time                               `gorm:"autoUpdateTime" json:"updated_at"`
}

// AppendLog adds a log line, keeping only the newest max lines.
func AppendLog(lines []JobLogLine, line JobLogLine, max int) []JobLogLine {
	lines = append(lines, line)
	if max > 0 && len(lines) > max {
		lines = append([]JobLogLine(nil), lines[len(lines)-max:]...)
	}
	return lines
}
