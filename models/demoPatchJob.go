package models

import (
	"time"

	"gorm.io/datatypes"
)

// DemoPatchJob adjusts an existing demo tenant. Rows are kept after completion as an audit trail.
type DemoPatchJob struct {
	ID              string                           `gorm:"primaryKey;size:36" json:"id"`
	TenantId        string                           `gorm:"size:36;index;not null" json:"tenant_id"`
	GenerationJobId *string                          `gorm:"size:36;index" json:"generation_job_id"`
	Mode            PatchMode                        `gorm:"size:20;not null" json:"mode"`
	PlanType        PatchPlanType                    `gorm:"size:20;not null" json:"plan_type"`
	Plan            datatypes.JSONType[PatchPlan]    `json:"plan"`
	Seed            string                           `gorm:"size:64;not null" json:"seed"`
	RangeStart      string                           `gorm:"size:7;not null" json:"range_start"`
	RangeEnd        string                           `gorm:"size:7;not null" json:"range_end"`
	Before          datatypes.JSONType[*KPISnapshot] `json:"before"`
	After           datatypes.JSONType[*KPISnapshot] `json:"after"`
	Diff            datatypes.JSONType[*PatchDiff]   `json:"diff"`
	Status          GenerationStatus                 `gorm:"size:20;not null;index" json:"status"`
	Progress        int                              `gorm:"not null;default:0" json:"progress"`
	CurrentStep     string                           `gorm:"size:255" json:"current_step"`
	State           datatypes.JSONType[PatchState]   `json:"state"`
	Logs            datatypes.JSONType[[]JobLogLine] `json:"logs"`
	Metrics         datatypes.JSONType[*JobMetrics]  `json:"metrics"`
	ErrorMessage    *string                          `gorm:"type:text" json:"error_message"`
	ErrorStack      *string                          `gorm:"type:text" json:"error_stack"`
	RequestedBy     string                           `gorm:"size:100" json:"requested_by"`
	LockedBy        *string                          `gorm:"size:64" json:"-"`
	LockedUntil     *time.Time                       `json:"-"`
	NextRunAt       *time.Time                       `gorm:"index" json:"next_run_at"`
	CreatedAt       time.Time                        `gorm:"autoCreateTime" json:"created_at"`
	StartedAt       *time.Time                       `json:"started_at"`
	CompletedAt     *time.Time                       `json:"completed_at"`
	UpdatedAt       time.Time                        `gorm:"autoUpdateTime" json:"updated_at"`
}
