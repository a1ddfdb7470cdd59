package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DemoProvenance marks rows written by the demo generator so they can be reported
// separately and removed with the tenant.
type DemoProvenance struct {
	DemoGenerated   bool    `gorm:"index;not null;default:false" json:"demo_generated"`
	DemoJobId       *string `gorm:"size:36;index" json:"demo_job_id"`
	DemoPatchId     *string `gorm:"size:36;index" json:"demo_patch_id"`
	DemoSourceMonth *string `gorm:"size:7;index" json:"demo_source_month"`
	// DemoBatchKey identifies the generation unit (origin, phase, month) that wrote the row.
	DemoBatchKey string `gorm:"size:120;index" json:"-"`
}

type Company struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	TenantId string `gorm:"size:36;index;not null" json:"tenant_id"`
	Name     string `gorm:"size:160;not null" json:"name"`
	Domain   string `gorm:"size:160" json:"domain"`
	Industry string `gorm:"size:80" json:"industry"`
	SizeBand string `gorm:"size:20" json:"size_band"`
	Country  string `gorm:"size:2" json:"country"`
	City     string `gorm:"size:80" json:"city"`
	Phone    string `gorm:"size:40" json:"phone"`
	OwnerId  string `gorm:"size:36;index" json:"owner_id"`
	DemoProvenance
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type Contact struct {
	ID        string        `gorm:"primaryKey;size:36" json:"id"`
	TenantId  string        `gorm:"size:36;index;not null" json:"tenant_id"`
	FirstName string        `gorm:"size:80;not null" json:"first_name"`
	LastName  string        `gorm:"size:80;not null" json:"last_name"`
	Email     string        `gorm:"size:255;index" json:"email"`
	Phone     string        `gorm:"size:40" json:"phone"`
	JobTitle  string        `gorm:"size:120" json:"job_title"`
	Status    ContactStatus `gorm:"size:20;index;not null" json:"status"`
	Source    string        `gorm:"size:40" json:"source"`
	CompanyId *string       `gorm:"size:36;index" json:"company_id"`
	OwnerId   string        `gorm:"size:36;index" json:"owner_id"`
	DemoProvenance
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type Deal struct {
	ID                string          `gorm:"primaryKey;size:36" json:"id"`
	TenantId          string          `gorm:"size:36;index;not null" json:"tenant_id"`
	Title             string          `gorm:"size:200;not null" json:"title"`
	Value             decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"value"`
	Currency          string          `gorm:"size:3;not null" json:"currency"`
	StageId           string          `gorm:"size:36;index" json:"stage_id"`
	StageKind         StageKind       `gorm:"size:20;index;not null" json:"stage_kind"`
	ContactId         *string         `gorm:"size:36;index" json:"contact_id"`
	CompanyId         *string         `gorm:"size:36;index" json:"company_id"`
	OwnerId           string          `gorm:"size:36;index" json:"owner_id"`
	ExpectedCloseDate *time.Time      `json:"expected_close_date"`
	ClosedAt          *time.Time      `gorm:"index" json:"closed_at"`
	DemoProvenance
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type Activity struct {
	ID          string       `gorm:"primaryKey;size:36" json:"id"`
	TenantId    string       `gorm:"size:36;index;not null" json:"tenant_id"`
	Type        ActivityType `gorm:"size:20;not null" json:"type"`
	Subject     string       `gorm:"size:200;not null" json:"subject"`
	Description string       `gorm:"type:text" json:"description"`
	ContactId   string       `gorm:"size:36;index;not null" json:"contact_id"`
	DealId      *string      `gorm:"size:36;index" json:"deal_id"`
	OwnerId     string       `gorm:"size:36;index" json:"owner_id"`
	ScheduledAt time.Time    `json:"scheduled_at"`
	CompletedAt *time.Time   `json:"completed_at"`
	DemoProvenance
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
