package models

import "time"

// Tenant is an isolated CRM workspace. Demo tenants are excluded from platform analytics.
type Tenant struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"size:120;not null" json:"name"`
	Country   string    `gorm:"size:2;not null" json:"country"`
	Currency  string    `gorm:"size:3;not null" json:"currency"`
	Timezone  string    `gorm:"size:64;not null" json:"timezone"`
	IsDemo    bool      `gorm:"index;not null;default:false" json:"is_demo"`
	DemoJobId *string   `gorm:"size:36;index" json:"demo_job_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Location resolves the tenant timezone, falling back to UTC.
func (t *Tenant) Location() *time.Location {
	if t == nil || t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type User struct {
	ID           string   `gorm:"primaryKey;size:36" json:"id"`
	TenantId     string   `gorm:"size:36;index;not null" json:"tenant_id"`
	FirstName    string   `gorm:"size:80;not null" json:"first_name"`
	LastName     string   `gorm:"size:80;not null" json:"last_name"`
	Email        string   `gorm:"size:255;not null" json:"email"`
	Role         UserRole `gorm:"size:20;not null" json:"role"`
	PasswordHash string   `gorm:"size:100" json:"-"`
	IsActive     bool     `gorm:"not null;default:true" json:"is_active"`
	// LoginDisabled is set for generated sales-team members.
	LoginDisabled bool      `gorm:"not null;default:false" json:"login_disabled"`
	DemoGenerated bool      `gorm:"index;not null;default:false" json:"demo_generated"`
	DemoJobId     *string   `gorm:"size:36;index" json:"demo_job_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type PipelineStage struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	TenantId       string    `gorm:"size:36;index;not null" json:"tenant_id"`
	Name           string    `gorm:"size:80;not null" json:"name"`
	Kind           StageKind `gorm:"size:20;not null" json:"kind"`
	Position       int       `gorm:"not null" json:"position"`
	WinProbability int       `gorm:"not null" json:"win_probability"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}
