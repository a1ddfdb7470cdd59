package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OverrideUnset is the storage encoding of "no override, use the computed base".
// It never leaves this package: readers get MetricOverride with nil fields instead.
const OverrideUnset int64 = -1

var overrideUnsetDecimal = decimal.NewFromInt(OverrideUnset)

// DemoMetricOverride holds additive reporting deltas for one tenant and month.
// Unique constraint: (tenant_id, month). Written only through an upsert.
type DemoMetricOverride struct {
	ID                int             `gorm:"primary_key" json:"id"`
	TenantId          string          `gorm:"size:36;not null;index:uniq_demo_override,unique" json:"tenant_id"`
	Month             string          `gorm:"size:7;not null;index:uniq_demo_override,unique" json:"month"`
	ContactsCreated   int64           `gorm:"not null" json:"contacts_created"`
	CompaniesCreated  int64           `gorm:"not null" json:"companies_created"`
	DealsCreated      int64           `gorm:"not null" json:"deals_created"`
	ClosedWonCount    int64           `gorm:"not null" json:"closed_won_count"`
	ClosedWonValue    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"closed_won_value"`
	ActivitiesCreated int64           `gorm:"not null" json:"activities_created"`
	LastPatchId       *string         `gorm:"size:36" json:"last_patch_id"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// MetricOverride is the in-memory form of an override row. A nil field is unset.
type MetricOverride struct {
	Month             string           `json:"month"`
	ContactsCreated   *int64           `json:"contactsCreated,omitempty"`
	CompaniesCreated  *int64           `json:"companiesCreated,omitempty"`
	DealsCreated      *int64           `json:"dealsCreated,omitempty"`
	ClosedWonCount    *int64           `json:"closedWonCount,omitempty"`
	ClosedWonValue    *decimal.Decimal `json:"closedWonValue,omitempty"`
	ActivitiesCreated *int64           `json:"activitiesCreated,omitempty"`
}

func (o MetricOverride) IsEmpty() bool {
	return o.ContactsCreated == nil && o.CompaniesCreated == nil && o.DealsCreated == nil &&
		o.ClosedWonCount == nil && o.ClosedWonValue == nil && o.ActivitiesCreated == nil
}

func decodeCount(v int64) *int64 {
	if v < 0 {
		return nil
	}
	return &v
}

func encodeCount(v *int64) int64 {
	if v == nil {
		return OverrideUnset
	}
	return *v
}

// ToOverride translates the stored sentinel encoding into optional fields.
func (r DemoMetricOverride) ToOverride() MetricOverride {
	o := MetricOverride{
		Month:             r.Month,
		ContactsCreated:   decodeCount(r.ContactsCreated),
		CompaniesCreated:  decodeCount(r.CompaniesCreated),
		DealsCreated:      decodeCount(r.DealsCreated),
		ClosedWonCount:    decodeCount(r.ClosedWonCount),
		ActivitiesCreated: decodeCount(r.ActivitiesCreated),
	}
	if !r.ClosedWonValue.IsNegative() {
		v := r.ClosedWonValue
		o.ClosedWonValue = &v
	}
	return o
}

// NewDemoMetricOverride builds the storage row for o, writing the sentinel for unset fields.
func NewDemoMetricOverride(tenantID string, o MetricOverride) DemoMetricOverride {
	row := DemoMetricOverride{
		TenantId:          tenantID,
		Month:             o.Month,
		ContactsCreated:   encodeCount(o.ContactsCreated),
		CompaniesCreated:  encodeCount(o.CompaniesCreated),
		DealsCreated:      encodeCount(o.DealsCreated),
		ClosedWonCount:    encodeCount(o.ClosedWonCount),
		ActivitiesCreated: encodeCount(o.ActivitiesCreated),
		ClosedWonValue:    overrideUnsetDecimal,
	}
	if o.ClosedWonValue != nil {
		row.ClosedWonValue = *o.ClosedWonValue
	}
	return row
}
