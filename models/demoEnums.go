package models

type GenerationStatus string

const (
	GenerationStatusPending   GenerationStatus = "pending"
	GenerationStatusRunning   GenerationStatus = "running"
	GenerationStatusCompleted GenerationStatus = "completed"
	GenerationStatusFailed    GenerationStatus = "failed"
)

func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationStatusCompleted || s == GenerationStatusFailed
}

type GenerationMode string

const (
	GenerationModeGrowthCurve GenerationMode = "growth-curve"
	GenerationModeMonthlyPlan GenerationMode = "monthly-plan"
)

type GenerationPhase string

const (
	PhaseInit        GenerationPhase = "init"
	PhaseTenantSetup GenerationPhase = "tenant-setup"
	PhaseCompanies   GenerationPhase = "companies"
	PhaseContacts    GenerationPhase = "contacts"
	PhaseDeals       GenerationPhase = "deals"
	PhaseActivities  GenerationPhase = "activities"
	PhaseVerify      GenerationPhase = "verify"
	PhaseDone        GenerationPhase = "done"

	// Patch-only steps around the entity phases of a month.
	PhaseReconcile GenerationPhase = "reconcile"
	PhaseRescale   GenerationPhase = "rescale"
)

// EntityPhases are the phases that insert CRM rows, in foreign-key order.
var EntityPhases = []GenerationPhase{PhaseCompanies, PhaseContacts, PhaseDeals, PhaseActivities}

type GrowthCurve string

const (
	CurveLinear      GrowthCurve = "linear"
	CurveExponential GrowthCurve = "exponential"
	CurveLogistic    GrowthCurve = "logistic"
	CurveStep        GrowthCurve = "step"
)

type ContactStatus string

const (
	ContactStatusLead     ContactStatus = "lead"
	ContactStatusProspect ContactStatus = "prospect"
	ContactStatusCustomer ContactStatus = "customer"
	ContactStatusChurned  ContactStatus = "churned"
	ContactStatusOther    ContactStatus = "other"
)

type StageKind string

const (
	StageKindNew         StageKind = "new"
	StageKindQualified   StageKind = "qualified"
	StageKindProposal    StageKind = "proposal"
	StageKindNegotiation StageKind = "negotiation"
	StageKindWon         StageKind = "won"
	StageKindLost        StageKind = "lost"
)

func (k StageKind) IsClosed() bool {
	return k == StageKindWon || k == StageKindLost
}

type ActivityType string

const (
	ActivityTypeNote    ActivityType = "note"
	ActivityTypeCall    ActivityType = "call"
	ActivityTypeEmail   ActivityType = "email"
	ActivityTypeMeeting ActivityType = "meeting"
	ActivityTypeTask    ActivityType = "task"
)

type PatchMode string

const (
	PatchModeAdditive    PatchMode = "additive"
	PatchModeReconcile   PatchMode = "reconcile"
	PatchModeMetricsOnly PatchMode = "metrics-only"
)

type PatchPlanType string

const (
	PatchPlanTargets PatchPlanType = "targets"
	PatchPlanDeltas  PatchPlanType = "deltas"
)

type EntityKind string

const (
	EntityCompany  EntityKind = "company"
	EntityContact  EntityKind = "contact"
	EntityDeal     EntityKind = "deal"
	EntityActivity EntityKind = "activity"
)

type UserRole string

const (
	UserRoleAdmin        UserRole = "admin"
	UserRoleSalesManager UserRole = "sales_manager"
	UserRoleSalesRep     UserRole = "sales_rep"
)
