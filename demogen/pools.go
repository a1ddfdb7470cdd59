package demogen

import "github.com/davidprivate500/gonthia-crm-sub001/models"

// Pools is the immutable reference data the generator draws from. Build one with
// DefaultPools and share it; nothing mutates it after construction.
type Pools struct {
	CompanyPrefixes []string
	CompanyCores    []string
	CompanySuffixes []string
	Industries      []Weighted[string]
	SizeBands       []Weighted[string]
	JobTitles       []string
	// EmailFormats are local-part templates: {f} first name, {l} last name,
	// {fi} first initial, {li} last initial.
	EmailFormats     []Weighted[string]
	LeadSources      []Weighted[string]
	DealTitles       []string
	DealProducts     []string
	ActivityTypes    []Weighted[models.ActivityType]
	ActivitySubjects map[models.ActivityType][]string
	ActivityNotes    map[models.ActivityType][]string
	ContactFunnel    []Weighted[models.ContactStatus]
	OpenStages       []Weighted[models.StageKind]
	DefaultStages    []StageTemplate
	// ActivitiesPerStatus is the inclusive [min, max] activity count per contact.
	ActivitiesPerStatus map[models.ContactStatus][2]int
	// WeekdayWeights index time.Weekday.
	WeekdayWeights [7]float64
}

type StageTemplate struct {
	Name           string
	Kind           models.StageKind
	WinProbability int
}

func DefaultPools() *Pools {
	return &Pools{
		CompanyPrefixes: []string{
			"Blue", "North", "Bright", "Summit", "Silver", "Green", "Urban", "Prime", "Nova",
			"Pioneer", "Atlas", "Evergreen", "Crimson", "Golden", "Clear", "Iron", "Harbor", "Vertex",
		},
		CompanyCores: []string{
			"River", "Peak", "Field", "Stone", "Bridge", "Light", "Wave", "Ridge", "Path", "Forge",
			"Point", "Grove", "Line", "Works", "Craft", "Signal", "Harbor", "Oak", "Pixel", "Orbit",
			"Anchor", "Beacon", "Cloud", "Falcon", "Lumen", "Quarry", "Meadow", "Copper",
		},
		CompanySuffixes: []string{
			"Labs", "Systems", "Group", "Partners", "Solutions", "Logistics", "Analytics", "Studio",
			"Holdings", "Industries", "Consulting", "Networks", "Foods", "Health", "Capital", "Energy",
		},
		Industries: []Weighted[string]{
			{"Software", 18}, {"Professional Services", 14}, {"Manufacturing", 12}, {"Retail", 10},
			{"Healthcare", 9}, {"Financial Services", 8}, {"Construction", 7}, {"Logistics", 6},
			{"Education", 5}, {"Hospitality", 5}, {"Energy", 3}, {"Media", 3},
		},
		SizeBands: []Weighted[string]{
			{"1-10", 30}, {"11-50", 32}, {"51-200", 20}, {"201-1000", 12}, {"1000+", 6},
		},
		JobTitles: []string{
			"CEO", "CTO", "COO", "Head of Sales", "Sales Director", "Operations Manager",
			"Marketing Manager", "Procurement Lead", "IT Manager", "Finance Director",
			"Office Manager", "Product Manager", "Account Executive", "Founder", "VP Engineering",
			"Customer Success Manager", "Purchasing Manager", "General Manager",
		},
		EmailFormats: []Weighted[string]{
			{"{f}.{l}", 45}, {"{fi}{l}", 25}, {"{f}", 10}, {"{f}{li}", 10}, {"{f}_{l}", 10},
		},
		LeadSources: []Weighted[string]{
			{"website", 30}, {"referral", 20}, {"linkedin", 15}, {"event", 10},
			{"cold-outreach", 10}, {"partner", 8}, {"paid-search", 7},
		},
		DealTitles: []string{
			"{company} - {product}", "{product} for {company}", "{company} expansion",
			"{company} renewal", "{product} rollout", "{company} pilot",
		},
		DealProducts: []string{
			"Annual subscription", "Enterprise license", "Onboarding package", "Support plan",
			"Professional services", "Team seats", "Analytics add-on", "Integration bundle",
		},
		ActivityTypes: []Weighted[models.ActivityType]{
			{models.ActivityTypeNote, 20}, {models.ActivityTypeCall, 25}, {models.ActivityTypeEmail, 30},
			{models.ActivityTypeMeeting, 15}, {models.ActivityTypeTask, 10},
		},
		ActivitySubjects: map[models.ActivityType][]string{
			models.ActivityTypeNote:    {"Account notes", "Discovery summary", "Stakeholder map", "Budget notes", "Competitor mention"},
			models.ActivityTypeCall:    {"Intro call", "Discovery call", "Pricing call", "Follow-up call", "Check-in call"},
			models.ActivityTypeEmail:   {"Sent proposal", "Shared case study", "Follow-up email", "Meeting recap", "Intro email"},
			models.ActivityTypeMeeting: {"Product demo", "Kickoff meeting", "Quarterly review", "Negotiation meeting", "Onsite visit"},
			models.ActivityTypeTask:    {"Prepare quote", "Send contract", "Schedule demo", "Update CRM notes", "Review requirements"},
		},
		ActivityNotes: map[models.ActivityType][]string{
			models.ActivityTypeNote: {
				"Decision expected next quarter.",
				"Main concern is integration effort with the current stack.",
				"Champion is supportive, finance needs to sign off.",
			},
			models.ActivityTypeCall: {
				"Walked through current process and pain points.",
				"Discussed pricing tiers and contract length.",
				"Left voicemail, will try again later this week.",
			},
			models.ActivityTypeEmail: {
				"Sent the requested material and proposed next steps.",
				"Shared pricing overview and a customer reference.",
				"Recapped the meeting and open questions.",
			},
			models.ActivityTypeMeeting: {
				"Demoed core workflows to the team; positive feedback.",
				"Aligned on scope, timeline and success criteria.",
				"Reviewed usage and discussed expansion options.",
			},
			models.ActivityTypeTask: {
				"Due before the next call.",
				"Coordinate with the account owner.",
				"Needs legal review first.",
			},
		},
		ContactFunnel: []Weighted[models.ContactStatus]{
			{models.ContactStatusProspect, 35}, {models.ContactStatusCustomer, 30},
			{models.ContactStatusChurned, 10}, {models.ContactStatusOther, 25},
		},
		OpenStages: []Weighted[models.StageKind]{
			{models.StageKindNew, 30}, {models.StageKindQualified, 25}, {models.StageKindProposal, 20},
			{models.StageKindNegotiation, 15}, {models.StageKindLost, 10},
		},
		DefaultStages: []StageTemplate{
			{"New", models.StageKindNew, 10},
			{"Qualified", models.StageKindQualified, 25},
			{"Proposal", models.StageKindProposal, 50},
			{"Negotiation", models.StageKindNegotiation, 75},
			{"Won", models.StageKindWon, 100},
			{"Lost", models.StageKindLost, 0},
		},
		ActivitiesPerStatus: map[models.ContactStatus][2]int{
			models.ContactStatusLead:     {1, 3},
			models.ContactStatusProspect: {2, 5},
			models.ContactStatusCustomer: {4, 9},
			models.ContactStatusChurned:  {2, 5},
			models.ContactStatusOther:    {1, 3},
		},
		WeekdayWeights: [7]float64{0.4, 1.15, 1.05, 1.0, 1.0, 0.85, 0.3},
	}
}
