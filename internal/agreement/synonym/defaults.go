package synonym

// defaultConcepts covers the vocabulary clients use when asking about a
// grounds-maintenance service agreement. Synonym order matters: Expand keeps
// the first DefaultLimit terms, so the strongest signals come first.
var defaultConcepts = map[string][]string{
	"cancel": {
		"cancellation", "terminate", "termination", "refund", "deposit",
		"deposits", "refundable", "quit", "stop", "end", "notice",
	},
	"payment": {
		"pay", "invoice", "invoices", "billing", "bill", "fee", "fees",
		"charge", "charges", "cost", "price", "rate", "due",
	},
	"late": {
		"overdue", "penalty", "penalties", "interest", "delinquent", "past due",
	},
	"liability": {
		"damage", "damages", "responsible", "responsibility", "indemnify",
		"indemnification", "liable", "injury", "negligence",
	},
	"dispute": {
		"arbitration", "lawsuit", "mediation", "court", "claim", "claims",
		"disagreement", "venue", "jurisdiction",
	},
	"snow": {
		"ice", "plow", "plowing", "accumulation", "storm", "salt", "salting",
		"deicing", "shoveling", "inches",
	},
	"scope": {
		"work", "services", "change order", "addendum", "included", "excluded",
		"extra", "additional",
	},
	"mowing": {
		"mow", "lawn", "turf", "trim", "trimming", "grass", "edging", "cut",
	},
	"season": {
		"term", "duration", "annual", "renewal", "seasonal", "start", "begin",
		"commence", "expire", "expiration",
	},
	"insurance": {
		"insured", "coverage", "policy", "certificate", "workers compensation",
	},
	"property": {
		"premises", "site", "driveway", "walkway", "access", "gate",
	},
	"schedule": {
		"visit", "visits", "weekly", "frequency", "weather", "reschedule", "delay",
	},
}

// DefaultTable returns the built-in concept table.
func DefaultTable() *Table {
	return NewTable(defaultConcepts)
}
