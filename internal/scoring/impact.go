package scoring

// impactKeywords maps high-impact headline terms to their score weight.
// Weights are summed over unique-topic articles and capped at
// maxImpactScore.
var impactKeywords = map[string]int{
	"merger":           12,
	"acquisition":      12,
	"takeover":         12,
	"bankruptcy":       15,
	"delisting":        15,
	"embezzlement":     15,
	"fraud":            12,
	"lawsuit":          8,
	"regulator":        8,
	"antitrust":        10,
	"recall":           10,
	"trading halt":     10,
	"fda approval":     12,
	"patent":           6,
	"contract":         8,
	"earnings":         6,
	"guidance":         8,
	"ceo":              6,
	"resignation":      8,
	"share buyback":    8,
	"capital increase": 10,
	"data breach":      10,
}

const maxImpactScore = 30
