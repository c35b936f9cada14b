package sentiment

// Static headline lexicons. Matching is case-insensitive substring search,
// so multi-word entries match as phrases.
var positiveKeywords = []string{
	"surge",
	"rally",
	"record high",
	"beats",
	"beat estimates",
	"upgrade",
	"breakthrough",
	"approval",
	"growth",
	"profit",
	"dividend",
	"buyback",
	"partnership",
	"expansion",
	"wins",
	"strong demand",
	"all-time high",
	"raises guidance",
}

var negativeKeywords = []string{
	"plunge",
	"slump",
	"lawsuit",
	"probe",
	"recall",
	"downgrade",
	"loss",
	"bankruptcy",
	"fraud",
	"layoff",
	"halted",
	"scandal",
	"warning",
	"misses",
	"missed estimates",
	"decline",
	"fined",
	"investigation",
	"cuts guidance",
	"data breach",
}
