package feedback

import (
	"regexp"
	"strings"
)

// keywordRe matches runs of letters and digits at least two characters
// long, in any script. Headlines are lowercased before extraction.
var keywordRe = regexp.MustCompile(`[\p{L}\p{N}]{2,}`)

// stopwords are common terms that carry no sentiment signal on their own.
var stopwords = map[string]struct{}{
	"in": {}, "on": {}, "at": {}, "of": {}, "to": {}, "as": {}, "by": {},
	"is": {}, "it": {}, "an": {}, "be": {}, "or": {}, "up": {}, "vs": {},
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "into": {},
	"over": {}, "after": {}, "before": {}, "amid": {}, "despite": {},
	"says": {}, "said": {}, "will": {}, "would": {}, "could": {},
	"may": {}, "might": {}, "its": {}, "his": {}, "her": {}, "their": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "are": {}, "was": {},
	"were": {}, "has": {}, "have": {}, "had": {}, "been": {}, "being": {},
	"new": {}, "news": {}, "report": {}, "reports": {}, "update": {},
	"inc": {}, "corp": {}, "ltd": {}, "co": {}, "company": {},
	"stock": {}, "shares": {}, "share": {}, "market": {}, "markets": {},
	"percent": {}, "year": {}, "quarter": {}, "week": {}, "today": {},
}

// extractKeywords pulls deduplicated, stopword-filtered keywords out of a
// headline, preserving first-occurrence order.
func extractKeywords(title string) []string {
	matches := keywordRe.FindAllString(strings.ToLower(title), -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	keywords := make([]string, 0, len(matches))
	for _, kw := range matches {
		if _, stop := stopwords[kw]; stop {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		keywords = append(keywords, kw)
	}
	return keywords
}
