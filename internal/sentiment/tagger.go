// Package sentiment tags headlines with a polarity label using static
// lexicons plus learned keyword rules.
package sentiment

import (
	"context"
	"strings"

	"github.com/signalwatch/signalwatch/internal/model"
)

// ruleBoost is the score contribution of one matched learned rule. Static
// lexicon hits count 1; learned rules count double because they encode
// confirmed tester consensus.
const ruleBoost = 2

// RuleProvider supplies the currently applied keyword rules, keyed by the
// label they assert.
type RuleProvider interface {
	AppliedRuleKeywords(ctx context.Context) map[model.SentimentLabel][]string
}

// Tagger scores headlines against the static lexicons and an optional
// rule provider.
type Tagger struct {
	rules RuleProvider
}

// NewTagger creates a tagger. rules may be nil, in which case only the
// static lexicons apply.
func NewTagger(rules RuleProvider) *Tagger {
	return &Tagger{rules: rules}
}

// Tag classifies a single headline.
func (t *Tagger) Tag(ctx context.Context, title string) model.SentimentTag {
	lower := strings.ToLower(title)

	tag := model.SentimentTag{}
	for _, kw := range positiveKeywords {
		if strings.Contains(lower, kw) {
			tag.PositiveHits = append(tag.PositiveHits, kw)
			tag.Score++
		}
	}
	for _, kw := range negativeKeywords {
		if strings.Contains(lower, kw) {
			tag.NegativeHits = append(tag.NegativeHits, kw)
			tag.Score--
		}
	}

	if t.rules != nil {
		for label, keywords := range t.rules.AppliedRuleKeywords(ctx) {
			for _, kw := range keywords {
				if kw == "" || !strings.Contains(lower, strings.ToLower(kw)) {
					continue
				}
				if tag.RuleHits == nil {
					tag.RuleHits = make(map[model.SentimentLabel][]string)
				}
				tag.RuleHits[label] = append(tag.RuleHits[label], kw)
				switch label {
				case model.SentimentPositive:
					tag.Score += ruleBoost
				case model.SentimentNegative:
					tag.Score -= ruleBoost
				case model.SentimentNeutral:
					// Recorded but score-neutral
				}
			}
		}
	}

	switch {
	case tag.Score > 0:
		tag.Label = model.SentimentPositive
	case tag.Score < 0:
		tag.Label = model.SentimentNegative
	default:
		tag.Label = model.SentimentNeutral
	}

	return tag
}

// TagAll tags a batch of articles in order.
func (t *Tagger) TagAll(ctx context.Context, articles []model.Article) []model.SentimentTag {
	tags := make([]model.SentimentTag, len(articles))
	for i, a := range articles {
		tags[i] = t.Tag(ctx, a.Title)
	}
	return tags
}
