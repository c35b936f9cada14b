// Package model defines the core data structures for the signalwatch application.
package model

import (
	"time"
)

// Article is a single news item returned by the search collaborator.
type Article struct {
	PublishedAt time.Time `json:"published_at"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Source      string    `json:"source"`
	Summary     string    `json:"summary,omitempty"`
}

// SentimentLabel classifies the polarity of a headline or a feedback vote.
type SentimentLabel string

// Sentiment label constants.
const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"
)

// Valid reports whether the label is one of the three known values.
func (l SentimentLabel) Valid() bool {
	switch l {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}

// SentimentTag is the result of tagging a single headline.
type SentimentTag struct {
	RuleHits     map[SentimentLabel][]string `json:"rule_hits,omitempty"`
	Label        SentimentLabel              `json:"label"`
	PositiveHits []string                    `json:"positive_hits,omitempty"`
	NegativeHits []string                    `json:"negative_hits,omitempty"`
	Score        int                         `json:"score"`
}
