package scoring

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/signalwatch/signalwatch/internal/model"
)

type fakeFeedback struct {
	signal model.FeedbackSignal
	err    error
}

func (f *fakeFeedback) AssetSignal(_ context.Context, _ string) (model.FeedbackSignal, error) {
	return f.signal, f.err
}

func neutralTags(n int) []model.SentimentTag {
	tags := make([]model.SentimentTag, n)
	for i := range tags {
		tags[i].Label = model.SentimentNeutral
	}
	return tags
}

func distinctArticles(n int, source string) []model.Article {
	articles := make([]model.Article, n)
	for i := range articles {
		articles[i] = model.Article{
			Title:  fmt.Sprintf("Distribution network update number %d for the region", i+1),
			Link:   fmt.Sprintf("https://example.com/a/%d", i+1),
			Source: source,
		}
	}
	return articles
}

func TestNormalizeTopicKey(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{
			name:  "brackets stripped",
			title: "[Exclusive] Factory output rises (updated)",
			want:  "factory output rises",
		},
		{
			name:  "punctuation and case collapse",
			title: "Factory   Output, Rises!",
			want:  "factory output rises",
		},
		{
			name:  "quotes removed",
			title: `CEO says "steady growth" ahead`,
			want:  "ceo says steady growth ahead",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeTopicKey(tt.title); got != tt.want {
				t.Errorf("normalizeTopicKey(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestScorer_VolumeSurge(t *testing.T) {
	s := NewScorer(DefaultConfig(), nil)
	s.history.observe("ACME", 2)
	s.history.observe("ACME", 2)

	articles := distinctArticles(7, "")
	result := s.Score(context.Background(), "ACME", articles, neutralTags(7), Options{})

	if result.Score != 30 {
		t.Errorf("Score = %d, want 30", result.Score)
	}
	if result.Metrics.SurgeRatio != 3.5 {
		t.Errorf("SurgeRatio = %v, want 3.5", result.Metrics.SurgeRatio)
	}
}

func TestScorer_EmptyHistoryIsNeverASurge(t *testing.T) {
	s := NewScorer(DefaultConfig(), nil)

	articles := distinctArticles(7, "")
	result := s.Score(context.Background(), "ACME", articles, neutralTags(7), Options{})

	if result.Score != 0 {
		t.Errorf("Score = %d, want 0", result.Score)
	}
	if result.Metrics.SurgeRatio != 1.0 {
		t.Errorf("SurgeRatio = %v, want 1.0", result.Metrics.SurgeRatio)
	}
}

func TestScorer_HighVolumeWithoutSurge(t *testing.T) {
	s := NewScorer(DefaultConfig(), nil)
	s.history.observe("ACME", 10)

	articles := distinctArticles(12, "")
	result := s.Score(context.Background(), "ACME", articles, neutralTags(12), Options{})

	if result.Score != 20 {
		t.Errorf("Score = %d, want 20", result.Score)
	}
}

func TestScorer_DuplicatePenaltyBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		rawCount  int
		unique    int
		wantScore int
	}{
		// 5 distinct sources contribute +20 so the penalty is visible.
		{name: "exactly half unique is not penalized", rawCount: 10, unique: 5, wantScore: 20},
		{name: "just under half unique", rawCount: 10, unique: 4, wantScore: 10},
		{name: "under thirty-five percent unique", rawCount: 10, unique: 3, wantScore: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScorer(DefaultConfig(), nil)
			s.history.observe("ACME", tt.unique) // baseline equals unique, no surge

			articles := make([]model.Article, 0, tt.rawCount)
			for i := 0; i < tt.rawCount; i++ {
				articles = append(articles, model.Article{
					Title:  fmt.Sprintf("Local distribution story %d", i%tt.unique),
					Link:   fmt.Sprintf("https://example.com/%d", i),
					Source: fmt.Sprintf("outlet-%d", i%5),
				})
			}

			result := s.Score(context.Background(), "ACME", articles, neutralTags(tt.rawCount), Options{})
			if result.Score != tt.wantScore {
				t.Errorf("Score = %d, want %d (metrics %+v)", result.Score, tt.wantScore, result.Metrics)
			}
		})
	}
}

func TestScorer_Determinism(t *testing.T) {
	s := NewScorer(DefaultConfig(), nil)
	articles := distinctArticles(8, "outlet-a")

	first := s.Score(context.Background(), "ACME", articles, neutralTags(8), Options{})
	second := s.Score(context.Background(), "ACME", articles, neutralTags(8), Options{})

	if first.Score != second.Score {
		t.Errorf("scores differ: %d vs %d", first.Score, second.Score)
	}
	if strings.Join(first.Reasons, "|") != strings.Join(second.Reasons, "|") {
		t.Errorf("reasons differ: %v vs %v", first.Reasons, second.Reasons)
	}
}

func TestScorer_HistoryOnlyGrowsOnCanonicalPass(t *testing.T) {
	s := NewScorer(DefaultConfig(), nil)
	articles := distinctArticles(5, "")

	s.Score(context.Background(), "ACME", articles, neutralTags(5), Options{UpdateHistory: false})
	if got := s.HistorySize("ACME"); got != 0 {
		t.Fatalf("history size after preview = %d, want 0", got)
	}

	s.Score(context.Background(), "ACME", articles, neutralTags(5), Options{UpdateHistory: true})
	if got := s.HistorySize("ACME"); got != 1 {
		t.Fatalf("history size after canonical pass = %d, want 1", got)
	}
}

func TestScorer_SentimentConcentration(t *testing.T) {
	s := NewScorer(DefaultConfig(), nil)

	articles := distinctArticles(5, "")
	tags := neutralTags(5)
	for i := 0; i < 4; i++ {
		tags[i].Label = model.SentimentNegative
	}

	result := s.Score(context.Background(), "ACME", articles, tags, Options{})
	if result.Score != 10 {
		t.Errorf("Score = %d, want 10", result.Score)
	}
}

func TestScorer_FeedbackAdjustment(t *testing.T) {
	tests := []struct {
		name      string
		signal    model.FeedbackSignal
		wantScore int
	}{
		{
			name: "strong consensus adds delta",
			signal: model.FeedbackSignal{
				Ready:          true,
				ConsensusLabel: model.SentimentNegative,
				ConsensusRatio: 0.8,
				AIMatchRatio:   0.9,
				TotalVotes:     8,
			},
			wantScore: 5,
		},
		{
			name: "ai mismatch adds delta",
			signal: model.FeedbackSignal{
				Ready:          true,
				ConsensusLabel: model.SentimentNeutral,
				ConsensusRatio: 0.5,
				AIMatchRatio:   0.4,
				TotalVotes:     6,
			},
			wantScore: 4,
		},
		{
			name: "both deltas stack",
			signal: model.FeedbackSignal{
				Ready:          true,
				ConsensusLabel: model.SentimentPositive,
				ConsensusRatio: 0.9,
				AIMatchRatio:   0.2,
				TotalVotes:     10,
			},
			wantScore: 9,
		},
		{
			name: "not ready is ignored",
			signal: model.FeedbackSignal{
				Ready:          false,
				ConsensusRatio: 1.0,
				AIMatchRatio:   0.0,
			},
			wantScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScorer(DefaultConfig(), &fakeFeedback{signal: tt.signal})
			articles := distinctArticles(2, "")

			result := s.Score(context.Background(), "ACME", articles, neutralTags(2), Options{})
			if result.Score != tt.wantScore {
				t.Errorf("Score = %d, want %d (reasons %v)", result.Score, tt.wantScore, result.Reasons)
			}
		})
	}
}

func TestDeliveryFor(t *testing.T) {
	tests := []struct {
		wantLevel    model.DeliveryLevel
		wantPriority model.Priority
		score        int
	}{
		{score: 100, wantLevel: model.DeliveryPushImmediate, wantPriority: model.PriorityHigh},
		{score: 70, wantLevel: model.DeliveryPushImmediate, wantPriority: model.PriorityHigh},
		{score: 69, wantLevel: model.DeliveryInApp, wantPriority: model.PriorityMedium},
		{score: 40, wantLevel: model.DeliveryInApp, wantPriority: model.PriorityMedium},
		{score: 39, wantLevel: model.DeliveryDailyDigest, wantPriority: model.PriorityLow},
		{score: 0, wantLevel: model.DeliveryDailyDigest, wantPriority: model.PriorityLow},
	}

	for _, tt := range tests {
		level, priority := deliveryFor(tt.score)
		if level != tt.wantLevel || priority != tt.wantPriority {
			t.Errorf("deliveryFor(%d) = (%v, %v), want (%v, %v)", tt.score, level, priority, tt.wantLevel, tt.wantPriority)
		}
	}
}

func TestScorer_EndToEndComposite(t *testing.T) {
	// Surge +30, three sources +10, one impact keyword +8, AI mismatch +4.
	s := NewScorer(DefaultConfig(), &fakeFeedback{signal: model.FeedbackSignal{
		Ready:          true,
		ConsensusLabel: model.SentimentPositive,
		ConsensusRatio: 0.6,
		AIMatchRatio:   0.4,
		TotalVotes:     6,
	}})
	s.history.observe("ACME", 2)
	s.history.observe("ACME", 2)

	articles := distinctArticles(7, "")
	for i := range articles {
		articles[i].Source = fmt.Sprintf("outlet-%d", i%3)
	}
	articles[0].Title = "Supplier contract renewal moves forward"

	result := s.Score(context.Background(), "ACME", articles, neutralTags(7), Options{UpdateHistory: true})

	if result.Score != 52 {
		t.Fatalf("Score = %d, want 52 (reasons %v, metrics %+v)", result.Score, result.Reasons, result.Metrics)
	}
	if result.DeliveryLevel != model.DeliveryInApp || result.Priority != model.PriorityMedium {
		t.Errorf("delivery = (%v, %v), want (in_app, medium)", result.DeliveryLevel, result.Priority)
	}
	if len(result.Metrics.ImpactKeywords) != 1 || result.Metrics.ImpactKeywords[0] != "contract" {
		t.Errorf("ImpactKeywords = %v, want [contract]", result.Metrics.ImpactKeywords)
	}
}
