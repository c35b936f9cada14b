package feedback

import (
	"context"
	"fmt"
	"testing"

	"github.com/signalwatch/signalwatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyAndDisableRule(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	rule, err := store.ApplyRule(ctx, "  Strike ", model.SentimentNegative, model.RuleSourceManual)
	require.NoError(t, err)
	assert.Equal(t, "strike", rule.Keyword)
	assert.Equal(t, model.RuleApplied, rule.Status)

	keywords := store.AppliedRuleKeywords(ctx)
	assert.Equal(t, []string{"strike"}, keywords[model.SentimentNegative])

	// Re-applying with a new label overwrites in place
	rule, err = store.ApplyRule(ctx, "strike", model.SentimentNeutral, model.RuleSourceAutoFeedback)
	require.NoError(t, err)
	assert.Equal(t, model.SentimentNeutral, rule.Label)
	assert.Equal(t, model.RuleSourceAutoFeedback, rule.Source)

	rules, err := store.ListRules(ctx, "")
	require.NoError(t, err)
	require.Len(t, rules, 1)

	// Disabling removes it from the applied set immediately
	rule, err = store.DisableRule(ctx, "strike")
	require.NoError(t, err)
	assert.Equal(t, model.RuleDisabled, rule.Status)

	keywords = store.AppliedRuleKeywords(ctx)
	assert.Empty(t, keywords[model.SentimentNegative])
	assert.Empty(t, keywords[model.SentimentNeutral])
}

func TestApplyRule_Validation(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.ApplyRule(ctx, "", model.SentimentNegative, model.RuleSourceManual)
	assert.Error(t, err)
	_, err = store.ApplyRule(ctx, "strike", "angry", model.RuleSourceManual)
	assert.Error(t, err)
	_, err = store.ApplyRule(ctx, "strike", model.SentimentNegative, "imported")
	assert.Error(t, err)
}

func TestRuleCacheInvalidation(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	// Prime the cache while empty
	assert.Empty(t, store.AppliedRuleKeywords(ctx))

	_, err := store.ApplyRule(ctx, "recall", model.SentimentNegative, model.RuleSourceManual)
	require.NoError(t, err)

	// Mutation must bypass the 30s TTL
	keywords := store.AppliedRuleKeywords(ctx)
	assert.Equal(t, []string{"recall"}, keywords[model.SentimentNegative])
}

// seedDisagreeingVotes submits votes where testers label negative against a
// positive automated label, generating mineable keyword votes.
func seedDisagreeingVotes(t *testing.T, store *Store, title string, users int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < users; i++ {
		_, _, err := store.SubmitFeedback(ctx, Submission{
			UserID:       fmt.Sprintf("miner-%d", i),
			ArticleLink:  fmt.Sprintf("https://x/mine-%d", i),
			ArticleTitle: title,
			AssetCode:    "ACME",
			UserLabel:    model.SentimentNegative,
			AILabel:      model.SentimentPositive,
		})
		require.NoError(t, err)
	}
}

func TestKeywordCandidates(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	seedDisagreeingVotes(t, store, "Walkout slows delivery schedule", 3)

	candidates, err := store.KeywordCandidates(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, candidates)

	byKeyword := make(map[string]model.KeywordCandidate)
	for _, c := range candidates {
		byKeyword[c.Keyword] = c
	}

	walkout, ok := byKeyword["walkout"]
	require.True(t, ok, "expected walkout candidate, got %v", candidates)
	assert.Equal(t, model.SentimentNegative, walkout.ConsensusLabel)
	assert.Equal(t, 3, walkout.VoteCount)
	assert.Equal(t, 1.0, walkout.ConsensusRatio)
	assert.Equal(t, 1.0, walkout.DisagreementRatio)
	assert.False(t, walkout.AlreadyApplied)
}

func TestKeywordCandidates_FiltersWeakSignals(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	// A single vote stays under RuleMinVotes (2)
	seedDisagreeingVotes(t, store, "Walkout slows delivery schedule", 1)

	candidates, err := store.KeywordCandidates(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	// Agreeing votes have zero disagreement and never become candidates
	for i := 0; i < 3; i++ {
		_, _, err := store.SubmitFeedback(ctx, Submission{
			UserID:       fmt.Sprintf("agree-%d", i),
			ArticleLink:  fmt.Sprintf("https://x/agree-%d", i),
			ArticleTitle: "Expansion wins board blessing",
			UserLabel:    model.SentimentPositive,
			AILabel:      model.SentimentPositive,
		})
		require.NoError(t, err)
	}

	candidates, err = store.KeywordCandidates(ctx, 10)
	require.NoError(t, err)
	for _, c := range candidates {
		assert.NotEqual(t, "expansion", c.Keyword)
	}
}

func TestAutoApplyRules(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	seedDisagreeingVotes(t, store, "Walkout slows delivery schedule", 3)

	// Dry run reports but does not mutate
	preview, err := store.AutoApplyRules(ctx, 2, true)
	require.NoError(t, err)
	require.NotEmpty(t, preview)
	assert.Empty(t, store.AppliedRuleKeywords(ctx))

	// A disabled keyword is never resurrected by auto-apply
	_, err = store.DisableRule(ctx, preview[0].Keyword)
	require.NoError(t, err)

	applied, err := store.AutoApplyRules(ctx, 2, false)
	require.NoError(t, err)
	for _, c := range applied {
		assert.NotEqual(t, preview[0].Keyword, c.Keyword)
	}
	assert.NotEmpty(t, store.AppliedRuleKeywords(ctx))
}

func TestAutoApplyRules_RecordsEvidence(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	seedDisagreeingVotes(t, store, "Walkout slows delivery schedule", 3)

	applied, err := store.AutoApplyRules(ctx, 1, false)
	require.NoError(t, err)
	require.NotEmpty(t, applied)

	rule, err := store.getRule(ctx, applied[0].Keyword)
	require.NoError(t, err)
	assert.Equal(t, model.RuleSourceAutoFeedback, rule.Source)
	assert.Equal(t, applied[0].VoteCount, rule.VoteCount)
	assert.Equal(t, round4(applied[0].ConsensusRatio), rule.ConsensusRatio)

	// Manual rules carry no mined evidence
	manual, err := store.ApplyRule(ctx, "recall", model.SentimentNegative, model.RuleSourceManual)
	require.NoError(t, err)
	assert.Zero(t, manual.VoteCount)
	assert.Zero(t, manual.ConsensusRatio)
}
