package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-advisor/internal/dto"
)

func TestBuildRuleBasedRecommendations_Conservative(t *testing.T) {
	res := BuildRuleBasedRecommendations(dto.UserProfile{RiskTolerance: 2, CapitalAvailable: 10000})

	require.NotEmpty(t, res.Items)
	total := decimal.Zero
	bondsAndBroad := 0.0
	for _, it := range res.Items {
		total = total.Add(decimal.NewFromFloat(it.Amount))
		assert.Equal(t, dto.ActionBuy, it.Action)
		assert.False(t, isCryptoItem(it), it.Symbol)
		if it.Sector == "Bonds" || it.Sector == "Broad Market" {
			bondsAndBroad += it.Amount
		}
	}
	assert.True(t, total.Equal(decimal.NewFromInt(10000)), total.String())
	assert.Equal(t, 7700.0, bondsAndBroad)
	assert.NotEmpty(t, res.RiskAssessment)
	assert.NotEmpty(t, res.Strategy)
}

func TestBuildRuleBasedRecommendations_CentsAddUp(t *testing.T) {
	res := BuildRuleBasedRecommendations(dto.UserProfile{RiskTolerance: 9, CapitalAvailable: 1234.57})

	total := decimal.Zero
	for _, it := range res.Items {
		total = total.Add(decimal.NewFromFloat(it.Amount))
	}
	assert.True(t, total.Equal(decimal.RequireFromString("1234.57")), total.String())
	assert.Len(t, res.Items, len(ruleBasedAllocations[RiskTierAggressive]))
}

func TestBuildRuleBasedRecommendations_NoCapital(t *testing.T) {
	res := BuildRuleBasedRecommendations(dto.UserProfile{RiskTolerance: 5})
	assert.Empty(t, res.Items)
	assert.NotEmpty(t, res.Summary)
}

func TestRuleBasedAllocations_WeightsSumTo100(t *testing.T) {
	for tier, model := range ruleBasedAllocations {
		var sum int64
		for _, a := range model {
			sum += a.Weight
		}
		assert.EqualValues(t, 100, sum, tier)
	}
}

func TestRiskTierFor(t *testing.T) {
	assert.Equal(t, RiskTierConservative, riskTierFor(1))
	assert.Equal(t, RiskTierConservative, riskTierFor(3))
	assert.Equal(t, RiskTierModerate, riskTierFor(4))
	assert.Equal(t, RiskTierModerate, riskTierFor(7))
	assert.Equal(t, RiskTierAggressive, riskTierFor(8))
}
