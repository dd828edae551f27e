package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"portfolio-advisor/internal/dto"
	"portfolio-advisor/pkg/utils"
)

type allocation struct {
	Symbol    string
	Name      string
	Sector    string
	Weight    int64 // percent of new capital
	Return    float64
	Reasoning string
}

var ruleBasedAllocations = map[RiskTier][]allocation{
	RiskTierConservative: {
		{"BND", "Vanguard Total Bond Market ETF", "Bonds", 45, 0.04, "Core bond holding for stability and income."},
		{"VTI", "Vanguard Total Stock Market ETF", "Broad Market", 20, 0.08, "Low-cost exposure to the whole US market."},
		{"BSV", "Vanguard Short-Term Bond ETF", "Bonds", 12, 0.035, "Short duration bonds limit interest rate risk."},
		{"SCHD", "Schwab US Dividend Equity ETF", "Dividend Equity", 13, 0.07, "Quality dividend payers for steady income."},
		{"VNQ", "Vanguard Real Estate ETF", "Real Estate", 10, 0.06, "Real estate income and inflation protection."},
	},
	RiskTierModerate: {
		{"VTI", "Vanguard Total Stock Market ETF", "Broad Market", 30, 0.08, "Broad US equity core."},
		{"VXUS", "Vanguard Total International Stock ETF", "International", 15, 0.07, "International diversification."},
		{"BND", "Vanguard Total Bond Market ETF", "Bonds", 20, 0.04, "Bond ballast against equity drawdowns."},
		{"QQQ", "Invesco QQQ Trust", "Technology", 15, 0.11, "Growth exposure through large cap technology."},
		{"SCHD", "Schwab US Dividend Equity ETF", "Dividend Equity", 10, 0.07, "Dividend growth for balance."},
		{"VNQ", "Vanguard Real Estate ETF", "Real Estate", 10, 0.06, "Real assets for diversification."},
	},
	RiskTierAggressive: {
		{"QQQ", "Invesco QQQ Trust", "Technology", 25, 0.11, "Large cap growth leadership."},
		{"VTI", "Vanguard Total Stock Market ETF", "Broad Market", 20, 0.08, "Broad market core."},
		{"VGT", "Vanguard Information Technology ETF", "Technology", 15, 0.12, "Concentrated technology growth."},
		{"SMH", "VanEck Semiconductor ETF", "Semiconductors", 10, 0.13, "Semiconductor cycle exposure."},
		{"VXUS", "Vanguard Total International Stock ETF", "International", 10, 0.07, "International growth markets."},
		{"BTC", "Bitcoin", "Crypto", 10, 0.15, "Small high risk crypto allocation."},
		{"BND", "Vanguard Total Bond Market ETF", "Bonds", 10, 0.04, "Minimal bond buffer."},
	},
}

var ruleBasedNarratives = map[RiskTier]struct{ risk, strategy string }{
	RiskTierConservative: {
		risk:     "Low volatility: mostly bonds and broad market funds. Main risks are inflation and interest rates.",
		strategy: "Invest the core bond and broad market positions first, then add the income funds over the next few months.",
	},
	RiskTierModerate: {
		risk:     "Moderate volatility from a balanced equity and bond mix. Expect drawdowns of 10-20% in weak markets.",
		strategy: "Dollar-cost average into equities over three to six months and rebalance once a year.",
	},
	RiskTierAggressive: {
		risk:     "High volatility from technology and crypto concentration. Drawdowns above 30% are possible.",
		strategy: "Stage entries into growth positions, keep crypto at or below its allocation, and rebalance twice a year.",
	},
}

// BuildRuleBasedRecommendations allocates new capital from a fixed model keyed
// on the risk tier. It needs no network and always succeeds. Existing holdings
// are left to EnsureHoldingsCoverage.
func BuildRuleBasedRecommendations(profile dto.UserProfile) *ParseResult {
	tier := riskTierFor(profile.RiskTolerance)
	model := ruleBasedAllocations[tier]
	capital := decimal.NewFromFloat(profile.CapitalAvailable).Truncate(2)

	res := &ParseResult{
		Summary: fmt.Sprintf("Rule-based %s allocation of %s across %d positions.",
			tier, utils.FormatUSD(capital.InexactFloat64()), len(model)),
		MarketOutlook:  "Generated without live AI analysis; the allocation follows a fixed long-term model.",
		RiskAssessment: ruleBasedNarratives[tier].risk,
		Strategy:       ruleBasedNarratives[tier].strategy,
	}
	if !capital.IsPositive() {
		return res
	}

	hundred := decimal.NewFromInt(100)
	assigned := decimal.Zero
	for _, a := range model {
		amount := capital.Mul(decimal.NewFromInt(a.Weight)).Div(hundred).Truncate(2)
		if !amount.IsPositive() {
			continue
		}
		assigned = assigned.Add(amount)
		res.Items = append(res.Items, dto.RecommendationItem{
			Symbol:               a.Symbol,
			Name:                 a.Name,
			Action:               dto.ActionBuy,
			Amount:               amount.InexactFloat64(),
			Confidence:           60,
			Reasoning:            a.Reasoning,
			Sector:               a.Sector,
			ExpectedAnnualReturn: a.Return,
		})
	}

	// cents lost to truncation go to the first position
	if residual := capital.Sub(assigned); len(res.Items) > 0 && residual.IsPositive() {
		first := decimal.NewFromFloat(res.Items[0].Amount).Add(residual)
		res.Items[0].Amount = first.InexactFloat64()
	}
	return res
}
