package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-advisor/internal/dto"
)

func item(symbol string, action dto.Action, amount float64) dto.RecommendationItem {
	return dto.RecommendationItem{Symbol: symbol, Name: symbol, Action: action, Amount: amount, Sector: "Technology", ExpectedAnnualReturn: 0.08}
}

func hasSymbolWarning(ws []dto.Warning, code, symbol string) bool {
	for _, w := range ws {
		if w.Code == code && w.Symbol == symbol {
			return true
		}
	}
	return false
}

func TestEnsureHoldingsCoverage(t *testing.T) {
	profile := dto.UserProfile{ExistingPortfolio: []dto.Holding{
		{Symbol: "AAPL", Amount: 5000, Type: dto.HoldingTypeStock},
		{Symbol: "BTC", Amount: 1000, Type: dto.HoldingTypeCrypto},
		{Symbol: "TSLA", Amount: 800},
	}}
	items := []dto.RecommendationItem{
		item("VTI", dto.ActionBuy, 3000),
		item("TSLA", dto.ActionBuy, 900),
		item("TSLA", dto.ActionSell, 800),
		item("BTC", dto.ActionSell, 1000),
	}

	out, warnings := EnsureHoldingsCoverage(items, profile)

	bySymbol := map[string][]dto.RecommendationItem{}
	for _, it := range out {
		bySymbol[it.Symbol] = append(bySymbol[it.Symbol], it)
	}
	require.Len(t, bySymbol["TSLA"], 1)
	assert.Equal(t, dto.ActionHold, bySymbol["TSLA"][0].Action)
	assert.Equal(t, dto.ActionSell, bySymbol["BTC"][0].Action)

	require.Len(t, bySymbol["AAPL"], 1)
	aapl := bySymbol["AAPL"][0]
	assert.True(t, aapl.Synthetic)
	assert.Equal(t, dto.ActionHold, aapl.Action)
	assert.Equal(t, 5000.0, aapl.Amount)
	assert.Equal(t, syntheticHoldConfidence, aapl.Confidence)

	codes := warningCodes(warnings)
	assert.Contains(t, codes, WarnHoldingConverted)
	assert.Contains(t, codes, WarnDuplicateDropped)
	assert.Contains(t, codes, WarnHoldingInjected)
}

func TestEnsureHoldingsCoverage_NoHoldings(t *testing.T) {
	items := []dto.RecommendationItem{item("VTI", dto.ActionBuy, 100)}
	out, warnings := EnsureHoldingsCoverage(items, dto.UserProfile{CapitalAvailable: 100})
	assert.Equal(t, items, out)
	assert.Empty(t, warnings)
}

func TestScaleToBudget_WithinBudgetUnchanged(t *testing.T) {
	items := []dto.RecommendationItem{item("VTI", dto.ActionBuy, 4000), item("QQQ", dto.ActionBuy, 6000)}
	out, warnings := ScaleToBudget(items, dto.UserProfile{CapitalAvailable: 10000})
	assert.Equal(t, items, out)
	assert.Empty(t, warnings)
}

func TestScaleToBudget_ExactToTheCent(t *testing.T) {
	items := []dto.RecommendationItem{
		item("VTI", dto.ActionBuy, 3333.33),
		item("QQQ", dto.ActionBuy, 3333.33),
		item("BND", dto.ActionHold, 3333.34),
		item("XOM", dto.ActionSell, 700),
	}
	out, warnings := ScaleToBudget(items, dto.UserProfile{CapitalAvailable: 7000})

	require.Len(t, out, 4)
	assert.True(t, investedTotal(out).Equal(decimal.NewFromInt(7000)), investedTotal(out).String())
	assert.Equal(t, 700.0, out[3].Amount, "sell amounts are not scaled")
	assert.Contains(t, warningCodes(warnings), WarnCapitalScaledDown)
}

func TestScaleToBudget_SyntheticHoldsAreFixed(t *testing.T) {
	synthetic := item("AAPL", dto.ActionHold, 5000)
	synthetic.Synthetic = true
	items := []dto.RecommendationItem{
		item("VTI", dto.ActionBuy, 8000),
		item("QQQ", dto.ActionBuy, 2000),
		synthetic,
	}
	profile := dto.UserProfile{
		CapitalAvailable:  5000,
		ExistingPortfolio: []dto.Holding{{Symbol: "AAPL", Amount: 5000}},
	}
	out, _ := ScaleToBudget(items, profile)

	assert.Equal(t, 4000.0, out[0].Amount)
	assert.Equal(t, 1000.0, out[1].Amount)
	assert.Equal(t, 5000.0, out[2].Amount)
	assert.True(t, investedTotal(out).Equal(decimal.NewFromInt(10000)))
}

func TestScaleToBudget_DropsItemsRoundedToZero(t *testing.T) {
	items := []dto.RecommendationItem{item("VTI", dto.ActionBuy, 1_000_000), item("TINY", dto.ActionBuy, 0.01)}
	out, warnings := ScaleToBudget(items, dto.UserProfile{CapitalAvailable: 100})

	require.Len(t, out, 1)
	assert.Equal(t, "VTI", out[0].Symbol)
	assert.Equal(t, 100.0, out[0].Amount)
	assert.Contains(t, warningCodes(warnings), WarnItemDropped)
}

func TestScaleToBudget_NoCapitalLeftDropsNewPositions(t *testing.T) {
	synthetic := item("AAPL", dto.ActionHold, 5000)
	synthetic.Synthetic = true
	items := []dto.RecommendationItem{
		item("MSFT", dto.ActionBuy, 6000),
		item("QQQ", dto.ActionBuy, 4000),
		synthetic,
	}
	profile := dto.UserProfile{ExistingPortfolio: []dto.Holding{{Symbol: "AAPL", Amount: 5000}}}

	out, warnings := ScaleToBudget(items, profile)

	require.Len(t, out, 1)
	assert.Equal(t, "AAPL", out[0].Symbol)
	assert.Equal(t, 5000.0, out[0].Amount)
	assert.True(t, investedTotal(out).Equal(decimal.NewFromInt(5000)), investedTotal(out).String())
	assert.True(t, hasSymbolWarning(warnings, WarnItemDropped, "MSFT"))
	assert.True(t, hasSymbolWarning(warnings, WarnItemDropped, "QQQ"))
}

func TestScaleToBudget_HeldHoldIsNeverDropped(t *testing.T) {
	items := []dto.RecommendationItem{
		item("MSFT", dto.ActionBuy, 100000),
		item("AAPL", dto.ActionHold, 0.01),
	}
	profile := dto.UserProfile{
		CapitalAvailable:  0.01,
		ExistingPortfolio: []dto.Holding{{Symbol: "AAPL", Amount: 0.01}},
	}

	out, _ := ScaleToBudget(items, profile)

	bySymbol := map[string][]dto.RecommendationItem{}
	for _, it := range out {
		bySymbol[it.Symbol] = append(bySymbol[it.Symbol], it)
	}
	require.Len(t, bySymbol["AAPL"], 1)
	assert.Equal(t, dto.ActionHold, bySymbol["AAPL"][0].Action)
	assert.Equal(t, 0.01, bySymbol["AAPL"][0].Amount)
	require.Len(t, bySymbol["MSFT"], 1)
	assert.Equal(t, 0.01, bySymbol["MSFT"][0].Amount)
	assert.True(t, investedTotal(out).Equal(decimal.RequireFromString("0.02")), investedTotal(out).String())
}

func TestScaleToBudget_HeldHoldCappedAtPosition(t *testing.T) {
	items := []dto.RecommendationItem{
		item("AAPL", dto.ActionHold, 8000),
		item("VTI", dto.ActionBuy, 2000),
	}
	profile := dto.UserProfile{
		CapitalAvailable:  1000,
		ExistingPortfolio: []dto.Holding{{Symbol: "AAPL", Amount: 5000}},
	}

	out, warnings := ScaleToBudget(items, profile)

	require.Len(t, out, 2)
	assert.Equal(t, 5000.0, out[0].Amount)
	assert.Equal(t, 1000.0, out[1].Amount)
	assert.True(t, investedTotal(out).Equal(decimal.NewFromInt(6000)))
	assert.True(t, hasSymbolWarning(warnings, WarnHoldingCapped, "AAPL"))
	assert.Equal(t, 8000.0, items[0].Amount, "input slice is left untouched")
}

func TestSortForDisplay(t *testing.T) {
	items := []dto.RecommendationItem{
		item("SELL", dto.ActionSell, 9000),
		item("SMALL", dto.ActionBuy, 100),
		item("BIG", dto.ActionHold, 5000),
	}
	sortForDisplay(items)
	assert.Equal(t, []string{"BIG", "SMALL", "SELL"}, []string{items[0].Symbol, items[1].Symbol, items[2].Symbol})
}
