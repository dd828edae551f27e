package service

import (
	"math"
	"strings"

	"portfolio-advisor/internal/dto"
	"portfolio-advisor/internal/repository"
	"portfolio-advisor/pkg/utils"
)

const (
	projectionMonths       = 60
	maxProjectedReturn     = 0.18
	cycleAmplitude         = 0.02
	cyclePeriodMonths      = 24
	drawdownRecoveryMonths = 6
	highRiskReturn         = 0.12
	mediumRiskReturn       = 0.07
	highRiskCryptoShare    = 0.10
)

type drawdown struct {
	month int
	depth float64
}

var scriptedDrawdowns = []drawdown{
	{month: 18, depth: 0.08},
	{month: 42, depth: 0.05},
}

// drawdownFactor applies each drawdown at its month and recovers it linearly.
func drawdownFactor(month int) float64 {
	factor := 1.0
	for _, d := range scriptedDrawdowns {
		since := month - d.month
		if since < 0 || since >= drawdownRecoveryMonths {
			continue
		}
		factor *= 1 - d.depth*(1-float64(since)/drawdownRecoveryMonths)
	}
	return factor
}

func isCryptoItem(item dto.RecommendationItem) bool {
	if _, ok := repository.CryptoSymbol(item.Symbol); ok {
		return true
	}
	return strings.Contains(strings.ToLower(item.Sector), "crypto")
}

// CalculateProjections derives the five year projection from the buy and hold
// items. It is pure: equal inputs give identical output.
func CalculateProjections(items []dto.RecommendationItem, profile dto.UserProfile) dto.PortfolioProjection {
	var total, weighted, crypto float64
	bySymbol := map[string]float64{}
	bySector := map[string]float64{}
	for _, item := range items {
		if !item.Action.Invested() {
			continue
		}
		total += item.Amount
		weighted += item.Amount * item.ExpectedAnnualReturn
		bySymbol[item.Symbol] += item.Amount
		sector := item.Sector
		if sector == "" {
			sector = defaultSector
		}
		bySector[sector] += item.Amount
		if isCryptoItem(item) {
			crypto += item.Amount
		}
	}

	proj := dto.PortfolioProjection{
		MonthlyValues:   make([]dto.ProjectionPoint, 0, projectionMonths),
		SectorBreakdown: map[string]int{},
		RiskLevel:       dto.RiskLow,
	}

	if total <= 0 {
		// nothing invested, the capital sits flat as cash
		cash := utils.RoundTo(profile.CapitalAvailable, 2)
		for m := 1; m <= projectionMonths; m++ {
			proj.MonthlyValues = append(proj.MonthlyValues, dto.ProjectionPoint{Month: m, Value: cash})
		}
		proj.TotalInvestment = 0
		proj.OneYearValue, proj.ThreeYearValue, proj.FiveYearValue = cash, cash, cash
		return proj
	}

	rate := math.Min(weighted/total, maxProjectedReturn)
	for m := 1; m <= projectionMonths; m++ {
		growth := math.Pow(1+rate, float64(m)/12)
		cycle := 1 + cycleAmplitude*math.Sin(2*math.Pi*float64(m)/cyclePeriodMonths)
		value := total * growth * cycle * drawdownFactor(m)
		proj.MonthlyValues = append(proj.MonthlyValues, dto.ProjectionPoint{Month: m, Value: utils.RoundTo(value, 2)})
	}

	proj.TotalInvestment = utils.RoundTo(total, 2)
	proj.OneYearValue = proj.MonthlyValues[11].Value
	proj.ThreeYearValue = proj.MonthlyValues[35].Value
	proj.FiveYearValue = proj.MonthlyValues[59].Value
	proj.ExpectedAnnualReturn = utils.RoundTo(rate, 4)

	switch {
	case rate >= highRiskReturn || crypto/total > highRiskCryptoShare:
		proj.RiskLevel = dto.RiskHigh
	case rate >= mediumRiskReturn:
		proj.RiskLevel = dto.RiskMedium
	}

	hhi := 0.0
	for _, amount := range bySymbol {
		w := amount / total
		hhi += w * w
	}
	proj.DiversificationScore = utils.RoundTo((1-hhi)*100, 1)

	for sector, amount := range bySector {
		proj.SectorBreakdown[sector] = int(math.Round(amount / total * 100))
	}
	return proj
}
