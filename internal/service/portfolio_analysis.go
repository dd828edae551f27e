package service

import (
	"fmt"
	"sort"
	"strings"

	"portfolio-advisor/internal/dto"
	"portfolio-advisor/pkg/utils"
)

type RiskTier string

const (
	RiskTierConservative RiskTier = "conservative"
	RiskTierModerate     RiskTier = "moderate"
	RiskTierAggressive   RiskTier = "aggressive"
)

func riskTierFor(riskTolerance int) RiskTier {
	switch {
	case riskTolerance <= 3:
		return RiskTierConservative
	case riskTolerance <= 7:
		return RiskTierModerate
	default:
		return RiskTierAggressive
	}
}

// concentration above this share of the holdings triggers a rebalancing note
const concentrationLimit = 0.30

// AnalyzePortfolio describes the user's existing holdings for the prompt.
func AnalyzePortfolio(profile dto.UserProfile) string {
	if !profile.HasHoldings() {
		return fmt.Sprintf("EXISTING PORTFOLIO\n- None. All %s of available capital is new money.", utils.FormatUSD(profile.CapitalAvailable))
	}

	total := profile.HoldingsValue()
	holdings := append([]dto.Holding(nil), profile.ExistingPortfolio...)
	sort.SliceStable(holdings, func(i, j int) bool { return holdings[i].Amount > holdings[j].Amount })

	var sb strings.Builder
	sb.WriteString("EXISTING PORTFOLIO\n")
	sb.WriteString(fmt.Sprintf("- Holdings value: %s across %d positions\n", utils.FormatUSD(total), len(holdings)))
	sb.WriteString(fmt.Sprintf("- New capital available: %s\n", utils.FormatUSD(profile.CapitalAvailable)))
	sb.WriteString(fmt.Sprintf("- Total budget: %s\n", utils.FormatUSD(profile.Budget())))

	byType := map[string]float64{}
	var concentrated []string
	for _, h := range holdings {
		weight := h.Amount / total
		kind := h.Type
		if kind == "" {
			kind = dto.HoldingTypeOther
		}
		byType[kind] += h.Amount
		sb.WriteString(fmt.Sprintf("- %s (%s): %s, %.1f%% of holdings\n", h.Symbol, kind, utils.FormatUSD(h.Amount), weight*100))
		if weight > concentrationLimit && len(holdings) > 1 {
			concentrated = append(concentrated, h.Symbol)
		}
	}

	sb.WriteString("\nREBALANCING NOTES\n")
	if len(concentrated) > 0 {
		sb.WriteString(fmt.Sprintf("- Concentration risk in %s; consider trimming toward %.0f%% or less.\n",
			strings.Join(concentrated, ", "), concentrationLimit*100))
	}
	if len(holdings) == 1 {
		sb.WriteString(fmt.Sprintf("- Single position (%s); new capital should diversify away from it.\n", holdings[0].Symbol))
	}

	cryptoShare := byType[dto.HoldingTypeCrypto] / total
	tier := riskTierFor(profile.RiskTolerance)
	switch {
	case cryptoShare > 0.10 && tier != RiskTierAggressive:
		sb.WriteString(fmt.Sprintf("- Crypto is %.0f%% of holdings, high for a %s investor.\n", cryptoShare*100, tier))
	case byType[dto.HoldingTypeBond] == 0 && tier == RiskTierConservative:
		sb.WriteString("- No bond exposure; a conservative profile usually holds a bond core.\n")
	}
	sb.WriteString("- Every existing holding must appear in the output as hold or sell.")
	return sb.String()
}
