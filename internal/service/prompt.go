package service

import (
	"fmt"
	"strings"

	"portfolio-advisor/internal/dto"
	"portfolio-advisor/pkg/utils"
)

const (
	probeSystemPrompt = "You are a health check. Reply with the single word OK."
	probeUserPrompt   = "ping"
	probeMaxTokens    = 5
)

func buildSystemPrompt(profile dto.UserProfile) string {
	var sb strings.Builder

	sb.WriteString("You are a professional portfolio advisor producing buy, sell and hold recommendations for a retail investor.\n\n")

	sb.WriteString(`### Rules (must follow):
1. Respond with JSON only, no Markdown and no text before or after the JSON.
2. "action" is exactly one of "buy", "sell" or "hold".
3. "amount" is a positive dollar amount. "expectedAnnualReturn" is a decimal fraction between 0.02 and 0.25 (0.08 means 8%).
4. "confidence" is an integer from 0 to 100.
`)
	sb.WriteString(fmt.Sprintf("5. The sum of all buy and hold amounts must not exceed %s (available capital plus existing holdings).\n",
		utils.FormatUSD(profile.Budget())))
	rule := 6
	if profile.HasHoldings() {
		symbols := make([]string, 0, len(profile.ExistingPortfolio))
		for _, h := range profile.ExistingPortfolio {
			symbols = append(symbols, h.Symbol)
		}
		sb.WriteString(fmt.Sprintf("%d. Every existing holding (%s) must appear exactly once with action \"hold\" or \"sell\".\n",
			rule, strings.Join(symbols, ", ")))
		rule++
	}
	sb.WriteString(fmt.Sprintf("%d. Recommend between 4 and 10 positions, diversified across sectors. Crypto must not exceed 10%% of the budget.\n", rule))

	sb.WriteString(`
### Output format:
{
  "recommendations": [
    {
      "symbol": "VTI",
      "name": "Vanguard Total Stock Market ETF",
      "action": "buy",
      "amount": 2500,
      "confidence": 80,
      "reasoning": "Short reason based on the market context",
      "sector": "Broad Market",
      "targetPrice": 0,
      "stopLoss": 0,
      "expectedAnnualReturn": 0.08
    }
  ],
  "summary": "Two or three sentences describing the portfolio",
  "marketOutlook": "One or two sentences on current conditions",
  "riskAssessment": "One or two sentences on the main risks",
  "strategy": "One or two sentences on how to execute"
}
`)
	return sb.String()
}

func buildUserPrompt(profile dto.UserProfile, marketContext, portfolioAnalysis string, headlines []dto.NewsHeadline) string {
	var sb strings.Builder

	sb.WriteString("### Investor profile:\n")
	sb.WriteString(fmt.Sprintf("- Risk tolerance: %d/10 (%s)\n", profile.RiskTolerance, riskTierFor(profile.RiskTolerance)))
	sb.WriteString(fmt.Sprintf("- Capital available: %s\n", utils.FormatUSD(profile.CapitalAvailable)))
	sb.WriteString(fmt.Sprintf("- Time horizon: %s\n", profile.TimeHorizon))
	sb.WriteString(fmt.Sprintf("- Growth type: %s\n", profile.GrowthType))
	if len(profile.SectorPreferences) > 0 {
		sb.WriteString(fmt.Sprintf("- Preferred sectors: %s\n", strings.Join(profile.SectorPreferences, ", ")))
	}
	sb.WriteString(fmt.Sprintf("- ESG priority: %d/10\n", profile.ESGPriority))

	sb.WriteString("\n### Portfolio:\n")
	sb.WriteString(portfolioAnalysis)
	sb.WriteString("\n")

	sb.WriteString("\n### Market context:\n")
	sb.WriteString(marketContext)
	sb.WriteString("\n")

	if len(headlines) > 0 {
		sb.WriteString("\n### Recent headlines:\n")
		for _, h := range headlines {
			if h.Source != "" {
				sb.WriteString(fmt.Sprintf("- %s (%s)\n", h.Title, h.Source))
			} else {
				sb.WriteString(fmt.Sprintf("- %s\n", h.Title))
			}
		}
	}

	sb.WriteString("\nProduce the recommendations now.")
	return sb.String()
}
