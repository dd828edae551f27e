package dto

import "time"

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return true
	}
	return false
}

// Invested reports whether the item's amount counts as money put to work.
func (a Action) Invested() bool {
	return a == ActionBuy || a == ActionHold
}

type RecommendationItem struct {
	Symbol               string   `json:"symbol"`
	Name                 string   `json:"name"`
	Action               Action   `json:"action"`
	Amount               float64  `json:"amount"`
	Confidence           int      `json:"confidence"`
	Reasoning            string   `json:"reasoning"`
	Sector               string   `json:"sector"`
	TargetPrice          *float64 `json:"targetPrice,omitempty"`
	StopLoss             *float64 `json:"stopLoss,omitempty"`
	ExpectedAnnualReturn float64  `json:"expectedAnnualReturn"`
	// Synthetic items were added to cover an existing holding the model left out.
	Synthetic bool `json:"synthetic,omitempty"`
}

// Warning records one repair applied while turning raw model output into items.
type Warning struct {
	Code   string `json:"code"`
	Symbol string `json:"symbol,omitempty"`
	Detail string `json:"detail"`
}

type RecommendationResult struct {
	Recommendations      []RecommendationItem `json:"recommendations"`
	PortfolioProjections PortfolioProjection  `json:"portfolioProjections"`
	Summary              string               `json:"summary"`
	MarketOutlook        string               `json:"marketOutlook"`
	RiskAssessment       string               `json:"riskAssessment"`
	Strategy             string               `json:"strategy"`
	Source               string               `json:"source"`
	Warnings             []Warning            `json:"warnings,omitempty"`
	GeneratedAt          time.Time            `json:"generatedAt"`
}
