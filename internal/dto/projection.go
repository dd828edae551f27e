package dto

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type ProjectionPoint struct {
	Month int     `json:"month"`
	Value float64 `json:"value"`
}

type PortfolioProjection struct {
	TotalInvestment      float64           `json:"totalInvestment"`
	MonthlyValues        []ProjectionPoint `json:"monthlyValues"`
	OneYearValue         float64           `json:"oneYearValue"`
	ThreeYearValue       float64           `json:"threeYearValue"`
	FiveYearValue        float64           `json:"fiveYearValue"`
	ExpectedAnnualReturn float64           `json:"expectedAnnualReturn"`
	RiskLevel            RiskLevel         `json:"riskLevel"`
	DiversificationScore float64           `json:"diversificationScore"`
	SectorBreakdown      map[string]int    `json:"sectorBreakdown"`
}
