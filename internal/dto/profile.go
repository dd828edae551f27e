package dto

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	TimeHorizonShort  = "short"
	TimeHorizonMedium = "medium"
	TimeHorizonLong   = "long"

	GrowthTypeGrowth   = "growth"
	GrowthTypeIncome   = "income"
	GrowthTypeBalanced = "balanced"

	HoldingTypeStock  = "stock"
	HoldingTypeETF    = "etf"
	HoldingTypeCrypto = "crypto"
	HoldingTypeBond   = "bond"
	HoldingTypeFund   = "fund"
	HoldingTypeOther  = "other"
)

var ErrProfileNoCapital = errors.New("capitalAvailable must be greater than zero when there are no existing holdings")

type Holding struct {
	Symbol string  `json:"symbol" validate:"required,max=15"`
	Amount float64 `json:"amount" validate:"gt=0"`
	Type   string  `json:"type,omitempty" validate:"omitempty,oneof=stock etf crypto bond fund other"`
}

// UserProfile is the questionnaire answer set. Build it once at the boundary,
// call Normalize and then Validate before handing it to the services.
type UserProfile struct {
	RiskTolerance     int       `json:"riskTolerance" validate:"min=1,max=10"`
	CapitalAvailable  float64   `json:"capitalAvailable" validate:"gte=0"`
	TimeHorizon       string    `json:"timeHorizon" validate:"oneof=short medium long"`
	GrowthType        string    `json:"growthType" validate:"oneof=growth income balanced"`
	SectorPreferences []string  `json:"sectorPreferences" validate:"max=20,dive,required,max=50"`
	ESGPriority       int       `json:"esgPriority" validate:"min=1,max=10"`
	ExistingPortfolio []Holding `json:"existingPortfolio" validate:"max=50,dive"`
}

// Normalize fills optional answers and canonicalises symbols. Duplicate
// holdings are merged by summing their amounts.
func (p *UserProfile) Normalize() {
	p.TimeHorizon = strings.ToLower(strings.TrimSpace(p.TimeHorizon))
	if p.TimeHorizon == "" {
		p.TimeHorizon = TimeHorizonMedium
	}
	p.GrowthType = strings.ToLower(strings.TrimSpace(p.GrowthType))
	if p.GrowthType == "" {
		p.GrowthType = GrowthTypeBalanced
	}
	if p.ESGPriority == 0 {
		p.ESGPriority = 5
	}

	sectors := make([]string, 0, len(p.SectorPreferences))
	for _, s := range p.SectorPreferences {
		if s = strings.TrimSpace(s); s != "" {
			sectors = append(sectors, s)
		}
	}
	p.SectorPreferences = sectors

	merged := make([]Holding, 0, len(p.ExistingPortfolio))
	index := make(map[string]int, len(p.ExistingPortfolio))
	for _, h := range p.ExistingPortfolio {
		h.Symbol = strings.ToUpper(strings.TrimSpace(h.Symbol))
		h.Type = strings.ToLower(strings.TrimSpace(h.Type))
		if i, ok := index[h.Symbol]; ok && h.Symbol != "" {
			merged[i].Amount += h.Amount
			continue
		}
		index[h.Symbol] = len(merged)
		merged = append(merged, h)
	}
	p.ExistingPortfolio = merged
}

func (p *UserProfile) Validate(v *validator.Validate) error {
	if err := v.Struct(p); err != nil {
		return err
	}
	if p.CapitalAvailable <= 0 && len(p.ExistingPortfolio) == 0 {
		return ErrProfileNoCapital
	}
	return nil
}

func (p UserProfile) HoldingsValue() float64 {
	var total float64
	for _, h := range p.ExistingPortfolio {
		total += h.Amount
	}
	return total
}

// Budget is the most the buy and hold recommendations may add up to.
func (p UserProfile) Budget() float64 {
	return p.CapitalAvailable + p.HoldingsValue()
}

func (p UserProfile) HasHoldings() bool {
	return len(p.ExistingPortfolio) > 0
}
