package service

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"portfolio-advisor/internal/dto"
	"portfolio-advisor/pkg/utils"
)

const (
	syntheticHoldConfidence = 40
	syntheticHoldReturn     = 0.05
)

func holdingSector(h dto.Holding) string {
	switch h.Type {
	case dto.HoldingTypeCrypto:
		return "Crypto"
	case dto.HoldingTypeBond:
		return "Bonds"
	case dto.HoldingTypeETF, dto.HoldingTypeFund:
		return "Funds"
	}
	return defaultSector
}

// EnsureHoldingsCoverage makes every held symbol appear exactly once as sell or
// hold. A buy on a held symbol becomes a hold, later duplicates are dropped, and
// a holding the list never mentions is appended as a synthetic hold.
func EnsureHoldingsCoverage(items []dto.RecommendationItem, profile dto.UserProfile) ([]dto.RecommendationItem, []dto.Warning) {
	if !profile.HasHoldings() {
		return items, nil
	}

	held := make(map[string]bool, len(profile.ExistingPortfolio))
	for _, h := range profile.ExistingPortfolio {
		held[h.Symbol] = true
	}

	var warnings []dto.Warning
	seen := make(map[string]bool, len(held))
	out := make([]dto.RecommendationItem, 0, len(items)+len(held))
	for _, item := range items {
		if !held[item.Symbol] {
			out = append(out, item)
			continue
		}
		if seen[item.Symbol] {
			warnings = append(warnings, dto.Warning{
				Code:   WarnDuplicateDropped,
				Symbol: item.Symbol,
				Detail: fmt.Sprintf("dropped extra %s entry for an existing holding", item.Action),
			})
			continue
		}
		seen[item.Symbol] = true
		if item.Action == dto.ActionBuy {
			warnings = append(warnings, dto.Warning{
				Code:   WarnHoldingConverted,
				Symbol: item.Symbol,
				Detail: "buy on an existing holding turned into hold",
			})
			item.Action = dto.ActionHold
		}
		out = append(out, item)
	}

	for _, h := range profile.ExistingPortfolio {
		if seen[h.Symbol] {
			continue
		}
		seen[h.Symbol] = true
		out = append(out, dto.RecommendationItem{
			Symbol:               h.Symbol,
			Name:                 h.Symbol,
			Action:               dto.ActionHold,
			Amount:               h.Amount,
			Confidence:           syntheticHoldConfidence,
			Reasoning:            "Existing position kept as is; no specific guidance was produced for it.",
			Sector:               holdingSector(h),
			ExpectedAnnualReturn: syntheticHoldReturn,
			Synthetic:            true,
		})
		warnings = append(warnings, dto.Warning{
			Code:   WarnHoldingInjected,
			Symbol: h.Symbol,
			Detail: fmt.Sprintf("added hold for existing %s position", utils.FormatUSD(h.Amount)),
		})
	}
	return out, warnings
}

func investedTotal(items []dto.RecommendationItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if item.Action.Invested() {
			total = total.Add(decimal.NewFromFloat(item.Amount))
		}
	}
	return total
}

func heldAmounts(profile dto.UserProfile) map[string]decimal.Decimal {
	held := make(map[string]decimal.Decimal, len(profile.ExistingPortfolio))
	for _, h := range profile.ExistingPortfolio {
		held[h.Symbol] = held[h.Symbol].Add(decimal.NewFromFloat(h.Amount))
	}
	return held
}

func budgetOf(profile dto.UserProfile, held map[string]decimal.Decimal) decimal.Decimal {
	limit := decimal.NewFromFloat(profile.CapitalAvailable)
	for _, amount := range held {
		limit = limit.Add(amount)
	}
	return limit.Truncate(2)
}

// ScaleToBudget shrinks buy and hold amounts proportionally so the invested
// total equals the profile budget exactly, to the cent. Lists already within
// budget are returned unchanged.
//
// A hold on an existing position is never scaled or dropped. It is capped at
// the held amount, so those holds alone always fit in the budget. Buys and
// holds on new symbols share what is left; when nothing is left they are
// dropped.
func ScaleToBudget(items []dto.RecommendationItem, profile dto.UserProfile) ([]dto.RecommendationItem, []dto.Warning) {
	held := heldAmounts(profile)
	limit := budgetOf(profile, held)
	total := investedTotal(items)
	if total.LessThanOrEqual(limit) {
		return items, nil
	}

	warnings := []dto.Warning{{
		Code:   WarnCapitalScaledDown,
		Detail: fmt.Sprintf("buy and hold total %s exceeded budget %s", utils.FormatUSD(total.InexactFloat64()), utils.FormatUSD(limit.InexactFloat64())),
	}}

	out := make([]dto.RecommendationItem, len(items))
	copy(out, items)

	fixed := decimal.Zero
	scalable := decimal.Zero
	for i, item := range out {
		if !item.Action.Invested() {
			continue
		}
		heldAmount, isHeld := held[item.Symbol]
		if !isHeld {
			scalable = scalable.Add(decimal.NewFromFloat(item.Amount))
			continue
		}
		amount := decimal.NewFromFloat(item.Amount)
		if amount.GreaterThan(heldAmount) {
			warnings = append(warnings, dto.Warning{
				Code:   WarnHoldingCapped,
				Symbol: item.Symbol,
				Detail: fmt.Sprintf("hold capped at existing %s position", utils.FormatUSD(heldAmount.InexactFloat64())),
			})
			amount = heldAmount
			out[i].Amount = heldAmount.InexactFloat64()
		}
		fixed = fixed.Add(amount)
	}

	target := limit.Sub(fixed)
	if !target.IsPositive() {
		target = decimal.Zero
	}

	kept := out[:0]
	assigned := decimal.Zero
	largest := -1
	for _, item := range out {
		if _, isHeld := held[item.Symbol]; isHeld || !item.Action.Invested() {
			kept = append(kept, item)
			continue
		}
		scaled := decimal.Zero
		if scalable.IsPositive() {
			scaled = decimal.NewFromFloat(item.Amount).Mul(target).Div(scalable).Truncate(2)
		}
		if !scaled.IsPositive() {
			warnings = append(warnings, dto.Warning{Code: WarnItemDropped, Symbol: item.Symbol, Detail: "amount rounded to zero after scale-down"})
			continue
		}
		item.Amount = scaled.InexactFloat64()
		assigned = assigned.Add(scaled)
		if largest == -1 || item.Amount > kept[largest].Amount {
			largest = len(kept)
		}
		kept = append(kept, item)
	}

	// truncation leaves a few cents over; they go to the largest position
	if residual := target.Sub(assigned); largest >= 0 && residual.IsPositive() {
		kept[largest].Amount = decimal.NewFromFloat(kept[largest].Amount).Add(residual).InexactFloat64()
	}
	return kept, warnings
}

// sortForDisplay orders invested items by amount, then sells.
func sortForDisplay(items []dto.RecommendationItem) {
	sort.SliceStable(items, func(i, j int) bool {
		ai, aj := items[i].Action.Invested(), items[j].Action.Invested()
		if ai != aj {
			return ai
		}
		return items[i].Amount > items[j].Amount
	})
}
