package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"portfolio-advisor/internal/dto"
)

const (
	minExpectedReturn = 0.02
	maxExpectedReturn = 0.25
	defaultSector     = "Other"
)

// Repair codes reported in dto.Warning.Code.
const (
	WarnFenceStripped     = "markdown_fence_stripped"
	WarnJSONExtracted     = "json_extracted"
	WarnBareArray         = "bare_array"
	WarnNumericCoerced    = "numeric_coerced"
	WarnPercentReturn     = "percent_return_scaled"
	WarnConfidenceScaled  = "confidence_scaled"
	WarnActionSynonym     = "action_synonym"
	WarnSymbolUppercased  = "symbol_uppercased"
	WarnReturnClamped     = "return_clamped"
	WarnSectorDefaulted   = "sector_defaulted"
	WarnItemDropped       = "item_dropped"
	WarnHoldingInjected   = "holding_injected"
	WarnHoldingConverted  = "holding_buy_converted"
	WarnDuplicateDropped  = "duplicate_holding_dropped"
	WarnCapitalScaledDown = "capital_scaled_down"
	WarnHoldingCapped     = "holding_capped"
)

var actionSynonyms = map[string]dto.Action{
	"buy":         dto.ActionBuy,
	"strong buy":  dto.ActionBuy,
	"strong_buy":  dto.ActionBuy,
	"accumulate":  dto.ActionBuy,
	"add":         dto.ActionBuy,
	"increase":    dto.ActionBuy,
	"purchase":    dto.ActionBuy,
	"sell":        dto.ActionSell,
	"strong sell": dto.ActionSell,
	"strong_sell": dto.ActionSell,
	"reduce":      dto.ActionSell,
	"trim":        dto.ActionSell,
	"exit":        dto.ActionSell,
	"hold":        dto.ActionHold,
	"keep":        dto.ActionHold,
	"maintain":    dto.ActionHold,
	"neutral":     dto.ActionHold,
	"wait":        dto.ActionHold,
}

// ParseResult is the outcome of turning raw model text into recommendation items.
// Warnings lists every repair that was needed.
type ParseResult struct {
	Items          []dto.RecommendationItem
	Summary        string
	MarketOutlook  string
	RiskAssessment string
	Strategy       string
	Warnings       []dto.Warning
}

func (r *ParseResult) warn(code, symbol, detail string) {
	r.Warnings = append(r.Warnings, dto.Warning{Code: code, Symbol: symbol, Detail: detail})
}

// ParseRecommendations parses model output. It fails only when no valid item survives.
func ParseRecommendations(raw string) (*ParseResult, error) {
	res := &ParseResult{}

	text := strings.TrimSpace(raw)
	if stripped, ok := stripCodeFences(text); ok {
		res.warn(WarnFenceStripped, "", "removed Markdown code fences")
		text = stripped
	}

	payload := extractJSONValue(text)
	if payload == "" {
		return nil, fmt.Errorf("%w: no JSON value in response", ErrNoValidRecommendations)
	}
	if payload != text {
		res.warn(WarnJSONExtracted, "", "ignored text around the JSON value")
	}

	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	var decoded interface{}
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoValidRecommendations, err)
	}

	var rawItems []interface{}
	switch v := decoded.(type) {
	case []interface{}:
		res.warn(WarnBareArray, "", "response was a bare array")
		rawItems = v
	case map[string]interface{}:
		rawItems, _ = lookup(v, "recommendations", "Recommendations", "items").([]interface{})
		res.Summary = stringValue(lookup(v, "summary"))
		res.MarketOutlook = stringValue(lookup(v, "marketOutlook", "market_outlook"))
		res.RiskAssessment = stringValue(lookup(v, "riskAssessment", "risk_assessment"))
		res.Strategy = stringValue(lookup(v, "strategy", "overall_strategy"))
	default:
		return nil, fmt.Errorf("%w: unexpected JSON %T", ErrNoValidRecommendations, decoded)
	}

	for i, ri := range rawItems {
		obj, ok := ri.(map[string]interface{})
		if !ok {
			res.warn(WarnItemDropped, "", fmt.Sprintf("item %d is not an object", i))
			continue
		}
		if item, ok := res.parseItem(obj); ok {
			res.Items = append(res.Items, item)
		}
	}

	if len(res.Items) == 0 {
		return nil, fmt.Errorf("%w: %d items, none valid", ErrNoValidRecommendations, len(rawItems))
	}
	return res, nil
}

func (r *ParseResult) parseItem(obj map[string]interface{}) (dto.RecommendationItem, bool) {
	var item dto.RecommendationItem

	rawSymbol := strings.TrimSpace(stringValue(lookup(obj, "symbol", "ticker")))
	item.Symbol = strings.ToUpper(rawSymbol)
	if item.Symbol == "" {
		r.warn(WarnItemDropped, "", "missing symbol")
		return item, false
	}
	if item.Symbol != rawSymbol {
		r.warn(WarnSymbolUppercased, item.Symbol, fmt.Sprintf("symbol %q uppercased", rawSymbol))
	}

	rawAction := strings.ToLower(strings.TrimSpace(stringValue(lookup(obj, "action", "signal"))))
	action, ok := actionSynonyms[rawAction]
	if !ok {
		r.warn(WarnItemDropped, item.Symbol, fmt.Sprintf("unknown action %q", rawAction))
		return item, false
	}
	if string(action) != rawAction {
		r.warn(WarnActionSynonym, item.Symbol, fmt.Sprintf("action %q read as %q", rawAction, action))
	}
	item.Action = action

	amount, coerced, ok := numberValue(lookup(obj, "amount", "allocation"))
	if coerced {
		r.warn(WarnNumericCoerced, item.Symbol, "amount")
	}
	if !ok || amount <= 0 {
		r.warn(WarnItemDropped, item.Symbol, "amount must be positive")
		return item, false
	}
	item.Amount = math.Round(amount*100) / 100

	ret, coerced, ok := numberValue(lookup(obj, "expectedAnnualReturn", "expected_annual_return", "expectedReturn"))
	if coerced {
		r.warn(WarnNumericCoerced, item.Symbol, "expectedAnnualReturn")
	}
	if ok && ret > 1 {
		r.warn(WarnPercentReturn, item.Symbol, fmt.Sprintf("return %.4g read as a percentage", ret))
		ret /= 100
	}
	if !ok || ret <= 0 {
		r.warn(WarnItemDropped, item.Symbol, "expectedAnnualReturn must be positive")
		return item, false
	}
	if clamped := math.Min(math.Max(ret, minExpectedReturn), maxExpectedReturn); clamped != ret {
		r.warn(WarnReturnClamped, item.Symbol, fmt.Sprintf("return %.4f clamped to %.2f", ret, clamped))
		ret = clamped
	}
	item.ExpectedAnnualReturn = ret

	if conf, coerced, ok := numberValue(lookup(obj, "confidence")); ok {
		if coerced {
			r.warn(WarnNumericCoerced, item.Symbol, "confidence")
		}
		if conf > 0 && conf <= 1 {
			r.warn(WarnConfidenceScaled, item.Symbol, fmt.Sprintf("confidence %.2f scaled to 0-100", conf))
			conf *= 100
		}
		item.Confidence = int(math.Round(math.Min(math.Max(conf, 0), 100)))
	}

	item.Name = strings.TrimSpace(stringValue(lookup(obj, "name")))
	if item.Name == "" {
		item.Name = item.Symbol
	}
	item.Reasoning = strings.TrimSpace(stringValue(lookup(obj, "reasoning", "reason", "rationale")))

	item.Sector = strings.TrimSpace(stringValue(lookup(obj, "sector")))
	if item.Sector == "" {
		r.warn(WarnSectorDefaulted, item.Symbol, "sector missing")
		item.Sector = defaultSector
	}

	if v, _, ok := numberValue(lookup(obj, "targetPrice", "target_price")); ok && v > 0 {
		item.TargetPrice = &v
	}
	if v, _, ok := numberValue(lookup(obj, "stopLoss", "stop_loss")); ok && v > 0 {
		item.StopLoss = &v
	}
	return item, true
}

// stripCodeFences removes ```json ... ``` wrapping.
func stripCodeFences(text string) (string, bool) {
	if !strings.Contains(text, "```") {
		return text, false
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.TrimSpace(strings.Join(kept, "\n")), true
}

// extractJSONValue returns the first balanced object or array in text,
// skipping brackets inside string literals.
func extractJSONValue(text string) string {
	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch ch {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func lookup(obj map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	}
	return ""
}

// numberValue reads a JSON number or a numeric-looking string such as
// "$1,200" or "8%". coerced is true when a string had to be converted.
func numberValue(v interface{}) (value float64, coerced bool, ok bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, false, err == nil
	case float64:
		return n, false, true
	case string:
		cleaned := strings.TrimSpace(n)
		percent := strings.HasSuffix(cleaned, "%")
		cleaned = strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(cleaned)
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, true, false
		}
		if percent && f <= 1 {
			// "0.5%" is still a percentage
			f /= 100
		}
		return f, true, true
	}
	return 0, false, false
}
