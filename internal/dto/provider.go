package dto

import "time"

const (
	ProviderFinnhub      = "finnhub"
	ProviderTwelveData   = "twelve_data"
	ProviderAlphaVantage = "alpha_vantage"
	ProviderFMP          = "fmp"
	ProviderCoinGecko    = "coingecko"
)

// Provider is the static description of a quote vendor.
type Provider struct {
	Name        string        `json:"name"`
	BaseURL     string        `json:"baseUrl"`
	MaxRequests int           `json:"maxRequests"`
	Window      time.Duration `json:"window"`
	Active      bool          `json:"active"`
	Priority    int           `json:"priority"`
}

type ProviderStatus struct {
	Name          string `json:"name"`
	Active        bool   `json:"active"`
	Priority      int    `json:"priority"`
	MaxRequests   int    `json:"maxRequests"`
	WindowSeconds int64  `json:"windowSeconds"`
	Remaining     int    `json:"remaining"`
	Historical    bool   `json:"historical"`
}
