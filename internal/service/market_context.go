package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"portfolio-advisor/internal/dto"
	"portfolio-advisor/pkg/logger"
	"portfolio-advisor/pkg/utils"
)

const marketContextConcurrency = 8

type instrument struct {
	Symbol string
	Label  string
}

var (
	indexInstruments = []instrument{
		{"SPY", "S&P 500"},
		{"QQQ", "Nasdaq 100"},
		{"DIA", "Dow Jones"},
		{"IWM", "Russell 2000"},
		{"VIX", "Volatility Index"},
	}
	sectorInstruments = []instrument{
		{"XLK", "Technology"},
		{"XLF", "Financials"},
		{"XLV", "Healthcare"},
		{"XLE", "Energy"},
		{"XLY", "Consumer Discretionary"},
		{"XLI", "Industrials"},
		{"XLU", "Utilities"},
		{"XLRE", "Real Estate"},
	}
	cryptoInstruments = []instrument{
		{"BTC", "Bitcoin"},
		{"ETH", "Ethereum"},
	}

	// leaders per questionnaire sector, most representative first
	sectorLeaders = map[string][]string{
		"technology":    {"AAPL", "MSFT", "NVDA"},
		"tech":          {"AAPL", "MSFT", "NVDA"},
		"healthcare":    {"UNH", "JNJ", "LLY"},
		"health":        {"UNH", "JNJ", "LLY"},
		"finance":       {"JPM", "V", "BAC"},
		"financials":    {"JPM", "V", "BAC"},
		"energy":        {"XOM", "CVX", "NEE"},
		"consumer":      {"AMZN", "PG", "KO"},
		"industrials":   {"CAT", "HON", "GE"},
		"utilities":     {"NEE", "DUK", "SO"},
		"real estate":   {"PLD", "AMT", "O"},
		"realestate":    {"PLD", "AMT", "O"},
		"communication": {"GOOGL", "META", "NFLX"},
		"materials":     {"LIN", "FCX", "NEM"},
		"crypto":        {"BTC", "ETH", "SOL"},
	}
)

// MarketContextAssembler renders the market digest that goes into the prompt.
type MarketContextAssembler interface {
	Assemble(ctx context.Context, profile dto.UserProfile) string
}

type marketContextAssembler struct {
	orchestrator ProviderOrchestrator
	log          *logger.Logger
}

func NewMarketContextAssembler(orchestrator ProviderOrchestrator, log *logger.Logger) MarketContextAssembler {
	return &marketContextAssembler{
		orchestrator: orchestrator,
		log:          log,
	}
}

// preferredSectorSymbols picks up to 3 symbols, one per sector in turn.
func preferredSectorSymbols(preferences []string) []string {
	var lists [][]string
	for _, p := range preferences {
		if leaders, ok := sectorLeaders[strings.ToLower(strings.TrimSpace(p))]; ok {
			lists = append(lists, leaders)
		}
	}

	seen := map[string]bool{}
	var out []string
	for round := 0; len(out) < 3; round++ {
		progressed := false
		for _, leaders := range lists {
			if round >= len(leaders) {
				continue
			}
			progressed = true
			if sym := leaders[round]; !seen[sym] {
				seen[sym] = true
				out = append(out, sym)
				if len(out) == 3 {
					break
				}
			}
		}
		if !progressed {
			break
		}
	}
	return out
}

func (a *marketContextAssembler) fetchAll(ctx context.Context, symbols []string) map[string]*dto.Quote {
	var (
		mu     sync.Mutex
		quotes = make(map[string]*dto.Quote, len(symbols))
		g      errgroup.Group
	)
	g.SetLimit(marketContextConcurrency)

	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			quote := a.orchestrator.GetStockData(ctx, sym)
			if quote == nil {
				return nil
			}
			mu.Lock()
			quotes[sym] = quote
			mu.Unlock()
			return nil
		})
	}
	// every task returns nil, a failed lookup is just a missing entry
	_ = g.Wait()
	return quotes
}

func (a *marketContextAssembler) Assemble(ctx context.Context, profile dto.UserProfile) string {
	sectorPicks := preferredSectorSymbols(profile.SectorPreferences)

	all := make([]string, 0, 24)
	for _, group := range [][]instrument{indexInstruments, sectorInstruments, cryptoInstruments} {
		for _, in := range group {
			all = append(all, in.Symbol)
		}
	}
	all = append(all, sectorPicks...)
	for _, h := range profile.ExistingPortfolio {
		all = append(all, h.Symbol)
	}
	symbols := utils.UniqueUpper(all...)

	quotes := a.fetchAll(ctx, symbols)
	a.log.DebugContext(ctx, "market context fetched",
		logger.IntField("requested", len(symbols)),
		logger.IntField("available", len(quotes)),
	)

	return renderMarketContext(profile, sectorPicks, quotes, len(symbols))
}

func quoteLine(label string, q *dto.Quote) string {
	return fmt.Sprintf("- %s: %s (%s)", label, utils.FormatUSD(q.Price), utils.FormatPercentage(q.ChangePercent))
}

// renderMarketContext is deterministic for a given set of quotes.
func renderMarketContext(profile dto.UserProfile, sectorPicks []string, quotes map[string]*dto.Quote, requested int) string {
	var sb strings.Builder

	section := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		sb.WriteString(title)
		sb.WriteString("\n")
		for _, l := range lines {
			sb.WriteString(l)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	instrumentLines := func(group []instrument) []string {
		var lines []string
		for _, in := range group {
			if q := quotes[in.Symbol]; q != nil {
				lines = append(lines, quoteLine(fmt.Sprintf("%s (%s)", in.Symbol, in.Label), q))
			}
		}
		return lines
	}

	section("MARKET SNAPSHOT", instrumentLines(indexInstruments))
	section("SECTOR PERFORMANCE", instrumentLines(sectorInstruments))
	section("CRYPTO", instrumentLines(cryptoInstruments))

	var picks []string
	for _, sym := range sectorPicks {
		if q := quotes[sym]; q != nil {
			picks = append(picks, quoteLine(sym, q))
		}
	}
	section("YOUR SECTORS", picks)

	var holdings []string
	for _, h := range profile.ExistingPortfolio {
		if q := quotes[h.Symbol]; q != nil {
			holdings = append(holdings, fmt.Sprintf("%s | position %s", quoteLine(h.Symbol, q), utils.FormatUSD(h.Amount)))
		} else {
			holdings = append(holdings, fmt.Sprintf("- %s: price unavailable | position %s", h.Symbol, utils.FormatUSD(h.Amount)))
		}
	}
	section("YOUR HOLDINGS", holdings)

	sentiment := marketSentiment(quotes)
	section("MARKET SENTIMENT", sentiment.lines)
	section("GUIDANCE", marketGuidance(sentiment, profile, len(quotes) == 0))

	if missing := requested - len(quotes); missing > 0 {
		sb.WriteString(fmt.Sprintf("Data unavailable for %d of %d instruments.\n", missing, requested))
	}
	return strings.TrimRight(sb.String(), "\n")
}

type sentiment struct {
	lines         []string
	riskOff       bool
	riskOn        bool
	techLeading   bool
	cryptoSurging bool
	cryptoFalling bool
}

func marketSentiment(quotes map[string]*dto.Quote) sentiment {
	var s sentiment

	if vix := quotes["VIX"]; vix != nil {
		switch {
		case vix.Price > 25:
			s.riskOff = true
			s.lines = append(s.lines, fmt.Sprintf("- Risk-off: VIX at %.2f signals elevated fear", vix.Price))
		case vix.Price < 15:
			s.riskOn = true
			s.lines = append(s.lines, fmt.Sprintf("- Risk-on: VIX at %.2f signals calm markets", vix.Price))
		default:
			s.lines = append(s.lines, fmt.Sprintf("- Neutral volatility: VIX at %.2f", vix.Price))
		}
	}

	spy := quotes["SPY"]
	if spy != nil {
		switch {
		case spy.ChangePercent >= 1:
			s.lines = append(s.lines, fmt.Sprintf("- Broad rally: S&P 500 %s today", utils.FormatPercentage(spy.ChangePercent)))
		case spy.ChangePercent <= -1:
			s.lines = append(s.lines, fmt.Sprintf("- Broad sell-off: S&P 500 %s today", utils.FormatPercentage(spy.ChangePercent)))
		}
	}
	if qqq := quotes["QQQ"]; qqq != nil && spy != nil && qqq.ChangePercent-spy.ChangePercent > 0.5 {
		s.techLeading = true
		s.lines = append(s.lines, "- Tech leadership: Nasdaq 100 outperforming the S&P 500")
	}

	if btc := quotes["BTC"]; btc != nil {
		switch {
		case btc.ChangePercent >= 5:
			s.cryptoSurging = true
			s.lines = append(s.lines, fmt.Sprintf("- Crypto momentum: Bitcoin %s", utils.FormatPercentage(btc.ChangePercent)))
		case btc.ChangePercent <= -5:
			s.cryptoFalling = true
			s.lines = append(s.lines, fmt.Sprintf("- Crypto weakness: Bitcoin %s", utils.FormatPercentage(btc.ChangePercent)))
		}
	}

	type sectorMove struct {
		label  string
		change float64
	}
	var moves []sectorMove
	for _, in := range sectorInstruments {
		if q := quotes[in.Symbol]; q != nil {
			moves = append(moves, sectorMove{in.Label, q.ChangePercent})
		}
	}
	if len(moves) >= 2 {
		sort.SliceStable(moves, func(i, j int) bool { return moves[i].change > moves[j].change })
		best, worst := moves[0], moves[len(moves)-1]
		s.lines = append(s.lines,
			fmt.Sprintf("- Strongest sector: %s (%s)", best.label, utils.FormatPercentage(best.change)),
			fmt.Sprintf("- Weakest sector: %s (%s)", worst.label, utils.FormatPercentage(worst.change)),
		)
	}
	return s
}

func marketGuidance(s sentiment, profile dto.UserProfile, noData bool) []string {
	var lines []string
	if noData {
		lines = append(lines, "- Live market data is unavailable; base allocations on long-term fundamentals.")
	}
	if s.riskOff {
		lines = append(lines, "- Elevated volatility: favor quality, dividend payers and bonds; stage new entries.")
	}
	if s.riskOn {
		lines = append(lines, "- Calm markets: growth exposure is reasonable within the stated risk tolerance.")
	}
	if s.techLeading {
		lines = append(lines, "- Technology is leading; avoid concentrating beyond the profile's risk tolerance.")
	}
	if s.cryptoSurging || s.cryptoFalling {
		lines = append(lines, "- Crypto is moving sharply; cap crypto exposure at 10% of capital.")
	}
	if profile.HasHoldings() {
		lines = append(lines, fmt.Sprintf("- Existing holdings worth %s must each be kept as hold or sold.", utils.FormatUSD(profile.HoldingsValue())))
	}
	lines = append(lines, fmt.Sprintf("- Total buy and hold amounts must not exceed %s.", utils.FormatUSD(profile.Budget())))
	return lines
}
