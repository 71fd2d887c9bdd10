// Package valuation resolves an authoritative current price per holding and
// aggregates portfolio value, returns and XIRR.
package valuation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/niveshlabs/folio/internal/domain"
	"github.com/niveshlabs/folio/pkg/formulas"
)

// Price source labels, reported per symbol so callers can render a
// stale/estimated indicator.
const (
	SourceManual = "manual"
	SourceNAV    = "nav"
	SourceTick   = "tick"
	SourceQuote  = "quote"
	SourceCost   = "avg_cost"
)

// HoldingStore is the holdings access the resolver needs.
type HoldingStore interface {
	GetByPortfolio(portfolioID string) ([]domain.Holding, error)
	SetManualPrice(portfolioID, holdingID string, price decimal.Decimal, now time.Time) (*domain.Holding, error)
}

// TransactionStore provides recorded transactions for cash-flow schedules.
type TransactionStore interface {
	GetByPortfolio(portfolioID string) ([]domain.Transaction, error)
}

// NAVSource looks up the current NAV of a fund symbol.
type NAVSource interface {
	CurrentNAV(ctx context.Context, symbol string) (float64, error)
}

// QuoteSource batch-fetches current quotes.
type QuoteSource interface {
	FetchMany(ctx context.Context, symbols []string) (map[string]domain.Quote, error)
}

// TickSource provides the last cached tick per feed symbol.
type TickSource interface {
	LastTick(symbol string) (domain.PriceTick, bool)
}

// ResolvedPrice is one symbol's authoritative price and where it came from.
type ResolvedPrice struct {
	Price  float64 `json:"price"`
	Source string  `json:"source"`
}

// HoldingValuation is one holding valued at its resolved price.
type HoldingValuation struct {
	HoldingID    string     `json:"holding_id"`
	Symbol       string     `json:"symbol"`
	Quantity     float64    `json:"quantity"`
	AvgCost      float64    `json:"avg_cost"`
	CurrentPrice float64    `json:"current_price"`
	Value        float64    `json:"value"`
	Source       string     `json:"source"`
	PurchaseDate *time.Time `json:"purchase_date,omitempty"`
}

// Valuation is the full result of valuing one portfolio at a point in time.
type Valuation struct {
	PortfolioID    string                   `json:"portfolio_id"`
	AsOf           time.Time                `json:"as_of"`
	InvestedValue  float64                  `json:"invested_value"`
	CurrentValue   float64                  `json:"current_value"`
	TotalReturns   float64                  `json:"total_returns"`
	ReturnsPercent float64                  `json:"returns_percent"`
	XIRR           *float64                 `json:"xirr,omitempty"`
	Prices         map[string]ResolvedPrice `json:"prices"`
	Holdings       []HoldingValuation       `json:"holdings"`
}

// Service performs price resolution and valuation for portfolios.
type Service struct {
	holdings     HoldingStore
	transactions TransactionStore
	nav          NAVSource
	quotes       QuoteSource
	ticks        TickSource
	log          zerolog.Logger
	now          func() time.Time
}

// NewService creates a valuation service.
func NewService(
	holdings HoldingStore,
	transactions TransactionStore,
	nav NAVSource,
	quotes QuoteSource,
	ticks TickSource,
	log zerolog.Logger,
) *Service {
	return &Service{
		holdings:     holdings,
		transactions: transactions,
		nav:          nav,
		quotes:       quotes,
		ticks:        ticks,
		log:          log.With().Str("service", "valuation").Logger(),
		now:          time.Now,
	}
}

// ValuePortfolio resolves a price for every holding and aggregates the
// portfolio's invested value, current value, returns and XIRR. Per-symbol
// source failures degrade to the next source in priority order; no holding is
// ever skipped.
func (s *Service) ValuePortfolio(ctx context.Context, portfolioID string) (*Valuation, error) {
	holdings, err := s.holdings.GetByPortfolio(portfolioID)
	if err != nil {
		return nil, err
	}
	return s.valueHoldings(ctx, portfolioID, holdings)
}

func (s *Service) valueHoldings(ctx context.Context, portfolioID string, holdings []domain.Holding) (*Valuation, error) {
	now := s.now()
	navs, quotes := s.prefetch(ctx, holdings)

	result := &Valuation{
		PortfolioID: portfolioID,
		AsOf:        now,
		Prices:      make(map[string]ResolvedPrice, len(holdings)),
		Holdings:    make([]HoldingValuation, 0, len(holdings)),
	}

	invested := decimal.Zero
	var currentValue float64
	for _, h := range holdings {
		resolved := s.resolvePrice(h, navs, quotes)

		qty, _ := h.Quantity.Float64()
		avgCost, _ := h.AvgCost.Float64()
		value := qty * resolved.Price

		invested = invested.Add(h.Quantity.Mul(h.AvgCost))
		currentValue += value
		result.Prices[h.Symbol] = resolved
		result.Holdings = append(result.Holdings, HoldingValuation{
			HoldingID:    h.ID,
			Symbol:       h.Symbol,
			Quantity:     qty,
			AvgCost:      avgCost,
			CurrentPrice: resolved.Price,
			Value:        value,
			Source:       resolved.Source,
			PurchaseDate: h.PurchaseDate,
		})
	}

	result.InvestedValue, _ = invested.Float64()
	result.CurrentValue = currentValue
	result.TotalReturns = result.CurrentValue - result.InvestedValue
	if result.InvestedValue != 0 {
		result.ReturnsPercent = result.TotalReturns / result.InvestedValue * 100
	}
	result.XIRR = s.portfolioXIRR(portfolioID, holdings, result, now)

	return result, nil
}

// prefetch runs the NAV and quote lookups concurrently. Both sources are
// independent; each failure is logged and leaves a gap the priority chain
// fills from the next source.
func (s *Service) prefetch(ctx context.Context, holdings []domain.Holding) (map[string]float64, map[string]domain.Quote) {
	var navSymbols, quoteSymbols []string
	seen := make(map[string]struct{}, len(holdings))
	for _, h := range holdings {
		if _, dup := seen[h.Symbol]; dup {
			continue
		}
		seen[h.Symbol] = struct{}{}

		if h.AssetType.NeedsNAV() {
			navSymbols = append(navSymbols, h.Symbol)
		} else if !s.hasLiveTick(h.Symbol) {
			quoteSymbols = append(quoteSymbols, h.Symbol)
		}
	}

	navs := make(map[string]float64, len(navSymbols))
	var navMu sync.Mutex
	quotes := make(map[string]domain.Quote)

	var wg sync.WaitGroup
	for _, symbol := range navSymbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			value, err := s.nav.CurrentNAV(ctx, symbol)
			if err != nil {
				s.log.Warn().Err(err).Str("symbol", symbol).Msg("NAV lookup failed")
				return
			}
			navMu.Lock()
			navs[symbol] = value
			navMu.Unlock()
		}(symbol)
	}

	if len(quoteSymbols) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fetched, err := s.quotes.FetchMany(ctx, quoteSymbols)
			if err != nil {
				s.log.Warn().Err(err).Msg("Quote fetch failed")
				return
			}
			for symbol, q := range fetched {
				quotes[symbol] = q
			}
		}()
	}
	wg.Wait()

	return navs, quotes
}

// resolvePrice applies the source priority: manual override, fund NAV, live
// tick (NSE then BSE), batch quote, and finally cost basis so a price is
// always defined.
func (s *Service) resolvePrice(h domain.Holding, navs map[string]float64, quotes map[string]domain.Quote) ResolvedPrice {
	if h.ManualPrice != nil && h.ManualPrice.IsPositive() {
		price, _ := h.ManualPrice.Float64()
		return ResolvedPrice{Price: price, Source: SourceManual}
	}

	if h.AssetType.NeedsNAV() {
		if nav, ok := navs[h.Symbol]; ok && nav > 0 {
			return ResolvedPrice{Price: nav, Source: SourceNAV}
		}
	}

	if tick, ok := s.liveTick(h.Symbol); ok {
		return ResolvedPrice{Price: tick.Price, Source: SourceTick}
	}

	if q, ok := quotes[h.Symbol]; ok && q.Close > 0 {
		return ResolvedPrice{Price: q.Close, Source: SourceQuote}
	}

	avgCost, _ := h.AvgCost.Float64()
	return ResolvedPrice{Price: avgCost, Source: SourceCost}
}

// liveTick looks up the cached feed tick for a bare symbol, trying the NSE
// then the BSE feed key. Zero and negative last prices are ignored.
func (s *Service) liveTick(symbol string) (domain.PriceTick, bool) {
	for _, exchange := range []string{"NSE", "BSE"} {
		if tick, ok := s.ticks.LastTick(exchange + ":" + symbol); ok && tick.Price > 0 {
			return tick, true
		}
	}
	return domain.PriceTick{}, false
}

func (s *Service) hasLiveTick(symbol string) bool {
	_, ok := s.liveTick(symbol)
	return ok
}

// portfolioXIRR builds the cash-flow schedule and solves for the annualized
// return. Recorded transactions are preferred; without any, purchase lots from
// holdings with a known purchase date are used. Advisory: a nil result never
// fails the valuation.
func (s *Service) portfolioXIRR(portfolioID string, holdings []domain.Holding, result *Valuation, now time.Time) *float64 {
	txs, err := s.transactions.GetByPortfolio(portfolioID)
	if err != nil {
		s.log.Warn().Err(err).Str("portfolio", portfolioID).Msg("Transaction lookup failed, using purchase lots")
		txs = nil
	}

	var flows []domain.CashFlow
	if len(txs) > 0 {
		for _, tx := range txs {
			amount, _ := tx.Quantity.Mul(tx.Price).Float64()
			if tx.Type == domain.TxBuy {
				amount = -amount
			}
			flows = append(flows, domain.CashFlow{Amount: amount, Date: tx.Date})
		}
		if result.CurrentValue > 0 {
			flows = append(flows, domain.CashFlow{Amount: result.CurrentValue, Date: now})
		}
		return formulas.XIRR(flows)
	}

	// Purchase-lot schedule: holdings without a purchase date have no
	// anchoring flow and are left out of both sides.
	var terminal float64
	for i, h := range holdings {
		if h.PurchaseDate == nil {
			continue
		}
		cost, _ := h.Quantity.Mul(h.AvgCost).Float64()
		flows = append(flows, domain.CashFlow{Amount: -cost, Date: *h.PurchaseDate})
		terminal += result.Holdings[i].Value
	}
	if terminal > 0 {
		flows = append(flows, domain.CashFlow{Amount: terminal, Date: now})
	}
	return formulas.XIRR(flows)
}

// UpdateManualNAV writes a manual price override for one holding and returns
// the updated holding. The price must be strictly positive.
func (s *Service) UpdateManualNAV(portfolioID, holdingID string, price decimal.Decimal) (*domain.Holding, error) {
	if !price.IsPositive() {
		return nil, &domain.ValidationError{Field: "manual_price", Reason: "must be greater than zero"}
	}
	return s.holdings.SetManualPrice(portfolioID, holdingID, price, s.now())
}

// Breakdown converts a valuation into the per-holding snapshot breakdown.
func (v *Valuation) Breakdown() []domain.HoldingBreakdown {
	breakdown := make([]domain.HoldingBreakdown, 0, len(v.Holdings))
	for _, h := range v.Holdings {
		breakdown = append(breakdown, domain.HoldingBreakdown{
			Symbol:       h.Symbol,
			Quantity:     h.Quantity,
			AvgCost:      h.AvgCost,
			CurrentPrice: h.CurrentPrice,
			Value:        h.Value,
		})
	}
	return breakdown
}
