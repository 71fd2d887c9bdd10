// Package domain contains the core data model shared by all modules.
// Domain types have no infrastructure dependencies.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetType classifies a holding for price resolution purposes.
type AssetType string

const (
	AssetStock      AssetType = "stock"
	AssetETF        AssetType = "etf"
	AssetMutualFund AssetType = "mutual_fund"
	AssetBond       AssetType = "bond"
	AssetCrypto     AssetType = "crypto"
	AssetOther      AssetType = "other"
)

// NeedsNAV reports whether the asset is priced by end-of-day NAV lookup
// rather than an exchange quote.
func (a AssetType) NeedsNAV() bool {
	return a == AssetMutualFund || a == AssetBond
}

// Valid reports whether the asset type is one of the known values.
func (a AssetType) Valid() bool {
	switch a {
	case AssetStock, AssetETF, AssetMutualFund, AssetBond, AssetCrypto, AssetOther:
		return true
	}
	return false
}

// TransactionType is the kind of a recorded transaction.
type TransactionType string

const (
	TxBuy      TransactionType = "buy"
	TxSell     TransactionType = "sell"
	TxDividend TransactionType = "dividend"
)

// Valid reports whether the transaction type is one of the known values.
func (t TransactionType) Valid() bool {
	return t == TxBuy || t == TxSell || t == TxDividend
}

// Holding is one position in a portfolio. Quantities and prices are decimals
// because they come from user input and must round-trip exactly; the math
// edges (XIRR, interpolation) convert to float64.
type Holding struct {
	ID              string           `json:"id"`
	PortfolioID     string           `json:"portfolio_id"`
	Symbol          string           `json:"symbol"`
	AssetType       AssetType        `json:"asset_type"`
	Quantity        decimal.Decimal  `json:"quantity"`
	AvgCost         decimal.Decimal  `json:"avg_cost"`
	ManualPrice     *decimal.Decimal `json:"manual_price,omitempty"`
	PurchaseDate    *time.Time       `json:"purchase_date,omitempty"`
	LastPriceUpdate *time.Time       `json:"last_price_update,omitempty"`
}

// Transaction is an immutable record of a buy, sell or dividend.
type Transaction struct {
	ID          string          `json:"id"`
	PortfolioID string          `json:"portfolio_id"`
	Symbol      string          `json:"symbol"`
	Type        TransactionType `json:"type"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Date        time.Time       `json:"date"`
}

// PriceTick is one observation from the realtime feed or the quote poller.
// Ticks are ephemeral and never persisted.
type PriceTick struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"ltp"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_pct"`
	Volume        int64   `json:"volume"`
	ObservedAtMs  int64   `json:"ts"`
}

// Quote is a point-in-time quote from the batch HTTP source.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	PreviousClose float64 `json:"previousClose"`
	Volume        int64   `json:"volume"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
}

// HoldingBreakdown is the per-holding detail stored alongside a snapshot.
type HoldingBreakdown struct {
	Symbol       string  `json:"symbol" msgpack:"symbol"`
	Quantity     float64 `json:"quantity" msgpack:"quantity"`
	AvgCost      float64 `json:"avg_cost" msgpack:"avg_cost"`
	CurrentPrice float64 `json:"current_price" msgpack:"current_price"`
	Value        float64 `json:"value" msgpack:"value"`
}

// PortfolioSnapshot is a persisted end-of-day valuation of one portfolio.
// Snapshots are immutable historical facts; one row per portfolio per day.
type PortfolioSnapshot struct {
	ID             string             `json:"id"`
	PortfolioID    string             `json:"portfolio_id"`
	SnapshotDate   time.Time          `json:"snapshot_date"`
	TotalValue     float64            `json:"total_value"`
	InvestedValue  float64            `json:"invested_value"`
	ReturnsAmount  float64            `json:"returns_amount"`
	ReturnsPercent float64            `json:"returns_percent"`
	HoldingsCount  int                `json:"holdings_count"`
	Breakdown      []HoldingBreakdown `json:"breakdown,omitempty"`
}

// PerformanceBucket is one labeled time interval in a performance series.
// PercentChange is nil when the start-of-period value is zero.
type PerformanceBucket struct {
	Label         string    `json:"label"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	ValueChange   float64   `json:"value_change"`
	PercentChange *float64  `json:"percent_change,omitempty"`
}

// CashFlow is one signed flow in an XIRR schedule. Outflows (purchases) are
// negative, inflows (sales, dividends, terminal market value) positive.
type CashFlow struct {
	Amount float64   `json:"amount"`
	Date   time.Time `json:"date"`
}
