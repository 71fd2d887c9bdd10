// Package portfolio provides holdings and transaction storage.
package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/niveshlabs/folio/internal/domain"
)

// HoldingRepository handles holding database operations
type HoldingRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHoldingRepository creates a new holding repository
func NewHoldingRepository(db *sql.DB, log zerolog.Logger) *HoldingRepository {
	return &HoldingRepository{
		db:  db,
		log: log.With().Str("repo", "holding").Logger(),
	}
}

const holdingColumns = `id, portfolio_id, symbol, asset_type, quantity, avg_cost,
	manual_price, purchase_date, last_price_update`

// GetByPortfolio returns all holdings of one portfolio, ordered by symbol.
func (r *HoldingRepository) GetByPortfolio(portfolioID string) ([]domain.Holding, error) {
	query := fmt.Sprintf(`SELECT %s FROM holdings WHERE portfolio_id = ? ORDER BY symbol`, holdingColumns)

	rows, err := r.db.Query(query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// GetByID returns one holding, or a NotFoundError.
func (r *HoldingRepository) GetByID(portfolioID, holdingID string) (*domain.Holding, error) {
	query := fmt.Sprintf(`SELECT %s FROM holdings WHERE portfolio_id = ? AND id = ?`, holdingColumns)

	row := r.db.QueryRow(query, portfolioID, holdingID)
	h, err := scanHolding(row)
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Resource: "holding", Key: holdingID}
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// Create inserts a new holding. The ID is assigned here when empty.
func (r *HoldingRepository) Create(h *domain.Holding) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}

	_, err := r.db.Exec(`INSERT INTO holdings
		(id, portfolio_id, symbol, asset_type, quantity, avg_cost, manual_price, purchase_date, last_price_update)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.PortfolioID, h.Symbol, string(h.AssetType),
		h.Quantity.String(), h.AvgCost.String(),
		nullDecimal(h.ManualPrice), nullTime(h.PurchaseDate), nullTime(h.LastPriceUpdate))
	if err != nil {
		return fmt.Errorf("failed to insert holding: %w", err)
	}

	r.log.Debug().Str("symbol", h.Symbol).Str("portfolio", h.PortfolioID).Msg("Holding created")
	return nil
}

// Update rewrites the mutable columns of a holding.
func (r *HoldingRepository) Update(h *domain.Holding) error {
	res, err := r.db.Exec(`UPDATE holdings SET
		symbol = ?, asset_type = ?, quantity = ?, avg_cost = ?,
		manual_price = ?, purchase_date = ?, last_price_update = ?
		WHERE portfolio_id = ? AND id = ?`,
		h.Symbol, string(h.AssetType), h.Quantity.String(), h.AvgCost.String(),
		nullDecimal(h.ManualPrice), nullTime(h.PurchaseDate), nullTime(h.LastPriceUpdate),
		h.PortfolioID, h.ID)
	if err != nil {
		return fmt.Errorf("failed to update holding: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return &domain.NotFoundError{Resource: "holding", Key: h.ID}
	}
	return nil
}

// SetManualPrice writes the manual price override and stamps the update time.
func (r *HoldingRepository) SetManualPrice(portfolioID, holdingID string, price decimal.Decimal, now time.Time) (*domain.Holding, error) {
	res, err := r.db.Exec(`UPDATE holdings SET manual_price = ?, last_price_update = ?
		WHERE portfolio_id = ? AND id = ?`,
		price.String(), now.UTC().Format(time.RFC3339), portfolioID, holdingID)
	if err != nil {
		return nil, fmt.Errorf("failed to set manual price: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil, &domain.NotFoundError{Resource: "holding", Key: holdingID}
	}
	return r.GetByID(portfolioID, holdingID)
}

// Delete removes a holding.
func (r *HoldingRepository) Delete(portfolioID, holdingID string) error {
	res, err := r.db.Exec(`DELETE FROM holdings WHERE portfolio_id = ? AND id = ?`, portfolioID, holdingID)
	if err != nil {
		return fmt.Errorf("failed to delete holding: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return &domain.NotFoundError{Resource: "holding", Key: holdingID}
	}
	return nil
}

// PortfolioIDs returns the distinct portfolio IDs that have holdings.
// Used by the snapshot capture job to enumerate portfolios.
func (r *HoldingRepository) PortfolioIDs() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT portfolio_id FROM holdings ORDER BY portfolio_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// rowScanner lets scanHolding work for both Query rows and QueryRow.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHolding(row rowScanner) (domain.Holding, error) {
	var (
		h                     domain.Holding
		assetType             string
		quantity, avgCost     string
		manualPrice           sql.NullString
		purchaseDate, updated sql.NullString
	)

	err := row.Scan(&h.ID, &h.PortfolioID, &h.Symbol, &assetType,
		&quantity, &avgCost, &manualPrice, &purchaseDate, &updated)
	if err != nil {
		return h, err
	}

	h.AssetType = domain.AssetType(assetType)
	if h.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return h, fmt.Errorf("invalid quantity for holding %s: %w", h.ID, err)
	}
	if h.AvgCost, err = decimal.NewFromString(avgCost); err != nil {
		return h, fmt.Errorf("invalid avg_cost for holding %s: %w", h.ID, err)
	}
	if manualPrice.Valid {
		d, err := decimal.NewFromString(manualPrice.String)
		if err != nil {
			return h, fmt.Errorf("invalid manual_price for holding %s: %w", h.ID, err)
		}
		h.ManualPrice = &d
	}
	if h.PurchaseDate, err = parseNullTime(purchaseDate); err != nil {
		return h, err
	}
	if h.LastPriceUpdate, err = parseNullTime(updated); err != nil {
		return h, err
	}
	return h, nil
}

func nullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		// Date-only values come from imports.
		t, err = time.Parse("2006-01-02", s.String)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", s.String, err)
		}
	}
	return &t, nil
}
