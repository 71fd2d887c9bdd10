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

// TransactionRepository handles transaction database operations. Transactions
// are append-only: recorded once, never updated.
type TransactionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:  db,
		log: log.With().Str("repo", "transaction").Logger(),
	}
}

// Record inserts a transaction. The ID is assigned here when empty.
func (r *TransactionRepository) Record(tx *domain.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	_, err := r.db.Exec(`INSERT INTO transactions
		(id, portfolio_id, symbol, type, quantity, price, date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.PortfolioID, tx.Symbol, string(tx.Type),
		tx.Quantity.String(), tx.Price.String(), tx.Date.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	r.log.Debug().Str("symbol", tx.Symbol).Str("type", string(tx.Type)).Msg("Transaction recorded")
	return nil
}

// GetByPortfolio returns a portfolio's transactions, newest first.
func (r *TransactionRepository) GetByPortfolio(portfolioID string) ([]domain.Transaction, error) {
	rows, err := r.db.Query(`SELECT id, portfolio_id, symbol, type, quantity, price, date
		FROM transactions WHERE portfolio_id = ? ORDER BY date DESC`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var (
			tx              domain.Transaction
			txType          string
			quantity, price string
			date            string
		)
		if err := rows.Scan(&tx.ID, &tx.PortfolioID, &tx.Symbol, &txType, &quantity, &price, &date); err != nil {
			return nil, err
		}

		tx.Type = domain.TransactionType(txType)
		if tx.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("invalid quantity for transaction %s: %w", tx.ID, err)
		}
		if tx.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("invalid price for transaction %s: %w", tx.ID, err)
		}
		if tx.Date, err = parseTxDate(date); err != nil {
			return nil, fmt.Errorf("invalid date for transaction %s: %w", tx.ID, err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func parseTxDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
