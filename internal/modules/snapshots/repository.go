// Package snapshots stores and queries end-of-day portfolio valuations.
package snapshots

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/niveshlabs/folio/internal/domain"
)

// Schema is the DDL for the snapshots database. One row per portfolio per day;
// the per-holding breakdown is a msgpack blob since it is only ever read whole.
const Schema = `
CREATE TABLE IF NOT EXISTS portfolio_snapshots (
	id TEXT PRIMARY KEY,
	portfolio_id TEXT NOT NULL,
	snapshot_date TEXT NOT NULL,
	total_value REAL NOT NULL,
	invested_value REAL NOT NULL,
	returns_amount REAL NOT NULL,
	returns_percent REAL NOT NULL,
	holdings_count INTEGER NOT NULL,
	breakdown BLOB,
	UNIQUE(portfolio_id, snapshot_date)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_portfolio_date ON portfolio_snapshots(portfolio_id, snapshot_date);
`

const dateLayout = "2006-01-02"

// Repository handles snapshot database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new snapshot repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

// Upsert writes a snapshot, replacing any existing row for the same portfolio
// and date. The capture job may re-run within a day; last write wins.
func (r *Repository) Upsert(s *domain.PortfolioSnapshot) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	var breakdown []byte
	if len(s.Breakdown) > 0 {
		var err error
		breakdown, err = msgpack.Marshal(s.Breakdown)
		if err != nil {
			return fmt.Errorf("failed to encode breakdown: %w", err)
		}
	}

	_, err := r.db.Exec(`INSERT INTO portfolio_snapshots
		(id, portfolio_id, snapshot_date, total_value, invested_value, returns_amount, returns_percent, holdings_count, breakdown)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, snapshot_date) DO UPDATE SET
			total_value = excluded.total_value,
			invested_value = excluded.invested_value,
			returns_amount = excluded.returns_amount,
			returns_percent = excluded.returns_percent,
			holdings_count = excluded.holdings_count,
			breakdown = excluded.breakdown`,
		s.ID, s.PortfolioID, s.SnapshotDate.UTC().Format(dateLayout),
		s.TotalValue, s.InvestedValue, s.ReturnsAmount, s.ReturnsPercent,
		s.HoldingsCount, breakdown)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}

	r.log.Debug().
		Str("portfolio", s.PortfolioID).
		Str("date", s.SnapshotDate.UTC().Format(dateLayout)).
		Float64("total", s.TotalValue).
		Msg("Snapshot stored")
	return nil
}

// GetRange returns a portfolio's snapshots within [from, to], oldest first.
// limit 0 means no limit.
func (r *Repository) GetRange(portfolioID string, from, to time.Time, limit int) ([]domain.PortfolioSnapshot, error) {
	query := `SELECT id, portfolio_id, snapshot_date, total_value, invested_value,
		returns_amount, returns_percent, holdings_count, breakdown
		FROM portfolio_snapshots
		WHERE portfolio_id = ? AND snapshot_date >= ? AND snapshot_date <= ?
		ORDER BY snapshot_date`
	args := []interface{}{portfolioID, from.UTC().Format(dateLayout), to.UTC().Format(dateLayout)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.PortfolioSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// Latest returns the most recent snapshot on or before date, or nil when the
// portfolio has none yet.
func (r *Repository) Latest(portfolioID string, date time.Time) (*domain.PortfolioSnapshot, error) {
	row := r.db.QueryRow(`SELECT id, portfolio_id, snapshot_date, total_value, invested_value,
		returns_amount, returns_percent, holdings_count, breakdown
		FROM portfolio_snapshots
		WHERE portfolio_id = ? AND snapshot_date <= ?
		ORDER BY snapshot_date DESC LIMIT 1`,
		portfolioID, date.UTC().Format(dateLayout))

	s, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (domain.PortfolioSnapshot, error) {
	var (
		s         domain.PortfolioSnapshot
		date      string
		breakdown []byte
	)
	err := row.Scan(&s.ID, &s.PortfolioID, &date, &s.TotalValue, &s.InvestedValue,
		&s.ReturnsAmount, &s.ReturnsPercent, &s.HoldingsCount, &breakdown)
	if err != nil {
		return s, err
	}

	if s.SnapshotDate, err = time.Parse(dateLayout, date); err != nil {
		return s, fmt.Errorf("invalid snapshot_date %q: %w", date, err)
	}
	if len(breakdown) > 0 {
		if err := msgpack.Unmarshal(breakdown, &s.Breakdown); err != nil {
			return s, fmt.Errorf("failed to decode breakdown for snapshot %s: %w", s.ID, err)
		}
	}
	return s, nil
}
