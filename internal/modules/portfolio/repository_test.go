package portfolio

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niveshlabs/folio/internal/domain"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(Schema)
	require.NoError(t, err)

	return db
}

func testHolding(portfolioID, symbol string) *domain.Holding {
	purchase := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	return &domain.Holding{
		PortfolioID:  portfolioID,
		Symbol:       symbol,
		AssetType:    domain.AssetStock,
		Quantity:     decimal.NewFromInt(10),
		AvgCost:      decimal.NewFromInt(2000),
		PurchaseDate: &purchase,
	}
}

func TestHoldingRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewHoldingRepository(db, zerolog.Nop())
	h := testHolding("pf-1", "RELIANCE")
	require.NoError(t, repo.Create(h))
	require.NotEmpty(t, h.ID)

	got, err := repo.GetByID("pf-1", h.ID)
	require.NoError(t, err)
	assert.Equal(t, "RELIANCE", got.Symbol)
	assert.True(t, got.Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, got.AvgCost.Equal(decimal.NewFromInt(2000)))
	assert.Nil(t, got.ManualPrice)
	require.NotNil(t, got.PurchaseDate)
	assert.Equal(t, h.PurchaseDate.Format("2006-01-02"), got.PurchaseDate.Format("2006-01-02"))
}

func TestHoldingRepository_GetByPortfolio(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewHoldingRepository(db, zerolog.Nop())
	require.NoError(t, repo.Create(testHolding("pf-1", "TCS")))
	require.NoError(t, repo.Create(testHolding("pf-1", "INFY")))
	require.NoError(t, repo.Create(testHolding("pf-2", "RELIANCE")))

	holdings, err := repo.GetByPortfolio("pf-1")
	require.NoError(t, err)
	require.Len(t, holdings, 2)
	// Ordered by symbol
	assert.Equal(t, "INFY", holdings[0].Symbol)
	assert.Equal(t, "TCS", holdings[1].Symbol)
}

func TestHoldingRepository_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewHoldingRepository(db, zerolog.Nop())
	_, err := repo.GetByID("pf-1", "missing")
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestHoldingRepository_SetManualPrice(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewHoldingRepository(db, zerolog.Nop())
	h := testHolding("pf-1", "PPFAS")
	require.NoError(t, repo.Create(h))

	now := time.Date(2026, 8, 28, 18, 30, 0, 0, time.UTC)
	updated, err := repo.SetManualPrice("pf-1", h.ID, decimal.NewFromFloat(84.25), now)
	require.NoError(t, err)
	require.NotNil(t, updated.ManualPrice)
	assert.True(t, updated.ManualPrice.Equal(decimal.NewFromFloat(84.25)))
	require.NotNil(t, updated.LastPriceUpdate)
	assert.True(t, updated.LastPriceUpdate.Equal(now))
}

func TestHoldingRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewHoldingRepository(db, zerolog.Nop())
	h := testHolding("pf-1", "TCS")
	require.NoError(t, repo.Create(h))
	require.NoError(t, repo.Delete("pf-1", h.ID))

	err := repo.Delete("pf-1", h.ID)
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestHoldingRepository_PortfolioIDs(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewHoldingRepository(db, zerolog.Nop())
	require.NoError(t, repo.Create(testHolding("pf-b", "TCS")))
	require.NoError(t, repo.Create(testHolding("pf-a", "INFY")))
	require.NoError(t, repo.Create(testHolding("pf-a", "RELIANCE")))

	ids, err := repo.PortfolioIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"pf-a", "pf-b"}, ids)
}

func TestTransactionRepository_RecordAndList(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewTransactionRepository(db, zerolog.Nop())
	older := domain.Transaction{
		PortfolioID: "pf-1",
		Symbol:      "RELIANCE",
		Type:        domain.TxBuy,
		Quantity:    decimal.NewFromInt(10),
		Price:       decimal.NewFromInt(2000),
		Date:        time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
	}
	newer := domain.Transaction{
		PortfolioID: "pf-1",
		Symbol:      "RELIANCE",
		Type:        domain.TxSell,
		Quantity:    decimal.NewFromInt(2),
		Price:       decimal.NewFromInt(2500),
		Date:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Record(&older))
	require.NoError(t, repo.Record(&newer))

	txs, err := repo.GetByPortfolio("pf-1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	// Newest first
	assert.Equal(t, domain.TxSell, txs[0].Type)
	assert.Equal(t, domain.TxBuy, txs[1].Type)
	assert.True(t, txs[1].Price.Equal(decimal.NewFromInt(2000)))
}
