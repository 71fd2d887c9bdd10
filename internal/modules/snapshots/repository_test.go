package snapshots

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niveshlabs/folio/internal/domain"
	"github.com/niveshlabs/folio/internal/modules/valuation"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(Schema)
	require.NoError(t, err)

	return db
}

func testSnapshot(portfolioID string, date time.Time, total float64) *domain.PortfolioSnapshot {
	return &domain.PortfolioSnapshot{
		PortfolioID:    portfolioID,
		SnapshotDate:   date,
		TotalValue:     total,
		InvestedValue:  total * 0.9,
		ReturnsAmount:  total * 0.1,
		ReturnsPercent: 11.11,
		HoldingsCount:  3,
	}
}

func TestRepository_UpsertAndRange(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())
	d1 := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(testSnapshot("pf-1", d1, 100000)))
	require.NoError(t, repo.Upsert(testSnapshot("pf-1", d2, 102000)))
	require.NoError(t, repo.Upsert(testSnapshot("pf-2", d2, 50000)))

	snaps, err := repo.GetRange("pf-1", d1, d2, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, d1, snaps[0].SnapshotDate)
	assert.InDelta(t, 100000, snaps[0].TotalValue, 1e-9)
}

func TestRepository_UpsertReplacesSameDay(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())
	d := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(testSnapshot("pf-1", d, 100000)))
	require.NoError(t, repo.Upsert(testSnapshot("pf-1", d, 101500)))

	snaps, err := repo.GetRange("pf-1", d, d, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.InDelta(t, 101500, snaps[0].TotalValue, 1e-9)
}

func TestRepository_BreakdownRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())
	d := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	s := testSnapshot("pf-1", d, 22000)
	s.Breakdown = []domain.HoldingBreakdown{
		{Symbol: "RELIANCE", Quantity: 10, AvgCost: 2000, CurrentPrice: 2200, Value: 22000},
	}
	require.NoError(t, repo.Upsert(s))

	snaps, err := repo.GetRange("pf-1", d, d, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Len(t, snaps[0].Breakdown, 1)
	assert.Equal(t, "RELIANCE", snaps[0].Breakdown[0].Symbol)
	assert.InDelta(t, 2200, snaps[0].Breakdown[0].CurrentPrice, 1e-9)
}

func TestRepository_Latest(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())
	d1 := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(testSnapshot("pf-1", d1, 100000)))
	require.NoError(t, repo.Upsert(testSnapshot("pf-1", d2, 103000)))

	// Weekend lookup rolls back to the latest stored business day.
	got, err := repo.Latest("pf-1", time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, d1, got.SnapshotDate)

	got, err = repo.Latest("pf-1", d2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, d2, got.SnapshotDate)

	got, err = repo.Latest("pf-1", d1.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_GetRangeLimit(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Upsert(testSnapshot("pf-1", base.AddDate(0, 0, i), 100000)))
	}

	snaps, err := repo.GetRange("pf-1", base, base.AddDate(0, 0, 10), 3)
	require.NoError(t, err)
	assert.Len(t, snaps, 3)
}

type stubLister struct{ ids []string }

func (s *stubLister) PortfolioIDs() ([]string, error) { return s.ids, nil }

type stubValuer struct {
	valuations map[string]*valuation.Valuation
}

func (s *stubValuer) ValuePortfolio(_ context.Context, portfolioID string) (*valuation.Valuation, error) {
	if v, ok := s.valuations[portfolioID]; ok {
		return v, nil
	}
	return nil, &domain.NotFoundError{Resource: "portfolio", Key: portfolioID}
}

func TestCaptureJob_Run(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())
	valuer := &stubValuer{valuations: map[string]*valuation.Valuation{
		"pf-1": {
			PortfolioID:    "pf-1",
			InvestedValue:  20000,
			CurrentValue:   22000,
			TotalReturns:   2000,
			ReturnsPercent: 10,
			Holdings: []valuation.HoldingValuation{
				{Symbol: "RELIANCE", Quantity: 10, AvgCost: 2000, CurrentPrice: 2200, Value: 22000},
			},
		},
	}}

	job := NewCaptureJob(&stubLister{ids: []string{"pf-1", "pf-broken"}}, valuer, repo, zerolog.Nop())
	captureDay := time.Date(2026, 8, 28, 18, 30, 0, 0, time.UTC)
	job.now = func() time.Time { return captureDay }

	// pf-broken fails valuation but pf-1 is still captured.
	require.NoError(t, job.Run())
	assert.Equal(t, "snapshot_capture", job.Name())

	got, err := repo.Latest("pf-1", captureDay)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 22000, got.TotalValue, 1e-9)
	assert.Equal(t, 1, got.HoldingsCount)
	require.Len(t, got.Breakdown, 1)

	missing, err := repo.Latest("pf-broken", captureDay)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
