package snapshots

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/niveshlabs/folio/internal/domain"
	"github.com/niveshlabs/folio/internal/modules/valuation"
)

// PortfolioLister enumerates portfolios that have holdings.
type PortfolioLister interface {
	PortfolioIDs() ([]string, error)
}

// Valuer values one portfolio at current prices.
type Valuer interface {
	ValuePortfolio(ctx context.Context, portfolioID string) (*valuation.Valuation, error)
}

// CaptureJob values every portfolio and stores one snapshot per portfolio per
// day. Re-runs within a day overwrite the day's row.
type CaptureJob struct {
	portfolios PortfolioLister
	valuer     Valuer
	repo       *Repository
	log        zerolog.Logger
	now        func() time.Time
}

// NewCaptureJob creates the daily snapshot capture job.
func NewCaptureJob(portfolios PortfolioLister, valuer Valuer, repo *Repository, log zerolog.Logger) *CaptureJob {
	return &CaptureJob{
		portfolios: portfolios,
		valuer:     valuer,
		repo:       repo,
		log:        log.With().Str("job", "snapshot_capture").Logger(),
		now:        time.Now,
	}
}

// Name returns the job identifier for scheduler logging.
func (j *CaptureJob) Name() string {
	return "snapshot_capture"
}

// Run captures a snapshot for every portfolio. One portfolio's failure is
// logged and does not stop the others.
func (j *CaptureJob) Run() error {
	ids, err := j.portfolios.PortfolioIDs()
	if err != nil {
		return fmt.Errorf("failed to list portfolios: %w", err)
	}

	now := j.now()
	captured, failed := 0, 0
	for _, id := range ids {
		if err := j.captureOne(id, now); err != nil {
			j.log.Error().Err(err).Str("portfolio", id).Msg("Snapshot capture failed")
			failed++
			continue
		}
		captured++
	}

	j.log.Info().Int("captured", captured).Int("failed", failed).Msg("Snapshot capture finished")
	if captured == 0 && failed > 0 {
		return fmt.Errorf("snapshot capture failed for all %d portfolios", failed)
	}
	return nil
}

func (j *CaptureJob) captureOne(portfolioID string, now time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	v, err := j.valuer.ValuePortfolio(ctx, portfolioID)
	if err != nil {
		return err
	}

	return j.repo.Upsert(&domain.PortfolioSnapshot{
		PortfolioID:    portfolioID,
		SnapshotDate:   now,
		TotalValue:     v.CurrentValue,
		InvestedValue:  v.InvestedValue,
		ReturnsAmount:  v.TotalReturns,
		ReturnsPercent: v.ReturnsPercent,
		HoldingsCount:  len(v.Holdings),
		Breakdown:      v.Breakdown(),
	})
}
