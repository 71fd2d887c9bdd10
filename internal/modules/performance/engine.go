// Package performance reconstructs per-period gain/loss series from stored
// snapshots or, when none exist, from interpolated holding trajectories.
package performance

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/niveshlabs/folio/internal/domain"
)

// Period selects the bucket granularity of a performance series.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
)

// Bucket counts per period. The series always has exactly this many entries;
// missing data yields zero-valued buckets, never a shorter series.
const (
	dailyBuckets   = 7
	monthlyBuckets = 6
	yearlyBuckets  = 5
)

// Valid reports whether the period is one of the known granularities.
func (p Period) Valid() bool {
	return p == PeriodDaily || p == PeriodMonthly || p == PeriodYearly
}

// SnapshotSource provides the latest stored snapshot on or before a date.
type SnapshotSource interface {
	Latest(portfolioID string, date time.Time) (*domain.PortfolioSnapshot, error)
}

// HoldingSeries is one holding's price trajectory input for interpolated
// mode: a straight line from AvgCost at PurchaseDate to CurrentPrice at now.
type HoldingSeries struct {
	Quantity     float64
	AvgCost      float64
	CurrentPrice float64
	PurchaseDate *time.Time
}

// Engine builds labeled performance bucket series.
type Engine struct {
	snapshots SnapshotSource
	log       zerolog.Logger
	now       func() time.Time
}

// NewEngine creates a performance engine.
func NewEngine(snapshots SnapshotSource, log zerolog.Logger) *Engine {
	return &Engine{
		snapshots: snapshots,
		log:       log.With().Str("service", "performance").Logger(),
		now:       time.Now,
	}
}

// Compute produces the bucket series for one portfolio: snapshot mode when the
// portfolio has any stored snapshot, interpolated mode otherwise.
func (e *Engine) Compute(portfolioID string, holdings []HoldingSeries, period Period) ([]domain.PerformanceBucket, error) {
	if !period.Valid() {
		return nil, &domain.ValidationError{Field: "period", Reason: fmt.Sprintf("unknown period %q", period)}
	}

	latest, err := e.snapshots.Latest(portfolioID, e.now())
	if err != nil {
		return nil, err
	}
	if latest != nil {
		return e.FromSnapshots(portfolioID, period)
	}
	return e.FromHoldings(holdings, period), nil
}

// FromSnapshots computes each bucket from the latest snapshots at its
// boundaries. A bucket without a qualifying snapshot pair is zero, not
// omitted.
func (e *Engine) FromSnapshots(portfolioID string, period Period) ([]domain.PerformanceBucket, error) {
	buckets := e.buildBuckets(period)

	for i := range buckets {
		start, err := e.snapshots.Latest(portfolioID, buckets[i].PeriodStart)
		if err != nil {
			return nil, err
		}
		end, err := e.snapshots.Latest(portfolioID, buckets[i].PeriodEnd)
		if err != nil {
			return nil, err
		}
		if start == nil || end == nil || start.SnapshotDate.Equal(end.SnapshotDate) {
			continue
		}

		buckets[i].ValueChange = end.TotalValue - start.TotalValue
		pct := 0.0
		if start.TotalValue != 0 {
			pct = buckets[i].ValueChange / start.TotalValue * 100
		}
		buckets[i].PercentChange = &pct
	}
	return buckets, nil
}

// FromHoldings computes each bucket by linear interpolation: every holding's
// price moves in a straight line from its avg cost at purchase to its current
// price now. The model is an approximation kept deliberately simple; it is
// only used when no snapshot history exists.
func (e *Engine) FromHoldings(holdings []HoldingSeries, period Period) []domain.PerformanceBucket {
	buckets := e.buildBuckets(period)
	if len(buckets) == 0 || len(holdings) == 0 {
		return buckets
	}

	now := e.now()
	// Holdings without a recorded purchase date anchor one day before the
	// earliest bucket, spreading their full gain across the visible window.
	syntheticPurchase := buckets[0].PeriodStart.AddDate(0, 0, -1)

	for i := range buckets {
		var change, startValue float64
		for _, h := range holdings {
			purchase := syntheticPurchase
			if h.PurchaseDate != nil {
				purchase = *h.PurchaseDate
			}
			if purchase.After(buckets[i].PeriodEnd) {
				continue
			}

			priceAtStart := interpolatePrice(h, purchase, now, buckets[i].PeriodStart)
			priceAtEnd := interpolatePrice(h, purchase, now, buckets[i].PeriodEnd)
			change += h.Quantity * (priceAtEnd - priceAtStart)
			startValue += h.Quantity * priceAtStart
		}

		buckets[i].ValueChange = change
		if startValue != 0 {
			pct := change / startValue * 100
			buckets[i].PercentChange = &pct
		}
	}
	return buckets
}

// interpolatePrice evaluates the holding's straight-line price at time t,
// clamped to avg cost before purchase and current price after now.
func interpolatePrice(h HoldingSeries, purchase, now, t time.Time) float64 {
	if !t.After(purchase) {
		return h.AvgCost
	}
	if !t.Before(now) {
		return h.CurrentPrice
	}
	total := now.Sub(purchase)
	if total <= 0 {
		return h.CurrentPrice
	}
	fraction := float64(t.Sub(purchase)) / float64(total)
	return h.AvgCost + (h.CurrentPrice-h.AvgCost)*fraction
}

// buildBuckets creates the empty labeled bucket skeleton for a period,
// oldest first.
func (e *Engine) buildBuckets(period Period) []domain.PerformanceBucket {
	now := e.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch period {
	case PeriodDaily:
		return dailyBucketSkeleton(today)
	case PeriodMonthly:
		return monthlyBucketSkeleton(now, today)
	case PeriodYearly:
		return yearlyBucketSkeleton(now, today)
	}
	return nil
}

// dailyBucketSkeleton builds the last 7 business days, newest last. Each
// bucket spans from the previous business day to the day itself, so a daily
// change reads against the prior close with weekends stepped over.
func dailyBucketSkeleton(today time.Time) []domain.PerformanceBucket {
	day := today
	for isWeekend(day) {
		day = day.AddDate(0, 0, -1)
	}

	buckets := make([]domain.PerformanceBucket, dailyBuckets)
	for i := dailyBuckets - 1; i >= 0; i-- {
		label := day.Format("Mon")
		if day.Equal(today) {
			label = "Today"
		}
		buckets[i] = domain.PerformanceBucket{
			Label:       label,
			PeriodStart: previousBusinessDay(day),
			PeriodEnd:   day,
		}
		day = previousBusinessDay(day)
	}
	return buckets
}

func monthlyBucketSkeleton(now, today time.Time) []domain.PerformanceBucket {
	buckets := make([]domain.PerformanceBucket, monthlyBuckets)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	for i := monthlyBuckets - 1; i >= 0; i-- {
		end := monthStart.AddDate(0, 1, -1)
		if end.After(today) {
			end = today
		}
		buckets[i] = domain.PerformanceBucket{
			Label:       monthStart.Format("Jan"),
			PeriodStart: monthStart,
			PeriodEnd:   end,
		}
		monthStart = monthStart.AddDate(0, -1, 0)
	}
	return buckets
}

func yearlyBucketSkeleton(now, today time.Time) []domain.PerformanceBucket {
	buckets := make([]domain.PerformanceBucket, yearlyBuckets)
	yearStart := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)

	for i := yearlyBuckets - 1; i >= 0; i-- {
		end := yearStart.AddDate(1, 0, -1)
		if end.After(today) {
			end = today
		}
		buckets[i] = domain.PerformanceBucket{
			Label:       yearStart.Format("2006"),
			PeriodStart: yearStart,
			PeriodEnd:   end,
		}
		yearStart = yearStart.AddDate(-1, 0, 0)
	}
	return buckets
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func previousBusinessDay(t time.Time) time.Time {
	t = t.AddDate(0, 0, -1)
	for isWeekend(t) {
		t = t.AddDate(0, 0, -1)
	}
	return t
}
