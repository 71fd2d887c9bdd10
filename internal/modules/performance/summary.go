package performance

import (
	"github.com/niveshlabs/folio/internal/domain"
	"github.com/niveshlabs/folio/pkg/formulas"
)

// Summary condenses a bucket series into headline statistics.
type Summary struct {
	TotalChange          float64 `json:"total_change"`
	MeanPercentChange    float64 `json:"mean_percent_change"`
	PercentChangeStdDev  float64 `json:"percent_change_std_dev"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	BestBucket           string  `json:"best_bucket,omitempty"`
	WorstBucket          string  `json:"worst_bucket,omitempty"`
}

// Trading periods per year for annualizing bucket volatility.
func periodsPerYear(period Period) int {
	switch period {
	case PeriodDaily:
		return 252
	case PeriodMonthly:
		return 12
	default:
		return 1
	}
}

// Summarize computes headline statistics over the buckets that have a defined
// percent change. Buckets without one (zero start value) are excluded from the
// percentage statistics but still count toward the total.
func Summarize(buckets []domain.PerformanceBucket, period Period) Summary {
	var s Summary
	var pcts []float64
	best, worst := 0.0, 0.0

	for _, b := range buckets {
		s.TotalChange += b.ValueChange
		if b.PercentChange == nil {
			continue
		}
		pct := *b.PercentChange
		pcts = append(pcts, pct)
		if s.BestBucket == "" || pct > best {
			s.BestBucket, best = b.Label, pct
		}
		if s.WorstBucket == "" || pct < worst {
			s.WorstBucket, worst = b.Label, pct
		}
	}

	if len(pcts) == 0 {
		return s
	}
	s.MeanPercentChange = formulas.Mean(pcts)
	s.PercentChangeStdDev = formulas.StdDev(pcts)
	s.AnnualizedVolatility = formulas.PeriodVolatility(pcts, periodsPerYear(period))
	return s
}
