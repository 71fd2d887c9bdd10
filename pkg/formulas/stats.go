package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	// The sample estimator needs at least two observations.
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// PeriodVolatility annualizes the dispersion of a periodic return series.
// periodsPerYear is 252 for business-daily series, 12 for monthly, 1 for yearly.
func PeriodVolatility(periodReturns []float64, periodsPerYear int) float64 {
	if len(periodReturns) < 2 {
		return 0
	}
	return StdDev(periodReturns) * math.Sqrt(float64(periodsPerYear))
}

// CalculateReturns converts a value series to fractional period returns.
// Returns[i] = (v[i] - v[i-1]) / v[i-1], skipping zero denominators.
func CalculateReturns(values []float64) []float64 {
	if len(values) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			returns[i-1] = (values[i] - values[i-1]) / values[i-1]
		}
	}

	return returns
}
