// Package formulas provides pure financial math shared across modules.
package formulas

import (
	"math"
	"time"

	"github.com/niveshlabs/folio/internal/domain"
)

const (
	xirrInitialGuess  = 0.1
	xirrMaxIterations = 100
	xirrTolerance     = 1e-6
	xirrDerivEpsilon  = 1e-10
	daysPerYear       = 365.0
)

// XIRR computes the annualized internal rate of return for an irregular
// cash-flow schedule, solving sum(CF_i / (1+r)^(days_i/365)) = 0 with
// Newton-Raphson.
//
// Returns nil when no rate is defined: fewer than two flows, all flows with
// the same sign, zero elapsed time, a vanishing derivative, or
// non-convergence. XIRR is advisory and must never fail a valuation, so
// there is no error return.
func XIRR(flows []domain.CashFlow) *float64 {
	if len(flows) < 2 {
		return nil
	}

	hasPositive := false
	hasNegative := false
	for _, f := range flows {
		if f.Amount > 0 {
			hasPositive = true
		}
		if f.Amount < 0 {
			hasNegative = true
		}
	}
	if !hasPositive || !hasNegative {
		return nil
	}

	// Years are measured from the earliest flow.
	epoch := flows[0].Date
	for _, f := range flows[1:] {
		if f.Date.Before(epoch) {
			epoch = f.Date
		}
	}

	years := make([]float64, len(flows))
	maxYears := 0.0
	for i, f := range flows {
		years[i] = f.Date.Sub(epoch).Hours() / 24.0 / daysPerYear
		if years[i] > maxYears {
			maxYears = years[i]
		}
	}
	// A schedule with no elapsed time has no defined annualization.
	if maxYears == 0 {
		return nil
	}

	rate := xirrInitialGuess
	for i := 0; i < xirrMaxIterations; i++ {
		// 1+r must stay positive for the fractional exponents.
		if rate <= -1 {
			rate = -1 + 1e-9
		}

		var npv, deriv float64
		for j, f := range flows {
			t := years[j]
			base := math.Pow(1+rate, t)
			npv += f.Amount / base
			deriv -= t * f.Amount / (base * (1 + rate))
		}

		if math.Abs(npv) < xirrTolerance {
			if math.IsNaN(rate) || math.IsInf(rate, 0) {
				return nil
			}
			r := rate
			return &r
		}

		if math.Abs(deriv) < xirrDerivEpsilon {
			return nil
		}

		rate -= npv / deriv
		if math.IsNaN(rate) || math.IsInf(rate, 0) {
			return nil
		}
	}

	return nil
}

// HoldingCashFlows derives the XIRR schedule for a single purchase lot:
// a negative flow of qty*avgCost at the purchase date and a positive
// terminal flow of qty*currentPrice at evaluation time.
func HoldingCashFlows(quantity, avgCost, currentPrice float64, purchaseDate, now time.Time) []domain.CashFlow {
	return []domain.CashFlow{
		{Amount: -quantity * avgCost, Date: purchaseDate},
		{Amount: quantity * currentPrice, Date: now},
	}
}
