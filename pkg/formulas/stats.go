// Package formulas holds the numeric helpers used by portfolio analytics.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingPeriodsPerYear is the annualization factor for per-period returns.
const TradingPeriodsPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Returns converts a value series to simple period returns.
// Returns[i] = (v[i+1] - v[i]) / v[i]; a zero base yields a zero return.
func Returns(values []float64) []float64 {
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

// AnnualizedVolatility scales the standard deviation of period returns by sqrt(periodsPerYear)
func AnnualizedVolatility(returns []float64, periodsPerYear int) float64 {
	if len(returns) < 2 || periodsPerYear <= 0 {
		return 0
	}
	return StdDev(returns) * math.Sqrt(float64(periodsPerYear))
}
