package formulas

import "math"

// SharpeRatio calculates the annualized Sharpe ratio of a return series.
//
//	Sharpe = (mean(returns) - rf/periodsPerYear) / stddev(returns) × sqrt(periodsPerYear)
//
// Returns nil when there are fewer than two returns or the series has no dispersion.
func SharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear int) *float64 {
	if len(returns) < 2 || periodsPerYear <= 0 {
		return nil
	}

	stdDev := StdDev(returns)
	if stdDev == 0 || math.IsNaN(stdDev) {
		return nil
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)
	sharpe := (Mean(returns) - periodicRiskFree) / stdDev * math.Sqrt(float64(periodsPerYear))
	return &sharpe
}

// Drawdown describes the peak-to-trough behaviour of a value series
type Drawdown struct {
	Max       float64 `json:"max_drawdown"`     // Largest decline from a running peak, 0.25 = 25%
	Current   float64 `json:"current_drawdown"` // Decline of the last value from the running peak
	Peak      float64 `json:"peak_value"`
	PeakIndex int     `json:"peak_index"`
}

// MaxDrawdown walks the series once, tracking the running peak.
// Returns nil for fewer than two values.
func MaxDrawdown(values []float64) *Drawdown {
	if len(values) < 2 {
		return nil
	}

	dd := &Drawdown{Peak: values[0]}
	for i, v := range values {
		if v > dd.Peak {
			dd.Peak = v
			dd.PeakIndex = i
		}
		if dd.Peak > 0 {
			if drop := (dd.Peak - v) / dd.Peak; drop > dd.Max {
				dd.Max = drop
			}
		}
	}

	if last := values[len(values)-1]; dd.Peak > 0 {
		dd.Current = (dd.Peak - last) / dd.Peak
	}
	return dd
}
