package features

import (
	"math"

	"github.com/montanaflynn/stats"

	"BrentShift/internal/domain/models"
)

// DefaultVolatilityWindow is the rolling window, in trading days, of RollingVolatility.
const DefaultVolatilityWindow = 30

// Prices extracts the price column.
func Prices(points []models.PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Price
	}
	return out
}

// DailyReturns computes percentage changes, r_t = (P_t/P_{t-1} - 1) * 100.
// The first entry is NaN, as is any return off a zero price.
func DailyReturns(prices []float64) []float64 {
	out := make([]float64, len(prices))
	for i := range prices {
		if i == 0 || prices[i-1] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = (prices[i]/prices[i-1] - 1) * 100
	}
	return out
}

// LogReturns computes r_t = ln(P_t / P_{t-1}); entries without a positive
// previous and current price are NaN.
func LogReturns(prices []float64) []float64 {
	out := make([]float64, len(prices))
	for i := range prices {
		if i == 0 || prices[i-1] <= 0 || prices[i] <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Log(prices[i] / prices[i-1])
	}
	return out
}

// RollingVolatility is the sample standard deviation of the last window
// values. Entries are NaN until a full window of defined values is available.
func RollingVolatility(values []float64, window int) []float64 {
	if window < 2 {
		window = DefaultVolatilityWindow
	}
	out := make([]float64, len(values))
	for i := range values {
		out[i] = math.NaN()
		if i+1 < window {
			continue
		}
		w := stats.Float64Data(values[i+1-window : i+1])
		if hasNaN(w) {
			continue
		}
		if sd, err := stats.StandardDeviationSample(w); err == nil {
			out[i] = sd
		}
	}
	return out
}

// Metrics derives the returns and volatility table served by the API.
func Metrics(points []models.PricePoint, window int) []models.MetricPoint {
	prices := Prices(points)
	daily := DailyReturns(prices)
	logr := LogReturns(prices)
	vol := RollingVolatility(daily, window)

	out := make([]models.MetricPoint, len(points))
	for i, p := range points {
		out[i] = models.MetricPoint{
			Date:        p.Date,
			Price:       p.Price,
			DailyReturn: defined(daily[i]),
			LogReturn:   defined(logr[i]),
			Volatility:  defined(vol[i]),
		}
	}
	return out
}

func hasNaN(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}

func defined(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
