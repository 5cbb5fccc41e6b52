package features

import (
	"fmt"
	"math"
	"time"

	"BrentShift/internal/domain/models"
)

// Series is an observation vector and its date index.
type Series struct {
	Column string
	Index  []time.Time
	Values []float64
}

// Len returns the number of observations.
func (s Series) Len() int { return len(s.Values) }

// BuildSeries derives column from points, keeps the days inside r and drops
// days where the column is undefined (the first return, the volatility
// warm-up window).
func BuildSeries(points []models.PricePoint, column string, r models.DateRange, window int) (Series, error) {
	if column == "" {
		column = models.ColumnDailyReturn
	}
	prices := Prices(points)
	var col []float64
	switch column {
	case models.ColumnPrice:
		col = prices
	case models.ColumnDailyReturn:
		col = DailyReturns(prices)
	case models.ColumnLogReturn:
		col = LogReturns(prices)
	case models.ColumnVolatility:
		col = RollingVolatility(DailyReturns(prices), window)
	default:
		return Series{}, fmt.Errorf("features: unknown column %q", column)
	}

	s := Series{Column: column}
	for i, p := range points {
		if !r.Contains(p.Date) || math.IsNaN(col[i]) {
			continue
		}
		s.Index = append(s.Index, p.Date)
		s.Values = append(s.Values, col[i])
	}
	return s, nil
}

// FromPoints turns caller-supplied observations into a Series. Timestamps
// must parse and strictly increase.
func FromPoints(pts []models.SeriesPoint, parse func(string) (time.Time, bool)) (Series, error) {
	s := Series{Index: make([]time.Time, len(pts)), Values: make([]float64, len(pts))}
	for i, p := range pts {
		t, ok := parse(p.Timestamp)
		if !ok {
			return Series{}, &TimestampError{Index: i, Value: p.Timestamp}
		}
		if i > 0 && !t.After(s.Index[i-1]) {
			return Series{}, &TimestampError{Index: i, Value: p.Timestamp, Unordered: true}
		}
		s.Index[i] = t
		s.Values[i] = p.Value
	}
	return s, nil
}

// TimestampError reports a bad series timestamp.
type TimestampError struct {
	Index     int
	Value     string
	Unordered bool
}

func (e *TimestampError) Error() string {
	if e.Unordered {
		return fmt.Sprintf("series[%d].timestamp %q is not after the previous timestamp", e.Index, e.Value)
	}
	return fmt.Sprintf("series[%d].timestamp %q is not a valid time", e.Index, e.Value)
}
