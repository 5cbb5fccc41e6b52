package models

import "time"

// PricePoint is one daily Brent settlement.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// MetricPoint carries the derived daily series. Nil means the value is
// undefined for that day (first return, incomplete volatility window).
type MetricPoint struct {
	Date        time.Time `json:"date"`
	Price       float64   `json:"price"`
	DailyReturn *float64  `json:"daily_return"`
	LogReturn   *float64  `json:"log_return"`
	Volatility  *float64  `json:"volatility"`
}

// DateRange is an inclusive day filter; nil bounds are open.
type DateRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

// Columns that can be analyzed.
const (
	ColumnDailyReturn = "daily_return"
	ColumnLogReturn   = "log_return"
	ColumnPrice       = "price"
	ColumnVolatility  = "volatility"
)
