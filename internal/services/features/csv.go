package features

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"BrentShift/internal/domain/models"
	"BrentShift/pkg/util"
)

var (
	// ErrNoDateColumn is returned when the header has no date column.
	ErrNoDateColumn = errors.New("features: missing date column")
	// ErrNoPriceColumn is returned when no price, value or close column exists.
	ErrNoPriceColumn = errors.New("features: missing price column")
)

var priceHeaders = []string{"price", "value", "close"}

// ParseStats describes what cleaning did to a price file.
type ParseStats struct {
	Rows         int `json:"rows"`
	BadDates     int `json:"bad_dates"`
	Duplicates   int `json:"duplicates"`
	Interpolated int `json:"interpolated"`
	DroppedEdges int `json:"dropped_edges"`
}

// ParsePricesCSV reads a daily price file. Rows with unparsable dates are
// dropped, the rest sorted by date (the last row wins on duplicate days),
// missing prices are interpolated linearly in time and missing prices at
// either end are dropped.
func ParsePricesCSV(r io.Reader) ([]models.PricePoint, ParseStats, error) {
	var st ParseStats
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, st, ErrNoDateColumn
		}
		return nil, st, fmt.Errorf("read header: %w", err)
	}
	dateCol, priceCol := detectColumns(header)
	if dateCol < 0 {
		return nil, st, ErrNoDateColumn
	}
	if priceCol < 0 {
		return nil, st, ErrNoPriceColumn
	}

	byDay := make(map[time.Time]float64)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, st, fmt.Errorf("read row %d: %w", st.Rows+2, err)
		}
		st.Rows++
		if dateCol >= len(rec) {
			st.BadDates++
			continue
		}
		day, ok := util.ParseDate(rec[dateCol])
		if !ok {
			st.BadDates++
			continue
		}
		price := math.NaN()
		if priceCol < len(rec) {
			price = parsePrice(rec[priceCol])
		}
		if _, dup := byDay[day]; dup {
			st.Duplicates++
		}
		byDay[day] = price
	}

	points := make([]models.PricePoint, 0, len(byDay))
	for d, p := range byDay {
		points = append(points, models.PricePoint{Date: d, Price: p})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	points, st.Interpolated, st.DroppedEdges = InterpolateMissing(points)
	return points, st, nil
}

func detectColumns(header []string) (dateCol, priceCol int) {
	dateCol, priceCol = -1, -1
	for i, h := range header {
		if util.NormalizeHeader(h) == "date" && dateCol < 0 {
			dateCol = i
		}
	}
	for _, want := range priceHeaders {
		for i, h := range header {
			if util.NormalizeHeader(h) == want {
				return dateCol, i
			}
		}
	}
	return dateCol, -1
}

// parsePrice returns NaN for anything that is not a finite positive-or-zero number.
func parsePrice(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || v < 0 {
		return math.NaN()
	}
	return v
}

// InterpolateMissing fills NaN prices by linear interpolation on the time
// axis and drops NaN runs at either end. points must be sorted by date.
func InterpolateMissing(points []models.PricePoint) (out []models.PricePoint, filled, dropped int) {
	first, last := -1, -1
	for i, p := range points {
		if !math.IsNaN(p.Price) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return nil, 0, len(points)
	}
	dropped = first + (len(points) - 1 - last)
	out = make([]models.PricePoint, last-first+1)
	copy(out, points[first:last+1])

	prev := 0
	for i := 1; i < len(out); i++ {
		if math.IsNaN(out[i].Price) {
			continue
		}
		if i-prev > 1 {
			x0, y0 := out[prev].Date, out[prev].Price
			span := out[i].Date.Sub(x0).Hours()
			slope := (out[i].Price - y0) / span
			for j := prev + 1; j < i; j++ {
				out[j].Price = y0 + slope*out[j].Date.Sub(x0).Hours()
				filled++
			}
		}
		prev = i
	}
	return out, filled, dropped
}
