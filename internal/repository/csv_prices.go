package repository

import (
	"fmt"
	"os"

	"BrentShift/internal/domain/models"
	"BrentShift/internal/services/features"
	applogger "BrentShift/pkg/logger"
)

// LoadPricesCSV reads and cleans a Brent price file.
func LoadPricesCSV(path string, l *applogger.Logger) ([]models.PricePoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open prices: %w", err)
	}
	defer f.Close()

	points, st, err := features.ParsePricesCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if l != nil {
		fields := []applogger.Field{
			applogger.String("path", path),
			applogger.Int("rows", st.Rows),
			applogger.Int("points", len(points)),
			applogger.Int("bad_dates", st.BadDates),
			applogger.Int("duplicates", st.Duplicates),
			applogger.Int("interpolated", st.Interpolated),
			applogger.Int("dropped_edges", st.DroppedEdges),
		}
		if len(points) > 0 {
			fields = append(fields,
				applogger.String("from", points[0].Date.Format("2006-01-02")),
				applogger.String("to", points[len(points)-1].Date.Format("2006-01-02")),
			)
		}
		l.Info("prices loaded", fields...)
	}
	return points, nil
}
