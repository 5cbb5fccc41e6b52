package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"BrentShift/internal/domain/models"
	pkgch "BrentShift/pkg/clickhouse"
	applogger "BrentShift/pkg/logger"
)

const insertChunk = 2000

// CHPriceStore keeps the price history in a ReplacingMergeTree keyed by day.
type CHPriceStore struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewCHPriceStore uses <database>.brent_prices.
func NewCHPriceStore(ch *pkgch.Client, l *applogger.Logger) *CHPriceStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHPriceStore{ch: ch, db: ch.DB(), table: ch.Table("brent_prices"), l: l}
}

func (s *CHPriceStore) Init(ctx context.Context) error {
	return migrate(ctx, s.ch, s.l)
}

func (s *CHPriceStore) Prices(ctx context.Context, r models.DateRange) ([]models.PricePoint, error) {
	start := time.Now()
	var (
		where []string
		args  []interface{}
	)
	if r.From != nil {
		where = append(where, "date >= ?")
		args = append(args, *r.From)
	}
	if r.To != nil {
		where = append(where, "date <= ?")
		args = append(args, *r.To)
	}
	q := fmt.Sprintf("SELECT date, price FROM %s FINAL", s.table)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY date ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse prices query error", applogger.String("table", s.table), applogger.Error(err))
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	out := make([]models.PricePoint, 0, 1024)
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.Date, &p.Price); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		p.Date = p.Date.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse prices ok",
		applogger.String("table", s.table),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// Append inserts points in multi-row batches. Existing days are replaced on
// merge; the returned count is the number of rows written.
func (s *CHPriceStore) Append(ctx context.Context, points []models.PricePoint) (int, error) {
	written := 0
	for lo := 0; lo < len(points); lo += insertChunk {
		hi := min(lo+insertChunk, len(points))
		values := make([]string, 0, hi-lo)
		args := make([]interface{}, 0, (hi-lo)*2)
		for _, p := range points[lo:hi] {
			values = append(values, "(?, ?)")
			args = append(args, p.Date, p.Price)
		}
		q := fmt.Sprintf("INSERT INTO %s (date, price) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return written, fmt.Errorf("insert prices: %w", err)
		}
		written += hi - lo
	}
	return written, nil
}

func (s *CHPriceStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to the clickhouse client.
func (s *CHPriceStore) Close() error { return nil }
