package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"BrentShift/internal/domain/models"
	domrepo "BrentShift/internal/domain/repository"
	pkgch "BrentShift/pkg/clickhouse"
	applogger "BrentShift/pkg/logger"
)

// CHChangePointStore stores analyses in <database>.change_points. The
// headline numbers get their own columns; the full record is kept as JSON.
type CHChangePointStore struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHChangePointStore(ch *pkgch.Client, l *applogger.Logger) *CHChangePointStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHChangePointStore{ch: ch, db: ch.DB(), table: ch.Table("change_points"), l: l}
}

func (s *CHChangePointStore) Init(ctx context.Context) error {
	return migrate(ctx, s.ch, s.l)
}

func (s *CHChangePointStore) Save(ctx context.Context, rec *models.ChangePointRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	var (
		mu1, mu2, sigma float64
		converged       uint8
		tau             = rec.Start
	)
	if r := rec.Result; r != nil {
		mu1, mu2, sigma = r.Mu1.Mean, r.Mu2.Mean, r.Sigma.Mean
		tau = r.TauEstimate
		if r.Converged {
			converged = 1
		}
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, created_at, series_hash, config_hash, source, column, n, tau_date, mu1, mu2, sigma, converged, record)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	_, err = s.db.ExecContext(ctx, q,
		rec.ID, rec.CreatedAt, rec.SeriesHash, rec.ConfigHash, rec.Source, rec.Column,
		uint32(rec.N), tau, mu1, mu2, sigma, converged, string(body),
	)
	if err != nil {
		s.l.Error("clickhouse save change point error", applogger.String("id", rec.ID), applogger.Error(err))
		return fmt.Errorf("insert change point: %w", err)
	}
	return nil
}

func (s *CHChangePointStore) List(ctx context.Context, limit int) ([]models.ChangePointRecord, error) {
	q := fmt.Sprintf("SELECT record FROM %s ORDER BY created_at DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list change points: %w", err)
	}
	defer rows.Close()

	out := make([]models.ChangePointRecord, 0, limit)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan change point: %w", err)
		}
		var rec models.ChangePointRecord
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("decode change point: %w", err)
		}
		out = append(out, rec.Summary())
	}
	return out, rows.Err()
}

func (s *CHChangePointStore) Get(ctx context.Context, id string) (*models.ChangePointRecord, error) {
	q := fmt.Sprintf("SELECT record FROM %s WHERE id = ? LIMIT 1", s.table)
	var body string
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domrepo.ErrNotFound
		}
		return nil, fmt.Errorf("get change point: %w", err)
	}
	var rec models.ChangePointRecord
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return nil, fmt.Errorf("decode change point: %w", err)
	}
	return &rec, nil
}

func (s *CHChangePointStore) Close() error { return nil }
