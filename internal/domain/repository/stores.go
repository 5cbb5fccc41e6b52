package repository

import (
	"context"
	"time"

	"BrentShift/internal/domain/models"
)

// PriceStore holds the daily Brent price history.
type PriceStore interface {
	Init(ctx context.Context) error
	// Prices returns points inside r, ordered by date.
	Prices(ctx context.Context, r models.DateRange) ([]models.PricePoint, error)
	// Append upserts points by date and returns how many were new.
	Append(ctx context.Context, points []models.PricePoint) (int, error)
	Health(ctx context.Context) error
	Close() error
}

// ChangePointStore keeps completed analyses.
type ChangePointStore interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, rec *models.ChangePointRecord) error
	// List returns the newest records first.
	List(ctx context.Context, limit int) ([]models.ChangePointRecord, error)
	Get(ctx context.Context, id string) (*models.ChangePointRecord, error)
	Close() error
}

// EventStore lists reference events.
type EventStore interface {
	Events(ctx context.Context) ([]models.Event, error)
}

// ResultPublisher announces completed analyses.
type ResultPublisher interface {
	PublishResult(ctx context.Context, rec *models.ChangePointRecord) error
	Close() error
}

// Metrics is what the use cases record.
type Metrics interface {
	ObserveChain(chain int, elapsed time.Duration, acceptance float64)
	ObserveAnalysis(mode, status string, elapsed time.Duration)
	SetRHat(param string, v float64)
	CacheHit()
	CacheMiss()
	RecordError(kind string)
	RecordJob(state string)
	RecordIngested(source string, n int)
}
