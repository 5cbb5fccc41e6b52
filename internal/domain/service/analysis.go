package service

import (
	"context"

	"BrentShift/internal/changepoint"
	"BrentShift/internal/domain/models"
)

// ChangePointService runs and retrieves change-point analyses.
type ChangePointService interface {
	Analyze(ctx context.Context, req *models.AnalyzeRequest) (*models.ChangePointRecord, error)
	// Stream runs an analysis and reports sampler progress to fn.
	Stream(ctx context.Context, req *models.AnalyzeRequest, every int, fn func(changepoint.ProgressEvent)) (*models.ChangePointRecord, error)
	List(ctx context.Context, limit int) ([]models.ChangePointRecord, error)
	Get(ctx context.Context, id string) (*models.ChangePointRecord, error)
}

// JobService queues analyses and reports their state.
type JobService interface {
	Submit(ctx context.Context, req *models.AnalyzeRequest) (*models.Job, error)
	Job(ctx context.Context, id string) (*models.Job, error)
}

// PriceService serves the price history and its derived metrics.
type PriceService interface {
	Prices(ctx context.Context, r models.DateRange) ([]models.PricePoint, error)
	Metrics(ctx context.Context, r models.DateRange) ([]models.MetricPoint, error)
	Events(ctx context.Context) ([]models.Event, error)
}
