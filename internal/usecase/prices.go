package usecase

import (
	"context"
	"fmt"

	"BrentShift/internal/domain/models"
	domrepo "BrentShift/internal/domain/repository"
	"BrentShift/internal/services/features"
)

// PricesUseCase serves the price history, its derived metrics and the
// reference events.
type PricesUseCase struct {
	store  domrepo.PriceStore
	events domrepo.EventStore
	window int
}

func NewPricesUseCase(store domrepo.PriceStore, events domrepo.EventStore, volatilityWindow int) *PricesUseCase {
	return &PricesUseCase{store: store, events: events, window: volatilityWindow}
}

func (uc *PricesUseCase) Prices(ctx context.Context, r models.DateRange) ([]models.PricePoint, error) {
	pts, err := uc.store.Prices(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("get prices: %w", err)
	}
	return pts, nil
}

// Metrics derives returns and volatility over the whole history, then
// keeps the days inside r, so the first days of r are not undefined.
func (uc *PricesUseCase) Metrics(ctx context.Context, r models.DateRange) ([]models.MetricPoint, error) {
	pts, err := uc.store.Prices(ctx, models.DateRange{To: r.To})
	if err != nil {
		return nil, fmt.Errorf("get prices: %w", err)
	}
	all := features.Metrics(pts, uc.window)
	out := make([]models.MetricPoint, 0, len(all))
	for _, m := range all {
		if r.Contains(m.Date) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (uc *PricesUseCase) Events(ctx context.Context) ([]models.Event, error) {
	return uc.events.Events(ctx)
}
