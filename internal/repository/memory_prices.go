package repository

import (
	"context"
	"sort"
	"sync"

	"BrentShift/internal/domain/models"
)

// MemoryPriceStore keeps the price history in a date-sorted slice.
type MemoryPriceStore struct {
	mu     sync.RWMutex
	points []models.PricePoint
}

// NewMemoryPriceStore seeds the store with points, which need not be sorted.
func NewMemoryPriceStore(points []models.PricePoint) *MemoryPriceStore {
	s := &MemoryPriceStore{}
	_, _ = s.Append(context.Background(), points)
	return s
}

func (s *MemoryPriceStore) Init(context.Context) error { return nil }

func (s *MemoryPriceStore) Prices(_ context.Context, r models.DateRange) ([]models.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo := 0
	if r.From != nil {
		lo = sort.Search(len(s.points), func(i int) bool { return !s.points[i].Date.Before(*r.From) })
	}
	hi := len(s.points)
	if r.To != nil {
		hi = sort.Search(len(s.points), func(i int) bool { return s.points[i].Date.After(*r.To) })
	}
	if lo >= hi {
		return []models.PricePoint{}, nil
	}
	out := make([]models.PricePoint, hi-lo)
	copy(out, s.points[lo:hi])
	return out, nil
}

// Append upserts by date. Existing days take the new price.
func (s *MemoryPriceStore) Append(_ context.Context, points []models.PricePoint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, p := range points {
		i := sort.Search(len(s.points), func(i int) bool { return !s.points[i].Date.Before(p.Date) })
		if i < len(s.points) && s.points[i].Date.Equal(p.Date) {
			s.points[i].Price = p.Price
			continue
		}
		s.points = append(s.points, models.PricePoint{})
		copy(s.points[i+1:], s.points[i:])
		s.points[i] = p
		added++
	}
	return added, nil
}

// Len returns the number of stored days.
func (s *MemoryPriceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

func (s *MemoryPriceStore) Health(context.Context) error { return nil }

func (s *MemoryPriceStore) Close() error { return nil }
