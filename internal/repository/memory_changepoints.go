package repository

import (
	"context"
	"sync"

	"BrentShift/internal/domain/models"
	domrepo "BrentShift/internal/domain/repository"
)

// MemoryChangePointStore keeps up to max records, dropping the oldest.
type MemoryChangePointStore struct {
	mu      sync.RWMutex
	max     int
	records []models.ChangePointRecord
}

// NewMemoryChangePointStore creates a store; max <= 0 means unbounded.
func NewMemoryChangePointStore(max int) *MemoryChangePointStore {
	return &MemoryChangePointStore{max: max}
}

func (s *MemoryChangePointStore) Init(context.Context) error { return nil }

func (s *MemoryChangePointStore) Save(_ context.Context, rec *models.ChangePointRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	if s.max > 0 && len(s.records) > s.max {
		s.records = append(s.records[:0:0], s.records[len(s.records)-s.max:]...)
	}
	return nil
}

func (s *MemoryChangePointStore) List(_ context.Context, limit int) ([]models.ChangePointRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.ChangePointRecord, 0, n)
	for i := len(s.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.records[i].Summary())
	}
	return out, nil
}

func (s *MemoryChangePointStore) Get(_ context.Context, id string) (*models.ChangePointRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].ID == id {
			rec := s.records[i]
			return &rec, nil
		}
	}
	return nil, domrepo.ErrNotFound
}

func (s *MemoryChangePointStore) Close() error { return nil }
