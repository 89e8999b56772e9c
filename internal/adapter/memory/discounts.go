package memory

import (
	"context"
	"sync"
	"time"

	"tasvir/internal/discount"
	"tasvir/internal/domain"
)

// DiscountStore implements domain.DiscountRepository.
type DiscountStore struct {
	mu    sync.Mutex
	codes map[string]domain.Discount
}

// NewDiscountStore creates an empty discount store.
func NewDiscountStore() *DiscountStore {
	return &DiscountStore{codes: make(map[string]domain.Discount)}
}

func (s *DiscountStore) Create(_ context.Context, d *domain.Discount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[d.Code]; ok {
		return domain.ErrDuplicateOperation
	}
	s.codes[d.Code] = *d
	return nil
}

func (s *DiscountStore) GetByCode(_ context.Context, code string) (*domain.Discount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.codes[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

func (s *DiscountStore) Redeem(_ context.Context, code string, now time.Time) (*domain.Discount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.codes[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !discount.IsValid(d, now) {
		if d.UsedCount >= d.Capacity {
			return nil, domain.ErrDiscountExhausted
		}
		return nil, domain.ErrDiscountInvalid
	}
	d.UsedCount++
	s.codes[code] = d
	return &d, nil
}

func (s *DiscountStore) Release(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.codes[code]
	if !ok || d.UsedCount == 0 {
		return nil
	}
	d.UsedCount--
	s.codes[code] = d
	return nil
}

var _ domain.DiscountRepository = (*DiscountStore)(nil)
