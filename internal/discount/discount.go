// Package discount validates promotion codes and computes discount amounts.
package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tasvir/internal/domain"
	"tasvir/internal/textnorm"
)

var hundred = decimal.NewFromInt(100)

// Normalize returns the canonical stored form of a code.
func Normalize(code string) string {
	return textnorm.Code(code)
}

// IsValid reports whether d can be redeemed at now.
func IsValid(d domain.Discount, now time.Time) bool {
	if !d.IsActive || d.UsedCount >= d.Capacity {
		return false
	}
	return d.ExpiresAt == nil || !now.After(*d.ExpiresAt)
}

// Calculate returns the amount taken off amount by d. Percentages round half
// away from zero; the result is clamped to [0, amount].
func Calculate(d domain.Discount, amount int64) int64 {
	if amount <= 0 || d.DiscountValue <= 0 {
		return 0
	}
	var off int64
	switch d.DiscountType {
	case domain.DiscountTypePercentage:
		off = decimal.NewFromInt(amount).
			Mul(decimal.NewFromInt(d.DiscountValue)).
			Div(hundred).
			Round(0).
			IntPart()
	case domain.DiscountTypeFixed:
		off = d.DiscountValue
	default:
		return 0
	}
	if off > amount {
		return amount
	}
	if off < 0 {
		return 0
	}
	return off
}

// Quote is the priced result of applying a code to an amount.
type Quote struct {
	Code        string `json:"code"`
	Amount      int64  `json:"amount"`
	Discount    int64  `json:"discount"`
	FinalAmount int64  `json:"final_amount"`
}

func quote(d domain.Discount, amount int64) Quote {
	off := Calculate(d, amount)
	return Quote{Code: d.Code, Amount: amount, Discount: off, FinalAmount: amount - off}
}

// Service exposes discount lookups and redemption.
type Service struct {
	repo domain.DiscountRepository
	now  func() time.Time
}

// NewService wraps repo.
func NewService(repo domain.DiscountRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create validates and stores a new code.
func (s *Service) Create(ctx context.Context, d domain.Discount) (*domain.Discount, error) {
	d.Code = Normalize(d.Code)
	if d.Code == "" {
		return nil, domain.NewValidationError("code", "required")
	}
	switch d.DiscountType {
	case domain.DiscountTypePercentage:
		if d.DiscountValue <= 0 || d.DiscountValue > 100 {
			return nil, domain.NewValidationError("discount_value", "percentage must be within 1..100")
		}
	case domain.DiscountTypeFixed:
		if d.DiscountValue <= 0 {
			return nil, domain.NewValidationError("discount_value", "must be positive")
		}
	default:
		return nil, domain.NewValidationError("discount_type", "must be percentage or fixed")
	}
	if d.Capacity <= 0 {
		return nil, domain.NewValidationError("capacity", "must be positive")
	}
	if d.UsedCount < 0 || d.UsedCount > d.Capacity {
		return nil, domain.NewValidationError("used_count", "must be within capacity")
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now().UTC()
	}
	if err := s.repo.Create(ctx, &d); err != nil {
		return nil, fmt.Errorf("create discount %s: %w", d.Code, err)
	}
	return &d, nil
}

// Preview prices amount with code without consuming it.
func (s *Service) Preview(ctx context.Context, code string, amount int64) (Quote, error) {
	d, err := s.repo.GetByCode(ctx, Normalize(code))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Quote{}, domain.ErrDiscountInvalid
		}
		return Quote{}, err
	}
	if !IsValid(*d, s.now()) {
		if d.IsActive && d.UsedCount >= d.Capacity {
			return Quote{}, domain.ErrDiscountExhausted
		}
		return Quote{}, domain.ErrDiscountInvalid
	}
	return quote(*d, amount), nil
}

// Redeem consumes one use of code and prices amount with it. Concurrent
// redemptions never push used_count past capacity.
func (s *Service) Redeem(ctx context.Context, code string, amount int64) (Quote, error) {
	d, err := s.repo.Redeem(ctx, Normalize(code), s.now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Quote{}, domain.ErrDiscountInvalid
		}
		return Quote{}, err
	}
	return quote(*d, amount), nil
}

// Release gives back a use taken by Redeem for a purchase that did not
// complete.
func (s *Service) Release(ctx context.Context, code string) error {
	return s.repo.Release(ctx, Normalize(code))
}
