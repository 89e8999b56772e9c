package discount_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasvir/internal/adapter/memory"
	"tasvir/internal/discount"
	"tasvir/internal/domain"
)

func TestCalculate(t *testing.T) {
	pct := domain.Discount{DiscountType: domain.DiscountTypePercentage, DiscountValue: 20}
	fixed := domain.Discount{DiscountType: domain.DiscountTypeFixed, DiscountValue: 500}

	assert.Equal(t, int64(200), discount.Calculate(pct, 1000))
	assert.Equal(t, int64(300), discount.Calculate(fixed, 300), "fixed discounts are clamped to the amount")
	assert.Equal(t, int64(500), discount.Calculate(fixed, 149000))
	assert.Equal(t, int64(2), discount.Calculate(domain.Discount{DiscountType: domain.DiscountTypePercentage, DiscountValue: 15}, 13), "1.95 rounds up")
	assert.Equal(t, int64(0), discount.Calculate(pct, 0))
	assert.Equal(t, int64(0), discount.Calculate(domain.Discount{DiscountType: "bogus", DiscountValue: 10}, 1000))
}

func TestIsValid(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	base := domain.Discount{IsActive: true, Capacity: 2}
	assert.True(t, discount.IsValid(base, now))

	exhausted := base
	exhausted.UsedCount = 2
	assert.False(t, discount.IsValid(exhausted, now))

	inactive := base
	inactive.IsActive = false
	assert.False(t, discount.IsValid(inactive, now))

	expired := base
	expired.ExpiresAt = &past
	assert.False(t, discount.IsValid(expired, now))

	open := base
	open.ExpiresAt = &future
	assert.True(t, discount.IsValid(open, now))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "NOROOZ1405", discount.Normalize("  norooz۱۴۰۵ "))
	assert.Equal(t, "YALDA50", discount.Normalize("yalda٥٠"))
}

func TestServiceRedeemRespectsCapacity(t *testing.T) {
	svc := discount.NewService(memory.NewDiscountStore())
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.Discount{Code: "spring", DiscountType: domain.DiscountTypePercentage, DiscountValue: 10, Capacity: 5, IsActive: true})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		ok      atomic.Int32
		refused atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, err := svc.Redeem(ctx, "SPRING", 449000)
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrDiscountExhausted)
				refused.Add(1)
				return
			}
			assert.Equal(t, int64(44900), q.Discount)
			assert.Equal(t, int64(404100), q.FinalAmount)
			ok.Add(1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), ok.Load())
	assert.Equal(t, int32(15), refused.Load())

	_, err = svc.Preview(ctx, "spring", 1000)
	require.ErrorIs(t, err, domain.ErrDiscountExhausted)
}

func TestServicePreviewAndValidation(t *testing.T) {
	svc := discount.NewService(memory.NewDiscountStore())
	ctx := context.Background()

	_, err := svc.Preview(ctx, "missing", 1000)
	require.ErrorIs(t, err, domain.ErrDiscountInvalid)

	_, err = svc.Create(ctx, domain.Discount{Code: "big", DiscountType: domain.DiscountTypePercentage, DiscountValue: 150, Capacity: 1, IsActive: true})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.Create(ctx, domain.Discount{Code: "zero", DiscountType: domain.DiscountTypeFixed, DiscountValue: 100, Capacity: 0, IsActive: true})
	require.ErrorIs(t, err, domain.ErrValidation)

	created, err := svc.Create(ctx, domain.Discount{Code: "flat", DiscountType: domain.DiscountTypeFixed, DiscountValue: 50000, Capacity: 3, IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, "FLAT", created.Code)

	q, err := svc.Preview(ctx, "flat", 149000)
	require.NoError(t, err)
	assert.Equal(t, discount.Quote{Code: "FLAT", Amount: 149000, Discount: 50000, FinalAmount: 99000}, q)
}
