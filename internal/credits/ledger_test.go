package credits_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasvir/internal/adapter/memory"
	"tasvir/internal/credits"
	"tasvir/internal/domain"
)

func TestCostFor(t *testing.T) {
	assert.Equal(t, 4, credits.CostFor(domain.TaskModeImage, 1))
	assert.Equal(t, 16, credits.CostFor(domain.TaskModeImage, 4))
	assert.Equal(t, credits.CreditsPerVideo, credits.CostFor(domain.TaskModeVideo, 3))
}

func TestReserveNeverOverdraws(t *testing.T) {
	store := memory.NewUserStore()
	store.Put(domain.User{ID: "u1", Credits: 40})
	ledger := credits.NewLedger(store)
	ctx := context.Background()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Reserve(ctx, "u1", 4); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrInsufficientCredits)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, won)
	u, err := store.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, u.Credits)
}

func TestReserveValidation(t *testing.T) {
	ledger := credits.NewLedger(memory.NewUserStore())
	_, err := ledger.Reserve(context.Background(), "", 4)
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = ledger.Reserve(context.Background(), "u1", 0)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestRefundOncePerTask(t *testing.T) {
	store := memory.NewUserStore()
	store.Put(domain.User{ID: "u1", Credits: 0})
	ledger := credits.NewLedger(store)
	ctx := context.Background()

	applied, err := ledger.Refund(ctx, "u1", "t1", 12)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = ledger.Refund(ctx, "u1", "t1", 12)
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = ledger.Refund(ctx, "u1", "t2", 0)
	require.NoError(t, err)
	assert.False(t, applied)

	_, err = ledger.Refund(ctx, "u1", "", 4)
	require.ErrorIs(t, err, domain.ErrValidation)

	u, err := store.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 12, u.Credits)
}

func TestSetPlanReplacesBalance(t *testing.T) {
	store := memory.NewUserStore()
	store.Put(domain.User{ID: "u1", Plan: domain.UserPlanFree, Credits: 3, ImagesGeneratedThisMonth: 9})
	ledger := credits.NewLedger(store)

	u, err := ledger.SetPlan(context.Background(), "u1", domain.Plan{Name: domain.UserPlanPro, Credits: 350})
	require.NoError(t, err)
	assert.Equal(t, domain.UserPlanPro, u.Plan)
	assert.Equal(t, 350, u.Credits)
	assert.Zero(t, u.ImagesGeneratedThisMonth)
	assert.True(t, u.MonthResetAt.After(time.Now()))
}

func TestNextMonthlyReset(t *testing.T) {
	got := credits.NextMonthlyReset(time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), got)
}
