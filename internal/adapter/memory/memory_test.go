package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasvir/internal/domain"
)

func TestTaskStoreCompareAndSet(t *testing.T) {
	store := NewTaskStore()
	ctx := context.Background()
	task := &domain.Task{ID: "t1", UserID: "u1", Status: domain.TaskStatusPending}
	require.NoError(t, store.Create(ctx, task))
	assert.Equal(t, 1, task.Version)
	require.ErrorIs(t, store.Create(ctx, task), domain.ErrDuplicateOperation)

	attached, err := store.AttachProviderTask(ctx, "t1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, attached.Version)
	_, err = store.AttachProviderTask(ctx, "t1", "p2")
	require.ErrorIs(t, err, domain.ErrDuplicateOperation)

	next := attached.Clone()
	next.Status = domain.TaskStatusProcessing
	next.UserID = "someone-else"
	updated, err := store.Update(ctx, &next, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Version)
	assert.Equal(t, "u1", updated.UserID)

	_, err = store.Update(ctx, &next, 2)
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	byProvider, err := store.GetByProviderTaskID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusProcessing, byProvider.Status)
}

func TestTaskStoreListings(t *testing.T) {
	store := NewTaskStore()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i, st := range []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusProcessing, domain.TaskStatusCompleted} {
		at := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Create(ctx, &domain.Task{
			ID: string(rune('a' + i)), UserID: "u1", Status: st, CreatedAt: at, UpdatedAt: at,
		}))
	}

	stale, err := store.ListStale(ctx, base.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, "a", stale[0].ID)

	mine, err := store.ListByUser(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "c", mine[0].ID)
}

func TestUserStoreHistoryIsIdempotent(t *testing.T) {
	store := NewUserStore()
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	u, err := store.UpsertByPhone(ctx, "+989121234567", now)
	require.NoError(t, err)
	again, err := store.UpsertByPhone(ctx, "+989121234567", now)
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, domain.UserPlanFree, u.Plan)

	entry := domain.HistoryEntry{ID: domain.HistoryEntryID("t1", 0), URL: "https://cdn/a"}
	require.NoError(t, store.AppendHistory(ctx, u.ID, domain.TaskModeImage, entry))
	require.NoError(t, store.AppendHistory(ctx, u.ID, domain.TaskModeImage, entry))
	require.NoError(t, store.AppendHistory(ctx, u.ID, domain.TaskModeVideo, domain.HistoryEntry{ID: "v-0"}))

	got, err := store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, got.ImageHistory, 1)
	assert.Len(t, got.VideoHistory, 1)
	assert.Equal(t, 1, got.ImagesGeneratedThisMonth)

	require.NoError(t, store.DeleteHistory(ctx, u.ID, domain.TaskModeImage, entry.ID))
	require.ErrorIs(t, store.DeleteHistory(ctx, u.ID, domain.TaskModeImage, entry.ID), domain.ErrNotFound)

	got, err = store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ImageHistory)
	assert.Equal(t, 1, got.ImagesGeneratedThisMonth, "deleting history does not give usage back")
}

func TestUserStoreResetMonthly(t *testing.T) {
	store := NewUserStore()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store.Put(domain.User{ID: "due", ImagesGeneratedThisMonth: 7, MonthResetAt: now.Add(-time.Minute)})
	store.Put(domain.User{ID: "later", ImagesGeneratedThisMonth: 3, MonthResetAt: now.Add(24 * time.Hour)})

	n, err := store.ResetMonthly(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	due, _ := store.GetByID(context.Background(), "due")
	later, _ := store.GetByID(context.Background(), "later")
	assert.Zero(t, due.ImagesGeneratedThisMonth)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), due.MonthResetAt)
	assert.Equal(t, 3, later.ImagesGeneratedThisMonth)
}

func TestTaskStoreListsSettledTasksWithOwedEffects(t *testing.T) {
	store := NewTaskStore()
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, &domain.Task{
		ID: "t1", UserID: "u1", Status: domain.TaskStatusFailed, CreditsDeducted: true, UpdatedAt: at,
	}))
	require.NoError(t, store.Create(ctx, &domain.Task{
		ID: "t2", UserID: "u1", Status: domain.TaskStatusPending, UpdatedAt: at,
	}))

	stale, err := store.ListStale(ctx, at.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, stale, 2)

	require.NoError(t, store.MarkEffectsApplied(ctx, "t1"))
	require.NoError(t, store.MarkEffectsApplied(ctx, "t2"))
	stale, err = store.ListStale(ctx, at.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "t2", stale[0].ID)
	assert.False(t, stale[0].EffectsApplied, "open tasks owe nothing yet")

	require.ErrorIs(t, store.MarkEffectsApplied(ctx, "missing"), domain.ErrTaskNotFound)
}

func TestUserStoreDeletedHistoryStaysDeleted(t *testing.T) {
	store := NewUserStore()
	ctx := context.Background()
	store.Put(domain.User{ID: "u1"})

	entry := domain.HistoryEntry{ID: domain.HistoryEntryID("t1", 0), URL: "https://cdn/a"}
	require.NoError(t, store.AppendHistory(ctx, "u1", domain.TaskModeImage, entry))
	require.NoError(t, store.DeleteHistory(ctx, "u1", domain.TaskModeImage, entry.ID))
	require.NoError(t, store.AppendHistory(ctx, "u1", domain.TaskModeImage, entry))

	got, err := store.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got.ImageHistory)
	assert.Equal(t, 1, got.ImagesGeneratedThisMonth)
}

func TestDiscountStoreRelease(t *testing.T) {
	store := NewDiscountStore()
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, &domain.Discount{
		Code: "NOROOZ", DiscountType: domain.DiscountTypeFixed, DiscountValue: 10_000, Capacity: 1, IsActive: true,
	}))

	_, err := store.Redeem(ctx, "NOROOZ", now)
	require.NoError(t, err)
	_, err = store.Redeem(ctx, "NOROOZ", now)
	require.ErrorIs(t, err, domain.ErrDiscountExhausted)

	require.NoError(t, store.Release(ctx, "NOROOZ"))
	require.NoError(t, store.Release(ctx, "NOROOZ"))
	d, err := store.GetByCode(ctx, "NOROOZ")
	require.NoError(t, err)
	assert.Equal(t, 0, d.UsedCount)

	_, err = store.Redeem(ctx, "NOROOZ", now)
	require.NoError(t, err)
}
