package domain

import (
	"context"
	"time"
)

// TaskRepository defines persistence for generation tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *Task) error
	AttachProviderTask(ctx context.Context, id, providerTaskID string) (*Task, error)
	GetByID(ctx context.Context, id string) (*Task, error)
	GetByProviderTaskID(ctx context.Context, providerTaskID string) (*Task, error)
	// Update persists task only when the stored version still equals
	// expectedVersion and returns the stored record with its new version.
	// A moved version yields ErrVersionConflict.
	Update(ctx context.Context, task *Task, expectedVersion int) (*Task, error)
	// MarkEffectsApplied flags a settled task whose effects are done. It does
	// not bump the version.
	MarkEffectsApplied(ctx context.Context, id string) error
	// ListStale returns open tasks, and settled tasks with effects still owed,
	// last updated before olderThan.
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]Task, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Task, error)
}

// CreditRepository mutates the credit fields of the user document.
type CreditRepository interface {
	// Reserve atomically subtracts amount when the balance covers it and
	// returns the remaining balance, or ErrInsufficientCredits.
	Reserve(ctx context.Context, userID string, amount int) (int, error)
	// Refund adds amount back once per task. The boolean is false when the
	// refund for taskID was already recorded.
	Refund(ctx context.Context, userID, taskID string, amount int) (bool, error)
	SetPlan(ctx context.Context, userID string, plan Plan, now time.Time) (*User, error)
	ResetMonthly(ctx context.Context, now time.Time) (int, error)
}

// UserRepository defines access methods for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	UpsertByPhone(ctx context.Context, phone string, now time.Time) (*User, error)
	// AppendHistory is a no-op when an entry with the same id already exists
	// or was deleted by the user. Appending a new image entry also counts it
	// against the monthly usage.
	AppendHistory(ctx context.Context, userID string, mode TaskMode, entry HistoryEntry) error
	DeleteHistory(ctx context.Context, userID string, mode TaskMode, entryID string) error
	AppendBilling(ctx context.Context, userID string, entry BillingEntry) error
}

// DiscountRepository handles discount persistence.
type DiscountRepository interface {
	Create(ctx context.Context, discount *Discount) error
	GetByCode(ctx context.Context, code string) (*Discount, error)
	// Redeem increments used_count only while the code is valid at now and
	// below capacity, returning the updated discount.
	Redeem(ctx context.Context, code string, now time.Time) (*Discount, error)
	// Release gives back one use taken by Redeem.
	Release(ctx context.Context, code string) error
}
