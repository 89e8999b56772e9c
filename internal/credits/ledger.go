// Package credits implements the reservation-model credit ledger embedded in
// the user document.
package credits

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tasvir/internal/domain"
)

// Pricing constants. Credits are reserved at submission time.
const (
	CreditsPerImage  = 4
	CreditsPerVideo  = 20
	MaxImagesPerTask = 4
)

// CostFor returns the credits required to submit a task.
func CostFor(mode domain.TaskMode, numImages int) int {
	if mode == domain.TaskModeVideo {
		return CreditsPerVideo
	}
	return CreditsPerImage * numImages
}

// Settle closes a reservation that ended in success or failure. Funds already
// moved at submission, so settling only marks the reservation closed; a
// failed task additionally owes a Refund.
func Settle(task *domain.Task) {
	task.CreditsDeducted = true
}

// Ledger guards the credit repository with input validation.
type Ledger struct {
	repo domain.CreditRepository
	now  func() time.Time
}

// NewLedger wraps repo.
func NewLedger(repo domain.CreditRepository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// Reserve deducts amount from the user's balance or fails with
// domain.ErrInsufficientCredits, leaving the balance untouched.
func (l *Ledger) Reserve(ctx context.Context, userID string, amount int) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, domain.NewValidationError("user_id", "required")
	}
	if amount <= 0 {
		return 0, domain.NewValidationError("amount", "must be positive")
	}
	remaining, err := l.repo.Reserve(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("reserve %d credits: %w", amount, err)
	}
	return remaining, nil
}

// Refund returns a task's reservation to the user. Repeated calls for the same
// task report false and leave the balance unchanged.
func (l *Ledger) Refund(ctx context.Context, userID, taskID string, amount int) (bool, error) {
	if amount <= 0 {
		return false, nil
	}
	if strings.TrimSpace(taskID) == "" {
		return false, domain.NewValidationError("task_id", "required")
	}
	applied, err := l.repo.Refund(ctx, userID, taskID, amount)
	if err != nil {
		return false, fmt.Errorf("refund task %s: %w", taskID, err)
	}
	return applied, nil
}

// SetPlan replaces the user's balance with the plan allotment and resets the
// monthly counter.
func (l *Ledger) SetPlan(ctx context.Context, userID string, plan domain.Plan) (*domain.User, error) {
	if plan.Credits < 0 {
		return nil, domain.NewValidationError("plan", "negative allotment")
	}
	user, err := l.repo.SetPlan(ctx, userID, plan, l.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("set plan %s: %w", plan.Name, err)
	}
	return user, nil
}

// ResetMonthly zeroes usage counters whose reset date has passed.
func (l *Ledger) ResetMonthly(ctx context.Context) (int, error) {
	n, err := l.repo.ResetMonthly(ctx, l.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("reset monthly usage: %w", err)
	}
	return n, nil
}

// NextMonthlyReset returns the first instant of the month after now.
func NextMonthlyReset(now time.Time) time.Time {
	y, m, _ := now.UTC().Date()
	return time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC)
}
