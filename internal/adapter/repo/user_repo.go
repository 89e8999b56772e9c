package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tasvir/internal/credits"
	"tasvir/internal/domain"
	"tasvir/internal/infra"
	"tasvir/internal/sqlinline"
)

// UserRepositoryPG implements domain.UserRepository and
// domain.CreditRepository over the users table. The histories live in jsonb
// columns on the same row as the balance.
type UserRepositoryPG struct {
	db  infra.SQLExecutor
	now func() time.Time
}

// NewUserRepository creates a user repository over db.
func NewUserRepository(db infra.SQLExecutor) *UserRepositoryPG {
	return &UserRepositoryPG{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *UserRepositoryPG) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	return scanUser(r.db.QueryRow(ctx, sqlinline.QSelectUserByID, id))
}

// UpsertByPhone returns the user owning phone, creating a free account on
// first sight.
func (r *UserRepositoryPG) UpsertByPhone(ctx context.Context, phone string, now time.Time) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, sqlinline.QUpsertUserByPhone, phone, credits.NextMonthlyReset(now), now))
}

func (r *UserRepositoryPG) AppendHistory(ctx context.Context, userID string, mode domain.TaskMode, entry domain.HistoryEntry) error {
	if !validID(userID) {
		return domain.ErrNotFound
	}
	payload, err := jsonList([]domain.HistoryEntry{entry})
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, sqlinline.QAppendHistory, userID, string(mode), payload, entry.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	// Nothing changed: the entry is already there, was deleted by the user, or
	// the user is gone.
	ok, err := r.userExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepositoryPG) DeleteHistory(ctx context.Context, userID string, mode domain.TaskMode, entryID string) error {
	if !validID(userID) {
		return domain.ErrNotFound
	}
	tag, err := r.db.Exec(ctx, sqlinline.QDeleteHistory, userID, string(mode), entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepositoryPG) AppendBilling(ctx context.Context, userID string, entry domain.BillingEntry) error {
	if !validID(userID) {
		return domain.ErrNotFound
	}
	payload, err := jsonList([]domain.BillingEntry{entry})
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, sqlinline.QAppendBilling, userID, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Reserve subtracts amount in a single conditional update.
func (r *UserRepositoryPG) Reserve(ctx context.Context, userID string, amount int) (int, error) {
	if !validID(userID) {
		return 0, domain.ErrNotFound
	}
	var remaining int
	err := r.db.QueryRow(ctx, sqlinline.QReserveCredits, userID, amount).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !infra.IsNoRows(err) {
		return 0, err
	}
	user, getErr := r.GetByID(ctx, userID)
	if getErr != nil {
		return 0, getErr
	}
	return user.Credits, domain.ErrInsufficientCredits
}

// Refund credits amount back once per task; the credit_events primary key
// absorbs repeats.
func (r *UserRepositoryPG) Refund(ctx context.Context, userID, taskID string, amount int) (bool, error) {
	if !validID(userID) || !validID(taskID) {
		return false, domain.ErrNotFound
	}
	var balance int
	err := r.db.QueryRow(ctx, sqlinline.QRefundCredits, userID, taskID, amount).Scan(&balance)
	if err == nil {
		return true, nil
	}
	if !infra.IsNoRows(err) {
		return false, err
	}
	ok, existsErr := r.userExists(ctx, userID)
	if existsErr != nil {
		return false, existsErr
	}
	if !ok {
		return false, domain.ErrNotFound
	}
	return false, nil
}

func (r *UserRepositoryPG) SetPlan(ctx context.Context, userID string, plan domain.Plan, now time.Time) (*domain.User, error) {
	if !validID(userID) {
		return nil, domain.ErrNotFound
	}
	return scanUser(r.db.QueryRow(ctx, sqlinline.QSetUserPlan,
		userID,
		string(plan.Name),
		plan.Credits,
		credits.NextMonthlyReset(now),
		now,
	))
}

func (r *UserRepositoryPG) ResetMonthly(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, sqlinline.QResetMonthlyUsage, now, credits.NextMonthlyReset(now))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *UserRepositoryPG) userExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := r.db.QueryRow(ctx, sqlinline.QUserExists, id).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u                      domain.User
		plan                   string
		images, videos, billed []byte
	)
	if err := row.Scan(
		&u.ID,
		&u.Phone,
		&u.Name,
		&plan,
		&u.Credits,
		&u.ImagesGeneratedThisMonth,
		&u.MonthResetAt,
		&images,
		&videos,
		&billed,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	u.Plan = domain.UserPlan(plan)
	if err := decodeJSON(images, &u.ImageHistory); err != nil {
		return nil, fmt.Errorf("decode image_history: %w", err)
	}
	if err := decodeJSON(videos, &u.VideoHistory); err != nil {
		return nil, fmt.Errorf("decode video_history: %w", err)
	}
	if err := decodeJSON(billed, &u.BillingHistory); err != nil {
		return nil, fmt.Errorf("decode billing_history: %w", err)
	}
	return &u, nil
}

var (
	_ domain.UserRepository   = (*UserRepositoryPG)(nil)
	_ domain.CreditRepository = (*UserRepositoryPG)(nil)
)
