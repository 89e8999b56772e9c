package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"tasvir/internal/domain"
	"tasvir/internal/infra"
	"tasvir/internal/sqlinline"
)

// DiscountRepositoryPG implements domain.DiscountRepository.
type DiscountRepositoryPG struct {
	db infra.SQLExecutor
}

// NewDiscountRepository creates a discount repository over db.
func NewDiscountRepository(db infra.SQLExecutor) *DiscountRepositoryPG {
	return &DiscountRepositoryPG{db: db}
}

func (r *DiscountRepositoryPG) Create(ctx context.Context, d *domain.Discount) error {
	tag, err := r.db.Exec(ctx, sqlinline.QInsertDiscount,
		d.Code,
		string(d.DiscountType),
		d.DiscountValue,
		d.Capacity,
		d.UsedCount,
		d.ExpiresAt,
		d.IsActive,
		d.CreatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateOperation
	}
	return nil
}

func (r *DiscountRepositoryPG) GetByCode(ctx context.Context, code string) (*domain.Discount, error) {
	return scanDiscount(r.db.QueryRow(ctx, sqlinline.QSelectDiscountByCode, code))
}

// Redeem consumes one use. When the guarded update matches nothing the code
// is fetched again to tell an exhausted code from an inactive or expired one.
func (r *DiscountRepositoryPG) Redeem(ctx context.Context, code string, now time.Time) (*domain.Discount, error) {
	d, err := scanDiscount(r.db.QueryRow(ctx, sqlinline.QRedeemDiscount, code, now))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	current, err := r.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if current.IsActive && current.UsedCount >= current.Capacity {
		return nil, domain.ErrDiscountExhausted
	}
	return nil, domain.ErrDiscountInvalid
}

// Release returns one use of code. Releasing a code with no recorded uses is
// a no-op.
func (r *DiscountRepositoryPG) Release(ctx context.Context, code string) error {
	_, err := r.db.Exec(ctx, sqlinline.QReleaseDiscount, code)
	return err
}

func scanDiscount(row pgx.Row) (*domain.Discount, error) {
	var (
		d    domain.Discount
		kind string
	)
	if err := row.Scan(
		&d.Code,
		&kind,
		&d.DiscountValue,
		&d.Capacity,
		&d.UsedCount,
		&d.ExpiresAt,
		&d.IsActive,
		&d.CreatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	d.DiscountType = domain.DiscountType(kind)
	return &d, nil
}

var _ domain.DiscountRepository = (*DiscountRepositoryPG)(nil)
