// Package billing sells credit plans. Payment collection happens elsewhere;
// Purchase is called once a payment has been confirmed.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"

	"tasvir/internal/discount"
	"tasvir/internal/domain"
)

const releaseTimeout = 10 * time.Second

var catalog = []domain.Plan{
	{Name: domain.UserPlanStarter, Credits: 100, Price: 149_000},
	{Name: domain.UserPlanPro, Credits: 350, Price: 449_000},
	{Name: domain.UserPlanBusiness, Credits: 1_200, Price: 1_290_000},
}

// Plans returns the purchasable plans, cheapest first. Prices are in toman.
func Plans() []domain.Plan {
	out := make([]domain.Plan, len(catalog))
	copy(out, catalog)
	return out
}

// LookupPlan finds a purchasable plan by name.
func LookupPlan(name string) (domain.Plan, error) {
	want := domain.UserPlan(strings.ToLower(strings.TrimSpace(name)))
	for _, p := range catalog {
		if p.Name == want {
			return p, nil
		}
	}
	return domain.Plan{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedPlan, name)
}

// DiscountRedeemer consumes a discount code against an amount and gives the
// use back when the purchase does not complete.
type DiscountRedeemer interface {
	Redeem(ctx context.Context, code string, amount int64) (discount.Quote, error)
	Release(ctx context.Context, code string) error
}

// PlanSetter applies a plan allotment to a user.
type PlanSetter interface {
	SetPlan(ctx context.Context, userID string, plan domain.Plan) (*domain.User, error)
}

// BillingAppender records purchases on the user document.
type BillingAppender interface {
	AppendBilling(ctx context.Context, userID string, entry domain.BillingEntry) error
}

// PurchaseRequest describes a confirmed plan purchase.
type PurchaseRequest struct {
	UserID       string
	Plan         string
	DiscountCode string
	Country      string
}

// Receipt is the result of a purchase.
type Receipt struct {
	User  *domain.User        `json:"-"`
	Entry domain.BillingEntry `json:"entry"`
}

// Service applies plan purchases.
type Service struct {
	discounts DiscountRedeemer
	plans     PlanSetter
	billing   BillingAppender
	node      *snowflake.Node
	now       func() time.Time
}

// NewService builds a Service issuing references from snowflake node nodeID.
func NewService(discounts DiscountRedeemer, plans PlanSetter, billing BillingAppender, nodeID int64) (*Service, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &Service{discounts: discounts, plans: plans, billing: billing, node: node, now: time.Now}, nil
}

// Quote prices a plan with an optional discount code without redeeming it.
func Quote(plan domain.Plan, d *domain.Discount) discount.Quote {
	if d == nil {
		return discount.Quote{Amount: plan.Price, FinalAmount: plan.Price}
	}
	off := discount.Calculate(*d, plan.Price)
	return discount.Quote{Code: d.Code, Amount: plan.Price, Discount: off, FinalAmount: plan.Price - off}
}

// Purchase redeems the discount (if any), replaces the user's plan and
// balance, and appends a billing entry.
func (s *Service) Purchase(ctx context.Context, req PurchaseRequest) (*Receipt, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, domain.NewValidationError("user_id", "required")
	}
	plan, err := LookupPlan(req.Plan)
	if err != nil {
		return nil, err
	}

	q := discount.Quote{Amount: plan.Price, FinalAmount: plan.Price}
	if code := strings.TrimSpace(req.DiscountCode); code != "" {
		if q, err = s.discounts.Redeem(ctx, code, plan.Price); err != nil {
			return nil, err
		}
	}

	user, err := s.plans.SetPlan(ctx, req.UserID, plan)
	if err != nil {
		if q.Code != "" {
			if relErr := s.release(ctx, q.Code); relErr != nil {
				return nil, errors.Join(err, relErr)
			}
		}
		return nil, err
	}

	entry := domain.BillingEntry{
		ID:             uuid.NewString(),
		Reference:      s.node.Generate().String(),
		Plan:           plan.Name,
		Credits:        plan.Credits,
		Amount:         q.Amount,
		DiscountCode:   q.Code,
		DiscountAmount: q.Discount,
		FinalAmount:    q.FinalAmount,
		Country:        strings.ToUpper(strings.TrimSpace(req.Country)),
		CreatedAt:      s.now().UTC(),
	}
	if err := s.billing.AppendBilling(ctx, req.UserID, entry); err != nil {
		return nil, fmt.Errorf("append billing entry: %w", err)
	}
	user.BillingHistory = append(user.BillingHistory, entry)
	return &Receipt{User: user, Entry: entry}, nil
}

// release returns a redeemed use even when the request context is gone.
func (s *Service) release(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.discounts.Release(ctx, code); err != nil {
		return fmt.Errorf("release discount %s: %w", code, err)
	}
	return nil
}
