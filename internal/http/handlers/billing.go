package handlers

import (
	"net/http"
	"strings"
	"time"

	"tasvir/internal/billing"
	"tasvir/internal/domain"
	"tasvir/internal/middleware"
)

func (a *App) Plans(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"items": billing.Plans()})
}

func (a *App) BillingHistory(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := user.BillingHistory
	if items == nil {
		items = []domain.BillingEntry{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

type discountPreviewRequest struct {
	Code string `json:"code"`
	Plan string `json:"plan"`
}

// DiscountPreview prices a plan with a code without consuming it.
func (a *App) DiscountPreview(w http.ResponseWriter, r *http.Request) {
	var req discountPreviewRequest
	if !a.decode(w, r, &req) {
		return
	}
	plan, err := billing.LookupPlan(req.Plan)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	quote, err := a.Discounts.Preview(r.Context(), req.Code, plan.Price)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"plan": plan, "quote": quote})
}

type createDiscountRequest struct {
	Code          string     `json:"code"`
	DiscountType  string     `json:"discount_type"`
	DiscountValue int64      `json:"discount_value"`
	Capacity      int        `json:"capacity"`
	ExpiresAt     *time.Time `json:"expires_at"`
	IsActive      *bool      `json:"is_active"`
}

func (a *App) AdminCreateDiscount(w http.ResponseWriter, r *http.Request) {
	var req createDiscountRequest
	if !a.decode(w, r, &req) {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	d, err := a.Discounts.Create(r.Context(), domain.Discount{
		Code:          req.Code,
		DiscountType:  domain.DiscountType(strings.ToLower(strings.TrimSpace(req.DiscountType))),
		DiscountValue: req.DiscountValue,
		Capacity:      req.Capacity,
		ExpiresAt:     req.ExpiresAt,
		IsActive:      active,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, d)
}

type purchaseRequest struct {
	UserID       string `json:"user_id"`
	Plan         string `json:"plan"`
	DiscountCode string `json:"discount_code"`
}

// AdminPurchase records a plan purchase confirmed outside the API.
func (a *App) AdminPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !a.decode(w, r, &req) {
		return
	}
	receipt, err := a.Billing.Purchase(r.Context(), billing.PurchaseRequest{
		UserID:       req.UserID,
		Plan:         req.Plan,
		DiscountCode: req.DiscountCode,
		Country:      middleware.CountryFromContext(r.Context()),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.logger().Info().
		Str("user_id", req.UserID).
		Str("plan", string(receipt.Entry.Plan)).
		Str("reference", receipt.Entry.Reference).
		Int64("final_amount", receipt.Entry.FinalAmount).
		Msg("billing: purchase recorded")
	a.json(w, http.StatusCreated, map[string]any{"entry": receipt.Entry, "user": toUserDTO(receipt.User)})
}
