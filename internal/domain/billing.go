package domain

import "time"

// Plan describes a purchasable credit package.
type Plan struct {
	Name    UserPlan `json:"name"`
	Credits int      `json:"credits"`
	Price   int64    `json:"price"`
}

// BillingEntry records one plan purchase on the user's billing history.
type BillingEntry struct {
	ID             string    `json:"id"`
	Reference      string    `json:"reference"`
	Plan           UserPlan  `json:"plan"`
	Credits        int       `json:"credits"`
	Amount         int64     `json:"amount"`
	DiscountCode   string    `json:"discount_code,omitempty"`
	DiscountAmount int64     `json:"discount_amount"`
	FinalAmount    int64     `json:"final_amount"`
	Country        string    `json:"country,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
