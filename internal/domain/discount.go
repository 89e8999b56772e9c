package domain

import "time"

// DiscountType enumerates how a discount value is applied.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// Discount is a redeemable promotion code. UsedCount never exceeds Capacity.
type Discount struct {
	Code          string       `json:"code"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue int64        `json:"discount_value"`
	Capacity      int          `json:"capacity"`
	UsedCount     int          `json:"used_count"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
	IsActive      bool         `json:"is_active"`
	CreatedAt     time.Time    `json:"created_at"`
}
