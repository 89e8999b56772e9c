package domain

import "time"

// UserPlan enumerates billing plans.
type UserPlan string

const (
	UserPlanFree     UserPlan = "free"
	UserPlanStarter  UserPlan = "starter"
	UserPlanPro      UserPlan = "pro"
	UserPlanBusiness UserPlan = "business"
)

// User represents an authenticated account together with its credit ledger.
type User struct {
	ID                       string
	Phone                    string
	Name                     string
	Plan                     UserPlan
	Credits                  int
	ImagesGeneratedThisMonth int
	MonthResetAt             time.Time
	ImageHistory             []HistoryEntry
	VideoHistory             []HistoryEntry
	BillingHistory           []BillingEntry
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// IsFree reports whether the user is using the free plan.
func (u User) IsFree() bool {
	return u.Plan == UserPlanFree || u.Plan == ""
}

// History returns the history list matching the task mode.
func (u User) History(mode TaskMode) []HistoryEntry {
	if mode == TaskModeVideo {
		return u.VideoHistory
	}
	return u.ImageHistory
}
