package handlers

import (
	"time"

	"tasvir/internal/domain"
)

type taskDTO struct {
	ID              string     `json:"id"`
	ProviderTaskID  string     `json:"provider_task_id,omitempty"`
	Mode            string     `json:"mode"`
	Prompt          string     `json:"prompt"`
	NumImages       int        `json:"num_images"`
	ImageURLs       []string   `json:"image_urls,omitempty"`
	Status          string     `json:"status"`
	Images          []string   `json:"images"`
	Error           string     `json:"error,omitempty"`
	CreditsReserved int        `json:"credits_reserved"`
	CreditsDeducted bool       `json:"credits_deducted"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func toTaskDTO(t *domain.Task) taskDTO {
	images := t.Images
	if images == nil {
		images = []string{}
	}
	return taskDTO{
		ID:              t.ID,
		ProviderTaskID:  t.ProviderTaskID,
		Mode:            string(t.Mode),
		Prompt:          t.Prompt,
		NumImages:       t.NumImages,
		ImageURLs:       t.ImageURLs,
		Status:          string(t.Status),
		Images:          images,
		Error:           t.Error,
		CreditsReserved: t.CreditsReserved,
		CreditsDeducted: t.CreditsDeducted,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		CompletedAt:     t.CompletedAt,
	}
}

type userDTO struct {
	ID                       string    `json:"id"`
	Phone                    string    `json:"phone"`
	Name                     string    `json:"name,omitempty"`
	Plan                     string    `json:"plan"`
	Credits                  int       `json:"credits"`
	ImagesGeneratedThisMonth int       `json:"images_generated_this_month"`
	MonthResetAt             time.Time `json:"month_reset_at"`
}

func toUserDTO(u *domain.User) userDTO {
	plan := string(u.Plan)
	if plan == "" {
		plan = string(domain.UserPlanFree)
	}
	return userDTO{
		ID:                       u.ID,
		Phone:                    u.Phone,
		Name:                     u.Name,
		Plan:                     plan,
		Credits:                  u.Credits,
		ImagesGeneratedThisMonth: u.ImagesGeneratedThisMonth,
		MonthResetAt:             u.MonthResetAt,
	}
}
