package handlers

import (
	"net/http"
	"time"

	"tasvir/internal/middleware"
)

type otpRequest struct {
	Phone string `json:"phone"`
}

type otpVerifyRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      userDTO   `json:"user"`
}

func (a *App) OTPRequest(w http.ResponseWriter, r *http.Request) {
	if a.OTP == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "login is not configured")
		return
	}
	var req otpRequest
	if !a.decode(w, r, &req) {
		return
	}
	phone, err := a.OTP.RequestCode(r.Context(), req.Phone)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.logger().Info().
		Str("country", middleware.CountryFromContext(r.Context())).
		Str("ip", middleware.ClientIP(r)).
		Msg("auth: otp requested")
	a.json(w, http.StatusAccepted, map[string]any{"phone": phone, "expires_in": 120})
}

func (a *App) OTPVerify(w http.ResponseWriter, r *http.Request) {
	if a.OTP == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "login is not configured")
		return
	}
	var req otpVerifyRequest
	if !a.decode(w, r, &req) {
		return
	}
	session, err := a.OTP.VerifyCode(r.Context(), req.Phone, req.Code)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, sessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      toUserDTO(session.User),
	})
}

func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toUserDTO(user))
}
