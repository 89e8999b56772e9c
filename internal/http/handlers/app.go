package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"tasvir/internal/auth"
	"tasvir/internal/billing"
	"tasvir/internal/discount"
	"tasvir/internal/domain"
	"tasvir/internal/generation"
	"tasvir/internal/infra"
	"tasvir/internal/middleware"
	"tasvir/internal/storage"
)

const maxJSONBody = 1 << 20

// App holds the dependencies shared by the HTTP handlers.
type App struct {
	Config     *infra.Config
	Logger     *infra.Logger
	Generation *generation.Service
	Users      domain.UserRepository
	Discounts  *discount.Service
	Billing    *billing.Service
	// OTP is nil when no Redis is configured; the login endpoints then
	// answer 503.
	OTP        *auth.OTP
	Storage    *storage.FileStore
	HTTPClient *http.Client
	// ParseCallback decodes a provider webhook body.
	ParseCallback func(body []byte) (generation.StatusPayload, error)
	// Readiness maps a backing service name to its ping.
	Readiness map[string]func(context.Context) error
}

func (a *App) logger() *infra.Logger {
	if a.Logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		a.Logger = &l
	}
	return a.Logger
}

func (a *App) httpClient() *http.Client {
	if a.HTTPClient == nil {
		a.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return a.HTTPClient
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

// fail maps a domain error onto the error envelope.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		a.error(w, http.StatusBadRequest, "validation", verr.Error())
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, domain.ErrInsufficientCredits):
		a.error(w, http.StatusPaymentRequired, "insufficient_credits", "not enough credits")
	case errors.Is(err, domain.ErrUnsupportedPlan):
		a.error(w, http.StatusBadRequest, "unsupported_plan", "unknown plan")
	case errors.Is(err, domain.ErrTaskNotFound), errors.Is(err, domain.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, auth.ErrThrottled):
		a.error(w, http.StatusTooManyRequests, "throttled", "code requested too recently")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, domain.ErrDiscountExhausted):
		a.error(w, http.StatusConflict, "discount_exhausted", "discount code has no uses left")
	case errors.Is(err, domain.ErrDiscountInvalid):
		a.error(w, http.StatusUnprocessableEntity, "discount_invalid", "discount code is not valid")
	case errors.Is(err, domain.ErrDuplicateOperation):
		a.error(w, http.StatusConflict, "duplicate", "already exists")
	case errors.Is(err, domain.ErrProviderUnavailable):
		a.error(w, http.StatusBadGateway, "provider_unavailable", "generation provider unavailable")
	default:
		a.logger().Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// requireUser writes 401 and returns "" when no user is attached.
func (a *App) requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
	}
	return userID
}
