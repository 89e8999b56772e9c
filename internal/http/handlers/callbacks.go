package handlers

import (
	"errors"
	"io"
	"net/http"

	"tasvir/internal/domain"
)

// GenerationCallback receives provider webhooks. Well-formed payloads are
// acknowledged with 200 even when they are duplicates or name an unknown
// task, so the provider stops retrying; store failures answer 500 so it
// retries later.
func (a *App) GenerationCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}
	payload, err := a.ParseCallback(body)
	if err != nil {
		a.logger().Warn().Err(err).Msg("callback: malformed payload")
		a.error(w, http.StatusBadRequest, "bad_request", "malformed callback payload")
		return
	}

	q := r.URL.Query()
	localID := q.Get("task")
	log := a.logger().With().
		Str("task_id", localID).
		Str("provider_task_id", payload.ProviderTaskID).
		Int("success_flag", payload.SuccessFlag).
		Logger()
	if localID != "" && !a.Generation.VerifyCallback(localID, q.Get("sig")) {
		log.Warn().Msg("callback: bad signature")
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid callback signature")
		return
	}
	if localID == "" {
		log.Warn().Msg("callback: unsigned, correlating by provider task id")
	}

	task, err := a.Generation.HandleCallback(r.Context(), localID, payload)
	switch {
	case err == nil:
		log.Info().Str("status", string(task.Status)).Msg("callback: applied")
		a.json(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, domain.ErrTaskNotFound), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrValidation):
		log.Warn().Err(err).Msg("callback: ignored")
		a.json(w, http.StatusOK, map[string]string{"status": "ignored"})
	default:
		log.Error().Err(err).Msg("callback: apply failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to apply callback")
	}
}
