package handlers

import (
	"context"
	"net/http"
	"time"
)

const readyTimeout = 2 * time.Second

// Health is the liveness endpoint: it answers as long as the process serves.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Ready runs the readiness checks concurrently under one deadline and answers
// 503 when any backing service is unreachable.
func (a *App) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	type result struct {
		name string
		err  error
	}
	results := make(chan result, len(a.Readiness))
	for name, check := range a.Readiness {
		name, check := name, check
		go func() {
			results <- result{name: name, err: check(ctx)}
		}()
	}

	resp := readyResponse{Status: "ok", Checks: make(map[string]string, len(a.Readiness))}
	for range a.Readiness {
		res := <-results
		if res.err != nil {
			a.logger().Warn().Err(res.err).Str("check", res.name).Msg("health: dependency not ready")
			resp.Status = "unavailable"
			resp.Checks[res.name] = res.err.Error()
			continue
		}
		resp.Checks[res.name] = "ok"
	}
	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	a.json(w, code, resp)
}
