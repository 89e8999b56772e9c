package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tasvir/internal/domain"
)

// historyMode accepts both the singular and plural path forms.
func historyMode(kind string) (domain.TaskMode, bool) {
	switch strings.ToLower(kind) {
	case "image", "images":
		return domain.TaskModeImage, true
	case "video", "videos":
		return domain.TaskModeVideo, true
	}
	return "", false
}

func (a *App) ListHistory(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	mode, ok := historyMode(chi.URLParam(r, "kind"))
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "unknown history kind")
		return
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := user.History(mode)
	if items == nil {
		items = []domain.HistoryEntry{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	mode, ok := historyMode(chi.URLParam(r, "kind"))
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "unknown history kind")
		return
	}
	if err := a.Users.DeleteHistory(r.Context(), userID, mode, chi.URLParam(r, "entryID")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
