package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tasvir/internal/domain"
	"tasvir/internal/generation"
	"tasvir/pkg/zip"
)

const maxAssetBytes = 50 << 20

type generateRequest struct {
	Prompt    string   `json:"prompt"`
	NumImages int      `json:"num_images"`
	Mode      string   `json:"mode"`
	ImageURLs []string `json:"image_urls"`
}

type generateResponse struct {
	Task             taskDTO `json:"task"`
	RemainingCredits int     `json:"remaining_credits"`
}

func (a *App) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	var req generateRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.Generation.Submit(r.Context(), generation.SubmitRequest{
		UserID:    userID,
		Prompt:    req.Prompt,
		NumImages: req.NumImages,
		Mode:      domain.TaskMode(strings.ToLower(strings.TrimSpace(req.Mode))),
		ImageURLs: req.ImageURLs,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, generateResponse{Task: toTaskDTO(res.Task), RemainingCredits: res.RemainingCredits})
}

func (a *App) ListGenerations(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	tasks, err := a.Generation.List(r.Context(), userID, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]taskDTO, 0, len(tasks))
	for i := range tasks {
		items = append(items, toTaskDTO(&tasks[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// GetGeneration is the client poll endpoint: open tasks are re-checked with
// the provider before they are returned.
func (a *App) GetGeneration(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	id, ok := a.taskIDParam(w, r)
	if !ok {
		return
	}
	task, err := a.Generation.Refresh(r.Context(), userID, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toTaskDTO(task))
}

func (a *App) GenerationZip(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	id, ok := a.taskIDParam(w, r)
	if !ok {
		return
	}
	task, err := a.Generation.Get(r.Context(), userID, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if task.Status != domain.TaskStatusCompleted || len(task.Images) == 0 {
		a.error(w, http.StatusConflict, "not_ready", "task has no results yet")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()
	modified := task.UpdatedAt
	if task.CompletedAt != nil {
		modified = *task.CompletedAt
	}
	assets := make([]zip.Asset, 0, len(task.Images))
	for i, u := range task.Images {
		data, mime, err := a.fetchAsset(ctx, u)
		if err != nil {
			a.logger().Warn().Err(err).Str("task_id", task.ID).Str("url", u).Msg("zip: fetch asset failed")
			a.error(w, http.StatusBadGateway, "fetch_failed", "failed to fetch generated asset")
			return
		}
		assets = append(assets, zip.Asset{Filename: assetFilename(task.ID, i, u), MIME: mime, Data: data, Modified: modified})
	}
	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=tasvir-%s.zip", task.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// taskIDParam reads the {id} route parameter. Anything that is not a task id
// cannot name a task and is answered with 404.
func (a *App) taskIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		a.fail(w, r, domain.ErrTaskNotFound)
		return "", false
	}
	return id, true
}

// fetchAsset loads a result either from local storage, when the URL points
// at it, or over HTTP.
func (a *App) fetchAsset(ctx context.Context, rawURL string) ([]byte, string, error) {
	if a.Storage != nil && a.Config != nil && a.Config.StorageBaseURL != "" {
		prefix := strings.TrimRight(a.Config.StorageBaseURL, "/") + "/"
		if key, ok := strings.CutPrefix(rawURL, prefix); ok {
			data, err := a.Storage.Read(ctx, key)
			if err != nil {
				return nil, "", err
			}
			return data, http.DetectContentType(data), nil
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := a.httpClient().Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, "", fmt.Errorf("asset status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes))
	if err != nil {
		return nil, "", err
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}

func assetFilename(taskID string, index int, rawURL string) string {
	ext := path.Ext(strings.SplitN(rawURL, "?", 2)[0])
	if ext == "" || len(ext) > 5 {
		ext = ".png"
	}
	return fmt.Sprintf("%s-%d%s", taskID, index+1, ext)
}
