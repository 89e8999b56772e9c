package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const maxUploadBytes = 10 << 20

var imageExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Upload stores a source image the user can pass as image_urls.
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	if a.Storage == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "storage is not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", "file exceeds 10 MiB")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "multipart form expected")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read file")
		return
	}
	if len(data) > maxUploadBytes {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "file exceeds 10 MiB")
		return
	}
	mime := http.DetectContentType(data)
	ext, ok := imageExt[strings.SplitN(mime, ";", 2)[0]]
	if !ok {
		a.error(w, http.StatusUnsupportedMediaType, "unsupported_media", "only png, jpeg, webp and gif images are accepted")
		return
	}

	key, err := a.Storage.Write(r.Context(), "uploads/"+userID+"/"+uuid.NewString()+ext, data)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	u, err := a.Storage.URL(key)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]any{"key": key, "url": u, "mime": mime, "bytes": len(data)})
}
