package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/crowdflash/crowdflash-server/pkg/eventlog"
	"github.com/crowdflash/crowdflash-server/pkg/metrics"
	"github.com/crowdflash/crowdflash-server/pkg/models"
	"github.com/crowdflash/crowdflash-server/pkg/storage"
	"go.uber.org/zap"
)

// VideoHandler exposes the device recording store. It feeds the event
// log so uploads and deletions show up on the admin console, but has
// no other coupling to the coordination core.
type VideoHandler struct {
	store   *storage.VideoStore
	log     *eventlog.Log
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewVideoHandler(store *storage.VideoStore, log *eventlog.Log, logger *zap.Logger) *VideoHandler {
	return &VideoHandler{
		store:  store,
		log:    log,
		logger: logger,
	}
}

func (h *VideoHandler) SetMetrics(m *metrics.Metrics) {
	h.metrics = m
}

// HandleUpload streams the raw request body to the store. The filename
// comes from the X-Filename header.
func (h *VideoHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name, err := h.store.Save(r.Header.Get("X-Filename"), r.Body)
	if err != nil {
		h.logger.Error("Upload failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false, "message": "Upload failed",
		})
		return
	}

	if h.metrics != nil {
		h.metrics.Http.UploadsTotal.Inc()
	}
	h.log.Append(models.LogSYS, fmt.Sprintf("Video uploaded: %s", name))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true, "filename": name,
	})
}

// HandleVideos lists stored videos on GET and deletes the named ones
// on DELETE.
func (h *VideoHandler) HandleVideos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *VideoHandler) handleList(w http.ResponseWriter) {
	files, err := h.store.List()
	if err != nil {
		h.logger.Error("Failed to list videos", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false, "files": []storage.VideoFile{},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true, "files": files,
	})
}

func (h *VideoHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filenames []string `json:"filenames"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Filenames) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "message": "No filenames provided",
		})
		return
	}

	deleted, errs := h.store.Delete(req.Filenames)

	if h.metrics != nil {
		h.metrics.Http.VideosDeleted.Add(float64(deleted))
	}
	message := fmt.Sprintf("Deleted %d video(s)", deleted)
	if errs > 0 {
		message = fmt.Sprintf("%s (%d errors)", message, errs)
	}
	h.log.Append(models.LogSYS, message)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true, "deleted": deleted, "errors": errs,
	})
}

// HandleZip streams a zip of every stored video.
func (h *VideoHandler) HandleZip(w http.ResponseWriter, r *http.Request) {
	files, err := h.store.List()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false, "message": "Cannot read uploads",
		})
		return
	}
	if len(files) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"success": false, "message": "No videos to download",
		})
		return
	}

	zipName := fmt.Sprintf("crowdflash_videos_%d.zip", time.Now().UnixMilli())
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", zipName))

	if _, err := h.store.WriteZip(w); err != nil {
		// Headers are already gone; all we can do is log.
		h.logger.Error("Failed to stream video archive", zap.Error(err))
	}
}
