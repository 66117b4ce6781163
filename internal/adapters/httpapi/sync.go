package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/SamTV12345/PodFetch-sub001/internal/app"
	"github.com/SamTV12345/PodFetch-sub001/internal/httpjson"
	"github.com/SamTV12345/PodFetch-sub001/internal/ports"
)

type SyncHandler struct {
	sync *app.SyncService
}

func NewSyncHandler(syncSvc *app.SyncService) *SyncHandler {
	return &SyncHandler{sync: syncSvc}
}

func (h *SyncHandler) Routes(r chi.Router) {
	r.Post("/sync", h.run)
	r.Get("/sync/status", h.status)
	r.Get("/episodes/{episodeID}/progress", h.pull)
	r.Put("/episodes/{episodeID}/progress", h.save)
}

func (h *SyncHandler) run(w http.ResponseWriter, r *http.Request) {
	result, err := h.sync.SyncAll(r.Context())
	switch {
	case errors.Is(err, app.ErrSyncInProgress):
		httpjson.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrOffline):
		httpjson.WriteError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
	default:
		// A manual pass drains the retry queue too, same as the
		// auto-sync loop.
		h.sync.DrainQueue(r.Context())
		httpjson.Write(w, http.StatusOK, result)
	}
}

func (h *SyncHandler) status(w http.ResponseWriter, r *http.Request) {
	pending, err := h.sync.PendingSyncCount(r.Context())
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{
		"online":  h.sync.IsOnline(r.Context()),
		"syncing": h.sync.IsSyncInProgress(),
		"pending": pending,
	})
}

type saveProgressRequest struct {
	PodcastID     int   `json:"podcastId"`
	WatchedTimeMs int64 `json:"watchedTime"`
	TotalTimeMs   int64 `json:"totalTime"`
}

func (h *SyncHandler) save(w http.ResponseWriter, r *http.Request) {
	episodeID := chi.URLParam(r, "episodeID")
	var req saveProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.WatchedTimeMs < 0 || req.TotalTimeMs < 0 {
		httpjson.WriteError(w, http.StatusBadRequest, "times must be >= 0")
		return
	}
	if err := h.sync.SaveWatchProgress(r.Context(), episodeID, req.PodcastID, req.WatchedTimeMs, req.TotalTimeMs); err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rec, err := h.sync.GetLocalProgress(r.Context(), episodeID)
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, rec)
}

func (h *SyncHandler) pull(w http.ResponseWriter, r *http.Request) {
	episodeID := chi.URLParam(r, "episodeID")
	rec, err := h.sync.Pull(r.Context(), episodeID, 0)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			httpjson.WriteError(w, http.StatusNotFound, "no progress for episode")
			return
		}
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, rec)
}
