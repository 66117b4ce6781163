package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/SamTV12345/PodFetch-sub001/internal/app"
	"github.com/SamTV12345/PodFetch-sub001/internal/domain"
	"github.com/SamTV12345/PodFetch-sub001/internal/httpjson"
)

type DownloadsHandler struct {
	downloads *app.DownloadManager
	// baseCtx detaches transfers from the request lifetime.
	baseCtx context.Context
}

func NewDownloadsHandler(downloads *app.DownloadManager) *DownloadsHandler {
	return &DownloadsHandler{downloads: downloads, baseCtx: context.Background()}
}

func (h *DownloadsHandler) Routes(r chi.Router) {
	r.Post("/downloads", h.start)
	r.Get("/downloads", h.list)
	r.Delete("/downloads", h.clearAll)
	r.Get("/downloads/active", h.active)
	r.Get("/downloads/stats", h.stats)
	r.Get("/downloads/{episodeID}", h.get)
	r.Delete("/downloads/{episodeID}", h.delete)
	r.Post("/downloads/{episodeID}/cancel", h.cancel)
}

type startDownloadRequest struct {
	Episode domain.Episode `json:"episode"`
	Podcast domain.Podcast `json:"podcast"`
}

// start kicks off a transfer in the background. Precondition refusals
// ("already downloaded", "already downloading") map to 409 so the UI can
// tell them from real faults.
func (h *DownloadsHandler) start(w http.ResponseWriter, r *http.Request) {
	var req startDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Episode.ID == "" {
		httpjson.WriteError(w, http.StatusBadRequest, "episode.id is required")
		return
	}

	// Cheap duplicate preflight for a synchronous 409; the manager
	// re-checks atomically before transferring.
	if h.downloads.IsDownloading(req.Episode.ID) {
		httpjson.WriteError(w, http.StatusConflict, app.ErrAlreadyDownloading.Error())
		return
	}
	if ok, err := h.downloads.IsDownloaded(r.Context(), req.Episode.ID); err == nil && ok {
		httpjson.WriteError(w, http.StatusConflict, app.ErrAlreadyDownloaded.Error())
		return
	}

	// The transfer outlives the request; outcomes reach the UI through
	// the progress stream, not this response.
	go func() { _ = h.downloads.Download(h.baseCtx, req.Episode, req.Podcast) }()

	httpjson.Write(w, http.StatusAccepted, map[string]string{"episodeId": req.Episode.ID, "status": "accepted"})
}

func (h *DownloadsHandler) list(w http.ResponseWriter, r *http.Request) {
	out, err := h.downloads.GetAllDownloads(r.Context())
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *DownloadsHandler) active(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, h.downloads.ActiveProgress())
}

func (h *DownloadsHandler) stats(w http.ResponseWriter, r *http.Request) {
	size, err := h.downloads.TotalDownloadSize(r.Context())
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	count, err := h.downloads.DownloadCount(r.Context())
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"totalSize": size, "count": count})
}

func (h *DownloadsHandler) get(w http.ResponseWriter, r *http.Request) {
	episodeID := chi.URLParam(r, "episodeID")
	path, ok, err := h.downloads.LocalPath(r.Context(), episodeID)
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	progress, hasProgress := h.downloads.LastProgress(episodeID)
	httpjson.Write(w, http.StatusOK, map[string]any{
		"episodeId":   episodeID,
		"downloaded":  ok,
		"downloading": h.downloads.IsDownloading(episodeID),
		"localPath":   path,
		"progress":    progressOrNil(progress, hasProgress),
	})
}

func (h *DownloadsHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.downloads.Delete(r.Context(), chi.URLParam(r, "episodeID")); err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DownloadsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	h.downloads.Cancel(chi.URLParam(r, "episodeID"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *DownloadsHandler) clearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.downloads.ClearAll(r.Context()); err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func progressOrNil(p domain.DownloadProgress, ok bool) any {
	if !ok {
		return nil
	}
	return p
}
