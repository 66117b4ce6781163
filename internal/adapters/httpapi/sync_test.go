package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/SamTV12345/PodFetch-sub001/internal/adapters/sqlite"
	"github.com/SamTV12345/PodFetch-sub001/internal/app"
	"github.com/SamTV12345/PodFetch-sub001/internal/domain"
)

// newOfflineSyncRouter wires a sync service with no reachability, which
// reads as permanently offline.
func newOfflineSyncRouter(t *testing.T) chi.Router {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	creds := func(context.Context) (domain.ServerCredentials, error) {
		return domain.ServerCredentials{}, nil
	}
	svc := app.NewSyncService(zerolog.Nop(), sqlite.NewProgressRepository(db.SQL),
		sqlite.NewQueueRepository(db.SQL), nil, creds, nil)

	r := chi.NewRouter()
	NewSyncHandler(svc).Routes(r)
	return r
}

func TestSyncHandler_SaveAndReadProgressOffline(t *testing.T) {
	r := newOfflineSyncRouter(t)

	body := []byte(`{"podcastId":3,"watchedTime":125678,"totalTime":300000}`)
	req := httptest.NewRequest(http.MethodPut, "/episodes/ep-1/progress", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("save status: want %d, got %d (%s)", http.StatusOK, rr.Code, rr.Body.String())
	}

	var rec domain.WatchProgress
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.WatchedTimeMs != 125678 || !rec.NeedsSync {
		t.Fatalf("expected pending row with ms precision, got %+v", rec)
	}

	// Offline pull falls back to the local row.
	req = httptest.NewRequest(http.MethodGet, "/episodes/ep-1/progress", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("pull status: want %d, got %d", http.StatusOK, rr.Code)
	}

	// Unknown episode is a 404.
	req = httptest.NewRequest(http.MethodGet, "/episodes/ghost/progress", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("pull ghost: want %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestSyncHandler_SaveRejectsNegativeTimes(t *testing.T) {
	r := newOfflineSyncRouter(t)

	req := httptest.NewRequest(http.MethodPut, "/episodes/ep-1/progress", bytes.NewReader([]byte(`{"watchedTime":-1}`)))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: want %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

type alwaysOnline struct{}

func (alwaysOnline) Online(context.Context) bool { return true }

func TestSyncHandler_ManualSyncDrainsQueue(t *testing.T) {
	db, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	creds := func(context.Context) (domain.ServerCredentials, error) {
		return domain.ServerCredentials{}, nil
	}
	svc := app.NewSyncService(zerolog.Nop(), sqlite.NewProgressRepository(db.SQL),
		sqlite.NewQueueRepository(db.SQL), alwaysOnline{}, creds, nil)

	delivered := make(chan struct{}, 1)
	svc.RegisterQueueHandler("ping", func(ctx context.Context, item domain.SyncQueueItem) error {
		delivered <- struct{}{}
		return nil
	})
	if err := svc.Enqueue(context.Background(), "ping", map[string]string{}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	r := chi.NewRouter()
	NewSyncHandler(svc).Routes(r)

	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("sync status: want %d, got %d (%s)", http.StatusOK, rr.Code, rr.Body.String())
	}

	select {
	case <-delivered:
	default:
		t.Fatalf("manual sync must drain the retry queue")
	}
}

func TestSyncHandler_StatusAndOfflineSync(t *testing.T) {
	r := newOfflineSyncRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/sync/status", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: want %d, got %d", http.StatusOK, rr.Code)
	}
	var status struct {
		Online  bool `json:"online"`
		Syncing bool `json:"syncing"`
		Pending int  `json:"pending"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Online || status.Syncing || status.Pending != 0 {
		t.Fatalf("unexpected status %+v", status)
	}

	// Forcing a pass while offline maps to 503.
	req = httptest.NewRequest(http.MethodPost, "/sync", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("sync status: want %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
}
