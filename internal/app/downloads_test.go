package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/SamTV12345/PodFetch-sub001/internal/adapters/sqlite"
	"github.com/SamTV12345/PodFetch-sub001/internal/domain"
)

func newTestManager(t *testing.T, opts DownloadManagerOptions) *DownloadManager {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if opts.DestinationFunc == nil {
		dir := t.TempDir()
		opts.DestinationFunc = func(context.Context) (string, error) { return dir, nil }
	}
	return NewDownloadManager(zerolog.Nop(), sqlite.NewDownloadsRepository(db.SQL), nil, opts)
}

func TestDownloadManager_DownloadThenIdempotent(t *testing.T) {
	body := []byte("fake audio payload")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	m := newTestManager(t, DownloadManagerOptions{})
	ctx := context.Background()
	ep := domain.Episode{ID: "ep-1", PodcastID: 2, Name: "One", OriginalURL: srv.URL + "/ep1.mp3", TotalTimeMs: 60_000}
	pod := domain.Podcast{ID: 2, Name: "Show"}

	if err := m.Download(ctx, ep, pod); err != nil {
		t.Fatalf("Download: %v", err)
	}

	path, ok, err := m.LocalPath(ctx, "ep-1")
	if err != nil || !ok {
		t.Fatalf("LocalPath: ok=%v err=%v", ok, err)
	}
	if filepath.Base(path) != "ep_1.mp3" {
		t.Fatalf("unexpected filename %q", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(b) != string(body) {
		t.Fatalf("file content mismatch")
	}

	rec, err := m.store.GetDownloadedEpisode(ctx, "ep-1")
	if err != nil {
		t.Fatalf("GetDownloadedEpisode: %v", err)
	}
	if rec.FileSize != int64(len(body)) || rec.PodcastName != "Show" {
		t.Fatalf("unexpected record %+v", rec)
	}

	if p, ok := m.LastProgress("ep-1"); !ok || p.Status != domain.DownloadCompleted || p.Progress != 1 {
		t.Fatalf("expected completed progress, got %+v ok=%v", p, ok)
	}

	// Same episode again is a no-op precondition, not a fault.
	if err := m.Download(ctx, ep, pod); !errors.Is(err, ErrAlreadyDownloaded) {
		t.Fatalf("expected ErrAlreadyDownloaded, got %v", err)
	}
}

func TestDownloadManager_SelfHealsVanishedFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data"))
	}))
	t.Cleanup(srv.Close)

	m := newTestManager(t, DownloadManagerOptions{})
	ctx := context.Background()
	ep := domain.Episode{ID: "ep-1", OriginalURL: srv.URL + "/ep1.mp3"}

	if err := m.Download(ctx, ep, domain.Podcast{}); err != nil {
		t.Fatalf("Download: %v", err)
	}
	path, _, err := m.LocalPath(ctx, "ep-1")
	if err != nil {
		t.Fatalf("LocalPath: %v", err)
	}

	// Someone clears storage behind our back.
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	ok, err := m.IsDownloaded(ctx, "ep-1")
	if err != nil {
		t.Fatalf("IsDownloaded: %v", err)
	}
	if ok {
		t.Fatalf("vanished file must read as not downloaded")
	}
	// The stale row must be gone too, so a fresh download goes through.
	if err := m.Download(ctx, ep, domain.Podcast{}); err != nil {
		t.Fatalf("re-download after heal: %v", err)
	}
	if ok, _ := m.IsDownloaded(ctx, "ep-1"); !ok {
		t.Fatalf("expected downloaded after heal")
	}
}

func TestDownloadManager_ConcurrentDuplicate(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte("data"))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})

	m := newTestManager(t, DownloadManagerOptions{})
	ep := domain.Episode{ID: "ep-1", OriginalURL: srv.URL + "/ep1.mp3"}

	firstDone := make(chan error, 1)
	go func() { firstDone <- m.Download(context.Background(), ep, domain.Podcast{}) }()

	// Wait for the first call to claim the active slot.
	deadline := time.Now().Add(2 * time.Second)
	for !m.IsDownloading("ep-1") {
		if time.Now().After(deadline) {
			t.Fatalf("first download never became active")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := m.Download(context.Background(), ep, domain.Podcast{}); !errors.Is(err, ErrAlreadyDownloading) {
		t.Fatalf("expected ErrAlreadyDownloading, got %v", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first download: %v", err)
	}
}

func TestDownloadManager_Cancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		_, _ = w.Write([]byte("partial chunk"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	m := newTestManager(t, DownloadManagerOptions{})
	ep := domain.Episode{ID: "ep-1", OriginalURL: srv.URL + "/ep1.mp3"}

	sawDownloading := make(chan struct{})
	var once bool
	unsub := m.SubscribeProgress("ep-1", func(p domain.DownloadProgress) {
		if p.Status == domain.DownloadDownloading && !once {
			once = true
			close(sawDownloading)
		}
	})
	defer unsub()

	done := make(chan error, 1)
	go func() { done <- m.Download(context.Background(), ep, domain.Podcast{}) }()

	select {
	case <-sawDownloading:
	case <-time.After(2 * time.Second):
		t.Fatalf("never saw downloading progress")
	}

	m.Cancel("ep-1")

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if p, ok := m.LastProgress("ep-1"); !ok || p.Status != domain.DownloadCancelled {
		t.Fatalf("expected cancelled status, got %+v ok=%v", p, ok)
	}
	if ok, _ := m.IsDownloaded(context.Background(), "ep-1"); ok {
		t.Fatalf("cancelled download must not be recorded")
	}
	// No partial file left behind.
	dir, _ := m.opts.DestinationFunc(context.Background())
	if _, err := os.Stat(filepath.Join(dir, "ep_1.mp3")); !os.IsNotExist(err) {
		t.Fatalf("expected partial file removed, stat err=%v", err)
	}
}

func TestDownloadManager_Delete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data"))
	}))
	t.Cleanup(srv.Close)

	m := newTestManager(t, DownloadManagerOptions{})
	ctx := context.Background()
	ep := domain.Episode{ID: "ep-1", OriginalURL: srv.URL + "/ep1.mp3"}

	if err := m.Download(ctx, ep, domain.Podcast{}); err != nil {
		t.Fatalf("Download: %v", err)
	}
	path, _, err := m.LocalPath(ctx, "ep-1")
	if err != nil {
		t.Fatalf("LocalPath: %v", err)
	}

	if err := m.Delete(ctx, "ep-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err=%v", err)
	}
	if ok, _ := m.IsDownloaded(ctx, "ep-1"); ok {
		t.Fatalf("expected row removed")
	}
	if _, ok := m.LastProgress("ep-1"); ok {
		t.Fatalf("expected cached status cleared")
	}

	// Deleting what is not there is fine.
	if err := m.Delete(ctx, "ghost"); err != nil {
		t.Fatalf("Delete(ghost): %v", err)
	}
}

func TestDownloadManager_ActiveProgressOmitsFinished(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte("data"))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})

	m := newTestManager(t, DownloadManagerOptions{})
	ep := domain.Episode{ID: "ep-1", OriginalURL: srv.URL + "/ep1.mp3"}

	done := make(chan error, 1)
	go func() { done <- m.Download(context.Background(), ep, domain.Podcast{}) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(m.ActiveProgress()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("transfer never showed up as active")
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Download: %v", err)
	}

	// Finished transfers drop out of the active view but stay cached for
	// per-episode replay.
	if got := m.ActiveProgress(); len(got) != 0 {
		t.Fatalf("expected no active transfers, got %+v", got)
	}
	if p, ok := m.LastProgress("ep-1"); !ok || p.Status != domain.DownloadCompleted {
		t.Fatalf("expected completed status still cached, got %+v ok=%v", p, ok)
	}
}

func TestDownloadManager_SubscribeReplaysLastStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data"))
	}))
	t.Cleanup(srv.Close)

	m := newTestManager(t, DownloadManagerOptions{})
	ep := domain.Episode{ID: "ep-1", OriginalURL: srv.URL + "/ep1.mp3"}
	if err := m.Download(context.Background(), ep, domain.Podcast{}); err != nil {
		t.Fatalf("Download: %v", err)
	}

	got := make(chan domain.DownloadProgress, 1)
	unsub := m.SubscribeProgress("ep-1", func(p domain.DownloadProgress) {
		select {
		case got <- p:
		default:
		}
	})
	defer unsub()

	select {
	case p := <-got:
		if p.Status != domain.DownloadCompleted {
			t.Fatalf("expected completed replay, got %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected immediate replay of last status")
	}
}
