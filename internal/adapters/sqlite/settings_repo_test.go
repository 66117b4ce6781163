package sqlite

import (
	"context"
	"testing"

	"github.com/SamTV12345/PodFetch-sub001/internal/domain"
)

func TestSettingsRepository_DefaultsAndPersist(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingsRepository(openTestDB(t).SQL)

	got, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get(default): %v", err)
	}
	if got.DownloadDir == "" {
		t.Fatalf("expected default DownloadDir, got empty")
	}

	want := domain.DefaultSettings()
	want.DownloadDir = "/tmp/podcasts"
	want.MaxConcurrentDownloads = 6
	want.SyncIntervalSec = 120
	want.Server = domain.ServerCredentials{
		BaseURL:  "https://podfetch.example.com",
		AuthMode: domain.AuthBasic,
		Username: "alice",
		Password: "secret",
		APIKey:   "k-123",
	}

	updated, err := repo.Put(ctx, want)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if updated.DownloadDir != want.DownloadDir {
		t.Fatalf("DownloadDir: want %q, got %q", want.DownloadDir, updated.DownloadDir)
	}
	if updated.MaxConcurrentDownloads != want.MaxConcurrentDownloads {
		t.Fatalf("MaxConcurrentDownloads: want %d, got %d", want.MaxConcurrentDownloads, updated.MaxConcurrentDownloads)
	}
	if updated.SyncIntervalSec != want.SyncIntervalSec {
		t.Fatalf("SyncIntervalSec: want %d, got %d", want.SyncIntervalSec, updated.SyncIntervalSec)
	}
	if updated.Server != want.Server {
		t.Fatalf("Server: want %+v, got %+v", want.Server, updated.Server)
	}

	got2, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get(after Put): %v", err)
	}
	if got2.Server.BaseURL != want.Server.BaseURL {
		t.Fatalf("BaseURL after Put: want %q, got %q", want.Server.BaseURL, got2.Server.BaseURL)
	}
}

func TestSettingsRepository_CorruptBlobFallsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewSettingsRepository(db.SQL)

	if _, err := db.SQL.ExecContext(ctx, `INSERT INTO settings(key, value_json, updated_at) VALUES('default', 'not json', '')`); err != nil {
		t.Fatalf("seed corrupt row: %v", err)
	}

	got, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != domain.DefaultSettings() {
		t.Fatalf("expected defaults on corrupt blob, got %+v", got)
	}
}
