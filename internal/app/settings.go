package app

import (
	"context"

	"github.com/SamTV12345/PodFetch-sub001/internal/domain"
	"github.com/SamTV12345/PodFetch-sub001/internal/ports"
)

type SettingsService struct {
	repo ports.SettingsRepository
}

func NewSettingsService(repo ports.SettingsRepository) *SettingsService {
	return &SettingsService{repo: repo}
}

func (s *SettingsService) Get(ctx context.Context) (domain.Settings, error) {
	return s.repo.Get(ctx)
}

func (s *SettingsService) Put(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	// Light validation, fall back to defaults for anything unusable.
	def := domain.DefaultSettings()
	if settings.DownloadDir == "" {
		settings.DownloadDir = def.DownloadDir
	}
	if settings.MaxConcurrentDownloads <= 0 {
		settings.MaxConcurrentDownloads = def.MaxConcurrentDownloads
	}
	if settings.SyncIntervalSec <= 0 {
		settings.SyncIntervalSec = def.SyncIntervalSec
	}
	return s.repo.Put(ctx, settings)
}

// Credentials is a convenience getter for services that need the server
// config without the rest of the settings blob.
func (s *SettingsService) Credentials(ctx context.Context) (domain.ServerCredentials, error) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		return domain.ServerCredentials{}, err
	}
	return settings.Server, nil
}
