package ports

import (
	"context"
	"time"

	"github.com/SamTV12345/PodFetch-sub001/internal/domain"
)

// ProgressStore persists watch-progress rows, one per episode.
type ProgressStore interface {
	// SaveWatchProgress inserts or updates the row for rec.EpisodeID.
	// Never creates a duplicate row for the same episode.
	SaveWatchProgress(ctx context.Context, rec domain.WatchProgress) error
	GetWatchProgress(ctx context.Context, episodeID string) (domain.WatchProgress, error)
	ListUnsynced(ctx context.Context) ([]domain.WatchProgress, error)
	// MarkSynced clears needsSync and stamps syncedAt, but only when the
	// row's updatedAt still equals readUpdatedAt (the value read before
	// the push). Returns ErrConflict if a newer local edit happened in
	// between, so a stale server ack never marks fresh data synced.
	MarkSynced(ctx context.Context, episodeID string, readUpdatedAt time.Time) error
	CountUnsynced(ctx context.Context) (int, error)
}

// DownloadStore persists completed-download rows.
type DownloadStore interface {
	// SaveDownloadedEpisode upserts keyed by EpisodeID. On conflict only
	// path, size and timestamp move; immutable fields like OriginalURL
	// keep their first value.
	SaveDownloadedEpisode(ctx context.Context, rec domain.DownloadedEpisode) error
	GetDownloadedEpisode(ctx context.Context, episodeID string) (domain.DownloadedEpisode, error)
	ListDownloadedEpisodes(ctx context.Context) ([]domain.DownloadedEpisode, error)
	ListDownloadedEpisodesByPodcast(ctx context.Context, podcastID int) ([]domain.DownloadedEpisode, error)
	DeleteDownloadedEpisode(ctx context.Context, episodeID string) error
	IsEpisodeDownloaded(ctx context.Context, episodeID string) (bool, error)
	TotalDownloadSize(ctx context.Context) (int64, error)
	DownloadCount(ctx context.Context) (int, error)
}

// SyncQueueStore persists the generic retry queue.
type SyncQueueStore interface {
	Add(ctx context.Context, item domain.SyncQueueItem) error
	// ListDue returns items whose NextAttempt is not after now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.SyncQueueItem, error)
	// Resolve deletes the item on success; on failure it increments
	// Attempts, records the error and reschedules with backoff. Items
	// past their attempt budget are dropped.
	Resolve(ctx context.Context, id string, success bool, itemErr string) error
}

type SettingsRepository interface {
	Get(ctx context.Context) (domain.Settings, error)
	Put(ctx context.Context, settings domain.Settings) (domain.Settings, error)
}
