package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/SamTV12345/PodFetch-sub001/internal/domain"
	"github.com/SamTV12345/PodFetch-sub001/internal/ports"
)

type ProgressRepository struct {
	db *sql.DB
}

func NewProgressRepository(db *sql.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// SaveWatchProgress upserts by episode_id. A save without SyncedAt keeps
// the stored synced_at; a save carrying one (adopting a server value)
// moves it together with needs_sync.
func (r *ProgressRepository) SaveWatchProgress(ctx context.Context, rec domain.WatchProgress) error {
	var syncedAt any
	if rec.SyncedAt != nil {
		syncedAt = rec.SyncedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO watch_progress(episode_id, podcast_id, watched_time, total_time, updated_at, synced_at, needs_sync)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(episode_id) DO UPDATE SET
			watched_time = excluded.watched_time,
			total_time   = excluded.total_time,
			updated_at   = excluded.updated_at,
			synced_at    = COALESCE(excluded.synced_at, synced_at),
			needs_sync   = excluded.needs_sync
	`, rec.EpisodeID, rec.PodcastID, rec.WatchedTimeMs, rec.TotalTimeMs,
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano), syncedAt, boolToInt(rec.NeedsSync))
	return err
}

func (r *ProgressRepository) GetWatchProgress(ctx context.Context, episodeID string) (domain.WatchProgress, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT episode_id, podcast_id, watched_time, total_time, updated_at, synced_at, needs_sync
		FROM watch_progress WHERE episode_id = ?
	`, episodeID)
	rec, err := scanProgress(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WatchProgress{}, ports.ErrNotFound
		}
		return domain.WatchProgress{}, err
	}
	return rec, nil
}

func (r *ProgressRepository) ListUnsynced(ctx context.Context) ([]domain.WatchProgress, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT episode_id, podcast_id, watched_time, total_time, updated_at, synced_at, needs_sync
		FROM watch_progress WHERE needs_sync = 1 ORDER BY updated_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.WatchProgress{}
	for rows.Next() {
		rec, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkSynced is conditional on updated_at: if a newer local write landed
// after the push was read, the row is left pending and ErrConflict is
// returned.
func (r *ProgressRepository) MarkSynced(ctx context.Context, episodeID string, readUpdatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE watch_progress
		SET needs_sync = 0, synced_at = ?
		WHERE episode_id = ? AND updated_at = ?
	`, time.Now().UTC().Format(time.RFC3339Nano), episodeID, readUpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var exists int
		if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM watch_progress WHERE episode_id = ?`, episodeID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ports.ErrNotFound
		}
		return ports.ErrConflict
	}
	return nil
}

func (r *ProgressRepository) CountUnsynced(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM watch_progress WHERE needs_sync = 1`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProgress(row rowScanner) (domain.WatchProgress, error) {
	var rec domain.WatchProgress
	var updatedAt string
	var syncedAt sql.NullString
	var needsSync int
	if err := row.Scan(&rec.EpisodeID, &rec.PodcastID, &rec.WatchedTimeMs, &rec.TotalTimeMs, &updatedAt, &syncedAt, &needsSync); err != nil {
		return domain.WatchProgress{}, err
	}
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if syncedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, syncedAt.String)
		if err == nil {
			rec.SyncedAt = &t
		}
	}
	rec.NeedsSync = needsSync == 1
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
