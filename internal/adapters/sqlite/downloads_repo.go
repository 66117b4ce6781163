package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/SamTV12345/PodFetch-sub001/internal/domain"
	"github.com/SamTV12345/PodFetch-sub001/internal/ports"
)

type DownloadsRepository struct {
	db *sql.DB
}

func NewDownloadsRepository(db *sql.DB) *DownloadsRepository {
	return &DownloadsRepository{db: db}
}

// SaveDownloadedEpisode upserts by episode_id. A re-download only moves
// the mutable fields; original_url and the descriptive metadata keep the
// values from the first insert.
func (r *DownloadsRepository) SaveDownloadedEpisode(ctx context.Context, rec domain.DownloadedEpisode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO downloaded_episodes(episode_id, podcast_id, name, local_path, original_url, image_url, total_time, downloaded_at, file_size, podcast_name, podcast_image_url)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(episode_id) DO UPDATE SET
			local_path    = excluded.local_path,
			file_size     = excluded.file_size,
			downloaded_at = excluded.downloaded_at
	`, rec.EpisodeID, rec.PodcastID, rec.Name, rec.LocalPath, rec.OriginalURL, rec.ImageURL,
		rec.TotalTimeMs, rec.DownloadedAt.UTC().Format(time.RFC3339Nano), rec.FileSize,
		rec.PodcastName, rec.PodcastImageURL)
	return err
}

func (r *DownloadsRepository) GetDownloadedEpisode(ctx context.Context, episodeID string) (domain.DownloadedEpisode, error) {
	row := r.db.QueryRowContext(ctx, selectDownloaded+` WHERE episode_id = ?`, episodeID)
	rec, err := scanDownloaded(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DownloadedEpisode{}, ports.ErrNotFound
		}
		return domain.DownloadedEpisode{}, err
	}
	return rec, nil
}

func (r *DownloadsRepository) ListDownloadedEpisodes(ctx context.Context) ([]domain.DownloadedEpisode, error) {
	rows, err := r.db.QueryContext(ctx, selectDownloaded+` ORDER BY downloaded_at DESC`)
	if err != nil {
		return nil, err
	}
	return collectDownloaded(rows)
}

func (r *DownloadsRepository) ListDownloadedEpisodesByPodcast(ctx context.Context, podcastID int) ([]domain.DownloadedEpisode, error) {
	rows, err := r.db.QueryContext(ctx, selectDownloaded+` WHERE podcast_id = ? ORDER BY downloaded_at DESC`, podcastID)
	if err != nil {
		return nil, err
	}
	return collectDownloaded(rows)
}

func (r *DownloadsRepository) DeleteDownloadedEpisode(ctx context.Context, episodeID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM downloaded_episodes WHERE episode_id = ?`, episodeID)
	return err
}

func (r *DownloadsRepository) IsEpisodeDownloaded(ctx context.Context, episodeID string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM downloaded_episodes WHERE episode_id = ?`, episodeID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *DownloadsRepository) TotalDownloadSize(ctx context.Context) (int64, error) {
	var size int64
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(file_size), 0) FROM downloaded_episodes`).Scan(&size)
	return size, err
}

func (r *DownloadsRepository) DownloadCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM downloaded_episodes`).Scan(&n)
	return n, err
}

const selectDownloaded = `
	SELECT episode_id, podcast_id, name, local_path, original_url, image_url, total_time, downloaded_at, file_size, podcast_name, podcast_image_url
	FROM downloaded_episodes`

func scanDownloaded(row rowScanner) (domain.DownloadedEpisode, error) {
	var rec domain.DownloadedEpisode
	var downloadedAt string
	if err := row.Scan(&rec.EpisodeID, &rec.PodcastID, &rec.Name, &rec.LocalPath, &rec.OriginalURL,
		&rec.ImageURL, &rec.TotalTimeMs, &downloadedAt, &rec.FileSize, &rec.PodcastName, &rec.PodcastImageURL); err != nil {
		return domain.DownloadedEpisode{}, err
	}
	rec.DownloadedAt, _ = time.Parse(time.RFC3339Nano, downloadedAt)
	return rec, nil
}

func collectDownloaded(rows *sql.Rows) ([]domain.DownloadedEpisode, error) {
	defer rows.Close()
	out := []domain.DownloadedEpisode{}
	for rows.Next() {
		rec, err := scanDownloaded(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
