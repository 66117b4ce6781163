package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/SamTV12345/PodFetch-sub001/internal/domain"
	"github.com/SamTV12345/PodFetch-sub001/internal/ports"
)

// ProgressFunc receives transfer state updates for one episode.
type ProgressFunc func(domain.DownloadProgress)

type DownloadManagerOptions struct {
	// DestinationFunc yields the current download directory (hot-reloadable
	// via settings).
	DestinationFunc func(ctx context.Context) (string, error)
	// CredentialsFunc yields the server credentials used to resolve
	// server-relative source URLs.
	CredentialsFunc func(ctx context.Context) (domain.ServerCredentials, error)
	// Limiter bounds concurrent transfers across episodes. Optional.
	Limiter *DynamicLimiter
	// HTTPClient defaults to a client without timeout; transfers run to
	// completion or cancellation.
	HTTPClient *http.Client
}

// DownloadManager drives at most one transfer per episode, persists
// completed downloads and fans out progress to subscribers.
type DownloadManager struct {
	logger zerolog.Logger
	store  ports.DownloadStore
	bus    ports.EventBus
	opts   DownloadManagerOptions

	reg *progressRegistry
}

func NewDownloadManager(logger zerolog.Logger, store ports.DownloadStore, bus ports.EventBus, opts DownloadManagerOptions) *DownloadManager {
	if opts.DestinationFunc == nil {
		opts.DestinationFunc = func(context.Context) (string, error) {
			return domain.DefaultSettings().DownloadDir, nil
		}
	}
	if opts.CredentialsFunc == nil {
		opts.CredentialsFunc = func(context.Context) (domain.ServerCredentials, error) {
			return domain.ServerCredentials{}, nil
		}
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &DownloadManager{
		logger: logger,
		store:  store,
		bus:    bus,
		opts:   opts,
		reg:    newProgressRegistry(),
	}
}

// Download retrieves one episode's media to local storage. It blocks
// until the transfer finishes, fails or is cancelled, and returns
// ErrAlreadyDownloaded / ErrAlreadyDownloading as non-fault preconditions.
func (m *DownloadManager) Download(ctx context.Context, ep domain.Episode, pod domain.Podcast) error {
	// Idempotent no-op when the row and its file are both still there.
	// A row with a vanished file is stale: heal it and continue.
	if existing, err := m.store.GetDownloadedEpisode(ctx, ep.ID); err == nil {
		if fileExists(existing.LocalPath) {
			return ErrAlreadyDownloaded
		}
		if err := m.store.DeleteDownloadedEpisode(ctx, ep.ID); err != nil {
			return err
		}
	} else if !errors.Is(err, ports.ErrNotFound) {
		return err
	}

	// Check-and-register is atomic under the registry lock: a concurrent
	// second call for the same episode cannot get past this point.
	tctx, t, ok := m.reg.register(ctx, ep.ID)
	if !ok {
		return ErrAlreadyDownloading
	}
	defer m.reg.finish(ep.ID, t)

	m.publish(domain.DownloadProgress{EpisodeID: ep.ID, Status: domain.DownloadPending})

	if m.opts.Limiter != nil {
		if err := m.opts.Limiter.Acquire(tctx); err != nil {
			return m.concludeTransfer(ctx, ep.ID, "", domain.DownloadProgress{EpisodeID: ep.ID, Status: domain.DownloadPending}, err)
		}
		defer m.opts.Limiter.Release()
	}

	creds, err := m.opts.CredentialsFunc(ctx)
	if err != nil {
		return m.fail(ep.ID, err)
	}
	sourceURL, err := resolveSourceURL(ep, creds)
	if err != nil {
		return m.fail(ep.ID, err)
	}

	dir, err := m.opts.DestinationFunc(ctx)
	if err != nil {
		return m.fail(ep.ID, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return m.fail(ep.ID, err)
	}
	destPath := filepath.Join(dir, downloadFilename(ep.ID, sourceURL))

	last, err := m.runTransfer(tctx, ep.ID, sourceURL, destPath)
	if err != nil {
		return m.concludeTransfer(ctx, ep.ID, destPath, last, err)
	}

	// Confirm the file before recording it; the row must never point at
	// nothing.
	info, err := os.Stat(destPath)
	if err != nil {
		return m.fail(ep.ID, err)
	}

	rec := domain.DownloadedEpisode{
		EpisodeID:       ep.ID,
		PodcastID:       ep.PodcastID,
		Name:            ep.Name,
		LocalPath:       destPath,
		OriginalURL:     ep.OriginalURL,
		ImageURL:        ep.ImageURL,
		TotalTimeMs:     ep.TotalTimeMs,
		DownloadedAt:    time.Now().UTC(),
		FileSize:        info.Size(),
		PodcastName:     pod.Name,
		PodcastImageURL: pod.ImageURL,
	}
	if err := m.store.SaveDownloadedEpisode(ctx, rec); err != nil {
		return m.fail(ep.ID, err)
	}

	m.publish(domain.DownloadProgress{
		EpisodeID:       ep.ID,
		Progress:        1,
		TotalBytes:      info.Size(),
		DownloadedBytes: info.Size(),
		Status:          domain.DownloadCompleted,
	})
	m.logger.Info().Str("episode_id", ep.ID).Int64("bytes", info.Size()).Msg("download completed")
	return nil
}

// concludeTransfer handles the error tail of a transfer: cancellation
// publishes "cancelled" and removes the partial file, anything else
// publishes "failed". The partial file never survives either way.
func (m *DownloadManager) concludeTransfer(ctx context.Context, episodeID, destPath string, last domain.DownloadProgress, cause error) error {
	if destPath != "" {
		_ = os.Remove(destPath)
	}
	if errors.Is(cause, context.Canceled) {
		m.publish(domain.DownloadProgress{
			EpisodeID:       episodeID,
			Progress:        last.Progress,
			TotalBytes:      last.TotalBytes,
			DownloadedBytes: last.DownloadedBytes,
			Status:          domain.DownloadCancelled,
		})
		m.logger.Info().Str("episode_id", episodeID).Msg("download cancelled")
		return cause
	}
	return m.fail(episodeID, cause)
}

func (m *DownloadManager) fail(episodeID string, cause error) error {
	m.publish(domain.DownloadProgress{EpisodeID: episodeID, Status: domain.DownloadFailed, Error: cause.Error()})
	m.logger.Error().Err(cause).Str("episode_id", episodeID).Msg("download failed")
	return cause
}

// Cancel aborts an active transfer and waits for its cleanup. No-op when
// nothing is active.
func (m *DownloadManager) Cancel(episodeID string) {
	t := m.reg.lookup(episodeID)
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}

// Delete removes a download entirely: active transfer, file and row.
// Missing files are tolerated.
func (m *DownloadManager) Delete(ctx context.Context, episodeID string) error {
	m.Cancel(episodeID)

	rec, err := m.store.GetDownloadedEpisode(ctx, episodeID)
	if err == nil {
		_ = os.Remove(rec.LocalPath)
	} else if !errors.Is(err, ports.ErrNotFound) {
		return err
	}
	if err := m.store.DeleteDownloadedEpisode(ctx, episodeID); err != nil {
		return err
	}
	m.reg.clearStatus(episodeID)
	return nil
}

// IsDownloaded reports whether a verified local copy exists. A row whose
// file vanished is deleted on the spot and reported as not downloaded.
func (m *DownloadManager) IsDownloaded(ctx context.Context, episodeID string) (bool, error) {
	_, ok, err := m.LocalPath(ctx, episodeID)
	return ok, err
}

// LocalPath returns the on-disk path of a downloaded episode, applying
// the same self-healing existence check as IsDownloaded.
func (m *DownloadManager) LocalPath(ctx context.Context, episodeID string) (string, bool, error) {
	rec, err := m.store.GetDownloadedEpisode(ctx, episodeID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if !fileExists(rec.LocalPath) {
		if err := m.store.DeleteDownloadedEpisode(ctx, episodeID); err != nil {
			return "", false, err
		}
		return "", false, nil
	}
	return rec.LocalPath, true, nil
}

func (m *DownloadManager) IsDownloading(episodeID string) bool {
	return m.reg.lookup(episodeID) != nil
}

func (m *DownloadManager) GetAllDownloads(ctx context.Context) ([]domain.DownloadedEpisode, error) {
	return m.store.ListDownloadedEpisodes(ctx)
}

func (m *DownloadManager) GetDownloadsForPodcast(ctx context.Context, podcastID int) ([]domain.DownloadedEpisode, error) {
	return m.store.ListDownloadedEpisodesByPodcast(ctx, podcastID)
}

func (m *DownloadManager) TotalDownloadSize(ctx context.Context) (int64, error) {
	return m.store.TotalDownloadSize(ctx)
}

func (m *DownloadManager) DownloadCount(ctx context.Context) (int, error) {
	return m.store.DownloadCount(ctx)
}

// ClearAll cancels every active transfer, then deletes every completed
// download one at a time.
func (m *DownloadManager) ClearAll(ctx context.Context) error {
	for _, id := range m.reg.activeIDs() {
		m.Cancel(id)
	}
	all, err := m.store.ListDownloadedEpisodes(ctx)
	if err != nil {
		return err
	}
	for _, rec := range all {
		if err := m.Delete(ctx, rec.EpisodeID); err != nil {
			return err
		}
	}
	return nil
}

// SubscribeProgress registers a callback for an episode's transfer
// updates. The last known status, if any, is replayed immediately. The
// returned func removes only this subscription.
func (m *DownloadManager) SubscribeProgress(episodeID string, fn ProgressFunc) func() {
	return m.reg.subscribe(episodeID, fn)
}

// LastProgress returns the cached transfer status for an episode.
func (m *DownloadManager) LastProgress(episodeID string) (domain.DownloadProgress, bool) {
	return m.reg.lastProgress(episodeID)
}

// ActiveProgress returns the status of every transfer not yet in a
// terminal state.
func (m *DownloadManager) ActiveProgress() []domain.DownloadProgress {
	return m.reg.snapshot()
}

func (m *DownloadManager) publish(p domain.DownloadProgress) {
	if !m.reg.setProgress(p) {
		// Refused transition, e.g. a late callback from a transfer that
		// was cancelled in the meantime.
		return
	}
	if m.bus != nil {
		b, err := json.Marshal(p)
		if err == nil {
			m.bus.Publish("download."+string(p.Status), b)
		}
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
