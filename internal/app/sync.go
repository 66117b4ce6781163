package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/SamTV12345/PodFetch-sub001/internal/adapters/podfetchapi"
	"github.com/SamTV12345/PodFetch-sub001/internal/domain"
	"github.com/SamTV12345/PodFetch-sub001/internal/ports"
)

// CredentialsFunc supplies the current server credentials. The sync
// service never reads ambient auth state; whoever constructs it decides
// where credentials come from.
type CredentialsFunc func(ctx context.Context) (domain.ServerCredentials, error)

// progressAPI is the slice of the server client the sync service needs.
type progressAPI interface {
	PushPlayedTime(ctx context.Context, episodeID string, positionSec, totalSec int64) error
	PullPlayedTime(ctx context.Context, episodeID string) (podfetchapi.PlayedTime, bool, error)
}

// SyncResult aggregates one sync pass. A failed item never aborts the
// pass for the others.
type SyncResult struct {
	Synced  int      `json:"synced"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
	Success bool     `json:"success"`
}

// SyncService reconciles local watch progress with the server under
// intermittent connectivity. Local edits always land in the store before
// any network attempt, so a failed push can never lose them.
type SyncService struct {
	logger   zerolog.Logger
	progress ports.ProgressStore
	queue    ports.SyncQueueStore
	reach    ports.Reachability
	creds    CredentialsFunc
	bus      ports.EventBus

	// newClient is swappable in tests.
	newClient func(domain.ServerCredentials) (progressAPI, error)

	mu          sync.Mutex
	syncing     bool
	online      bool
	onlineKnown bool
	subs        map[int]func(bool)
	nextSub     int
	loopCancel  context.CancelFunc
	loopDone    chan struct{}

	handlers map[string]QueueHandler
}

func NewSyncService(logger zerolog.Logger, progress ports.ProgressStore, queue ports.SyncQueueStore, reach ports.Reachability, creds CredentialsFunc, bus ports.EventBus) *SyncService {
	s := &SyncService{
		logger:   logger,
		progress: progress,
		queue:    queue,
		reach:    reach,
		creds:    creds,
		bus:      bus,
		subs:     make(map[int]func(bool)),
		handlers: make(map[string]QueueHandler),
		newClient: func(c domain.ServerCredentials) (progressAPI, error) {
			return podfetchapi.New(c)
		},
	}
	s.RegisterQueueHandler(domain.SyncItemWatchProgress, s.handleQueuedWatchProgress)
	return s
}

// IsOnline queries reachability; any probe error reads as offline.
func (s *SyncService) IsOnline(ctx context.Context) bool {
	if s.reach == nil {
		return false
	}
	return s.reach.Online(ctx)
}

// SaveWatchProgress records a playback position. The local write is
// durable before any push attempt; the push itself is best-effort and a
// failure is deliberately swallowed, needsSync guarantees the retry.
func (s *SyncService) SaveWatchProgress(ctx context.Context, episodeID string, podcastID int, watchedMs, totalMs int64) error {
	rec := domain.WatchProgress{
		EpisodeID:     episodeID,
		PodcastID:     podcastID,
		WatchedTimeMs: watchedMs,
		TotalTimeMs:   totalMs,
		UpdatedAt:     time.Now().UTC(),
		NeedsSync:     true,
	}
	if err := s.progress.SaveWatchProgress(ctx, rec); err != nil {
		return err
	}

	if s.IsOnline(ctx) {
		if err := s.pushOne(ctx, rec); err != nil {
			s.logger.Debug().Err(err).Str("episode_id", episodeID).Msg("immediate push failed, will retry in sync loop")
		}
	}
	return nil
}

// pushOne sends one row's position in whole seconds and marks it synced
// on acknowledgment. The mark is conditional on the row's updatedAt so a
// concurrent newer edit is never claimed as synced; losing that race is
// not an error, the newer edit re-syncs on the next pass.
func (s *SyncService) pushOne(ctx context.Context, rec domain.WatchProgress) error {
	client, err := s.client(ctx)
	if err != nil {
		return err
	}
	if err := client.PushPlayedTime(ctx, rec.EpisodeID, rec.PlayedSeconds(), rec.TotalTimeMs/1000); err != nil {
		return err
	}
	if err := s.progress.MarkSynced(ctx, rec.EpisodeID, rec.UpdatedAt); err != nil {
		if err == ports.ErrConflict {
			s.logger.Debug().Str("episode_id", rec.EpisodeID).Msg("newer local edit during push, row stays pending")
			return nil
		}
		return err
	}
	return nil
}

// SyncAll runs one sync pass over every pending row. At most one pass
// runs at a time; a second call returns ErrSyncInProgress with zero
// counts and no side effects. Offline returns ErrOffline.
func (s *SyncService) SyncAll(ctx context.Context) (SyncResult, error) {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return SyncResult{}, ErrSyncInProgress
	}
	s.syncing = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.mu.Unlock()
	}()

	if !s.IsOnline(ctx) {
		return SyncResult{}, ErrOffline
	}

	pending, err := s.progress.ListUnsynced(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	result := SyncResult{}
	for _, rec := range pending {
		if err := s.pushOne(ctx, rec); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, rec.EpisodeID+": "+err.Error())
			continue
		}
		result.Synced++
	}
	result.Success = result.Failed == 0

	s.logger.Info().Int("synced", result.Synced).Int("failed", result.Failed).Msg("sync pass finished")
	if s.bus != nil {
		if b, err := json.Marshal(result); err == nil {
			s.bus.Publish("sync.completed", b)
		}
	}
	return result, nil
}

// Pull fetches the server-side position for one episode. Local wins: a
// pending local edit is returned as-is and never overwritten by a server
// value the server has not acknowledged yet. Any error falls back to the
// local record.
func (s *SyncService) Pull(ctx context.Context, episodeID string, podcastID int) (domain.WatchProgress, error) {
	local, localErr := s.progress.GetWatchProgress(ctx, episodeID)
	hasLocal := localErr == nil
	if localErr != nil && localErr != ports.ErrNotFound {
		return domain.WatchProgress{}, localErr
	}

	if hasLocal && local.NeedsSync {
		return local, nil
	}

	if !s.IsOnline(ctx) {
		return s.localOrNotFound(local, hasLocal)
	}
	client, err := s.client(ctx)
	if err != nil {
		return s.localOrNotFound(local, hasLocal)
	}

	pt, ok, err := client.PullPlayedTime(ctx, episodeID)
	if err != nil || !ok || pt.Position <= 0 {
		return s.localOrNotFound(local, hasLocal)
	}

	now := time.Now().UTC()
	rec := domain.WatchProgress{
		EpisodeID:     episodeID,
		PodcastID:     podcastID,
		WatchedTimeMs: pt.Position * 1000,
		TotalTimeMs:   pt.Total * 1000,
		UpdatedAt:     now,
		SyncedAt:      &now,
		NeedsSync:     false,
	}
	if hasLocal && rec.PodcastID == 0 {
		rec.PodcastID = local.PodcastID
	}
	if err := s.progress.SaveWatchProgress(ctx, rec); err != nil {
		return s.localOrNotFound(local, hasLocal)
	}
	return rec, nil
}

func (s *SyncService) localOrNotFound(local domain.WatchProgress, hasLocal bool) (domain.WatchProgress, error) {
	if hasLocal {
		return local, nil
	}
	return domain.WatchProgress{}, ports.ErrNotFound
}

// GetLocalProgress is a pure local read, no network.
func (s *SyncService) GetLocalProgress(ctx context.Context, episodeID string) (domain.WatchProgress, error) {
	return s.progress.GetWatchProgress(ctx, episodeID)
}

func (s *SyncService) PendingSyncCount(ctx context.Context) (int, error) {
	return s.progress.CountUnsynced(ctx)
}

func (s *SyncService) IsSyncInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing
}

// StartAutoSync cancels any previous loop, runs an immediate pass, then
// re-checks connectivity on a fixed timer. Subscribers are notified only
// on observed online/offline transitions, and the offline-to-online edge
// triggers a fresh pass. The retry queue drains at the end of each pass
// that actually got online; offline passes leave attempt budgets alone.
func (s *SyncService) StartAutoSync(ctx context.Context, interval time.Duration) {
	s.StopAutoSync()
	if interval <= 0 {
		interval = time.Duration(domain.DefaultSettings().SyncIntervalSec) * time.Second
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.loopCancel = cancel
	s.loopDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)

		s.observeOnline(loopCtx, s.IsOnline(loopCtx))
		s.runPass(loopCtx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				s.logger.Info().Msg("auto sync stopped")
				return
			case <-ticker.C:
				online := s.IsOnline(loopCtx)
				cameOnline := s.observeOnline(loopCtx, online)
				if cameOnline {
					s.runPass(loopCtx)
				}
			}
		}
	}()
}

// StopAutoSync cancels the loop. Safe to call any number of times.
func (s *SyncService) StopAutoSync() {
	s.mu.Lock()
	cancel := s.loopCancel
	done := s.loopDone
	s.loopCancel = nil
	s.loopDone = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *SyncService) runPass(ctx context.Context) {
	if _, err := s.SyncAll(ctx); err != nil {
		// Draining while offline would burn queue attempt budgets on
		// deliveries that cannot succeed.
		if err != ErrOffline && err != ErrSyncInProgress {
			s.logger.Warn().Err(err).Msg("sync pass failed")
		}
		return
	}
	s.DrainQueue(ctx)
}

// observeOnline records a connectivity sample and notifies subscribers on
// a transition. Returns true on the offline-to-online edge.
func (s *SyncService) observeOnline(ctx context.Context, online bool) bool {
	s.mu.Lock()
	transitioned := !s.onlineKnown || s.online != online
	cameOnline := s.onlineKnown && !s.online && online
	s.online = online
	s.onlineKnown = true
	var fns []func(bool)
	if transitioned {
		fns = make([]func(bool), 0, len(s.subs))
		for _, fn := range s.subs {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	if transitioned {
		for _, fn := range fns {
			fn(online)
		}
		if s.bus != nil {
			topic := "sync.offline"
			if online {
				topic = "sync.online"
			}
			s.bus.Publish(topic, []byte(`{}`))
		}
	}
	return cameOnline
}

// SubscribeOnlineStatus registers a listener for connectivity transitions
// and immediately replays the current status.
func (s *SyncService) SubscribeOnlineStatus(ctx context.Context, fn func(bool)) func() {
	s.mu.Lock()
	current := s.online
	known := s.onlineKnown
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	if !known {
		current = s.IsOnline(ctx)
	}
	fn(current)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *SyncService) client(ctx context.Context) (progressAPI, error) {
	creds, err := s.creds(ctx)
	if err != nil {
		return nil, err
	}
	if !creds.Configured() {
		return nil, ErrNotConfigured
	}
	return s.newClient(creds)
}
