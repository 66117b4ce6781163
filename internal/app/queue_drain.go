package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/xid"

	"github.com/SamTV12345/PodFetch-sub001/internal/domain"
)

// QueueHandler delivers one queued item to the server. An error schedules
// a retry with backoff; success removes the item.
type QueueHandler func(ctx context.Context, item domain.SyncQueueItem) error

const queueDrainBatch = 50

// RegisterQueueHandler installs the delivery handler for an item type.
// Watch-progress pushes are registered out of the box; anything else that
// needs fire-and-retry semantics registers here.
func (s *SyncService) RegisterQueueHandler(itemType string, h QueueHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[itemType] = h
}

// Enqueue records an event for eventual delivery, surviving restarts.
func (s *SyncService) Enqueue(ctx context.Context, itemType string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.queue.Add(ctx, domain.SyncQueueItem{
		ID:      xid.New().String(),
		Type:    itemType,
		Payload: b,
	})
}

// DrainQueue attempts every due item once. Items without a handler are
// counted as failures and keep backing off until their attempt budget
// runs out.
func (s *SyncService) DrainQueue(ctx context.Context) (processed, failed int) {
	if s.queue == nil {
		return 0, 0
	}
	due, err := s.queue.ListDue(ctx, time.Now().UTC(), queueDrainBatch)
	if err != nil {
		s.logger.Warn().Err(err).Msg("queue list failed")
		return 0, 0
	}

	for _, item := range due {
		s.mu.Lock()
		h := s.handlers[item.Type]
		s.mu.Unlock()

		var handleErr error
		if h == nil {
			handleErr = &CodedError{Code: "unknown_item_type", Message: "no handler for " + item.Type}
		} else {
			handleErr = h(ctx, item)
		}

		if handleErr != nil {
			failed++
			if err := s.queue.Resolve(ctx, item.ID, false, handleErr.Error()); err != nil {
				s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("queue reschedule failed")
			}
			continue
		}
		processed++
		if err := s.queue.Resolve(ctx, item.ID, true, ""); err != nil {
			s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("queue delete failed")
		}
	}
	if processed > 0 || failed > 0 {
		s.logger.Info().Int("processed", processed).Int("failed", failed).Msg("sync queue drained")
	}
	return processed, failed
}

type queuedWatchProgress struct {
	EpisodeID     string `json:"episodeId"`
	WatchedTimeMs int64  `json:"watchedTime"`
	TotalTimeMs   int64  `json:"totalTime"`
}

func (s *SyncService) handleQueuedWatchProgress(ctx context.Context, item domain.SyncQueueItem) error {
	var p queuedWatchProgress
	if err := json.Unmarshal(item.Payload, &p); err != nil {
		return err
	}
	client, err := s.client(ctx)
	if err != nil {
		return err
	}
	return client.PushPlayedTime(ctx, p.EpisodeID, p.WatchedTimeMs/1000, p.TotalTimeMs/1000)
}
