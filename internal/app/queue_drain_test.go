package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SamTV12345/PodFetch-sub001/internal/domain"
)

func TestSyncService_DrainQueueDeliversWatchProgress(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	payload := queuedWatchProgress{EpisodeID: "ep-1", WatchedTimeMs: 60_000, TotalTimeMs: 120_000}
	if err := f.svc.Enqueue(ctx, domain.SyncItemWatchProgress, payload); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	processed, failed := f.svc.DrainQueue(ctx)
	if processed != 1 || failed != 0 {
		t.Fatalf("expected 1 processed, got processed=%d failed=%d", processed, failed)
	}

	pushes := f.api.pushes()
	if len(pushes) != 1 || pushes[0].episodeID != "ep-1" || pushes[0].position != 60 {
		t.Fatalf("unexpected pushes %+v", pushes)
	}

	// Delivered items are gone for good.
	due, err := f.queue.ListDue(ctx, time.Now().UTC().Add(24*time.Hour), 10)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected empty queue, got %d", len(due))
	}
}

func TestSyncService_DrainQueueReschedulesFailures(t *testing.T) {
	f := newSyncFixture(t)
	f.api.failFor = map[string]error{"ep-1": errors.New("boom")}
	ctx := context.Background()

	payload := queuedWatchProgress{EpisodeID: "ep-1", WatchedTimeMs: 60_000, TotalTimeMs: 120_000}
	if err := f.svc.Enqueue(ctx, domain.SyncItemWatchProgress, payload); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	processed, failed := f.svc.DrainQueue(ctx)
	if processed != 0 || failed != 1 {
		t.Fatalf("expected 1 failure, got processed=%d failed=%d", processed, failed)
	}

	// Backed off, so not due right away.
	due, err := f.queue.ListDue(ctx, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("failed item should back off, got %d due", len(due))
	}
	due, err = f.queue.ListDue(ctx, time.Now().UTC().Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 1 || due[0].Attempts != 1 {
		t.Fatalf("expected one rescheduled item with attempts=1, got %+v", due)
	}
}

func TestSyncService_DrainQueueUnknownType(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	if err := f.svc.Enqueue(ctx, "mystery", map[string]string{"k": "v"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	processed, failed := f.svc.DrainQueue(ctx)
	if processed != 0 || failed != 1 {
		t.Fatalf("unknown type must count as failure, got processed=%d failed=%d", processed, failed)
	}
}

func TestSyncService_OfflinePassLeavesQueueAttemptsAlone(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	payload := queuedWatchProgress{EpisodeID: "ep-1", WatchedTimeMs: 60_000, TotalTimeMs: 120_000}
	if err := f.svc.Enqueue(ctx, domain.SyncItemWatchProgress, payload); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Many passes while offline must not touch the item: a device that
	// starts offline cannot exhaust the attempt budget without a single
	// online delivery attempt.
	for i := 0; i < 20; i++ {
		f.svc.runPass(ctx)
	}

	due, err := f.queue.ListDue(ctx, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected item untouched, got %d due", len(due))
	}
	if due[0].Attempts != 0 {
		t.Fatalf("offline passes must not burn attempts, got %d", due[0].Attempts)
	}

	// Once online, the next pass delivers it.
	f.reach.set(true)
	f.svc.runPass(ctx)
	if pushes := f.api.pushes(); len(pushes) != 1 || pushes[0].episodeID != "ep-1" {
		t.Fatalf("expected delivery once online, got %+v", pushes)
	}
}

func TestSyncService_RegisterQueueHandler(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	var got domain.SyncQueueItem
	f.svc.RegisterQueueHandler("custom", func(ctx context.Context, item domain.SyncQueueItem) error {
		got = item
		return nil
	})

	if err := f.svc.Enqueue(ctx, "custom", map[string]int{"n": 7}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	processed, failed := f.svc.DrainQueue(ctx)
	if processed != 1 || failed != 0 {
		t.Fatalf("expected custom handler to run, got processed=%d failed=%d", processed, failed)
	}
	if got.Type != "custom" || string(got.Payload) != `{"n":7}` {
		t.Fatalf("unexpected item %+v", got)
	}
}
