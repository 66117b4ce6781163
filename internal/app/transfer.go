package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/SamTV12345/PodFetch-sub001/internal/domain"
)

// progressPublishInterval throttles mid-transfer updates. The first chunk
// and the terminal states always go out.
const progressPublishInterval = 200 * time.Millisecond

// runTransfer streams the source to destPath, publishing fractional
// progress along the way. It returns the last published progress so the
// caller can close out cancellations with true byte counts.
func (m *DownloadManager) runTransfer(ctx context.Context, episodeID, sourceURL, destPath string) (domain.DownloadProgress, error) {
	last := domain.DownloadProgress{EpisodeID: episodeID, Status: domain.DownloadPending}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return last, err
	}
	resp, err := m.opts.HTTPClient.Do(req)
	if err != nil {
		return last, unwrapCtxErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return last, fmt.Errorf("transfer: unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return last, err
	}
	defer out.Close()

	total := resp.ContentLength // -1 when the server does not say
	var written int64
	var lastPublish time.Time

	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return last, err
			}
			written += int64(n)

			if time.Since(lastPublish) >= progressPublishInterval || lastPublish.IsZero() {
				lastPublish = time.Now()
				last = domain.DownloadProgress{
					EpisodeID:       episodeID,
					Progress:        fraction(written, total),
					TotalBytes:      total,
					DownloadedBytes: written,
					Status:          domain.DownloadDownloading,
				}
				m.publish(last)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			last.DownloadedBytes = written
			return last, unwrapCtxErr(ctx, readErr)
		}
	}

	if err := out.Close(); err != nil {
		return last, err
	}
	last.DownloadedBytes = written
	return last, nil
}

func fraction(written, total int64) float64 {
	if total <= 0 {
		return 0
	}
	f := float64(written) / float64(total)
	if f > 1 {
		f = 1
	}
	return f
}

// unwrapCtxErr maps transport errors caused by cancellation back to the
// context error so the caller can tell "cancelled" from "failed".
func unwrapCtxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

type transfer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// progressRegistry owns the active-transfer set, the cached last status
// per episode and the subscriber callbacks. All three move together under
// one lock so check-and-register is atomic.
type progressRegistry struct {
	mu      sync.Mutex
	active  map[string]*transfer
	last    map[string]domain.DownloadProgress
	subs    map[string]map[int]ProgressFunc
	nextSub int
}

func newProgressRegistry() *progressRegistry {
	return &progressRegistry{
		active: make(map[string]*transfer),
		last:   make(map[string]domain.DownloadProgress),
		subs:   make(map[string]map[int]ProgressFunc),
	}
}

// register claims the active slot for an episode. ok is false when a
// transfer is already in flight.
func (r *progressRegistry) register(ctx context.Context, episodeID string) (context.Context, *transfer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.active[episodeID]; exists {
		return nil, nil, false
	}
	tctx, cancel := context.WithCancel(ctx)
	t := &transfer{cancel: cancel, done: make(chan struct{})}
	r.active[episodeID] = t
	return tctx, t, true
}

// finish releases the active slot. Always runs, whatever the outcome.
func (r *progressRegistry) finish(episodeID string, t *transfer) {
	r.mu.Lock()
	if r.active[episodeID] == t {
		delete(r.active, episodeID)
	}
	r.mu.Unlock()
	t.cancel()
	close(t.done)
}

func (r *progressRegistry) lookup(episodeID string) *transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[episodeID]
}

func (r *progressRegistry) activeIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	return ids
}

// setProgress updates the cached status and notifies subscribers. It
// refuses transitions the state machine forbids, which is what keeps a
// straggling callback from reviving a cancelled transfer.
func (r *progressRegistry) setProgress(p domain.DownloadProgress) bool {
	r.mu.Lock()
	if prev, ok := r.last[p.EpisodeID]; ok && !domain.CanTransition(prev.Status, p.Status) {
		r.mu.Unlock()
		return false
	}
	r.last[p.EpisodeID] = p
	fns := make([]ProgressFunc, 0, len(r.subs[p.EpisodeID]))
	for _, fn := range r.subs[p.EpisodeID] {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
	return true
}

func (r *progressRegistry) subscribe(episodeID string, fn ProgressFunc) func() {
	r.mu.Lock()
	if r.subs[episodeID] == nil {
		r.subs[episodeID] = make(map[int]ProgressFunc)
	}
	id := r.nextSub
	r.nextSub++
	r.subs[episodeID][id] = fn
	replay, hasReplay := r.last[episodeID]
	r.mu.Unlock()

	if hasReplay {
		fn(replay)
	}

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if set, ok := r.subs[episodeID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.subs, episodeID)
			}
		}
	}
}

func (r *progressRegistry) lastProgress(episodeID string) (domain.DownloadProgress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.last[episodeID]
	return p, ok
}

func (r *progressRegistry) clearStatus(episodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.last, episodeID)
}

// snapshot returns the cached statuses still in flight. Terminal entries
// stay cached for per-episode replay but are not "active".
func (r *progressRegistry) snapshot() []domain.DownloadProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.DownloadProgress, 0, len(r.last))
	for _, p := range r.last {
		if p.Status.IsTerminal() {
			continue
		}
		out = append(out, p)
	}
	return out
}
