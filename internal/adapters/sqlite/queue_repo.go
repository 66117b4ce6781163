package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/SamTV12345/PodFetch-sub001/internal/domain"
	"github.com/SamTV12345/PodFetch-sub001/internal/ports"
)

// Retry policy for queued sync items: exponential backoff starting at one
// minute, capped at one hour, dropped after maxQueueAttempts.
const (
	queueBackoffBase = time.Minute
	queueBackoffMax  = time.Hour
	maxQueueAttempts = 8
)

type QueueRepository struct {
	db *sql.DB

	// now is swappable in tests.
	now func() time.Time
}

func NewQueueRepository(db *sql.DB) *QueueRepository {
	return &QueueRepository{db: db, now: time.Now}
}

func (r *QueueRepository) Add(ctx context.Context, item domain.SyncQueueItem) error {
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now().UTC()
	}
	nextAttempt := item.NextAttempt
	if nextAttempt.IsZero() {
		nextAttempt = createdAt
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_queue(id, type, payload, created_at, attempts, last_attempt, next_attempt, error)
		VALUES(?, ?, ?, ?, 0, NULL, ?, '')
	`, item.ID, item.Type, item.Payload,
		createdAt.UTC().Format(time.RFC3339Nano), nextAttempt.UTC().Format(time.RFC3339Nano))
	return err
}

func (r *QueueRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.SyncQueueItem, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, payload, created_at, attempts, last_attempt, next_attempt, error
		FROM sync_queue
		WHERE next_attempt <= ?
		ORDER BY created_at ASC
		LIMIT ?
	`, now.UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.SyncQueueItem{}
	for rows.Next() {
		var item domain.SyncQueueItem
		var createdAt, nextAttempt string
		var lastAttempt sql.NullString
		if err := rows.Scan(&item.ID, &item.Type, &item.Payload, &createdAt, &item.Attempts, &lastAttempt, &nextAttempt, &item.Error); err != nil {
			return nil, err
		}
		item.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		item.NextAttempt, _ = time.Parse(time.RFC3339Nano, nextAttempt)
		if lastAttempt.Valid {
			t, err := time.Parse(time.RFC3339Nano, lastAttempt.String)
			if err == nil {
				item.LastAttempt = &t
			}
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Resolve finishes one delivery attempt. Success deletes the row. Failure
// increments attempts and reschedules with backoff; once the attempt
// budget is spent the item is dropped for good.
func (r *QueueRepository) Resolve(ctx context.Context, id string, success bool, itemErr string) error {
	if success {
		res, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return ports.ErrNotFound
		}
		return nil
	}

	var attempts int
	err := r.db.QueryRowContext(ctx, `SELECT attempts FROM sync_queue WHERE id = ?`, id).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ports.ErrNotFound
		}
		return err
	}

	attempts++
	if attempts >= maxQueueAttempts {
		_, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
		return err
	}

	now := r.now().UTC()
	next := now.Add(backoffFor(attempts))
	_, err = r.db.ExecContext(ctx, `
		UPDATE sync_queue
		SET attempts = ?, last_attempt = ?, next_attempt = ?, error = ?
		WHERE id = ?
	`, attempts, now.Format(time.RFC3339Nano), next.Format(time.RFC3339Nano), itemErr, id)
	return err
}

func backoffFor(attempts int) time.Duration {
	d := queueBackoffBase << uint(attempts-1)
	if d > queueBackoffMax || d <= 0 {
		d = queueBackoffMax
	}
	return d
}
