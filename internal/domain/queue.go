package domain

import "time"

// Queue item types. WatchProgress pushes are the one built-in consumer;
// the queue itself is the generic retry mechanism for anything that must
// eventually reach the server.
const SyncItemWatchProgress = "watch_progress"

// SyncQueueItem is a durable record of an event awaiting server
// acknowledgment. Items are deleted on success; failures increment
// Attempts and push NextAttempt out with exponential backoff.
type SyncQueueItem struct {
	ID          string
	Type        string
	Payload     []byte
	CreatedAt   time.Time
	Attempts    int
	LastAttempt *time.Time
	NextAttempt time.Time
	Error       string
}
