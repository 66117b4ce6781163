package domain

import "time"

// WatchProgress is the furthest playback position reached in an episode.
// Times are in milliseconds; conversion to wire seconds happens at the
// sync boundary, never here.
type WatchProgress struct {
	EpisodeID     string     `json:"episodeId"`
	PodcastID     int        `json:"podcastId"`
	WatchedTimeMs int64      `json:"watchedTime"`
	TotalTimeMs   int64      `json:"totalTime"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	SyncedAt      *time.Time `json:"syncedAt,omitempty"`
	NeedsSync     bool       `json:"needsSync"`
}

// PlayedSeconds returns the watched time floored to whole seconds.
func (p WatchProgress) PlayedSeconds() int64 {
	return p.WatchedTimeMs / 1000
}
