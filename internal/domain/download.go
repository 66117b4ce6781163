package domain

import (
	"errors"
	"time"
)

type DownloadState string

const (
	DownloadPending     DownloadState = "pending"
	DownloadDownloading DownloadState = "downloading"
	DownloadCompleted   DownloadState = "completed"
	DownloadFailed      DownloadState = "failed"
	DownloadCancelled   DownloadState = "cancelled"
)

func (s DownloadState) IsTerminal() bool {
	return s == DownloadCompleted || s == DownloadFailed || s == DownloadCancelled
}

var ErrInvalidTransition = errors.New("invalid download state transition")

// CanTransition reports whether a transfer may move from one state to the
// next. Terminal states only allow starting over with a fresh "pending";
// this is what keeps a late progress callback from resurrecting a
// cancelled transfer.
func CanTransition(from, to DownloadState) bool {
	if from == to {
		return true
	}
	switch from {
	case DownloadPending:
		return to == DownloadDownloading || to == DownloadCompleted || to == DownloadFailed || to == DownloadCancelled
	case DownloadDownloading:
		return to == DownloadCompleted || to == DownloadFailed || to == DownloadCancelled
	case DownloadCompleted, DownloadFailed, DownloadCancelled:
		return to == DownloadPending
	default:
		return false
	}
}

// DownloadProgress is the transient, in-memory transfer state for one
// episode. It is owned by the download manager and never persisted.
type DownloadProgress struct {
	EpisodeID       string        `json:"episodeId"`
	Progress        float64       `json:"progress"`
	TotalBytes      int64         `json:"totalBytes"`
	DownloadedBytes int64         `json:"downloadedBytes"`
	Status          DownloadState `json:"status"`
	Error           string        `json:"error,omitempty"`
}

// DownloadedEpisode is the durable record of a fully retrieved media file.
// A row exists only while the file it points to was confirmed on disk.
type DownloadedEpisode struct {
	EpisodeID       string    `json:"episodeId"`
	PodcastID       int       `json:"podcastId"`
	Name            string    `json:"name"`
	LocalPath       string    `json:"localPath"`
	OriginalURL     string    `json:"originalUrl"`
	ImageURL        string    `json:"imageUrl,omitempty"`
	TotalTimeMs     int64     `json:"totalTime"`
	DownloadedAt    time.Time `json:"downloadedAt"`
	FileSize        int64     `json:"fileSize"`
	PodcastName     string    `json:"podcastName,omitempty"`
	PodcastImageURL string    `json:"podcastImageUrl,omitempty"`
}
