package domain

// Episode describes one downloadable item as known to the UI layer.
// LocalURL is the server-proxied copy of the media, OriginalURL the
// upstream feed enclosure.
type Episode struct {
	ID          string `json:"id"`
	PodcastID   int    `json:"podcastId"`
	Name        string `json:"name"`
	LocalURL    string `json:"localUrl,omitempty"`
	OriginalURL string `json:"originalUrl"`
	ImageURL    string `json:"imageUrl,omitempty"`
	TotalTimeMs int64  `json:"totalTime"`
}

type Podcast struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl,omitempty"`
}
