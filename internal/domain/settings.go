package domain

type AuthMode string

const (
	AuthNone  AuthMode = ""
	AuthBasic AuthMode = "basic"
	AuthOIDC  AuthMode = "oidc"
)

// ServerCredentials is everything needed to talk to a PodFetch server.
// It is passed explicitly wherever a client is built; nothing reads
// ambient auth state.
type ServerCredentials struct {
	BaseURL  string   `json:"serverUrl"`
	AuthMode AuthMode `json:"authMode"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	Token    string   `json:"token,omitempty"`
	APIKey   string   `json:"apiKey,omitempty"`
}

// Configured reports whether a client can be built at all.
func (c ServerCredentials) Configured() bool {
	if c.BaseURL == "" {
		return false
	}
	switch c.AuthMode {
	case AuthBasic:
		return c.Username != "" && c.Password != ""
	case AuthOIDC:
		return c.Token != ""
	}
	return true
}

type Settings struct {
	Server ServerCredentials `json:"server"`

	// Root directory for downloaded media.
	DownloadDir string `json:"downloadDir"`

	MaxConcurrentDownloads int `json:"maxConcurrentDownloads"`

	// Auto-sync cadence in seconds.
	SyncIntervalSec int `json:"syncIntervalSec"`
}

func DefaultSettings() Settings {
	return Settings{
		DownloadDir:            "downloads",
		MaxConcurrentDownloads: 3,
		SyncIntervalSec:        30,
	}
}
