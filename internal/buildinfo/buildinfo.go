package buildinfo

// These are injected at build time via -ldflags, e.g.
//
//	-X github.com/SamTV12345/PodFetch-sub001/internal/buildinfo.Version=v0.1.0
//	-X github.com/SamTV12345/PodFetch-sub001/internal/buildinfo.Commit=abcdef
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
}

func Current() Info {
	return Info{Version: Version, Commit: Commit, Date: Date}
}
