package app

import (
	"errors"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/SamTV12345/PodFetch-sub001/internal/domain"
)

var errNoSourceURL = errors.New("episode has no usable source url")

// resolveSourceURL picks the transfer source for an episode, preferring
// the server-proxied copy over the upstream enclosure:
//
//  1. relative local URL, joined to the server base; under basic auth the
//     api key rides along as a query parameter
//  2. absolute local URL, verbatim
//  3. relative original URL, joined to the server base
//  4. absolute original URL, verbatim
func resolveSourceURL(ep domain.Episode, creds domain.ServerCredentials) (string, error) {
	base := strings.TrimRight(creds.BaseURL, "/")

	if ep.LocalURL != "" {
		if isAbsoluteURL(ep.LocalURL) {
			return ep.LocalURL, nil
		}
		if base == "" {
			return "", errNoSourceURL
		}
		u := base + "/" + strings.TrimLeft(ep.LocalURL, "/")
		if creds.AuthMode == domain.AuthBasic && creds.APIKey != "" {
			u = appendQueryParam(u, "apiKey", creds.APIKey)
		}
		return u, nil
	}

	if ep.OriginalURL != "" {
		if isAbsoluteURL(ep.OriginalURL) {
			return ep.OriginalURL, nil
		}
		if base == "" {
			return "", errNoSourceURL
		}
		return base + "/" + strings.TrimLeft(ep.OriginalURL, "/"), nil
	}

	return "", errNoSourceURL
}

func isAbsoluteURL(u string) bool {
	lu := strings.ToLower(u)
	return strings.HasPrefix(lu, "http://") || strings.HasPrefix(lu, "https://")
}

func appendQueryParam(rawURL, key, value string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + key + "=" + url.QueryEscape(value)
}

var reNonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// downloadFilename derives a filesystem-safe name from the episode ID
// plus an extension sniffed from the source URL path (query string
// stripped). Unknown extensions fall back to mp3.
func downloadFilename(episodeID, sourceURL string) string {
	safe := reNonAlnum.ReplaceAllString(episodeID, "_")

	ext := "mp3"
	if u, err := url.Parse(sourceURL); err == nil {
		if e := strings.TrimPrefix(path.Ext(u.Path), "."); e != "" {
			ext = strings.ToLower(e)
		}
	}
	return safe + "." + ext
}
