package podfetchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SamTV12345/PodFetch-sub001/internal/domain"
)

// ErrNotConfigured means no usable server URL or credentials exist; the
// sync layer treats it as a soft failure, never a fault.
var ErrNotConfigured = errors.New("podfetch server not configured")

// Client talks to the PodFetch server's played-time endpoints. It is
// built from explicit credentials; there is no ambient auth state.
type Client struct {
	baseURL string
	creds   domain.ServerCredentials
	http    *http.Client
}

func New(creds domain.ServerCredentials) (*Client, error) {
	if !creds.Configured() {
		return nil, ErrNotConfigured
	}
	return &Client{
		baseURL: strings.TrimRight(creds.BaseURL, "/"),
		creds:   creds,
		http:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// PlayedTime is the wire shape for watch positions. Values are whole
// seconds; millisecond precision stays on the device.
type PlayedTime struct {
	PodcastEpisodeID string `json:"podcastEpisodeId"`
	Position         int64  `json:"position"`
	Total            int64  `json:"total,omitempty"`
}

// PushPlayedTime records a watch position on the server.
func (c *Client) PushPlayedTime(ctx context.Context, episodeID string, positionSec, totalSec int64) error {
	body, err := json.Marshal(PlayedTime{PodcastEpisodeID: episodeID, Position: positionSec, Total: totalSec})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.baseURL+"/api/v1/episodes/"+url.PathEscape(episodeID)+"/playedtime", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("push played time: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// PullPlayedTime fetches the server-side watch position. ok is false when
// the server has no record for the episode.
func (c *Client) PullPlayedTime(ctx context.Context, episodeID string) (pt PlayedTime, ok bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/episodes/"+url.PathEscape(episodeID)+"/playedtime", nil)
	if err != nil {
		return PlayedTime{}, false, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return PlayedTime{}, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return PlayedTime{}, false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return PlayedTime{}, false, fmt.Errorf("pull played time: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&pt); err != nil {
		return PlayedTime{}, false, err
	}
	return pt, true, nil
}

func (c *Client) authorize(req *http.Request) {
	switch c.creds.AuthMode {
	case domain.AuthBasic:
		req.SetBasicAuth(c.creds.Username, c.creds.Password)
	case domain.AuthOIDC:
		req.Header.Set("Authorization", "Bearer "+c.creds.Token)
	}
}
