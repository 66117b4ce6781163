package netcheck

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// Checker probes the configured server with a cheap HEAD request. Any
// error at all means offline; sync would fail against that server anyway.
type Checker struct {
	baseURL func(ctx context.Context) string
	http    *http.Client
}

func New(baseURL func(ctx context.Context) string) *Checker {
	return &Checker{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Checker) Online(ctx context.Context) bool {
	base := strings.TrimRight(c.baseURL(ctx), "/")
	if base == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, base+"/api/v1/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	// Any answer proves reachability, auth problems included.
	return resp.StatusCode < 500
}
