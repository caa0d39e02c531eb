package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPProber treats any HTTP answer from URL as reachable.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

// NewHTTPProber probes url with the given per-request timeout.
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (p *HTTPProber) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return fmt.Errorf("probe request: %w", err)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.URL, err)
	}
	_ = resp.Body.Close()
	return nil
}
