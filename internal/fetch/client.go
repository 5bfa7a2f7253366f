package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/quaero-index/internal/proxypool"
)

// attemptResult is the outcome of a single HTTP attempt against one candidate.
type attemptResult struct {
	StatusCode int
	Body       []byte
	NetworkErr error
	LatencyMS  float64
}

// httpDo performs one GET, optionally through proxy, and reports latency for
// EMA scoring. A non-nil NetworkErr means the request never produced an HTTP
// response (connection error, timeout, DNS failure).
func httpDo(ctx context.Context, client *http.Client, rawURL string, proxy *proxypool.Proxy) attemptResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return attemptResult{NetworkErr: fmt.Errorf("failed to build request: %w", err)}
	}

	transport := &http.Transport{}
	if proxy != nil {
		proxyURL, parseErr := url.Parse(proxy.URL())
		if parseErr == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	req0 := *client
	req0.Transport = transport

	start := time.Now()
	resp, err := req0.Do(req)
	latency := float64(time.Since(start).Milliseconds())
	if err != nil {
		return attemptResult{NetworkErr: err, LatencyMS: latency}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return attemptResult{NetworkErr: fmt.Errorf("failed to read response body: %w", err), LatencyMS: latency}
	}

	return attemptResult{StatusCode: resp.StatusCode, Body: body, LatencyMS: latency}
}
