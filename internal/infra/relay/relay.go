// Package relay fetches remote videos on behalf of clients that cannot read
// them directly because of cross-origin rules.
package relay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fiapx/fiapx-frame-studio/internal/infra/urlresolve"
	"go.uber.org/zap"
)

// BrowserUserAgent is sent upstream; some hosts refuse unknown agents.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

var ErrInvalidURL = urlresolve.ErrInvalidURL

// UpstreamError is a non-2xx answer from the remote host.
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream responded %d", e.StatusCode)
}

type Relay struct {
	client *http.Client
	logger *zap.Logger
}

// New builds a relay whose upstream requests give up after timeout. Zero
// means no limit.
func New(timeout time.Duration, logger *zap.Logger) *Relay {
	return &Relay{client: &http.Client{Timeout: timeout}, logger: logger}
}

// Open requests target and returns the response for streaming. rangeHeader
// is passed through so players can seek. The caller closes the body.
func (r *Relay) Open(ctx context.Context, target, rangeHeader string) (*http.Response, error) {
	u, err := urlresolve.Validate(target)
	if err != nil {
		return nil, ErrInvalidURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("User-Agent", BrowserUserAgent)
	req.Header.Set("Accept", "video/*")
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("relay fetch failed", zap.String("url", u.Redacted()), zap.Error(err))
		return nil, fmt.Errorf("fetch video: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		r.logger.Warn("relay upstream rejected request",
			zap.String("url", u.Redacted()),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &UpstreamError{StatusCode: resp.StatusCode}
	}
	return resp, nil
}
