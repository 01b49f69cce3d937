package fetcher

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/soumtech/tender-cli/internal/config"
	"github.com/soumtech/tender-cli/internal/resilience"
)

// HTTPFetcher implements Fetcher using net/http with retry and a shared
// rate limiter. Tender portals are slow and touchy about burst traffic.
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxSize   int64
}

// NewHTTPFetcher creates an HTTPFetcher from config.
func NewHTTPFetcher(cfg config.FetchConfig) *HTTPFetcher {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxSize := cfg.MaxSizeMB * 1024 * 1024
	if maxSize <= 0 {
		maxSize = 50 * 1024 * 1024
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:   rate.NewLimiter(5, 5),
		userAgent: "tender-cli/1.0",
		maxSize:   maxSize,
	}
}

// Fetch retrieves the document at the given URL, retrying transient
// failures. Oversized payloads are rejected before buffering completes.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("portal", "fetch document")

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		return f.fetchOnce(ctx, url)
	})
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		httpErr := eris.Errorf("fetcher: status %d from %s", resp.StatusCode, url)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(httpErr, resp.StatusCode)
		}
		return nil, httpErr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read body from %s", url)
	}
	if int64(len(data)) > f.maxSize {
		return nil, eris.Errorf("fetcher: document at %s exceeds %d bytes", url, f.maxSize)
	}

	zap.L().Debug("document fetched",
		zap.String("url", url),
		zap.Int("bytes", len(data)),
	)
	return data, nil
}
