package fetcher

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RatePerSec float64
	// BaseBackoff is the first retry delay; it doubles per attempt.
	BaseBackoff time.Duration
}

// AdaptiveLimiter wraps a rate.Limiter that speeds up on success
// (20% per call, capped at 2x initial) and halves on 429 (floor initial/4).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("fetcher: reducing rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher with retry and rate limiting.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *AdaptiveLimiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "stopcensus/1.0"
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 2
	}
	if opts.BaseBackoff == 0 {
		opts.BaseBackoff = time.Second
	}
	burst := max(int(math.Ceil(opts.RatePerSec)), 1)
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:    opts,
		limiter: NewAdaptiveLimiter(rate.Limit(opts.RatePerSec), burst),
	}
}

// newRequest builds a request; body is replayable so retries can resend it.
func (f *HTTPFetcher) newRequest(ctx context.Context, method, rawURL, body string) (*http.Request, error) {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rdr)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	if body != "" {
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	return req, nil
}

func (f *HTTPFetcher) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	log := zap.L().With(zap.String("url", redact(req.URL)))

	var lastErr error
	for attempt := range f.opts.MaxRetries {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}

		cloned := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, eris.Wrap(err, "fetcher: rewind body")
			}
			cloned.Body = body
		}

		resp, err := f.client.Do(cloned)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "fetcher: request cancelled")
			}
			lastErr = err
			log.Warn("fetcher: request failed, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
			f.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http 429 from %s", redact(req.URL))
			f.limiter.OnRateLimit()
			log.Warn("fetcher: rate limited, backing off", zap.Int("attempt", attempt+1))
			f.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http %d from %s", resp.StatusCode, redact(req.URL))
			log.Warn("fetcher: server error, retrying",
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			f.backoff(ctx, attempt)
			continue
		}

		f.limiter.OnSuccess()
		return resp, nil
	}

	return nil, eris.Wrap(lastErr, "fetcher: all retries exhausted")
}

func (f *HTTPFetcher) backoff(ctx context.Context, attempt int) {
	maxBackoff := 30 * time.Second
	d := min(time.Duration(float64(f.opts.BaseBackoff)*math.Pow(2, float64(attempt))), maxBackoff)
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// checkStatus turns a non-200 response into a StatusError and closes it.
func checkStatus(resp *http.Response, rawURL string) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	defer resp.Body.Close() //nolint:errcheck
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	u, _ := url.Parse(rawURL)
	return &StatusError{Code: resp.StatusCode, URL: redact(u), Body: strings.TrimSpace(string(snippet))}
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := f.newRequest(ctx, http.MethodGet, rawURL, "")
	if err != nil {
		return nil, err
	}

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: download")
	}
	if err := checkStatus(resp, rawURL); err != nil {
		return nil, eris.Wrap(err, "fetcher: download")
	}
	return resp.Body, nil
}

// PostForm submits url-encoded form values and returns the response body.
func (f *HTTPFetcher) PostForm(ctx context.Context, rawURL string, form url.Values) (io.ReadCloser, error) {
	req, err := f.newRequest(ctx, http.MethodPost, rawURL, form.Encode())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: post form")
	}
	if err := checkStatus(resp, rawURL); err != nil {
		return nil, eris.Wrap(err, "fetcher: post form")
	}
	return resp.Body, nil
}

// DownloadToFile fetches the URL and writes it to the given path.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, body)
	if err != nil {
		return n, eris.Wrap(err, "fetcher: write file")
	}
	return n, nil
}

// redact drops query parameters so api keys never reach the logs.
func redact(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.RawQuery = ""
	return c.String()
}
