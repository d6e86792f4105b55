// Package fetch implements the outbound HTTP retrieval for monitored pages.
//
// It performs a single bounded GET and classifies the response as Ok,
// Blocked (403/429), or Failed. There is no retry here; retry is entirely
// driven by the backoff policy across scheduler cycles.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/deadlineshield/guardian/safeurl"
)

// Outcome classifies a fetch attempt.
type Outcome int

const (
	// OutcomeOK means a 2xx response with a readable body.
	OutcomeOK Outcome = iota
	// OutcomeBlocked means the site refused us: HTTP 403 or 429.
	OutcomeBlocked
	// OutcomeFailed means any other non-2xx status or a network error.
	OutcomeFailed
)

// Result contains the outcome of a fetch.
type Result struct {
	Outcome    Outcome
	Body       []byte
	StatusCode int
	Err        error // populated for Blocked and Failed
}

// Config configures the fetcher.
type Config struct {
	Timeout  time.Duration // HTTP timeout. Default: 30s.
	MaxBytes int64         // Max response body size. Default: 10MB.
	// UserAgent sent with requests.
	UserAgent string
	// URLValidator validates URLs before fetch (SSRF prevention).
	// Default: safeurl.Validate.
	URLValidator func(string) error
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "guardian-monitor/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = safeurl.Validate
	}
}

// Fetcher performs HTTP requests with SSRF protection on redirects.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	validate := cfg.URLValidator
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Fetch retrieves a URL and classifies the response. A non-nil error is
// returned only for conditions the caller cannot classify from the Result
// (invalid URL, request construction); transport and status failures are
// reported through Result.Outcome and Result.Err.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	if err := f.config.URLValidator(url); err != nil {
		return nil, fmt.Errorf("URL blocked: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return &Result{Outcome: OutcomeFailed, Err: fmt.Errorf("http get: %w", err)}, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return &Result{
			Outcome:    OutcomeBlocked,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("http %d", resp.StatusCode),
		}, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &Result{
			Outcome:    OutcomeFailed,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("http %d", resp.StatusCode),
		}, nil
	}

	body, err := safeurl.LimitedReadAll(resp.Body, f.config.MaxBytes)
	if err != nil {
		return &Result{
			Outcome:    OutcomeFailed,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("read body: %w", err),
		}, nil
	}

	return &Result{Outcome: OutcomeOK, Body: body, StatusCode: resp.StatusCode}, nil
}
