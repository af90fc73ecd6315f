package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// HTTPConfig configures an HTTPFetcher.
type HTTPConfig struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	// RateLimit is the number of requests per second; 0 disables limiting.
	RateLimit float64
	RateBurst int
}

// DefaultHTTPConfig returns the settings used when nothing is configured.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		UserAgent:    DefaultUserAgent,
		Timeout:      60 * time.Second,
		MaxBodyBytes: 10 * 1024 * 1024,
	}
}

// HTTPFetcher fetches pages and images with plain GET requests. Requests
// carry a fixed User-Agent and bypass caches.
type HTTPFetcher struct {
	client  *http.Client
	cfg     HTTPConfig
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher. Zero values in cfg take their defaults.
func NewHTTPFetcher(cfg HTTPConfig, logger logrus.FieldLogger) *HTTPFetcher {
	def := DefaultHTTPConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &HTTPFetcher{
		client:  &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		limiter: limiter,
		log:     logger.WithField("component", "http_fetcher"),
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	log := f.log.WithField("url", rawURL)

	u, err := ValidateURL(rawURL)
	if err != nil {
		log.WithError(err).Debug("Rejected url")
		return nil, err
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		log.WithError(err).Debug("Request failed")
		return nil, fmt.Errorf("failed to fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, &StatusError{URL: u.String(), Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", u, err)
	}

	log.WithField("bytes", len(body)).Debug("Fetched")
	return body, nil
}
