package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// RodScraper implements Fetcher by rendering pages in a headless browser, for
// sites that only fill their head tags from JavaScript. It is meant for pages,
// not images. One browser is launched on first use and every fetch opens its
// own page in it.
type RodScraper struct {
	log         logrus.FieldLogger
	pageTimeout time.Duration

	mu      sync.Mutex
	browser *rod.Browser
	closed  bool
}

var _ Fetcher = (*RodScraper)(nil)

// ErrScraperClosed is returned by Fetch after Close.
var ErrScraperClosed = errors.New("rod scraper is closed")

// NewRodScraper creates a new scraper service instance.
func NewRodScraper(pageTimeout time.Duration, logger logrus.FieldLogger) *RodScraper {
	if pageTimeout <= 0 {
		pageTimeout = 30 * time.Second
	}
	return &RodScraper{
		log:         logger.WithField("component", "rod_scraper"),
		pageTimeout: pageTimeout,
	}
}

// ensureBrowser returns the shared browser, launching it on first use.
func (s *RodScraper) ensureBrowser() (*rod.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrScraperClosed
	}
	if s.browser != nil {
		return s.browser, nil
	}

	path, exists := launcher.LookPath()
	if !exists {
		s.log.Error("Cannot find browser executable for rod")
		return nil, errors.New("rod browser dependency not found")
	}
	controlURL, err := launcher.New().Bin(path).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err = browser.Connect(); err != nil {
		s.log.WithError(err).Error("Failed to connect to rod browser")
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	s.log.Info("Launched rod browser")
	s.browser = browser
	return browser, nil
}

// Close shuts the shared browser down. Later fetches fail with
// ErrScraperClosed.
func (s *RodScraper) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.browser = nil
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

// Fetch loads rawURL in a new page of the shared browser and returns the
// rendered HTML.
func (s *RodScraper) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	log := s.log.WithField("url", rawURL)

	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	browser, err := s.ensureBrowser()
	if err != nil {
		return nil, err
	}

	pageCtx, cancel := context.WithTimeout(ctx, s.pageTimeout)
	defer cancel()

	page, err := browser.Context(pageCtx).Page(proto.TargetCreateTarget{URL: u.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			log.WithError(closeErr).Debug("Error closing rod page")
		}
	}()

	if err = page.WaitLoad(); err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			log.WithError(pageCtx.Err()).Warn("Rendering timed out")
			return nil, fmt.Errorf("rendering timed out for %s: %w", u, pageCtx.Err())
		}
		return nil, fmt.Errorf("failed waiting for page load: %w", err)
	}

	rendered, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered html: %w", err)
	}

	log.WithField("bytes", len(rendered)).Debug("Rendered page")
	return []byte(rendered), nil
}
