package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/k3a/html2text"

	"github.com/heliotrack/spaceweather/internal/httputil"
	"github.com/heliotrack/spaceweather/internal/metrics"
	"github.com/heliotrack/spaceweather/internal/models"
	"github.com/heliotrack/spaceweather/internal/sections"
)

// ErrUnavailable signals that a provider has no usable content for the
// requested date. Callers degrade to a placeholder bundle; it is never a
// hard failure.
var ErrUnavailable = errors.New("source unavailable")

// Provider fetches the raw page for a calendar date.
type Provider interface {
	Fetch(ctx context.Context, date time.Time) (*sections.Page, error)
}

const defaultBaseURL = "https://spaceweather.com"

// minContentLength guards against archive pages that render an error shell
// instead of the day's report.
const minContentLength = 1000

var imgTagPattern = regexp.MustCompile(`(?is)<img[^>]+src\s*=\s*["']([^"']+)["'](?:[^>]*alt\s*=\s*["']([^"']*)["'])?`)

// Config holds archive client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Clock   clockwork.Clock
}

// Client fetches daily pages from the spaceweather.com archive.
type Client struct {
	baseURL string
	client  *http.Client
	clock   clockwork.Clock
}

// NewClient returns an archive page client.
func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = httputil.DefaultTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		client:  httputil.NewClientWithTimeout(timeout),
		clock:   clock,
	}
}

// URLFor returns the page URL for a date: the front page for today, the
// archive view otherwise.
func (c *Client) URLFor(date, today time.Time) string {
	if date.Format(models.DateFormat) == today.Format(models.DateFormat) {
		return c.baseURL
	}
	return fmt.Sprintf("%s/archive.php?view=1&day=%02d&month=%02d&year=%d",
		c.baseURL, date.Day(), int(date.Month()), date.Year())
}

// Fetch retrieves and flattens the page for the given date. Pages that are
// missing, too small, or error shells yield ErrUnavailable.
func (c *Client) Fetch(ctx context.Context, date time.Time) (*sections.Page, error) {
	url := c.URLFor(date, c.clock.Now().UTC())

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("User-Agent", httputil.UserAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch page: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("retryable status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("fetch page: status %d", resp.StatusCode))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		metrics.SourceFetchesTotal.WithLabelValues("archive", "error").Inc()
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	html := string(body)
	if len(html) < minContentLength || strings.Contains(html, "Could not find") {
		metrics.SourceFetchesTotal.WithLabelValues("archive", "unavailable").Inc()
		return nil, ErrUnavailable
	}

	metrics.SourceFetchesTotal.WithLabelValues("archive", "ok").Inc()
	return &sections.Page{
		Date:   date.Format(models.DateFormat),
		URL:    url,
		Text:   html2text.HTML2Text(html),
		Images: harvestImages(html, c.baseURL),
	}, nil
}

// harvestImages pulls img src/alt pairs out of the raw HTML, resolving
// relative sources against the site base.
func harvestImages(html, baseURL string) []sections.Image {
	var images []sections.Image
	for _, m := range imgTagPattern.FindAllStringSubmatch(html, -1) {
		src := m[1]
		if src == "" {
			continue
		}
		if !strings.HasPrefix(src, "http") {
			src = baseURL + "/" + strings.TrimLeft(src, "/")
		}
		images = append(images, sections.Image{Src: src, Alt: m[2]})
	}
	if images == nil {
		images = []sections.Image{}
	}
	return images
}
