package scrape

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/heliotrack/spaceweather/internal/metrics"
	"github.com/heliotrack/spaceweather/internal/models"
	"github.com/heliotrack/spaceweather/internal/sections"
)

const (
	noaaFTPHost = "ftp.swpc.noaa.gov:21"
	noaaSRSPath = "/pub/forecasts/SRS"
)

// NOAAClient fetches the SWPC Solar Region Summary text product for a
// date. It serves as a text-only fallback when the archive site is down;
// SRS files carry sunspot region data but no images.
type NOAAClient struct {
	host string
}

// NewNOAAClient returns a client for the SWPC FTP warehouse.
func NewNOAAClient(host string) *NOAAClient {
	if host == "" {
		host = noaaFTPHost
	}
	return &NOAAClient{host: host}
}

// Fetch retrieves the SRS product for the date. Missing files map to
// ErrUnavailable; SWPC only keeps the recent window online.
func (n *NOAAClient) Fetch(ctx context.Context, date time.Time) (*sections.Page, error) {
	conn, err := ftp.Dial(n.host, ftp.DialWithContext(ctx), ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		metrics.SourceFetchesTotal.WithLabelValues("noaa", "error").Inc()
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		metrics.SourceFetchesTotal.WithLabelValues("noaa", "error").Inc()
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	// SRS files are named MMDDSRS.txt within the current year's directory.
	path := fmt.Sprintf("%s/%02d%02dSRS.txt", noaaSRSPath, int(date.Month()), date.Day())
	resp, err := conn.Retr(path)
	if err != nil {
		metrics.SourceFetchesTotal.WithLabelValues("noaa", "unavailable").Inc()
		return nil, ErrUnavailable
	}
	defer resp.Close()

	body, err := io.ReadAll(resp)
	if err != nil {
		metrics.SourceFetchesTotal.WithLabelValues("noaa", "error").Inc()
		return nil, fmt.Errorf("read srs: %w", err)
	}

	text := string(body)
	if strings.TrimSpace(text) == "" {
		metrics.SourceFetchesTotal.WithLabelValues("noaa", "unavailable").Inc()
		return nil, ErrUnavailable
	}

	metrics.SourceFetchesTotal.WithLabelValues("noaa", "ok").Inc()
	return &sections.Page{
		Date:   date.Format(models.DateFormat),
		URL:    "ftp://" + n.host + path,
		Text:   text,
		Images: []sections.Image{},
	}, nil
}
