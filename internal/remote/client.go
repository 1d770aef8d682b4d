package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/heliotrack/spaceweather/internal/httputil"
	"github.com/heliotrack/spaceweather/internal/metrics"
	"github.com/heliotrack/spaceweather/internal/models"
)

// Config holds connection settings for the shared Supabase project.
type Config struct {
	URL     string // project base URL, e.g. https://xyz.supabase.co
	Key     string // service or anon key, sent as apikey + bearer
	Timeout time.Duration
}

// Client talks to the remote tier through Supabase's PostgREST API. The
// remote schema mirrors the local one: a dates table with an embedded
// events relation, plus a settings table.
type Client struct {
	baseURL string
	key     string
	http    *http.Client
}

// NewClient validates the configuration and returns a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" || cfg.Key == "" {
		return nil, fmt.Errorf("remote: URL and key required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = httputil.DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/") + "/rest/v1",
		key:     cfg.Key,
		http:    httputil.NewClientWithTimeout(timeout),
	}, nil
}

// remoteDate is the wire shape of one dates row, with its events embedded
// via the PostgREST foreign-key relation.
type remoteDate struct {
	ID        int64         `json:"id,omitempty"`
	Date      string        `json:"date"`
	URL       string        `json:"url"`
	Error     string        `json:"error"`
	UpdatedAt string        `json:"updated_at,omitempty"`
	Events    []remoteEvent `json:"events,omitempty"`
}

type remoteEvent struct {
	DateID           int64   `json:"date_id,omitempty"`
	Category         string  `json:"category"`
	Tone             string  `json:"tone"`
	EventDate        string  `json:"event_date"`
	PredictedArrival *string `json:"predicted_arrival"`
	Detail           string  `json:"detail"`
	ImageURL         *string `json:"image_url"`
	IsSignificant    bool    `json:"is_significant"`
}

func (c *Client) do(ctx context.Context, method, path string, prefer string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	var out []byte
	op := func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("apikey", c.key)
		req.Header.Set("Authorization", "Bearer "+c.key)
		req.Header.Set("User-Agent", httputil.UserAgent)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if prefer != "" {
			req.Header.Set("Prefer", prefer)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data))))
		}

		out = data
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDate fetches one date with its events, or (nil, nil) when the
// remote has no row for it.
func (c *Client) GetDate(ctx context.Context, date string) (*models.DateRecord, error) {
	path := "/dates?date=eq." + url.QueryEscape(date) + "&select=*,events(*)"
	data, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}

	var rows []remoteDate
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode dates response: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return toRecord(rows[0]), nil
}

// GetDateRange fetches all dates in [from, to] inclusive with their
// events in one round trip, keyed by date.
func (c *Client) GetDateRange(ctx context.Context, from, to string) (map[string]*models.DateRecord, error) {
	path := "/dates?date=gte." + url.QueryEscape(from) +
		"&date=lte." + url.QueryEscape(to) +
		"&select=*,events(*)&order=date.asc"
	data, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}

	var rows []remoteDate
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode dates response: %w", err)
	}

	out := make(map[string]*models.DateRecord, len(rows))
	for _, row := range rows {
		out[row.Date] = toRecord(row)
	}
	return out, nil
}

// PushDate writes one record remotely: the date row is upserted on its
// date key, then its events are deleted and re-inserted, matching the
// local replace semantics.
func (c *Client) PushDate(ctx context.Context, rec *models.DateRecord) error {
	row := remoteDate{
		Date:      rec.Date,
		URL:       rec.SourceURL,
		Error:     rec.Error,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := c.do(ctx, http.MethodPost, "/dates?on_conflict=date",
		"resolution=merge-duplicates,return=representation", []remoteDate{row})
	if err != nil {
		metrics.RemoteSyncTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("upsert date %s: %w", rec.Date, err)
	}

	var inserted []remoteDate
	if err := json.Unmarshal(data, &inserted); err != nil || len(inserted) == 0 {
		metrics.RemoteSyncTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("upsert date %s: no row returned", rec.Date)
	}
	dateID := inserted[0].ID

	if _, err := c.do(ctx, http.MethodDelete,
		fmt.Sprintf("/events?date_id=eq.%d", dateID), "", nil); err != nil {
		metrics.RemoteSyncTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("clear events for %s: %w", rec.Date, err)
	}

	var events []remoteEvent
	for _, cat := range models.Categories() {
		for _, e := range rec.Events.ByCategory(cat) {
			events = append(events, remoteEvent{
				DateID:           dateID,
				Category:         string(cat),
				Tone:             string(e.Tone),
				EventDate:        e.Date,
				PredictedArrival: e.PredictedArrival,
				Detail:           e.Detail,
				ImageURL:         e.ImageURL,
				IsSignificant:    e.Significant(),
			})
		}
	}
	if len(events) > 0 {
		if _, err := c.do(ctx, http.MethodPost, "/events", "", events); err != nil {
			metrics.RemoteSyncTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("insert events for %s: %w", rec.Date, err)
		}
	}

	metrics.RemoteSyncTotal.WithLabelValues("ok").Inc()
	return nil
}

// GetSetting returns a remote setting's value and whether it exists.
func (c *Client) GetSetting(ctx context.Context, key string) (string, bool, error) {
	path := "/settings?key=eq." + url.QueryEscape(key) + "&select=value"
	data, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return "", false, err
	}

	var rows []struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return "", false, fmt.Errorf("decode settings response: %w", err)
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].Value, true, nil
}

// PutSetting upserts a remote setting.
func (c *Client) PutSetting(ctx context.Context, key, value string) error {
	row := map[string]string{"key": key, "value": value}
	_, err := c.do(ctx, http.MethodPost, "/settings?on_conflict=key",
		"resolution=merge-duplicates", []map[string]string{row})
	if err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}

func toRecord(row remoteDate) *models.DateRecord {
	rec := models.NewDateRecord(row.Date, row.URL)
	rec.Error = row.Error
	rec.Synced = true
	for _, e := range row.Events {
		rec.Events.Append(models.Category(e.Category), models.Event{
			Tone:             models.Tone(e.Tone),
			Date:             e.EventDate,
			PredictedArrival: e.PredictedArrival,
			Detail:           e.Detail,
			ImageURL:         e.ImageURL,
		})
	}
	return rec
}
