package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/heliotrack/spaceweather/internal/models"
)

const datesResponse = `[{
	"id": 7,
	"date": "2026-08-20",
	"url": "https://example.com/archive",
	"error": "",
	"events": [
		{"date_id": 7, "category": "flares", "tone": "Significant", "event_date": "2026-08-20",
		 "predicted_arrival": null, "detail": "X1 flare.", "image_url": null, "is_significant": true}
	]
}]`

func TestGetDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") == "" || !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Error("auth headers missing")
		}
		if !strings.Contains(r.URL.RawQuery, "date=eq.2026-08-20") {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		w.Write([]byte(datesResponse))
	}))
	defer srv.Close()

	c, err := NewClient(Config{URL: srv.URL, Key: "test-key"})
	if err != nil {
		t.Fatal(err)
	}

	rec, err := c.GetDate(context.Background(), "2026-08-20")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec == nil {
		t.Fatal("record not found")
	}
	if rec.Date != "2026-08-20" || rec.SourceURL != "https://example.com/archive" {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Events.Flares) != 1 || rec.Events.Flares[0].Detail != "X1 flare." {
		t.Errorf("events = %+v", rec.Events)
	}
	if !rec.Synced {
		t.Error("remote record should arrive marked synced")
	}
}

func TestGetDateAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c, _ := NewClient(Config{URL: srv.URL, Key: "test-key"})
	rec, err := c.GetDate(context.Background(), "2026-08-20")
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Error("expected nil for absent date")
	}
}

func TestGetDateRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.RawQuery
		if !strings.Contains(q, "date=gte.2026-08-18") || !strings.Contains(q, "date=lte.2026-08-20") {
			t.Errorf("query = %q", q)
		}
		w.Write([]byte(datesResponse))
	}))
	defer srv.Close()

	c, _ := NewClient(Config{URL: srv.URL, Key: "test-key"})
	got, err := c.GetDateRange(context.Background(), "2026-08-18", "2026-08-20")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got["2026-08-20"] == nil {
		t.Errorf("range = %+v", got)
	}
}

func TestPushDate(t *testing.T) {
	var deletes, eventInserts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/rest/v1/dates"):
			if !strings.Contains(r.Header.Get("Prefer"), "merge-duplicates") {
				t.Error("date upsert missing merge-duplicates")
			}
			w.Write([]byte(`[{"id": 42, "date": "2026-08-20", "url": "", "error": ""}]`))
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/rest/v1/events"):
			deletes++
			if !strings.Contains(r.URL.RawQuery, "date_id=eq.42") {
				t.Errorf("delete query = %q", r.URL.RawQuery)
			}
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/rest/v1/events"):
			eventInserts++
			body, _ := io.ReadAll(r.Body)
			var events []remoteEvent
			if err := json.Unmarshal(body, &events); err != nil {
				t.Errorf("decode events: %v", err)
			}
			if len(events) != 1 || events[0].DateID != 42 {
				t.Errorf("events = %+v", events)
			}
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, _ := NewClient(Config{URL: srv.URL, Key: "test-key"})

	rec := models.NewDateRecord("2026-08-20", "https://example.com")
	rec.Events.Append(models.CategoryFlares, models.Event{
		Tone: models.ToneSignificant, Date: "2026-08-20", Detail: "X1 flare.",
	})

	if err := c.PushDate(context.Background(), rec); err != nil {
		t.Fatalf("push: %v", err)
	}
	if deletes != 1 || eventInserts != 1 {
		t.Errorf("deletes=%d inserts=%d, want 1/1", deletes, eventInserts)
	}
}

func TestPushDateEmptyRecordSkipsEventInsert(t *testing.T) {
	var eventInserts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/rest/v1/dates"):
			w.Write([]byte(`[{"id": 42, "date": "2026-08-20", "url": "", "error": "no data"}]`))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/rest/v1/events"):
			eventInserts++
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	c, _ := NewClient(Config{URL: srv.URL, Key: "test-key"})
	rec := models.NewDateRecord("2026-08-20", "")
	rec.Error = "no data"

	if err := c.PushDate(context.Background(), rec); err != nil {
		t.Fatalf("push: %v", err)
	}
	if eventInserts != 0 {
		t.Errorf("event inserts = %d, want 0 for empty record", eventInserts)
	}
}

func TestSettings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if strings.Contains(r.URL.RawQuery, "key=eq.forecast_days") {
				w.Write([]byte(`[{"value": "5"}]`))
			} else {
				w.Write([]byte("[]"))
			}
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	c, _ := NewClient(Config{URL: srv.URL, Key: "test-key"})
	ctx := context.Background()

	v, ok, err := c.GetSetting(ctx, "forecast_days")
	if err != nil || !ok || v != "5" {
		t.Errorf("value=%q ok=%v err=%v", v, ok, err)
	}

	_, ok, err = c.GetSetting(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("missing key reported present")
	}

	if err := c.PutSetting(ctx, "forecast_days", "7"); err != nil {
		t.Errorf("put setting: %v", err)
	}
}
