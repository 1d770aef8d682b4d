package store

import (
	"testing"

	"github.com/heliotrack/spaceweather/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(date string) *models.DateRecord {
	rec := models.NewDateRecord(date, "https://example.com/archive")
	rec.Events.Append(models.CategoryFlares, models.Event{
		Tone:   models.ToneSignificant,
		Date:   date,
		Detail: "X1 flare from AR3664.",
	})
	rec.Events.Append(models.CategoryFlares, models.Event{
		Tone:   models.ToneNormal,
		Date:   date,
		Detail: "C3 flare, no Earth effects.",
	})
	arrival := "2026-08-23"
	rec.Events.Append(models.CategoryCME, models.Event{
		Tone:             models.ToneNormal,
		Date:             date,
		PredictedArrival: &arrival,
		Detail:           "Slow CME, glancing blow expected.",
	})
	return rec
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	rec := sampleRecord("2026-08-20")

	if err := s.PutDate(rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.GetDate("2026-08-20")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("record not found")
	}
	if got.SourceURL != rec.SourceURL {
		t.Errorf("url = %q", got.SourceURL)
	}
	if got.Events.Total() != 3 {
		t.Errorf("got %d events, want 3", got.Events.Total())
	}
	if got.Events.CME[0].PredictedArrival == nil || *got.Events.CME[0].PredictedArrival != "2026-08-23" {
		t.Error("predicted arrival lost in round trip")
	}
	if got.Synced {
		t.Error("fresh record should not be synced")
	}
}

func TestGetAbsent(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetDate("2026-08-20")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for absent date")
	}
}

func TestPutReplacesEvents(t *testing.T) {
	s := newTestStore(t)
	if err := s.PutDate(sampleRecord("2026-08-20")); err != nil {
		t.Fatalf("put: %v", err)
	}

	replacement := models.NewDateRecord("2026-08-20", "https://example.com/v2")
	replacement.Events.Append(models.CategorySunspot, models.Event{
		Tone: models.ToneNormal, Date: "2026-08-20", Detail: "New sunspot group.",
	})
	if err := s.PutDate(replacement); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := s.GetDate("2026-08-20")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Events.Total() != 1 {
		t.Errorf("got %d events after replace, want 1", got.Events.Total())
	}
	if len(got.Events.Flares) != 0 {
		t.Error("old flare events survived replace")
	}
	if got.SourceURL != "https://example.com/v2" {
		t.Errorf("url = %q, want replacement url", got.SourceURL)
	}
}

func TestSignificantEventsOrderedFirst(t *testing.T) {
	s := newTestStore(t)
	rec := models.NewDateRecord("2026-08-20", "")
	rec.Events.Append(models.CategoryFlares, models.Event{Tone: models.ToneNormal, Date: "2026-08-20", Detail: "C1."})
	rec.Events.Append(models.CategoryFlares, models.Event{Tone: models.ToneSignificant, Date: "2026-08-20", Detail: "X9."})
	if err := s.PutDate(rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.GetDate("2026-08-20")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Events.Flares[0].Tone != models.ToneSignificant {
		t.Error("significant event not ordered first")
	}
}

func TestUnsyncedAndMarkSynced(t *testing.T) {
	s := newTestStore(t)
	if err := s.PutDate(sampleRecord("2026-08-19")); err != nil {
		t.Fatal(err)
	}
	if err := s.PutDate(sampleRecord("2026-08-20")); err != nil {
		t.Fatal(err)
	}

	pending, err := s.UnsyncedDates()
	if err != nil {
		t.Fatalf("unsynced: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending, want 2", len(pending))
	}

	if err := s.MarkSynced("2026-08-19"); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	pending, err = s.UnsyncedDates()
	if err != nil {
		t.Fatalf("unsynced: %v", err)
	}
	if len(pending) != 1 || pending[0].Date != "2026-08-20" {
		t.Errorf("pending = %v", pending)
	}
}

func TestAllDatesOrdered(t *testing.T) {
	s := newTestStore(t)
	for _, d := range []string{"2026-08-21", "2026-08-19", "2026-08-20"} {
		if err := s.PutDate(sampleRecord(d)); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.AllDates()
	if err != nil {
		t.Fatalf("all dates: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d records, want 3", len(all))
	}
	if all[0].Date != "2026-08-19" || all[2].Date != "2026-08-21" {
		t.Errorf("records not date-ordered: %s, %s, %s", all[0].Date, all[1].Date, all[2].Date)
	}
}

func TestPutPreservesSyncedFlag(t *testing.T) {
	s := newTestStore(t)
	rec := sampleRecord("2026-08-20")
	rec.Synced = true
	if err := s.PutDate(rec); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetDate("2026-08-20")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Synced {
		t.Error("synced flag not preserved")
	}
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)

	// The seed migration provides a default display window.
	value, ok, err := s.GetSetting("default_days_to_show")
	if err != nil || !ok {
		t.Fatalf("seeded setting missing: ok=%v err=%v", ok, err)
	}
	if value != "14" {
		t.Errorf("default_days_to_show = %q", value)
	}

	if err := s.PutSetting("default_days_to_show", "7", ""); err != nil {
		t.Fatalf("put setting: %v", err)
	}
	value, ok, err = s.GetSetting("default_days_to_show")
	if err != nil || !ok || value != "7" {
		t.Errorf("after update: value=%q ok=%v err=%v", value, ok, err)
	}

	_, ok, err = s.GetSetting("missing_key")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("missing key reported present")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	version, err := s.MigrationVersion()
	if err != nil {
		t.Fatal(err)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	snap, err := NewSnapshot(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	rec := sampleRecord("2026-08-20")
	if err := snap.Save(rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := snap.Load("2026-08-20")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil {
		t.Fatal("snapshot not found")
	}
	if got.Events.Total() != 3 {
		t.Errorf("got %d events, want 3", got.Events.Total())
	}

	missing, err := snap.Load("2026-08-21")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Error("expected nil for absent snapshot")
	}
}

func TestSnapshotLoadAll(t *testing.T) {
	snap, err := NewSnapshot(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{"2026-08-21", "2026-08-19", "2026-08-20"} {
		if err := snap.Save(sampleRecord(d)); err != nil {
			t.Fatal(err)
		}
	}

	all, err := snap.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(all))
	}
	if all[0].Date != "2026-08-19" || all[2].Date != "2026-08-21" {
		t.Errorf("snapshots not date-ordered: %s, %s, %s", all[0].Date, all[1].Date, all[2].Date)
	}
}
