package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestIsEmpty(t *testing.T) {
	rec := NewDateRecord("2026-08-20", "")
	if !rec.IsEmpty() {
		t.Error("record with no events should be empty")
	}

	rec.Events.Append(CategoryFlares, Event{Tone: ToneNormal, Date: "2026-08-20", Detail: "C1."})
	if rec.IsEmpty() {
		t.Error("record with events should not be empty")
	}

	// An error makes a record empty even when events are present.
	rec.Error = "partial extraction"
	if !rec.IsEmpty() {
		t.Error("record with error should be empty")
	}
}

func TestRecordMarshalsAllCategoryKeys(t *testing.T) {
	data, err := json.Marshal(NewDateRecord("2026-08-20", ""))
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"cme":[]`, `"sunspot":[]`, `"flares":[]`, `"coronal_holes":[]`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("marshaled record missing %s: %s", key, data)
		}
	}
}

func TestSignificantEvents(t *testing.T) {
	quiet := NewDateRecord("2026-08-19", "")
	quiet.Events.Append(CategoryFlares, Event{Tone: ToneNormal, Date: "2026-08-19", Detail: "C1."})

	active := NewDateRecord("2026-08-20", "")
	active.Events.Append(CategoryFlares, Event{Tone: ToneSignificant, Date: "2026-08-20", Detail: "X1."})
	active.Events.Append(CategoryCME, Event{Tone: ToneSignificant, Date: "2026-08-20", Detail: "Halo CME."})

	got := SignificantEvents([]*DateRecord{quiet, active})
	if len(got) != 1 || got["2026-08-20"] != 2 {
		t.Errorf("got %v", got)
	}
}

func TestCountByCategory(t *testing.T) {
	rec := NewDateRecord("2026-08-20", "")
	rec.Events.Append(CategoryFlares, Event{Tone: ToneNormal, Date: "2026-08-20", Detail: "C1."})
	rec.Events.Append(CategoryFlares, Event{Tone: ToneNormal, Date: "2026-08-20", Detail: "C2."})

	counts := rec.Events.CountByCategory()
	if counts[CategoryFlares] != 2 || counts[CategoryCME] != 0 {
		t.Errorf("counts = %v", counts)
	}
}
