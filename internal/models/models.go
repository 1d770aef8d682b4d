package models

import "time"

// DateFormat is the canonical key format for all per-date records.
const DateFormat = "2006-01-02"

// Category identifies one of the four tracked event kinds. The string
// values double as JSON keys and database column values.
type Category string

const (
	CategoryCME          Category = "cme"
	CategorySunspot      Category = "sunspot"
	CategoryFlares       Category = "flares"
	CategoryCoronalHoles Category = "coronal_holes"
)

// Categories returns all categories in canonical order.
func Categories() []Category {
	return []Category{CategoryCME, CategorySunspot, CategoryFlares, CategoryCoronalHoles}
}

// Tone classifies how notable an event is.
type Tone string

const (
	ToneNormal      Tone = "Normal"
	ToneSignificant Tone = "Significant"
)

// Event is one observed or forecast space-weather phenomenon. Dates are
// kept as strings in DateFormat; the model occasionally returns a full
// timestamp in predicted_arrival, which downstream code tolerates.
type Event struct {
	Tone             Tone    `json:"tone"`
	Date             string  `json:"date"`
	PredictedArrival *string `json:"predicted_arrival"`
	Detail           string  `json:"detail"`
	ImageURL         *string `json:"image_url"`
	IsForecast       bool    `json:"is_forecast,omitempty"`
}

// Significant reports whether the event carries the significant tone.
func (e Event) Significant() bool {
	return e.Tone == ToneSignificant
}

// EventSet holds the events for one date, one slice per category. Using a
// struct rather than a map guarantees all four category keys exist on every
// record, in memory and on the wire.
type EventSet struct {
	CME          []Event `json:"cme"`
	Sunspot      []Event `json:"sunspot"`
	Flares       []Event `json:"flares"`
	CoronalHoles []Event `json:"coronal_holes"`
}

// ByCategory returns the slice for the given category.
func (s *EventSet) ByCategory(c Category) []Event {
	switch c {
	case CategoryCME:
		return s.CME
	case CategorySunspot:
		return s.Sunspot
	case CategoryFlares:
		return s.Flares
	case CategoryCoronalHoles:
		return s.CoronalHoles
	}
	return nil
}

// Append adds an event to the given category's slice.
func (s *EventSet) Append(c Category, e Event) {
	switch c {
	case CategoryCME:
		s.CME = append(s.CME, e)
	case CategorySunspot:
		s.Sunspot = append(s.Sunspot, e)
	case CategoryFlares:
		s.Flares = append(s.Flares, e)
	case CategoryCoronalHoles:
		s.CoronalHoles = append(s.CoronalHoles, e)
	}
}

// Normalize replaces nil slices with empty ones so the set marshals with
// all four keys present as arrays, never null.
func (s *EventSet) Normalize() {
	if s.CME == nil {
		s.CME = []Event{}
	}
	if s.Sunspot == nil {
		s.Sunspot = []Event{}
	}
	if s.Flares == nil {
		s.Flares = []Event{}
	}
	if s.CoronalHoles == nil {
		s.CoronalHoles = []Event{}
	}
}

// Total returns the event count across all categories.
func (s *EventSet) Total() int {
	return len(s.CME) + len(s.Sunspot) + len(s.Flares) + len(s.CoronalHoles)
}

// SignificantCount returns the number of significant-tone events.
func (s *EventSet) SignificantCount() int {
	n := 0
	for _, c := range Categories() {
		for _, e := range s.ByCategory(c) {
			if e.Significant() {
				n++
			}
		}
	}
	return n
}

// CountByCategory returns per-category event counts.
func (s *EventSet) CountByCategory() map[Category]int {
	return map[Category]int{
		CategoryCME:          len(s.CME),
		CategorySunspot:      len(s.Sunspot),
		CategoryFlares:       len(s.Flares),
		CategoryCoronalHoles: len(s.CoronalHoles),
	}
}

// DateRecord is the per-calendar-date unit of cached event data. Synced
// and LastUpdated are persistence bookkeeping and stay off the wire.
type DateRecord struct {
	Date        string    `json:"date"`
	SourceURL   string    `json:"url,omitempty"`
	Error       string    `json:"error,omitempty"`
	Events      EventSet  `json:"events"`
	IsForecast  bool      `json:"is_forecast,omitempty"`
	Synced      bool      `json:"-"`
	LastUpdated time.Time `json:"-"`
}

// NewDateRecord returns an empty record for the date with all four
// category slices present.
func NewDateRecord(date, sourceURL string) *DateRecord {
	r := &DateRecord{Date: date, SourceURL: sourceURL}
	r.Events.Normalize()
	return r
}

// IsEmpty reports the composite-empty condition: no events in any
// category, or a recorded extraction error. Both the tiered store's read
// precedence and the orchestrator's retry exit use this single predicate.
func (r *DateRecord) IsEmpty() bool {
	return r.Events.Total() == 0 || r.Error != ""
}

// SignificantEvents returns, for each date with at least one significant
// event, that date's significant-event count.
func SignificantEvents(records []*DateRecord) map[string]int {
	out := make(map[string]int)
	for _, r := range records {
		if n := r.Events.SignificantCount(); n > 0 {
			out[r.Date] = n
		}
	}
	return out
}
