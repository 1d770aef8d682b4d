package forecast

import (
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/heliotrack/spaceweather/internal/models"
)

// Project derives synthetic forecast records from predicted-arrival
// fields. Every event in the input whose predicted arrival lands on a
// window date strictly after today yields a derived event on a synthetic
// record keyed by that future date. Synthetic records are never
// persisted, and synthetic input records are skipped so repeated
// projection cannot chain forecasts off forecasts.
func Project(records []*models.DateRecord, windowStart, windowEnd time.Time, clock clockwork.Clock) []*models.DateRecord {
	today := clock.Now().UTC().Format(models.DateFormat)
	future := futureDates(windowStart, windowEnd, today)
	if len(future) == 0 {
		return nil
	}

	byDate := make(map[string]*models.DateRecord)
	for _, rec := range records {
		if rec.IsForecast {
			continue
		}
		for _, cat := range models.Categories() {
			for _, e := range rec.Events.ByCategory(cat) {
				arrival := arrivalDate(e.PredictedArrival)
				if arrival == "" || !future[arrival] {
					continue
				}

				synth, ok := byDate[arrival]
				if !ok {
					synth = models.NewDateRecord(arrival, "")
					synth.IsForecast = true
					byDate[arrival] = synth
				}

				synth.Events.Append(cat, models.Event{
					Tone:             e.Tone,
					Date:             rec.Date,
					PredictedArrival: e.PredictedArrival,
					Detail:           fmt.Sprintf("<p><em>Forecast based on %s observation.</em></p>%s", rec.Date, e.Detail),
					ImageURL:         e.ImageURL,
					IsForecast:       true,
				})
			}
		}
	}

	out := make([]*models.DateRecord, 0, len(byDate))
	for _, rec := range byDate {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// futureDates returns the window dates strictly after today as a set.
func futureDates(start, end time.Time, today string) map[string]bool {
	out := make(map[string]bool)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(models.DateFormat)
		if key > today {
			out[key] = true
		}
	}
	return out
}

// arrivalDate extracts the calendar date from a predicted-arrival value.
// The model sometimes returns a full timestamp; only the leading
// date portion is considered.
func arrivalDate(arrival *string) string {
	if arrival == nil || len(*arrival) < len(models.DateFormat) {
		return ""
	}
	candidate := (*arrival)[:len(models.DateFormat)]
	if _, err := time.Parse(models.DateFormat, candidate); err != nil {
		return ""
	}
	return candidate
}
