package extract

import (
	"context"
	"log"

	"github.com/heliotrack/spaceweather/internal/llm"
	"github.com/heliotrack/spaceweather/internal/metrics"
	"github.com/heliotrack/spaceweather/internal/models"
	"github.com/heliotrack/spaceweather/internal/sections"
)

// Normalizer turns a section bundle into a canonical DateRecord via one
// model call. It makes no retry decisions; each call is an independent
// request/parse step for the orchestrator to repeat as it sees fit.
type Normalizer struct {
	completer llm.Completer
}

// NewNormalizer builds a normalizer around a completion collaborator.
func NewNormalizer(completer llm.Completer) *Normalizer {
	return &Normalizer{completer: completer}
}

// Normalize produces a DateRecord for the bundle's date. Model or parse
// failures are recorded on the Error field; the function itself never
// fails. Date and source URL always come from the bundle, not the reply,
// so a drifting model cannot re-key a record.
func (n *Normalizer) Normalize(ctx context.Context, bundle *sections.Bundle) *models.DateRecord {
	record := models.NewDateRecord(bundle.Date, bundle.URL)

	if bundle.FullText == sections.NoDataSentinel {
		record.Error = "no source data available; model call skipped"
		return record
	}

	reply, err := n.completer.Complete(ctx, BuildPrompt(bundle))
	if err != nil {
		log.Printf("normalizer: completion failed for %s: %v", bundle.Date, err)
		record.Error = "model completion failed: " + err.Error()
		return record
	}

	result := Repair(reply)
	metrics.ParseOutcomesTotal.WithLabelValues(result.Status.String()).Inc()

	switch result.Status {
	case Parsed, PartiallyParsed:
		record.Events = result.Events
		record.Events.Normalize()
		if result.Status == PartiallyParsed {
			log.Printf("normalizer: %s: %s", bundle.Date, result.Reason)
		}
	case Failed:
		log.Printf("normalizer: unparseable reply for %s: %s", bundle.Date, result.Reason)
		record.Error = "could not parse model reply: " + result.Reason
	}

	ensureDetails(record)
	return record
}

// ensureDetails backfills placeholder text so detail is never empty.
func ensureDetails(record *models.DateRecord) {
	for _, cat := range models.Categories() {
		evs := record.Events.ByCategory(cat)
		for i := range evs {
			if evs[i].Detail == "" {
				evs[i].Detail = "No description provided"
			}
			if evs[i].Date == "" {
				evs[i].Date = record.Date
			}
		}
	}
}
