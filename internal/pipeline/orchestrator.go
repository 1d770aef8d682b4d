package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/heliotrack/spaceweather/internal/extract"
	"github.com/heliotrack/spaceweather/internal/models"
	"github.com/heliotrack/spaceweather/internal/scrape"
	"github.com/heliotrack/spaceweather/internal/sections"
	"github.com/heliotrack/spaceweather/internal/store"
)

// DefaultMaxRetries is how many extra normalization attempts follow a
// zero-event first attempt.
const DefaultMaxRetries = 2

// Orchestrator drives one date through cache check, fetch, extraction,
// and persistence. It always hands back a record; fetch and model
// failures degrade into records with the error field set. Callers must
// not pass future dates; clamping is the range processor's job.
type Orchestrator struct {
	store      *store.Tiered
	provider   scrape.Provider
	normalizer *extract.Normalizer
	maxRetries int
}

// NewOrchestrator wires the pipeline stages. maxRetries < 0 selects
// DefaultMaxRetries.
func NewOrchestrator(st *store.Tiered, provider scrape.Provider, normalizer *extract.Normalizer, maxRetries int) *Orchestrator {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Orchestrator{
		store:      st,
		provider:   provider,
		normalizer: normalizer,
		maxRetries: maxRetries,
	}
}

// ProcessDate returns the record for one date. Without force, a cached
// record is returned as-is, composite-empty or not; with force the
// fetch/extract path runs regardless. The returned error covers storage
// failures only.
func (o *Orchestrator) ProcessDate(ctx context.Context, date time.Time, force bool) (*models.DateRecord, error) {
	key := date.Format(models.DateFormat)

	if !force {
		cached, err := o.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("cache lookup %s: %w", key, err)
		}
		if cached != nil {
			return cached, nil
		}
	}

	log.Printf("orchestrator: processing %s (force=%v)", key, force)

	bundle := o.fetch(ctx, date, key)
	record := o.extractWithRetry(ctx, bundle, key)

	if err := o.store.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("persist %s: %w", key, err)
	}
	return record, nil
}

// fetch obtains the raw page and sections it. Source unavailability
// degrades to a placeholder bundle; the extraction path then records
// "no events found" through its normal machinery.
func (o *Orchestrator) fetch(ctx context.Context, date time.Time, key string) *sections.Bundle {
	page, err := o.provider.Fetch(ctx, date)
	if err != nil {
		if err != scrape.ErrUnavailable {
			log.Printf("orchestrator: fetch %s: %v", key, err)
		}
		return sections.Placeholder(key, "")
	}
	return sections.Extract(page)
}

// extractWithRetry runs the normalizer up to maxRetries+1 times, keeping
// the first result with at least one event. An exhausted loop yields the
// last record with an explanatory error when none is already present.
func (o *Orchestrator) extractWithRetry(ctx context.Context, bundle *sections.Bundle, key string) *models.DateRecord {
	attempts := o.maxRetries + 1

	record := Retry(attempts, func(attempt int) *models.DateRecord {
		if attempt > 1 {
			log.Printf("orchestrator: retrying extraction for %s (attempt %d/%d)", key, attempt, attempts)
		}
		return o.normalizer.Normalize(ctx, bundle)
	}, func(r *models.DateRecord) bool {
		return r.Events.Total() > 0
	})

	if record.Events.Total() == 0 && record.Error == "" {
		record.Error = fmt.Sprintf("no events found after %d attempts", attempts)
	}
	return record
}
