package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/heliotrack/spaceweather/internal/models"
)

// DefaultMaxLookback bounds how far back a processing window may reach.
const DefaultMaxLookback = 30

// RangeProcessor expands a date span into per-date records. It owns the
// clamping rules: no future dates ever reach the orchestrator, and the
// window never exceeds the lookback limit.
type RangeProcessor struct {
	orch        *Orchestrator
	clock       clockwork.Clock
	maxLookback int
}

// NewRangeProcessor builds a range processor. maxLookback <= 0 selects
// DefaultMaxLookback.
func NewRangeProcessor(orch *Orchestrator, clock clockwork.Clock, maxLookback int) *RangeProcessor {
	if maxLookback <= 0 {
		maxLookback = DefaultMaxLookback
	}
	return &RangeProcessor{orch: orch, clock: clock, maxLookback: maxLookback}
}

// ProcessRange returns one record per date in the clamped [start, end]
// window, ascending. The whole window is probed through the tiered store
// in one pass first; only dates the probe left absent or composite-empty
// go through the per-date pipeline, with force escalated for the
// composite-empty ones so stale failures get a fresh fetch.
func (p *RangeProcessor) ProcessRange(ctx context.Context, start, end time.Time, force bool) ([]*models.DateRecord, error) {
	dates := p.clampedDates(start, end)
	if len(dates) == 0 {
		return nil, nil
	}

	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = d.Format(models.DateFormat)
	}

	probe, err := p.orch.store.GetRange(ctx, keys)
	if err != nil {
		return nil, err
	}

	log.Printf("range: processing %s..%s (%d dates, %d cached)", keys[0], keys[len(keys)-1], len(keys), len(probe))

	records := make([]*models.DateRecord, 0, len(dates))
	for i, d := range dates {
		cached, ok := probe[keys[i]]
		if ok && !force && !cached.IsEmpty() {
			records = append(records, cached)
			continue
		}

		// A cached composite-empty record would satisfy a plain cache
		// lookup; escalate force so the orchestrator refetches it.
		escalate := force || (ok && cached.IsEmpty())
		rec, err := p.orch.ProcessDate(ctx, d, escalate)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// ProcessDays processes the trailing n-day window ending today.
func (p *RangeProcessor) ProcessDays(ctx context.Context, days int, force bool) ([]*models.DateRecord, error) {
	today := p.today()
	return p.ProcessRange(ctx, today.AddDate(0, 0, -(days-1)), today, force)
}

// clampedDates enumerates the inclusive ascending date sequence with the
// end clamped to today and the start clamped to the lookback limit.
func (p *RangeProcessor) clampedDates(start, end time.Time) []time.Time {
	today := p.today()
	start = midnight(start)
	end = midnight(end)

	if end.After(today) {
		end = today
	}
	if earliest := today.AddDate(0, 0, -p.maxLookback); start.Before(earliest) {
		start = earliest
	}

	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

func (p *RangeProcessor) today() time.Time {
	return midnight(p.clock.Now().UTC())
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Window builds a display span of days length centered on center, pulled
// back so it never extends more than forecastDays past today. The end of
// the window feeds the forecast projector; everything up to today feeds
// the range processor.
func Window(center time.Time, days, forecastDays int, clock clockwork.Clock) (time.Time, time.Time) {
	if days < 1 {
		days = 1
	}
	today := midnight(clock.Now().UTC())
	center = midnight(center)

	start := center.AddDate(0, 0, -days/2)
	end := start.AddDate(0, 0, days-1)

	if limit := today.AddDate(0, 0, forecastDays); end.After(limit) {
		end = limit
		start = end.AddDate(0, 0, -(days - 1))
	}
	return start, end
}
