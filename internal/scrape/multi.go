package scrape

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/heliotrack/spaceweather/internal/sections"
)

// Multi tries providers in order and returns the first page found. A
// provider error that is not ErrUnavailable is logged and treated the same
// way: the next provider gets its turn.
type Multi struct {
	providers []Provider
}

// NewMulti composes providers by priority.
func NewMulti(providers ...Provider) *Multi {
	return &Multi{providers: providers}
}

func (m *Multi) Fetch(ctx context.Context, date time.Time) (*sections.Page, error) {
	for _, p := range m.providers {
		page, err := p.Fetch(ctx, date)
		if err == nil {
			return page, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			log.Printf("scrape: provider failed for %s: %v", date.Format("2006-01-02"), err)
		}
	}
	return nil, ErrUnavailable
}
