package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/heliotrack/spaceweather/internal/models"
)

const snapshotPrefix = "spaceweather_"

// Snapshot is the flat-file tier: one pretty-printed JSON file per date
// in a single directory. It survives database resets and doubles as a
// human-inspectable export.
type Snapshot struct {
	dir string
}

// NewSnapshot creates the snapshot directory if needed.
func NewSnapshot(dir string) (*Snapshot, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Snapshot{dir: dir}, nil
}

func (s *Snapshot) path(date string) string {
	return filepath.Join(s.dir, snapshotPrefix+date+".json")
}

// Save writes the record to its per-date file, replacing any previous
// snapshot for that date.
func (s *Snapshot) Save(rec *models.DateRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", rec.Date, err)
	}

	tmp := s.path(rec.Date) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", rec.Date, err)
	}
	if err := os.Rename(tmp, s.path(rec.Date)); err != nil {
		return fmt.Errorf("finalize snapshot %s: %w", rec.Date, err)
	}
	return nil
}

// Load returns the snapshot for a date, or (nil, nil) when absent. A
// file that exists but does not decode is reported as an error rather
// than treated as missing.
func (s *Snapshot) Load(date string) (*models.DateRecord, error) {
	data, err := os.ReadFile(s.path(date))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", date, err)
	}

	var rec models.DateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", date, err)
	}
	rec.Events.Normalize()
	return &rec, nil
}

// LoadAll returns every snapshot in the directory ordered by date.
// Files that fail to decode are skipped so one corrupt snapshot cannot
// block a bulk import.
func (s *Snapshot) LoadAll() ([]*models.DateRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	var records []*models.DateRecord
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		date := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), ".json")
		rec, err := s.Load(date)
		if err != nil || rec == nil {
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Date < records[j].Date })
	return records, nil
}
