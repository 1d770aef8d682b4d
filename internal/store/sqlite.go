package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/heliotrack/spaceweather/internal/models"
)

// Store is the primary tier: a local SQLite database holding one row per
// date plus that date's extracted events. It is the system of record for
// the sync flag; the snapshot and remote tiers derive from it.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and applies pending
// migrations. Use ":memory:" for tests.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// modernc.org/sqlite serializes writes itself; a single connection
	// avoids SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutDate writes the record in one transaction: the date row is upserted
// and its events replaced wholesale. The record's Synced flag is stored
// as given, so remote imports can land already marked synced.
func (s *Store) PutDate(rec *models.DateRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var dateID int64
	err = tx.QueryRow("SELECT id FROM dates WHERE date = ?", rec.Date).Scan(&dateID)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.Exec(
			"INSERT INTO dates (date, url, error, last_updated, synced) VALUES (?, ?, ?, ?, ?)",
			rec.Date, rec.SourceURL, rec.Error, now, rec.Synced,
		)
		if err != nil {
			return fmt.Errorf("insert date %s: %w", rec.Date, err)
		}
		dateID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("date id for %s: %w", rec.Date, err)
		}
	case err != nil:
		return fmt.Errorf("look up date %s: %w", rec.Date, err)
	default:
		if _, err := tx.Exec(
			"UPDATE dates SET url = ?, error = ?, last_updated = ?, synced = ? WHERE id = ?",
			rec.SourceURL, rec.Error, now, rec.Synced, dateID,
		); err != nil {
			return fmt.Errorf("update date %s: %w", rec.Date, err)
		}
		if _, err := tx.Exec("DELETE FROM events WHERE date_id = ?", dateID); err != nil {
			return fmt.Errorf("clear events for %s: %w", rec.Date, err)
		}
	}

	stmt, err := tx.Prepare(`
		INSERT INTO events (date_id, category, tone, event_date, predicted_arrival, detail, image_url, is_significant)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, cat := range models.Categories() {
		for _, e := range rec.Events.ByCategory(cat) {
			if _, err := stmt.Exec(
				dateID, string(cat), string(e.Tone), e.Date,
				e.PredictedArrival, e.Detail, e.ImageURL, e.Significant(),
			); err != nil {
				return fmt.Errorf("insert %s event for %s: %w", cat, rec.Date, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", rec.Date, err)
	}
	return nil
}

// GetDate returns the record for a date, or (nil, nil) when absent.
func (s *Store) GetDate(date string) (*models.DateRecord, error) {
	rec := models.NewDateRecord(date, "")

	var dateID int64
	var lastUpdated sql.NullTime
	err := s.db.QueryRow(
		"SELECT id, url, error, last_updated, synced FROM dates WHERE date = ?", date,
	).Scan(&dateID, &rec.SourceURL, &rec.Error, &lastUpdated, &rec.Synced)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select date %s: %w", date, err)
	}
	if lastUpdated.Valid {
		rec.LastUpdated = lastUpdated.Time
	}

	if err := s.loadEvents(dateID, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) loadEvents(dateID int64, rec *models.DateRecord) error {
	rows, err := s.db.Query(`
		SELECT category, tone, event_date, predicted_arrival, detail, image_url
		FROM events
		WHERE date_id = ?
		ORDER BY category ASC, is_significant DESC, id ASC
	`, dateID)
	if err != nil {
		return fmt.Errorf("select events for %s: %w", rec.Date, err)
	}
	defer rows.Close()

	for rows.Next() {
		var category, tone string
		var e models.Event
		if err := rows.Scan(&category, &tone, &e.Date, &e.PredictedArrival, &e.Detail, &e.ImageURL); err != nil {
			return fmt.Errorf("scan event for %s: %w", rec.Date, err)
		}
		e.Tone = models.Tone(tone)
		rec.Events.Append(models.Category(category), e)
	}
	return rows.Err()
}

// AllDates returns every stored record ordered by date ascending.
func (s *Store) AllDates() ([]*models.DateRecord, error) {
	rows, err := s.db.Query("SELECT date FROM dates ORDER BY date ASC")
	if err != nil {
		return nil, fmt.Errorf("select dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	records := make([]*models.DateRecord, 0, len(dates))
	for _, d := range dates {
		rec, err := s.GetDate(d)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

// UnsyncedDates returns records not yet pushed to the remote tier.
func (s *Store) UnsyncedDates() ([]*models.DateRecord, error) {
	rows, err := s.db.Query("SELECT date FROM dates WHERE synced = 0 ORDER BY date ASC")
	if err != nil {
		return nil, fmt.Errorf("select unsynced dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	records := make([]*models.DateRecord, 0, len(dates))
	for _, d := range dates {
		rec, err := s.GetDate(d)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

// MarkSynced flags a date as pushed to the remote tier.
func (s *Store) MarkSynced(date string) error {
	if _, err := s.db.Exec("UPDATE dates SET synced = 1 WHERE date = ?", date); err != nil {
		return fmt.Errorf("mark %s synced: %w", date, err)
	}
	return nil
}

// GetSetting returns a setting's value and whether it exists.
func (s *Store) GetSetting(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select setting %s: %w", key, err)
	}
	return value, true, nil
}

// PutSetting upserts a setting. An empty description leaves any existing
// description untouched.
func (s *Store) PutSetting(key, value, description string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, description, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			description = CASE WHEN excluded.description = '' THEN settings.description ELSE excluded.description END,
			last_updated = excluded.last_updated
	`, key, value, description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}
