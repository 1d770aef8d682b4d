package store

import (
	"context"
	"fmt"
	"log"

	"github.com/heliotrack/spaceweather/internal/metrics"
	"github.com/heliotrack/spaceweather/internal/models"
)

// RemoteStore is the shared-replica collaborator. The production
// implementation lives in internal/remote; tests substitute fakes.
type RemoteStore interface {
	GetDate(ctx context.Context, date string) (*models.DateRecord, error)
	GetDateRange(ctx context.Context, from, to string) (map[string]*models.DateRecord, error)
	PushDate(ctx context.Context, rec *models.DateRecord) error
	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
}

// Tiered composes the three persistence tiers. Reads prefer the primary
// database, fall back to flat-file snapshots, and consult the remote
// replica only when the local tiers yield nothing usable. Writes land in
// the primary transactionally, mirror to snapshots, and push to the
// remote best-effort.
type Tiered struct {
	primary  *Store
	snapshot *Snapshot
	remote   RemoteStore // nil when no remote is configured
}

// NewTiered wires the tiers together. remote may be nil.
func NewTiered(primary *Store, snapshot *Snapshot, remote RemoteStore) *Tiered {
	return &Tiered{primary: primary, snapshot: snapshot, remote: remote}
}

// Get returns the record for a date, or (nil, nil) when no tier has one.
// A composite-empty local record triggers a remote lookup, but the
// remote result only wins when it is itself non-empty.
func (t *Tiered) Get(ctx context.Context, date string) (*models.DateRecord, error) {
	rec, err := t.localGet(date)
	if err != nil {
		return nil, err
	}

	if (rec == nil || rec.IsEmpty()) && t.remote != nil {
		remoteRec, err := t.remote.GetDate(ctx, date)
		if err != nil {
			log.Printf("tiered: remote lookup for %s failed: %v", date, err)
		} else if remoteRec != nil && !remoteRec.IsEmpty() {
			if err := t.importRemote(remoteRec); err != nil {
				return nil, err
			}
			return remoteRec, nil
		}
	}

	return rec, nil
}

// GetRange resolves many dates with at most one batched remote round
// trip for the whole span. Only dates that resolved somewhere appear in
// the result; absent dates are simply missing from the map.
func (t *Tiered) GetRange(ctx context.Context, dates []string) (map[string]*models.DateRecord, error) {
	if len(dates) == 0 {
		return map[string]*models.DateRecord{}, nil
	}

	out := make(map[string]*models.DateRecord, len(dates))
	var unresolved []string
	for _, d := range dates {
		rec, err := t.localGet(d)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out[d] = rec
		}
		if rec == nil || rec.IsEmpty() {
			unresolved = append(unresolved, d)
		}
	}

	if len(unresolved) == 0 || t.remote == nil {
		return out, nil
	}

	from, to := dates[0], dates[0]
	for _, d := range dates {
		if d < from {
			from = d
		}
		if d > to {
			to = d
		}
	}

	batch, err := t.remote.GetDateRange(ctx, from, to)
	if err != nil {
		log.Printf("tiered: remote range %s..%s failed: %v", from, to, err)
		batch = nil
	}

	for _, d := range unresolved {
		remoteRec, ok := batch[d]
		if !ok {
			remoteRec, err = t.remote.GetDate(ctx, d)
			if err != nil {
				log.Printf("tiered: remote lookup for %s failed: %v", d, err)
				continue
			}
		}
		if remoteRec == nil || remoteRec.IsEmpty() {
			continue
		}
		if err := t.importRemote(remoteRec); err != nil {
			return nil, err
		}
		out[d] = remoteRec
	}

	return out, nil
}

// Put replaces the date's record in the primary tier, mirrors it to the
// snapshot tier, and pushes to the remote best-effort. A failed push
// leaves the record unsynced for later reconciliation; only a primary
// failure is returned to the caller.
func (t *Tiered) Put(ctx context.Context, rec *models.DateRecord) error {
	rec.Events.Normalize()
	rec.Synced = false

	if err := t.primary.PutDate(rec); err != nil {
		return fmt.Errorf("primary put %s: %w", rec.Date, err)
	}
	metrics.RecordsPersistedTotal.Inc()

	if err := t.snapshot.Save(rec); err != nil {
		log.Printf("tiered: snapshot mirror for %s failed: %v", rec.Date, err)
	}

	if t.remote != nil {
		if err := t.remote.PushDate(ctx, rec); err != nil {
			log.Printf("tiered: remote push for %s failed, left unsynced: %v", rec.Date, err)
		} else if err := t.primary.MarkSynced(rec.Date); err != nil {
			return err
		} else {
			rec.Synced = true
		}
	}

	return nil
}

// SyncPending pushes every unsynced primary record to the remote and
// returns (synced, attempted). Partial failure leaves the remainder
// pending for a future call.
func (t *Tiered) SyncPending(ctx context.Context) (int, int, error) {
	if t.remote == nil {
		return 0, 0, nil
	}

	pending, err := t.primary.UnsyncedDates()
	if err != nil {
		return 0, 0, fmt.Errorf("list unsynced: %w", err)
	}

	synced := 0
	for _, rec := range pending {
		if err := t.remote.PushDate(ctx, rec); err != nil {
			log.Printf("tiered: sync of %s failed: %v", rec.Date, err)
			continue
		}
		if err := t.primary.MarkSynced(rec.Date); err != nil {
			return synced, len(pending), err
		}
		synced++
	}

	if len(pending) > 0 {
		log.Printf("tiered: synced %d/%d pending records", synced, len(pending))
	}
	return synced, len(pending), nil
}

// ImportSnapshots loads every snapshot file and inserts the dates the
// primary does not already hold, used to rebuild after a database
// reset. Imports re-enter the sync queue. Returns the number imported.
func (t *Tiered) ImportSnapshots() (int, error) {
	snaps, err := t.snapshot.LoadAll()
	if err != nil {
		return 0, fmt.Errorf("load snapshots: %w", err)
	}

	imported := 0
	for _, rec := range snaps {
		existing, err := t.primary.GetDate(rec.Date)
		if err != nil {
			return imported, err
		}
		if existing != nil {
			continue
		}
		rec.Synced = false
		if err := t.primary.PutDate(rec); err != nil {
			return imported, fmt.Errorf("import snapshot %s: %w", rec.Date, err)
		}
		imported++
	}

	if imported > 0 {
		log.Printf("tiered: imported %d snapshot records", imported)
	}
	return imported, nil
}

// Setting reads a setting with the same tier precedence as date records,
// importing a remote hit into the primary. Returns fallback when no tier
// has the key.
func (t *Tiered) Setting(ctx context.Context, key, fallback string) (string, error) {
	value, ok, err := t.primary.GetSetting(key)
	if err != nil {
		return "", err
	}
	if ok {
		return value, nil
	}

	if t.remote != nil {
		value, ok, err = t.remote.GetSetting(ctx, key)
		if err != nil {
			log.Printf("tiered: remote setting %s failed: %v", key, err)
		} else if ok {
			if err := t.primary.PutSetting(key, value, ""); err != nil {
				return "", err
			}
			return value, nil
		}
	}

	return fallback, nil
}

// PutSetting writes a setting to the primary and mirrors it to the
// remote best-effort.
func (t *Tiered) PutSetting(ctx context.Context, key, value string) error {
	if err := t.primary.PutSetting(key, value, ""); err != nil {
		return err
	}
	if t.remote != nil {
		if err := t.remote.PutSetting(ctx, key, value); err != nil {
			log.Printf("tiered: remote setting push %s failed: %v", key, err)
		}
	}
	return nil
}

// localGet resolves a date through the two local tiers, importing a
// snapshot hit into the primary so later reads stay on the fast path.
func (t *Tiered) localGet(date string) (*models.DateRecord, error) {
	rec, err := t.primary.GetDate(date)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	snap, err := t.snapshot.Load(date)
	if err != nil {
		log.Printf("tiered: snapshot load for %s failed: %v", date, err)
		return nil, nil
	}
	if snap == nil {
		return nil, nil
	}

	// Snapshot imports have not been through a remote push on this
	// database, so they re-enter the sync queue.
	snap.Synced = false
	if err := t.primary.PutDate(snap); err != nil {
		return nil, fmt.Errorf("import snapshot %s: %w", date, err)
	}
	return snap, nil
}

// importRemote lands a remote record in both local tiers, already marked
// synced so it is not pushed straight back.
func (t *Tiered) importRemote(rec *models.DateRecord) error {
	rec.Synced = true
	if err := t.primary.PutDate(rec); err != nil {
		return fmt.Errorf("import remote %s: %w", rec.Date, err)
	}
	if err := t.snapshot.Save(rec); err != nil {
		log.Printf("tiered: snapshot mirror for %s failed: %v", rec.Date, err)
	}
	return nil
}
