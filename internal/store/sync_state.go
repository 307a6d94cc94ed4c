package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/recap/internal/model"
	"github.com/dukerupert/recap/internal/timerange"
)

type SyncStateStore struct {
	db *sql.DB
}

func NewSyncStateStore(db *sql.DB) *SyncStateStore {
	return &SyncStateStore{db: db}
}

// Get returns the sync state for one user, or nil when no pass has run yet.
func (s *SyncStateStore) Get(orgID, userEmail string) (*model.UserSyncState, error) {
	var st model.UserSyncState
	var from, to, lastSynced, lastBackfill sql.NullTime

	err := s.db.QueryRow(
		`SELECT org_id, user_email, synced_from, synced_to, last_synced_at, last_backfill_at
		 FROM user_sync_state WHERE org_id = ? AND user_email = ?`,
		orgID, userEmail,
	).Scan(&st.OrgID, &st.UserEmail, &from, &to, &lastSynced, &lastBackfill)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query sync state: %w", err)
	}

	if from.Valid {
		st.SyncedFrom = &from.Time
	}
	if to.Valid {
		st.SyncedTo = &to.Time
	}
	if lastSynced.Valid {
		st.LastSyncedAt = &lastSynced.Time
	}
	if lastBackfill.Valid {
		st.LastBackfillAt = &lastBackfill.Time
	}
	return &st, nil
}

// RecordSync widens the coverage window to the union of the existing
// coverage and the window just processed, and stamps last_synced_at.
// last_backfill_at moves only when a backfill range actually ran. The
// read-union-write happens inside one transaction so two concurrent passes
// for the same user cannot shrink each other's coverage.
func (s *SyncStateStore) RecordSync(orgID, userEmail string, window timerange.Range, backfillRan bool, now time.Time) error {
	if !window.Valid() {
		return fmt.Errorf("record sync: invalid window")
	}
	now = now.UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var from, to, lastBackfill sql.NullTime
	err = tx.QueryRow(
		`SELECT synced_from, synced_to, last_backfill_at FROM user_sync_state
		 WHERE org_id = ? AND user_email = ?`,
		orgID, userEmail,
	).Scan(&from, &to, &lastBackfill)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read sync state: %w", err)
	}

	merged := window
	if from.Valid && to.Valid {
		merged = timerange.Union(merged, timerange.Range{Start: from.Time, End: to.Time})
	}

	backfillAt := lastBackfill
	if backfillRan {
		backfillAt = sql.NullTime{Time: now, Valid: true}
	}

	_, err = tx.Exec(
		`INSERT INTO user_sync_state (org_id, user_email, synced_from, synced_to, last_synced_at, last_backfill_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(org_id, user_email) DO UPDATE SET
		   synced_from = excluded.synced_from,
		   synced_to = excluded.synced_to,
		   last_synced_at = excluded.last_synced_at,
		   last_backfill_at = excluded.last_backfill_at`,
		orgID, userEmail, merged.Start.UTC(), merged.End.UTC(), now, backfillAt,
	)
	if err != nil {
		return fmt.Errorf("write sync state: %w", err)
	}

	return tx.Commit()
}
