package model

import "time"

// UserSyncState records, per (org, user email), the contiguous calendar
// window already covered by at least one sync pass, plus the time of the
// last backfill sweep. Coverage only widens; it never shrinks.
type UserSyncState struct {
	OrgID          string     `json:"org_id"`
	UserEmail      string     `json:"user_email"`
	SyncedFrom     *time.Time `json:"synced_from"`
	SyncedTo       *time.Time `json:"synced_to"`
	LastSyncedAt   *time.Time `json:"last_synced_at"`
	LastBackfillAt *time.Time `json:"last_backfill_at"`
}

// Covered reports whether the state has an established coverage window.
func (s *UserSyncState) Covered() bool {
	return s != nil && s.SyncedFrom != nil && s.SyncedTo != nil
}
