package syncer

import (
	"time"

	"github.com/dukerupert/recap/internal/model"
	"github.com/dukerupert/recap/internal/timerange"
)

// PlanConfig holds the range-planning durations, already resolved from
// day-granular configuration.
type PlanConfig struct {
	// Recency is the trailing window re-fetched on every pass, because
	// transcripts surface with variable delay after a meeting ends.
	Recency time.Duration
	// Backfill is how far back the periodic wide sweep reaches for
	// meetings added after the fact.
	Backfill         time.Duration
	BackfillInterval time.Duration
	// EdgeOverlap is re-fetched inside existing coverage when extending
	// it, to absorb boundary edits.
	EdgeOverlap time.Duration
}

// PlanRanges decides which calendar ranges a pass must fetch for the
// requested window given the user's existing coverage. The result is
// merged and sorted; adjacent pieces (recency abutting backfill, overlap
// edges) coalesce. The bool reports whether a backfill sweep is included,
// so the caller knows to stamp last_backfill_at.
//
// With no prior coverage, or when the caller forces a refresh, the whole
// requested window is fetched and the backfill sweep runs regardless of
// the interval stamp. Otherwise only the parts of the window outside
// coverage are fetched, each extended EdgeOverlap into coverage. The
// recency window is always fetched regardless of coverage.
func PlanRanges(state *model.UserSyncState, requested timerange.Range, force bool, now time.Time, cfg PlanConfig) ([]timerange.Range, bool) {
	now = now.UTC()
	var ranges []timerange.Range

	if force || !state.Covered() {
		ranges = append(ranges, requested)
	} else {
		if requested.Start.Before(*state.SyncedFrom) {
			ranges = append(ranges, timerange.Range{
				Start: requested.Start,
				End:   state.SyncedFrom.Add(cfg.EdgeOverlap),
			})
		}
		if requested.End.After(*state.SyncedTo) {
			ranges = append(ranges, timerange.Range{
				Start: state.SyncedTo.Add(-cfg.EdgeOverlap),
				End:   requested.End,
			})
		}
	}

	ranges = append(ranges, timerange.Range{Start: now.Add(-cfg.Recency), End: now})

	backfill := force || state == nil || state.LastBackfillAt == nil ||
		now.Sub(*state.LastBackfillAt) >= cfg.BackfillInterval
	if backfill {
		// The recency window is already planned above, so the sweep stops
		// where recency begins; Merge joins the two.
		ranges = append(ranges, timerange.Range{
			Start: now.Add(-cfg.Backfill),
			End:   now.Add(-cfg.Recency),
		})
	}

	return timerange.Merge(ranges), backfill
}
