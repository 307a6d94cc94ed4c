package timerange

import (
	"sort"
	"time"
)

// AdjacencyTolerance is how close two ranges may be and still be treated as
// one contiguous fetch. Two nearly-back-to-back windows are cheaper to fetch
// as a single request than as two.
const AdjacencyTolerance = 60 * time.Second

// Range is a half-open-ish fetch window [Start, End]. A Range is valid when
// both bounds are set and Start does not follow End.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Valid reports whether the range has usable, non-inverted bounds.
func (r Range) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && !r.Start.After(r.End)
}

// Duration returns End minus Start.
func (r Range) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Contains reports whether t lies within the range, inclusive of bounds.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Merge normalizes a set of requested windows into the minimal ordered list
// of disjoint ranges. Invalid ranges are dropped; ranges whose gap is within
// AdjacencyTolerance are coalesced. Pure function: the input slice is not
// modified.
func Merge(ranges []Range) []Range {
	valid := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if r.Valid() {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	sort.Slice(valid, func(i, j int) bool {
		return valid[i].Start.Before(valid[j].Start)
	})

	merged := []Range{valid[0]}
	for _, r := range valid[1:] {
		last := &merged[len(merged)-1]
		if !r.Start.After(last.End.Add(AdjacencyTolerance)) {
			if r.End.After(last.End) {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// Union returns the smallest range covering both a and b. Either argument
// may be invalid, in which case the other is returned unchanged.
func Union(a, b Range) Range {
	if !a.Valid() {
		return b
	}
	if !b.Valid() {
		return a
	}
	out := a
	if b.Start.Before(out.Start) {
		out.Start = b.Start
	}
	if b.End.After(out.End) {
		out.End = b.End
	}
	return out
}
