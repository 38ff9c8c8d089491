package attendance

import "sort"

// Coalesce merges a participant's segments into disjoint, sorted coverage intervals.
// A segment joining at or before the running interval's end is merged into it, so
// back-to-back reconnects with no gap collapse into one interval. Segments that
// leave before they join (clock skew) are clamped to zero duration, never dropped.
func Coalesce(segments []Interval) []Interval {
	if len(segments) == 0 {
		return nil
	}

	segs := make([]Interval, len(segments))
	for i, seg := range segments {
		if seg.End.Before(seg.Start) {
			seg.End = seg.Start
		}
		segs[i] = seg
	}
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start.Before(segs[j].Start) })

	intervals := make([]Interval, 0, len(segs))
	running := segs[0]
	for _, seg := range segs[1:] {
		if !seg.Start.After(running.End) {
			if seg.End.After(running.End) {
				running.End = seg.End
			}
			continue
		}
		intervals = append(intervals, running)
		running = seg
	}
	return append(intervals, running)
}

// Cover coalesces every participant's segments.
func Cover(participants []Participant) []Coverage {
	coverage := make([]Coverage, 0, len(participants))
	for _, p := range participants {
		coverage = append(coverage, Coverage{IdentityKey: p.IdentityKey, Intervals: Coalesce(p.Segments)})
	}
	return coverage
}
