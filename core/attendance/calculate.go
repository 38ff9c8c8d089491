package attendance

import (
	"time"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core"
)

// Calculate computes a participant's attendance against `window`.
// Time outside the window (before the formal start, after a detected cliff) is not credited.
func Calculate(identityKey string, intervals []Interval, window Window) (Record, error) {
	if err := window.Validate(); err != nil {
		return Record{}, err
	}

	var covered time.Duration
	for _, iv := range intervals {
		covered += clip(iv, window).Duration()
	}

	windowSecs := window.Duration().Seconds()
	coverageSecs := covered.Seconds()
	if coverageSecs > windowSecs { // only reachable with overlapping input
		coverageSecs = windowSecs
	}

	return Record{
		IdentityKey:          identityKey,
		CoverageSeconds:      coverageSecs,
		WindowSeconds:        windowSecs,
		AttendancePercentage: clampPercentage(core.Round2(coverageSecs / windowSecs * 100)),
	}, nil
}

// CalculateAll computes a Record for every participant's coverage.
func CalculateAll(coverage []Coverage, window Window) ([]Record, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(coverage))
	for _, c := range coverage {
		rec, err := Calculate(c.IdentityKey, c.Intervals, window)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Summarize reduces records into session statistics.
// Participants strictly below `lowThreshold` percent are counted in BelowThreshold.
func Summarize(records []Record, lowThreshold float64) Stats {
	stats := Stats{Participants: len(records), Threshold: lowThreshold}
	if len(records) == 0 {
		return stats
	}
	var total float64
	for _, rec := range records {
		total += rec.AttendancePercentage
		if rec.AttendancePercentage < lowThreshold {
			stats.BelowThreshold++
		}
	}
	stats.MeanPercentage = core.Round2(total / float64(len(records)))
	return stats
}

func clip(iv Interval, w Window) Interval {
	if iv.Start.Before(w.Start) {
		iv.Start = w.Start
	}
	if iv.End.After(w.End) {
		iv.End = w.End
	}
	return iv // Duration() is zero when the interval falls outside the window
}

func clampPercentage(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
