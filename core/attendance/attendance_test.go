package attendance

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core"
)

var base = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

func at(min float64) time.Time {
	return base.Add(time.Duration(min * float64(time.Minute)))
}

func span(from, to float64) Interval {
	return Interval{Start: at(from), End: at(to)}
}

func TestResolve(t *testing.T) {
	events := []ParticipantEvent{
		{ConnectionID: "c1", Email: " Ada@Example.com ", JoinTime: at(30), LeaveTime: at(60)},
		{ConnectionID: "c2", Email: "ada@example.com", JoinTime: at(0), LeaveTime: at(30)},
		{ConnectionID: "c3", Email: "", JoinTime: at(0), LeaveTime: at(10)},
		{ConnectionID: "c3", Email: "", JoinTime: at(12), LeaveTime: at(20)},
		{ConnectionID: "c4", Email: "grace@example.com", JoinTime: at(5), LeaveTime: at(50)},
	}

	participants := Resolve(events)
	require.Len(t, participants, 4, "emailed reconnects merge, anonymous events never do")

	byKey := make(map[string]Participant, len(participants))
	for _, p := range participants {
		byKey[p.IdentityKey] = p
	}

	ada, ok := byKey["ada@example.com"]
	require.True(t, ok)
	assert.False(t, ada.Synthetic)
	assert.Equal(t, []Interval{span(0, 30), span(30, 60)}, ada.Segments, "segments sorted by join time")

	var anon int
	for _, p := range participants {
		if p.Synthetic {
			anon++
			assert.True(t, IsSyntheticKey(p.IdentityKey))
			assert.Len(t, p.Segments, 1)
			assert.Empty(t, p.Email)
		}
	}
	assert.Equal(t, 2, anon)

	// deterministic
	assert.Equal(t, participants, Resolve(events))
	assert.Empty(t, Resolve(nil))
}

func TestCoalesce(t *testing.T) {
	tests := []struct {
		name     string
		segments []Interval
		want     []Interval
	}{
		{name: "empty", segments: nil, want: nil},
		{name: "back-to-back reconnect", segments: []Interval{span(0, 30), span(30, 60)}, want: []Interval{span(0, 60)}},
		{name: "overlap", segments: []Interval{span(0, 30), span(20, 40)}, want: []Interval{span(0, 40)}},
		{name: "contained", segments: []Interval{span(0, 40), span(10, 20)}, want: []Interval{span(0, 40)}},
		{name: "gap", segments: []Interval{span(0, 10), span(15, 20)}, want: []Interval{span(0, 10), span(15, 20)}},
		{name: "unsorted input", segments: []Interval{span(15, 20), span(0, 10)}, want: []Interval{span(0, 10), span(15, 20)}},
		{name: "leave before join is clamped", segments: []Interval{span(10, 5), span(20, 30)}, want: []Interval{span(10, 10), span(20, 30)}},
		{name: "clamped segment inside interval", segments: []Interval{span(0, 30), span(10, 2)}, want: []Interval{span(0, 30)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Coalesce(tt.segments)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Coalesce(got), "coalescing is idempotent")

			if len(got) > 0 {
				var total time.Duration
				for i, iv := range got {
					total += iv.Duration()
					if i > 0 {
						assert.True(t, got[i-1].End.Before(iv.Start), "intervals are disjoint & sorted")
					}
				}
				assert.LessOrEqual(t, int64(total), int64(got[len(got)-1].End.Sub(got[0].Start)))
			}
		})
	}
}

func TestCalculate(t *testing.T) {
	window := Window{Start: at(0), End: at(60)}

	tests := []struct {
		name      string
		intervals []Interval
		window    Window
		wantPct   float64
		wantSecs  float64
		wantErr   error
	}{
		{name: "full coverage", intervals: Coalesce([]Interval{span(0, 30), span(30, 60)}), window: window, wantPct: 100, wantSecs: 3600},
		{name: "a third", intervals: []Interval{span(0, 20)}, window: window, wantPct: 33.33, wantSecs: 1200},
		{name: "clipped before start & after end", intervals: []Interval{span(-10, 10), span(50, 90)}, window: window, wantPct: 33.33, wantSecs: 1200},
		{name: "outside window", intervals: []Interval{span(70, 90)}, window: window, wantPct: 0, wantSecs: 0},
		{name: "cliff window", intervals: []Interval{span(0, 40)}, window: window.Truncate(40), wantPct: 100, wantSecs: 2400},
		{name: "no coverage", window: window, wantPct: 0},
		{name: "zero window", intervals: []Interval{span(0, 10)}, window: Window{Start: at(0), End: at(0)}, wantErr: ErrInvalidWindow},
		{name: "negative window", intervals: []Interval{span(0, 10)}, window: Window{Start: at(10), End: at(0)}, wantErr: ErrInvalidWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Calculate("ada@example.com", tt.intervals, tt.window)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				assert.True(t, core.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPct, rec.AttendancePercentage)
			assert.InDelta(t, tt.wantSecs, rec.CoverageSeconds, 1e-9)
			assert.GreaterOrEqual(t, rec.CoverageSeconds, 0.0)
			assert.LessOrEqual(t, rec.CoverageSeconds, rec.WindowSeconds)
			assert.GreaterOrEqual(t, rec.AttendancePercentage, 0.0)
			assert.LessOrEqual(t, rec.AttendancePercentage, 100.0)
		})
	}
}

func TestCalculateAllAndSummarize(t *testing.T) {
	coverage := []Coverage{
		{IdentityKey: "a", Intervals: []Interval{span(0, 60)}},
		{IdentityKey: "b", Intervals: []Interval{span(0, 30)}},
		{IdentityKey: "c", Intervals: []Interval{span(0, 45)}},
	}
	records, err := CalculateAll(coverage, Window{Start: at(0), End: at(60)})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []float64{100, 50, 75}, []float64{
		records[0].AttendancePercentage, records[1].AttendancePercentage, records[2].AttendancePercentage,
	})

	stats := Summarize(records, 75)
	assert.Equal(t, Stats{Participants: 3, MeanPercentage: 75, BelowThreshold: 1, Threshold: 75}, stats)
	assert.Equal(t, Stats{Threshold: 75}, Summarize(nil, 75))

	_, err = CalculateAll(coverage, Window{})
	assert.Equal(t, ErrInvalidWindow, err)
}

func TestDerivedBounds(t *testing.T) {
	participants := Resolve([]ParticipantEvent{
		{Email: "a@x.io", JoinTime: at(3), LeaveTime: at(40)},
		{Email: "b@x.io", JoinTime: at(-2), LeaveTime: at(55)},
		{Email: "c@x.io", JoinTime: at(70), LeaveTime: at(60)}, // malformed: clamped to its join
	})
	w, ok := DerivedBounds(participants)
	require.True(t, ok)
	assert.Equal(t, Window{Start: at(-2), End: at(70)}, w)

	_, ok = DerivedBounds(nil)
	assert.False(t, ok)
}

func TestCoverageLastSeen(t *testing.T) {
	ls, ok := Coverage{Intervals: []Interval{span(0, 10), span(20, 42)}}.LastSeen()
	assert.True(t, ok)
	assert.Equal(t, at(42), ls)

	_, ok = Coverage{}.LastSeen()
	assert.False(t, ok)
}
