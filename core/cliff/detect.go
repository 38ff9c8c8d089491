// Package cliff detects whether the pedagogical end of a session came before the raw
// end of the call: a mass, near-simultaneous departure of the participants still present.
package cliff

import (
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/attendance"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Result holds the fields produced by one detection run.
// Nil pointers mean "not detected".
type Result struct {
	Detected            bool        `json:"detected"`
	Confidence          *Confidence `json:"confidence"`
	CliffTimestamp      *time.Time  `json:"cliffTimestamp"`
	EffectiveEndMinutes *int        `json:"effectiveEndMinutes"`
	StudentsImpacted    int         `json:"studentsImpacted"`

	// diagnostics
	DropRatio float64 `json:"dropRatio,omitempty"`
	Score     float64 `json:"score,omitempty"`
}

type Detector struct {
	params Params
}

func NewDetector(params Params) (*Detector, error) {
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating cliff params")
	}
	return &Detector{params: params}, nil
}

func (d *Detector) Params() Params { return d.params }

var defaultDetector = &Detector{params: DefaultParams()}

// DetectFormalEnd runs the default detector.
func DetectFormalEnd(coverage []attendance.Coverage, meeting attendance.Window) (Result, error) {
	return defaultDetector.Detect(coverage, meeting)
}

// candidate is one scanned window of the survivorship curve.
type candidate struct {
	bucket    int
	dropRatio float64
	cliff     time.Time
	tail      float64 // fraction of the meeting left after the cliff
}

// Detect looks for a departure cliff across all participants' coverage within `meeting`.
// The same input always yields the same Result.
func (d *Detector) Detect(coverage []attendance.Coverage, meeting attendance.Window) (Result, error) {
	if err := meeting.Validate(); err != nil {
		return Result{}, err
	}

	lastSeen := make([]time.Time, 0, len(coverage))
	for _, c := range coverage {
		if ls, ok := c.LastSeen(); ok {
			lastSeen = append(lastSeen, ls)
		}
	}
	if len(lastSeen) < d.params.MinParticipants {
		return Result{}, nil
	}
	sort.Slice(lastSeen, func(i, j int) bool { return lastSeen[i].Before(lastSeen[j]) })

	best, ok := d.steepestDrop(lastSeen, meeting)
	if !ok || best.dropRatio <= d.params.DropThreshold {
		return Result{}, nil
	}

	effEnd := d.effectiveEndMinutes(best.cliff, meeting)
	score := d.score(best)
	conf := d.confidence(score)
	cliffTs := best.cliff

	impacted, err := d.studentsImpacted(coverage, meeting, effEnd)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Detected:            true,
		Confidence:          &conf,
		CliffTimestamp:      &cliffTs,
		EffectiveEndMinutes: &effEnd,
		StudentsImpacted:    impacted,
		DropRatio:           round4(best.dropRatio),
		Score:               round4(score),
	}, nil
}

// steepestDrop scans the survivorship curve for the window with the largest relative drop,
// ignoring windows whose departures sit too close to the meeting end: those are the
// ordinary end-of-meeting trickle, not a content cliff. Ties go to the earliest window.
// `lastSeen` must be sorted.
func (d *Detector) steepestDrop(lastSeen []time.Time, meeting attendance.Window) (candidate, bool) {
	width := d.params.BucketWidth
	total := meeting.Duration()
	n := int((total + width - 1) / width)

	// boundary(t) is the start of bucket t; boundary(n) is the meeting end.
	boundary := func(t int) time.Time {
		if t >= n {
			return meeting.End
		}
		return meeting.Start.Add(time.Duration(t) * width)
	}
	// remaining[t]: participants still present at boundary(t). Non-increasing in t.
	remaining := make([]int, n+1)
	for t := 0; t <= n; t++ {
		b := boundary(t)
		remaining[t] = len(lastSeen) - sort.Search(len(lastSeen), func(i int) bool { return !lastSeen[i].Before(b) })
	}

	var best candidate
	var found bool
	for t := 0; t < n; t++ {
		if remaining[t] == 0 {
			break
		}
		u := t + d.params.WindowBuckets
		if u > n {
			u = n
		}
		departed := remaining[t] - remaining[u]
		if departed == 0 {
			continue
		}

		// latest departure inside [boundary(t), boundary(u))
		hi := boundary(u)
		idx := sort.Search(len(lastSeen), func(i int) bool { return !lastSeen[i].Before(hi) }) - 1
		c := candidate{
			bucket:    t,
			dropRatio: float64(departed) / float64(remaining[t]),
			cliff:     lastSeen[idx],
			tail:      float64(meeting.End.Sub(lastSeen[idx])) / float64(total),
		}
		if c.tail < d.params.MinTailFraction {
			continue
		}
		if !found || c.dropRatio > best.dropRatio {
			best, found = c, true
		}
	}
	return best, found
}

// score is monotone in both the drop ratio and the distance of the cliff from the end.
func (d *Detector) score(c candidate) float64 {
	tailTerm := math.Min(1, c.tail/d.params.TailSaturation)
	return d.params.DropWeight*c.dropRatio + (1-d.params.DropWeight)*tailTerm
}

func (d *Detector) confidence(score float64) Confidence {
	switch {
	case score >= d.params.HighCutoff:
		return ConfidenceHigh
	case score >= d.params.MediumCutoff:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func (d *Detector) effectiveEndMinutes(cliff time.Time, meeting attendance.Window) int {
	mins := int(math.Round(cliff.Sub(meeting.Start).Minutes()))
	if maxMins := int(meeting.Duration() / time.Minute); mins > maxMins {
		mins = maxMins
	}
	if mins < 1 {
		mins = 1
	}
	return mins
}

// studentsImpacted counts participants whose percentage changes when the window is cut at the cliff.
func (d *Detector) studentsImpacted(coverage []attendance.Coverage, meeting attendance.Window, effEnd int) (int, error) {
	effective := meeting.Truncate(effEnd)
	var impacted int
	for _, c := range coverage {
		raw, err := attendance.Calculate(c.IdentityKey, c.Intervals, meeting)
		if err != nil {
			return 0, err
		}
		eff, err := attendance.Calculate(c.IdentityKey, c.Intervals, effective)
		if err != nil {
			return 0, err
		}
		if math.Abs(eff.AttendancePercentage-raw.AttendancePercentage) > d.params.ImpactEpsilon {
			impacted++
		}
	}
	return impacted, nil
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
