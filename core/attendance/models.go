// Package attendance turns raw videoconference join/leave telemetry into per-participant
// coverage and attendance percentages.
package attendance

import (
	"time"

	"github.com/pkg/errors"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core"
)

var (
	// ErrInvalidWindow is returned when a window's end is not after its start.
	ErrInvalidWindow = core.NewValidationError(
		errors.New("attendance window must end after it starts"),
		core.FieldError{Field: "window", Error: "window end must be after window start"},
	)
)

// ParticipantEvent is one continuous connection as reported by the provider.
// A single human may produce several of them (reconnects).
type ParticipantEvent struct {
	ConnectionID string    `json:"connection_id"`
	Email        string    `json:"email"`
	JoinTime     time.Time `json:"join_time"`
	LeaveTime    time.Time `json:"leave_time"`
}

// Interval is a half-open [Start, End) span of presence.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (iv Interval) Duration() time.Duration {
	if iv.End.Before(iv.Start) {
		return 0
	}
	return iv.End.Sub(iv.Start)
}

// Participant groups every segment belonging to one human identity.
type Participant struct {
	IdentityKey string     `json:"identity_key"`
	Email       string     `json:"email,omitempty"`
	Synthetic   bool       `json:"synthetic"`
	Segments    []Interval `json:"segments"` // sorted by Start
}

// Coverage is a participant's coalesced presence: disjoint, sorted intervals.
type Coverage struct {
	IdentityKey string     `json:"identity_key"`
	Intervals   []Interval `json:"intervals"`
}

// LastSeen returns the end of the participant's final coverage interval.
func (c Coverage) LastSeen() (time.Time, bool) {
	if len(c.Intervals) == 0 {
		return time.Time{}, false
	}
	return c.Intervals[len(c.Intervals)-1].End, true
}

// Window is the effective session window attendance is computed against.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Validate() error {
	if !w.End.After(w.Start) {
		return ErrInvalidWindow
	}
	return nil
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Truncate returns a window starting at w.Start and lasting `minutes`.
func (w Window) Truncate(minutes int) Window {
	return Window{Start: w.Start, End: w.Start.Add(time.Duration(minutes) * time.Minute)}
}

// Record is a participant's attendance against a window. Always recomputed, never edited.
type Record struct {
	IdentityKey          string  `json:"identity_key" db:"identity_key"`
	CoverageSeconds      float64 `json:"coverage_seconds" db:"coverage_seconds"`
	WindowSeconds        float64 `json:"window_seconds" db:"window_seconds"`
	AttendancePercentage float64 `json:"attendance_percentage" db:"attendance_percentage"`
}

// Stats is the per-session aggregate over all Records.
type Stats struct {
	Participants   int     `json:"participants"`
	MeanPercentage float64 `json:"mean_percentage"`
	BelowThreshold int     `json:"below_threshold"`
	Threshold      float64 `json:"threshold"`
}
