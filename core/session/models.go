package session

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/attendance"
)

var (
	// errors
	ErrNotFound         = errors.New("session not found")
	ErrNoTelemetryData  = errors.New("no telemetry data available for this meeting")
	ErrNoMeetingLink    = errors.New("session has no meeting linked")
	ErrInvalidMeetingID = errors.New("meeting link does not contain a meeting id")
)

// Session is the cohort session the engine reads and annotates.
// Its CRUD lives elsewhere in the platform.
type Session struct {
	ID                       int       `json:"id"`
	Title                    string    `json:"title"`
	MeetingLink              string    `json:"meeting_link"`
	ScheduledAt              time.Time `json:"scheduled_at"` // UTC
	ScheduledDurationMinutes int       `json:"scheduled_duration_minutes"`
	ActualDurationMinutes    *int      `json:"actual_duration_minutes"` // admin override
	FormalEndMinutes         *int      `json:"formal_end_minutes"`      // set by Apply only
	Detection                Detection `json:"cliff_detection"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// AttendanceWindow picks the window attendance is computed against for the given
// meeting bounds: an applied formal end first, then the admin's actual duration,
// then the raw meeting bounds, and the scheduled duration if those are degenerate.
func (s Session) AttendanceWindow(meeting attendance.Window) attendance.Window {
	switch {
	case s.FormalEndMinutes != nil && *s.FormalEndMinutes > 0:
		return meeting.Truncate(*s.FormalEndMinutes)
	case s.ActualDurationMinutes != nil && *s.ActualDurationMinutes > 0:
		return meeting.Truncate(*s.ActualDurationMinutes)
	}
	return s.MeetingBounds(meeting)
}

// MeetingBounds returns `meeting`, or a window of the scheduled length from its start
// when `meeting` is degenerate.
func (s Session) MeetingBounds(meeting attendance.Window) attendance.Window {
	if meeting.Validate() != nil && s.ScheduledDurationMinutes > 0 {
		return meeting.Truncate(s.ScheduledDurationMinutes)
	}
	return meeting
}

// NewSession contains information needed to create a new Session.
type NewSession struct {
	Title                    string    `json:"title" validate:"required"`
	MeetingLink              string    `json:"meeting_link" validate:"omitempty,meetinglink"`
	ScheduledAt              time.Time `json:"scheduled_at" validate:"required"`
	ScheduledDurationMinutes int       `json:"scheduled_duration_minutes" validate:"gt=0"`
	ActualDurationMinutes    *int      `json:"actual_duration_minutes" validate:"omitempty,gt=0"`
}

func (ns *NewSession) Validate() error {
	ns.Title = core.CleanString(ns.Title)
	ns.MeetingLink = core.CleanString(ns.MeetingLink)
	return core.ValidateStruct(ns)
}

// ApplyFormalEnd is the input of an Apply action.
type ApplyFormalEnd struct {
	FormalEndMinutes int `json:"formal_end_minutes" validate:"gt=0"`
}

func (a ApplyFormalEnd) Validate() error { return core.ValidateStruct(a) }

// AttendanceResult is returned by Apply & Dismiss.
type AttendanceResult struct {
	SessionID  int                 `json:"session_id"`
	Window     *attendance.Window  `json:"window,omitempty"`
	Attendance []attendance.Record `json:"attendance"`
	Stats      *attendance.Stats   `json:"stats,omitempty"`
	Detection  Detection           `json:"cliff_detection"`
}

type Repository interface {
	CreateSession(ctx context.Context, sess Session) (Session, error)
	GetSession(ctx context.Context, id int) (Session, error)
	// QueryDetectionCandidates returns sessions with a meeting link whose detection is
	// neither applied nor dismissed, most recent first.
	QueryDetectionCandidates(ctx context.Context) ([]Session, error)
	UpdateDetection(ctx context.Context, id int, det Detection) error
	// UpdateFormalEnd atomically sets the formal end (nil clears it) together with the detection.
	UpdateFormalEnd(ctx context.Context, id int, formalEndMinutes *int, det Detection) error
	ReplaceAttendance(ctx context.Context, id int, records []attendance.Record) error
	QueryAttendance(ctx context.Context, id int) ([]attendance.Record, error)
}

// PersistenceError reports a failed write. The computation it accompanies is still valid.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return "persisting " + e.Op + ": " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistenceError reports whether err is (or wraps) a *PersistenceError.
func IsPersistenceError(err error) bool {
	var pErr *PersistenceError
	return errors.As(err, &pErr)
}
