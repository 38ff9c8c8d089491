package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/attendance"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/session"
)

// Base is the start of every scenario meeting.
var Base = time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC)

// At returns Base shifted by `min` minutes.
func At(min float64) time.Time {
	return Base.Add(time.Duration(min * float64(time.Minute)))
}

func Meeting(endMin float64) attendance.Window {
	return attendance.Window{Start: At(0), End: At(endMin)}
}

func Event(connID, email string, joinMin, leaveMin float64) attendance.ParticipantEvent {
	return attendance.ParticipantEvent{
		ConnectionID: connID,
		Email:        email,
		JoinTime:     At(joinMin),
		LeaveTime:    At(leaveMin),
	}
}

// CliffEvents is a 58-minute meeting where 7 of 10 students leave together at minute 40.
func CliffEvents() []attendance.ParticipantEvent {
	events := make([]attendance.ParticipantEvent, 0, 11)
	for i := 0; i < 10; i++ {
		leave := 58.0
		if i < 7 {
			leave = 40
		}
		events = append(events, Event(fmt.Sprintf("c%02d", i), fmt.Sprintf("student%02d@example.com", i), 0, leave))
	}
	// a reconnect of a stayer merges into the same identity
	events = append(events, Event("c10", "STUDENT09@example.com ", 20, 25))
	return events
}

// TrickleEvents is a 58-minute meeting where 10 students leave one by one over the last 3 minutes.
func TrickleEvents() []attendance.ParticipantEvent {
	events := make([]attendance.ParticipantEvent, 0, 10)
	for i := 0; i < 10; i++ {
		events = append(events, Event(fmt.Sprintf("c%02d", i), fmt.Sprintf("student%02d@example.com", i), 0, 55+float64(i)*3/9))
	}
	return events
}

func CreateSession(t *testing.T, repo session.Repository, title, link string, scheduledAt time.Time, durationMinutes int) session.Session {
	t.Helper()
	sess, err := repo.CreateSession(context.Background(), session.Session{
		Title:                    title,
		MeetingLink:              link,
		ScheduledAt:              scheduledAt.UTC(),
		ScheduledDurationMinutes: durationMinutes,
		Detection:                session.Detection{State: session.StateUndetected},
		CreatedAt:                time.Now().UTC(),
		UpdatedAt:                time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	return sess
}

// FakeTelemetry serves canned meetings and records every call. Safe for concurrent use.
type FakeTelemetry struct {
	mu            sync.Mutex
	participants  map[string][]attendance.ParticipantEvent
	meetings      map[string]attendance.Window
	errs          map[string]error
	metadataErrs  map[string]error
	participantAt []time.Time
	calls         []string
}

var _ session.Telemetry = (*FakeTelemetry)(nil)

var ErrMeetingNotFound = errors.New("meeting not found")

func NewFakeTelemetry() *FakeTelemetry {
	return &FakeTelemetry{
		participants: make(map[string][]attendance.ParticipantEvent),
		meetings:     make(map[string]attendance.Window),
		errs:         make(map[string]error),
		metadataErrs: make(map[string]error),
	}
}

func (f *FakeTelemetry) AddMeeting(meetingID string, meeting attendance.Window, events []attendance.ParticipantEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meetings[meetingID] = meeting
	f.participants[meetingID] = events
}

// FailParticipants makes participant fetches of `meetingID` fail with `err`.
func (f *FakeTelemetry) FailParticipants(meetingID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[meetingID] = err
}

// FailMetadata makes metadata look-ups of `meetingID` fail with `err`.
func (f *FakeTelemetry) FailMetadata(meetingID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadataErrs[meetingID] = err
}

func (f *FakeTelemetry) FetchParticipants(ctx context.Context, meetingID string) ([]attendance.ParticipantEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "participants:"+meetingID)
	f.participantAt = append(f.participantAt, time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.errs[meetingID]; err != nil {
		return nil, err
	}
	events, ok := f.participants[meetingID]
	if !ok {
		return nil, ErrMeetingNotFound
	}
	out := make([]attendance.ParticipantEvent, len(events))
	copy(out, events)
	return out, nil
}

func (f *FakeTelemetry) FetchMeetingMetadata(ctx context.Context, meetingID string) (attendance.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "metadata:"+meetingID)
	if err := ctx.Err(); err != nil {
		return attendance.Window{}, err
	}
	if err := f.metadataErrs[meetingID]; err != nil {
		return attendance.Window{}, err
	}
	meeting, ok := f.meetings[meetingID]
	if !ok {
		return attendance.Window{}, ErrMeetingNotFound
	}
	return meeting, nil
}

// Calls returns the calls made so far, e.g. "participants:85123456789".
func (f *FakeTelemetry) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// ParticipantFetchTimes returns when each participant fetch happened.
func (f *FakeTelemetry) ParticipantFetchTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.participantAt...)
}

// Logger is a core.Logger that keeps every message for assertions.
type Logger struct {
	t        *testing.T
	mu       sync.Mutex
	messages map[string][]string
}

var _ core.Logger = (*Logger)(nil)

func NewLogger(t *testing.T) *Logger {
	return &Logger{t: t, messages: make(map[string][]string)}
}

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages[level] = append(l.messages[level], msg)
	l.t.Logf("%s: %s %v", level, msg, args)
}

// Messages returns the messages logged at `level` (debug, info, warn, error, fatal).
func (l *Logger) Messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages[level]...)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

// FailingRepository wraps a session.Repository and fails every write with Err.
type FailingRepository struct {
	session.Repository
	Err error
}

func (r FailingRepository) UpdateDetection(context.Context, int, session.Detection) error {
	return r.Err
}

func (r FailingRepository) UpdateFormalEnd(context.Context, int, *int, session.Detection) error {
	return r.Err
}

func (r FailingRepository) ReplaceAttendance(context.Context, int, []attendance.Record) error {
	return r.Err
}
