// Package session runs the attendance & cliff detection engine for cohort sessions and
// owns the lifecycle of each session's detection result.
package session

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/attendance"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/cliff"
)

var nowFunc = time.Now // mockable

// Analysis is the in-memory outcome of the pipeline for one meeting.
type Analysis struct {
	Participants  []attendance.Participant
	Coverage      []attendance.Coverage
	Meeting       attendance.Window
	BoundsDerived bool
	Result        cliff.Result
}

// Analyze resolves, coalesces and runs cliff detection over a meeting's raw events.
// When `meeting` is nil or degenerate the bounds are derived from the participants.
// It has no side effects.
func Analyze(events []attendance.ParticipantEvent, meeting *attendance.Window, detector *cliff.Detector) (Analysis, error) {
	if len(events) == 0 {
		return Analysis{}, ErrNoTelemetryData
	}

	participants := attendance.Resolve(events)
	an := Analysis{
		Participants: participants,
		Coverage:     attendance.Cover(participants),
	}
	if meeting != nil && meeting.Validate() == nil {
		an.Meeting = *meeting
	} else {
		an.Meeting, _ = attendance.DerivedBounds(participants)
		an.BoundsDerived = true
	}

	res, err := detector.Detect(an.Coverage, an.Meeting)
	if err != nil {
		return an, errors.Wrap(err, "detecting cliff")
	}
	an.Result = res
	return an, nil
}

type metadataFunc func(ctx context.Context) (attendance.Window, error)

type Service struct {
	repo         Repository
	telemetry    Telemetry
	detector     *cliff.Detector
	logger       core.Logger
	lowThreshold float64
}

func NewService(repo Repository, telemetry Telemetry, detector *cliff.Detector, logger core.Logger, lowThreshold float64) *Service {
	return &Service{
		repo:         repo,
		telemetry:    telemetry,
		detector:     detector,
		logger:       logger,
		lowThreshold: lowThreshold,
	}
}

func (svc *Service) GetByID(ctx context.Context, id int) (Session, error) {
	return svc.repo.GetSession(ctx, id)
}

func (svc *Service) Create(ctx context.Context, ns NewSession) (Session, error) {
	if err := ns.Validate(); err != nil {
		return Session{}, err
	}
	now := nowFunc().UTC()
	return svc.repo.CreateSession(ctx, Session{
		Title:                    ns.Title,
		MeetingLink:              ns.MeetingLink,
		ScheduledAt:              ns.ScheduledAt.UTC(),
		ScheduledDurationMinutes: ns.ScheduledDurationMinutes,
		ActualDurationMinutes:    ns.ActualDurationMinutes,
		Detection:                Detection{State: StateUndetected},
		CreatedAt:                now,
		UpdatedAt:                now,
	})
}

// Detect runs cliff detection for one session, merges the result onto its stored detection
// and stores attendance computed against the session's current window.
// A failed write is reported as a *PersistenceError alongside the valid result.
func (svc *Service) Detect(ctx context.Context, id int) (cliff.Result, error) {
	sess, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return cliff.Result{}, err
	}
	meetingID, err := ResolveMeetingID(sess.MeetingLink)
	if err != nil {
		return cliff.Result{}, err
	}
	res, _, err := svc.detect(ctx, sess, meetingID, svc.fetchMetadata(meetingID))
	return res, err
}

func (svc *Service) detect(ctx context.Context, sess Session, meetingID string, metadata metadataFunc) (cliff.Result, Detection, error) {
	an, err := svc.analyze(ctx, sess, meetingID, metadata)
	if err != nil {
		return cliff.Result{}, sess.Detection, err
	}
	det, err := sess.Detection.Transition(Event{Kind: EventDetected, Result: an.Result, At: nowFunc()})
	if err != nil {
		return an.Result, sess.Detection, err
	}
	records, err := attendance.CalculateAll(an.Coverage, sess.AttendanceWindow(an.Meeting))
	if err != nil {
		return an.Result, sess.Detection, errors.Wrap(err, "calculating attendance")
	}
	if err = ctx.Err(); err != nil {
		return an.Result, sess.Detection, err
	}

	if err = svc.repo.UpdateDetection(ctx, sess.ID, det); err != nil {
		pErr := &PersistenceError{Op: "cliff detection", Err: err}
		svc.logger.Error("failed to persist cliff detection", pErr, core.Fields{"session_id": sess.ID})
		return an.Result, det, pErr
	}
	if err = svc.repo.ReplaceAttendance(ctx, sess.ID, records); err != nil {
		pErr := &PersistenceError{Op: "attendance", Err: err}
		svc.logger.Error("failed to persist attendance", pErr, core.Fields{"session_id": sess.ID})
		return an.Result, det, pErr
	}
	svc.logger.Debug("cliff detection stored", core.Fields{
		"session_id": sess.ID,
		"detected":   an.Result.Detected,
		"state":      det.State,
	})
	return an.Result, det, nil
}

// Apply commits `formalEndMinutes` as the session's formal end and recomputes every
// participant's attendance against [meeting start, meeting start + formalEndMinutes].
// Re-applying overwrites the previous application.
func (svc *Service) Apply(ctx context.Context, id int, formalEndMinutes int) (AttendanceResult, error) {
	if err := (ApplyFormalEnd{FormalEndMinutes: formalEndMinutes}).Validate(); err != nil {
		return AttendanceResult{}, err
	}
	sess, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return AttendanceResult{}, err
	}
	an, err := svc.analyzeSession(ctx, sess)
	if err != nil {
		return AttendanceResult{}, err
	}

	det, err := sess.Detection.Transition(Event{Kind: EventApplied, FormalEndMinutes: formalEndMinutes, At: nowFunc()})
	if err != nil {
		return AttendanceResult{}, err
	}
	sess.FormalEndMinutes = &formalEndMinutes

	window := sess.AttendanceWindow(an.Meeting)
	records, err := attendance.CalculateAll(an.Coverage, window)
	if err != nil {
		return AttendanceResult{}, err
	}
	out := svc.attendanceResult(sess.ID, &window, records, det)
	if err = ctx.Err(); err != nil {
		return AttendanceResult{}, err
	}
	return out, svc.persist(ctx, sess.ID, sess.FormalEndMinutes, det, records)
}

// Dismiss rejects the detection and reverts the session to its raw (or admin-set) window.
// Attendance is recomputed only when telemetry is reachable. Otherwise the stored records,
// computed against the discarded window, are cleared and the result carries no attendance.
func (svc *Service) Dismiss(ctx context.Context, id int) (AttendanceResult, error) {
	sess, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return AttendanceResult{}, err
	}
	det, err := sess.Detection.Transition(Event{Kind: EventDismissed, At: nowFunc()})
	if err != nil {
		return AttendanceResult{}, err
	}
	sess.FormalEndMinutes = nil

	var window *attendance.Window
	var records []attendance.Record
	if an, aErr := svc.analyzeSession(ctx, sess); aErr != nil {
		svc.logger.Warn("attendance not recomputed after dismissal", aErr, core.Fields{"session_id": sess.ID})
	} else {
		w := sess.AttendanceWindow(an.Meeting)
		if records, err = attendance.CalculateAll(an.Coverage, w); err != nil {
			svc.logger.Warn("attendance not recomputed after dismissal", err, core.Fields{"session_id": sess.ID})
			records = nil
		} else {
			window = &w
		}
	}
	out := svc.attendanceResult(sess.ID, window, records, det)
	if err = ctx.Err(); err != nil {
		return AttendanceResult{}, err
	}
	if records == nil {
		records = []attendance.Record{}
	}
	return out, svc.persist(ctx, sess.ID, nil, det, records)
}

// Reopen clears a dismissal so the session is picked up by batch detection again.
func (svc *Service) Reopen(ctx context.Context, id int) (Detection, error) {
	sess, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return Detection{}, err
	}
	det, err := sess.Detection.Transition(Event{Kind: EventReopened, At: nowFunc()})
	if err != nil {
		return Detection{}, err
	}
	if err = svc.repo.UpdateDetection(ctx, sess.ID, det); err != nil {
		pErr := &PersistenceError{Op: "cliff detection", Err: err}
		svc.logger.Error("failed to persist reopened detection", pErr, core.Fields{"session_id": sess.ID})
		return det, pErr
	}
	return det, nil
}

// Attendance returns the stored attendance of a session.
func (svc *Service) Attendance(ctx context.Context, id int) (AttendanceResult, error) {
	sess, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return AttendanceResult{}, err
	}
	records, err := svc.repo.QueryAttendance(ctx, id)
	if err != nil {
		return AttendanceResult{}, errors.Wrap(err, "querying attendance")
	}
	return svc.attendanceResult(sess.ID, nil, records, sess.Detection), nil
}

func (svc *Service) analyzeSession(ctx context.Context, sess Session) (Analysis, error) {
	meetingID, err := ResolveMeetingID(sess.MeetingLink)
	if err != nil {
		return Analysis{}, err
	}
	return svc.analyze(ctx, sess, meetingID, svc.fetchMetadata(meetingID))
}

func (svc *Service) analyze(ctx context.Context, sess Session, meetingID string, metadata metadataFunc) (Analysis, error) {
	events, err := svc.telemetry.FetchParticipants(ctx, meetingID)
	if err != nil {
		return Analysis{}, errors.Wrapf(err, "fetching participants of meeting %s", meetingID)
	}
	if len(events) == 0 {
		return Analysis{}, ErrNoTelemetryData
	}

	var meeting *attendance.Window
	if w, mErr := metadata(ctx); mErr != nil {
		svc.logger.Warn("meeting metadata unavailable, using participant bounds", mErr, core.Fields{
			"session_id": sess.ID,
			"meeting_id": meetingID,
		})
	} else {
		meeting = &w
	}

	an, err := Analyze(events, meeting, svc.detector)
	if err != nil && an.BoundsDerived && errors.Is(err, attendance.ErrInvalidWindow) {
		// every participant joined & left at the same instant
		if bounds := sess.MeetingBounds(an.Meeting); bounds.Validate() == nil {
			svc.logger.Warn("participant bounds are empty, using the scheduled duration", core.Fields{
				"session_id": sess.ID,
				"meeting_id": meetingID,
			})
			an, err = Analyze(events, &bounds, svc.detector)
		}
	}
	if err != nil {
		return Analysis{}, err
	}
	if an.BoundsDerived && meeting != nil {
		svc.logger.Warn("meeting metadata has an empty window, using participant bounds", core.Fields{
			"session_id": sess.ID,
			"meeting_id": meetingID,
		})
	}
	return an, nil
}

func (svc *Service) fetchMetadata(meetingID string) metadataFunc {
	return func(ctx context.Context) (attendance.Window, error) {
		w, err := svc.telemetry.FetchMeetingMetadata(ctx, meetingID)
		if err != nil {
			return attendance.Window{}, errors.Wrapf(err, "fetching metadata of meeting %s", meetingID)
		}
		return w, nil
	}
}

// persist writes the formal end & detection first, then the attendance.
// An empty, non-nil `records` clears the stored attendance.
func (svc *Service) persist(ctx context.Context, id int, formalEndMinutes *int, det Detection, records []attendance.Record) error {
	if err := svc.repo.UpdateFormalEnd(ctx, id, formalEndMinutes, det); err != nil {
		pErr := &PersistenceError{Op: "formal end", Err: err}
		svc.logger.Error("failed to persist formal end", pErr, core.Fields{"session_id": id, "state": det.State})
		return pErr
	}
	if records == nil {
		return nil
	}
	if err := svc.repo.ReplaceAttendance(ctx, id, records); err != nil {
		pErr := &PersistenceError{Op: "attendance", Err: err}
		svc.logger.Error("failed to persist attendance", pErr, core.Fields{"session_id": id})
		return pErr
	}
	return nil
}

func (svc *Service) attendanceResult(id int, window *attendance.Window, records []attendance.Record, det Detection) AttendanceResult {
	out := AttendanceResult{
		SessionID:  id,
		Window:     window,
		Attendance: records,
		Detection:  det,
	}
	if records != nil {
		stats := attendance.Summarize(records, svc.lowThreshold)
		out.Stats = &stats
	}
	return out
}
