package session

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/cliff"
)

// State is the lifecycle of a session's cliff detection.
type State string

const (
	StateUndetected State = "undetected"
	StateDetected   State = "detected"
	StateApplied    State = "applied"
	StateDismissed  State = "dismissed"
)

type EventKind int

const (
	EventDetected EventKind = iota + 1
	EventApplied
	EventDismissed
	EventReopened
)

func (k EventKind) String() string {
	switch k {
	case EventDetected:
		return "detected"
	case EventApplied:
		return "applied"
	case EventDismissed:
		return "dismissed"
	case EventReopened:
		return "reopened"
	default:
		return "unknown"
	}
}

// Event drives a Detection from one state to the next.
type Event struct {
	Kind             EventKind
	Result           cliff.Result // EventDetected
	FormalEndMinutes int          // EventApplied
	At               time.Time
}

var (
	errUnknownEvent  = errors.New("unknown detection event")
	errInvalidFormal = errors.New("formal end must be a positive number of minutes")
)

// Detection is the persisted cliff detection of a session.
type Detection struct {
	State                   State
	Result                  cliff.Result
	DetectedAt              *time.Time
	AppliedAt               *time.Time
	AppliedFormalEndMinutes *int
	DismissedAt             *time.Time
}

// Transition is the only way a Detection changes.
// Detection runs refresh the result fields but never undo an admin's Apply or Dismiss;
// only a new Apply, Dismiss or Reopen does.
func (d Detection) Transition(ev Event) (Detection, error) {
	next := d
	if next.State == "" {
		next.State = StateUndetected
	}
	at := ev.At.UTC()

	switch ev.Kind {
	case EventDetected:
		next.Result = ev.Result
		next.DetectedAt = &at
		if next.State != StateApplied && next.State != StateDismissed {
			next.State = stateFor(ev.Result)
		}
	case EventApplied:
		if ev.FormalEndMinutes <= 0 {
			return d, core.NewValidationError(errInvalidFormal, core.FieldError{
				Field: "formal_end_minutes",
				Error: errInvalidFormal.Error(),
			})
		}
		mins := ev.FormalEndMinutes
		next.State = StateApplied
		next.AppliedAt = &at
		next.AppliedFormalEndMinutes = &mins
		next.DismissedAt = nil
	case EventDismissed:
		next.State = StateDismissed
		next.DismissedAt = &at
		next.AppliedAt = nil
		next.AppliedFormalEndMinutes = nil
	case EventReopened:
		if next.State == StateDismissed {
			next.State = stateFor(next.Result)
			next.DismissedAt = nil
		}
	default:
		return d, errors.Wrapf(errUnknownEvent, "event %d", ev.Kind)
	}
	return next, nil
}

func stateFor(res cliff.Result) State {
	if res.Detected {
		return StateDetected
	}
	return StateUndetected
}

func (d Detection) Dismissed() bool { return d.State == StateDismissed }
func (d Detection) Applied() bool   { return d.State == StateApplied }

// EligibleForBatch reports whether automatic re-detection may run for this session.
func (d Detection) EligibleForBatch() bool {
	return !d.Dismissed() && !d.Applied()
}

// detectionJSON is the stored blob shape: the flat result fields plus lifecycle fields.
type detectionJSON struct {
	State State `json:"state"`
	cliff.Result
	Dismissed               bool       `json:"dismissed"`
	DismissedAt             *time.Time `json:"dismissedAt,omitempty"`
	DetectedAt              *time.Time `json:"detectedAt,omitempty"`
	AppliedAt               *time.Time `json:"appliedAt"`
	AppliedFormalEndMinutes *int       `json:"appliedFormalEndMinutes"`
}

func (d Detection) MarshalJSON() ([]byte, error) {
	state := d.State
	if state == "" {
		state = StateUndetected
	}
	return json.Marshal(detectionJSON{
		State:                   state,
		Result:                  d.Result,
		Dismissed:               state == StateDismissed,
		DismissedAt:             d.DismissedAt,
		DetectedAt:              d.DetectedAt,
		AppliedAt:               d.AppliedAt,
		AppliedFormalEndMinutes: d.AppliedFormalEndMinutes,
	})
}

// UnmarshalJSON also accepts blobs written before the explicit state existed,
// deriving the state from the dismissed / appliedAt / detected fields.
func (d *Detection) UnmarshalJSON(data []byte) error {
	var raw detectionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	state := raw.State
	if state == "" {
		switch {
		case raw.Dismissed:
			state = StateDismissed
		case raw.AppliedAt != nil:
			state = StateApplied
		default:
			state = stateFor(raw.Result)
		}
	}
	*d = Detection{
		State:                   state,
		Result:                  raw.Result,
		DetectedAt:              raw.DetectedAt,
		AppliedAt:               raw.AppliedAt,
		AppliedFormalEndMinutes: raw.AppliedFormalEndMinutes,
		DismissedAt:             raw.DismissedAt,
	}
	return nil
}
