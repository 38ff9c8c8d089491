package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/cliff"
)

var (
	t0 = time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)

	found = func() cliff.Result {
		conf := cliff.ConfidenceHigh
		ts := t0.Add(-20 * time.Minute)
		eff := 40
		return cliff.Result{Detected: true, Confidence: &conf, CliffTimestamp: &ts, EffectiveEndMinutes: &eff, StudentsImpacted: 7}
	}()
	notFound = cliff.Result{}
)

func TestDetection_Transition(t *testing.T) {
	applied := func() Detection {
		d, err := Detection{}.Transition(Event{Kind: EventApplied, FormalEndMinutes: 40, At: t0})
		require.NoError(t, err)
		return d
	}()
	dismissed := Detection{State: StateDismissed, Result: found, DismissedAt: &t0}

	tests := []struct {
		name      string
		from      Detection
		event     Event
		wantState State
		wantErr   bool
	}{
		{name: "zero value detects a cliff", from: Detection{}, event: Event{Kind: EventDetected, Result: found}, wantState: StateDetected},
		{name: "no cliff stays undetected", from: Detection{}, event: Event{Kind: EventDetected, Result: notFound}, wantState: StateUndetected},
		{name: "re-detection without cliff", from: Detection{State: StateDetected, Result: found}, event: Event{Kind: EventDetected, Result: notFound}, wantState: StateUndetected},
		{name: "detection keeps applied", from: applied, event: Event{Kind: EventDetected, Result: notFound}, wantState: StateApplied},
		{name: "detection keeps dismissed", from: dismissed, event: Event{Kind: EventDetected, Result: found}, wantState: StateDismissed},
		{name: "apply from detected", from: Detection{State: StateDetected, Result: found}, event: Event{Kind: EventApplied, FormalEndMinutes: 40}, wantState: StateApplied},
		{name: "apply from dismissed", from: dismissed, event: Event{Kind: EventApplied, FormalEndMinutes: 45}, wantState: StateApplied},
		{name: "apply zero minutes", from: Detection{State: StateDetected}, event: Event{Kind: EventApplied}, wantState: StateDetected, wantErr: true},
		{name: "apply negative minutes", from: Detection{State: StateDetected}, event: Event{Kind: EventApplied, FormalEndMinutes: -3}, wantState: StateDetected, wantErr: true},
		{name: "dismiss applied", from: applied, event: Event{Kind: EventDismissed}, wantState: StateDismissed},
		{name: "dismiss undetected", from: Detection{}, event: Event{Kind: EventDismissed}, wantState: StateDismissed},
		{name: "reopen dismissed cliff", from: dismissed, event: Event{Kind: EventReopened}, wantState: StateDetected},
		{name: "reopen dismissed without cliff", from: Detection{State: StateDismissed}, event: Event{Kind: EventReopened}, wantState: StateUndetected},
		{name: "reopen applied is a no-op", from: applied, event: Event{Kind: EventReopened}, wantState: StateApplied},
		{name: "unknown event", from: Detection{State: StateDetected}, event: Event{Kind: EventKind(42)}, wantState: StateDetected, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.event.At = t0
			got, err := tt.from.Transition(tt.event)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.from, got)
			} else {
				require.NoError(t, err)
			}
			state := got.State
			if state == "" {
				state = StateUndetected
			}
			assert.Equal(t, tt.wantState, state)
		})
	}
}

func TestDetection_TransitionFields(t *testing.T) {
	det, err := Detection{}.Transition(Event{Kind: EventDetected, Result: found, At: t0})
	require.NoError(t, err)
	require.NotNil(t, det.DetectedAt)
	assert.Equal(t, t0, *det.DetectedAt)
	assert.Equal(t, found, det.Result)
	assert.True(t, det.EligibleForBatch())

	det, err = det.Transition(Event{Kind: EventApplied, FormalEndMinutes: 40, At: t0.Add(time.Hour)})
	require.NoError(t, err)
	require.NotNil(t, det.AppliedFormalEndMinutes)
	assert.Equal(t, 40, *det.AppliedFormalEndMinutes)
	assert.Equal(t, t0.Add(time.Hour), *det.AppliedAt)
	assert.True(t, det.Applied())
	assert.False(t, det.EligibleForBatch())

	// a batch re-run refreshes the result but never reverts the admin's choice
	det, err = det.Transition(Event{Kind: EventDetected, Result: notFound, At: t0.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.True(t, det.Applied())
	assert.Equal(t, notFound, det.Result)
	assert.Equal(t, 40, *det.AppliedFormalEndMinutes)

	det, err = det.Transition(Event{Kind: EventDismissed, At: t0.Add(3 * time.Hour)})
	require.NoError(t, err)
	assert.True(t, det.Dismissed())
	assert.Nil(t, det.AppliedAt)
	assert.Nil(t, det.AppliedFormalEndMinutes)
	assert.False(t, det.EligibleForBatch())

	det, err = det.Transition(Event{Kind: EventReopened, At: t0.Add(4 * time.Hour)})
	require.NoError(t, err)
	assert.Nil(t, det.DismissedAt)
	assert.True(t, det.EligibleForBatch())
}

func TestDetection_ApplyValidation(t *testing.T) {
	_, err := Detection{}.Transition(Event{Kind: EventApplied, FormalEndMinutes: 0, At: t0})
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
}

func TestDetection_JSON(t *testing.T) {
	det, err := Detection{}.Transition(Event{Kind: EventDetected, Result: found, At: t0})
	require.NoError(t, err)
	det, err = det.Transition(Event{Kind: EventDismissed, At: t0})
	require.NoError(t, err)

	blob, err := json.Marshal(det)
	require.NoError(t, err)

	var flat map[string]interface{}
	require.NoError(t, json.Unmarshal(blob, &flat))
	assert.Equal(t, "dismissed", flat["state"])
	assert.Equal(t, true, flat["dismissed"])
	assert.Equal(t, true, flat["detected"])
	assert.Equal(t, "high", flat["confidence"])
	assert.EqualValues(t, 40, flat["effectiveEndMinutes"])
	assert.EqualValues(t, 7, flat["studentsImpacted"])
	assert.Contains(t, flat, "cliffTimestamp")
	assert.Contains(t, flat, "appliedAt")

	var back Detection
	require.NoError(t, json.Unmarshal(blob, &back))
	assert.Equal(t, StateDismissed, back.State)
	assert.Equal(t, 40, *back.Result.EffectiveEndMinutes)
	assert.True(t, back.Result.CliffTimestamp.Equal(*found.CliffTimestamp))
}

func TestDetection_UnmarshalLegacy(t *testing.T) {
	tests := []struct {
		name string
		blob string
		want State
	}{
		{name: "dismissed flag", blob: `{"detected":true,"dismissed":true}`, want: StateDismissed},
		{name: "applied", blob: `{"detected":true,"appliedAt":"2026-03-02T20:00:00Z","appliedFormalEndMinutes":40}`, want: StateApplied},
		{name: "detected", blob: `{"detected":true,"effectiveEndMinutes":40}`, want: StateDetected},
		{name: "nothing", blob: `{"detected":false}`, want: StateUndetected},
		{name: "explicit state wins", blob: `{"state":"detected","detected":true,"dismissed":false}`, want: StateDetected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var det Detection
			require.NoError(t, json.Unmarshal([]byte(tt.blob), &det))
			assert.Equal(t, tt.want, det.State)
		})
	}
}
