package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/attendance"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/cliff"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/session"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/tests"
)

func TestOrchestrator_RunBatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.telemetry.AddMeeting("85100000003", testutil.Meeting(60), nil)
	f.telemetry.AddMeeting("85100000004", testutil.Meeting(60), testutil.CliffEvents())
	f.telemetry.FailParticipants("85100000004", errors.New("429 too many requests"))
	f.telemetry.AddMeeting("85100000005", testutil.Meeting(58), testutil.CliffEvents())
	f.telemetry.AddMeeting("85100000006", testutil.Meeting(58), testutil.CliffEvents())

	day := func(d int) time.Time { return testutil.Base.AddDate(0, 0, d) }
	cliffSess := testutil.CreateSession(t, f.repo, "cliff", cliffLink, day(5), 60)
	trickleSess := testutil.CreateSession(t, f.repo, "trickle", trickleLink, day(4), 60)
	emptySess := testutil.CreateSession(t, f.repo, "empty", "85100000003", day(3), 60)
	badLinkSess := testutil.CreateSession(t, f.repo, "bad link", "https://example.com/room", day(2), 60)
	failingSess := testutil.CreateSession(t, f.repo, "failing", "85100000004", day(1), 60)
	testutil.CreateSession(t, f.repo, "no link", "", day(6), 60)

	dismissed := testutil.CreateSession(t, f.repo, "dismissed", "85100000005", day(7), 60)
	_, err := f.svc.Dismiss(ctx, dismissed.ID)
	require.NoError(t, err)
	applied := testutil.CreateSession(t, f.repo, "applied", "85100000006", day(8), 60)
	_, err = f.svc.Apply(ctx, applied.ID, 40)
	require.NoError(t, err)

	orch := session.NewOrchestrator(f.svc, session.BatchOptions{MetadataConcurrency: 2})
	summary, err := orch.RunBatch(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.False(t, summary.FinishedAt.Before(summary.StartedAt))
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 1, summary.Detected)
	assert.Equal(t, 1, summary.NoCliff)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, map[cliff.Confidence]int{cliff.ConfidenceHigh: 1}, summary.ByConfidence)
	assert.Equal(t, 7, summary.StudentsImpacted)

	// most recent first
	require.Len(t, summary.Items, 5)
	wantOrder := []struct {
		id     int
		status session.Status
	}{
		{cliffSess.ID, session.StatusDetected},
		{trickleSess.ID, session.StatusNoCliff},
		{emptySess.ID, session.StatusSkipped},
		{badLinkSess.ID, session.StatusSkipped},
		{failingSess.ID, session.StatusError},
	}
	for i, want := range wantOrder {
		assert.Equal(t, want.id, summary.Items[i].SessionID)
		assert.Equal(t, want.status, summary.Items[i].Status, summary.Items[i].Title)
	}
	assert.Equal(t, 40, *summary.Items[0].EffectiveEndMinutes)
	assert.Contains(t, summary.Items[4].Reason, "429 too many requests")

	stored, err := f.svc.GetByID(ctx, cliffSess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StateDetected, stored.Detection.State)

	// admin decisions are left alone
	stored, err = f.svc.GetByID(ctx, dismissed.ID)
	require.NoError(t, err)
	assert.True(t, stored.Detection.Dismissed())
	stored, err = f.svc.GetByID(ctx, applied.ID)
	require.NoError(t, err)
	assert.True(t, stored.Detection.Applied())
	assert.Equal(t, 40, *stored.FormalEndMinutes)

	for _, call := range f.telemetry.Calls() {
		assert.NotEqual(t, "participants:85100000005", call)
		assert.NotEqual(t, "participants:85100000006", call)
	}
}

func TestOrchestrator_RunBatchMetadataFallback(t *testing.T) {
	f := setup(t)
	f.telemetry.FailMetadata(cliffMeeting, errors.New("404 meeting not found"))
	sess := testutil.CreateSession(t, f.repo, "cliff", cliffLink, testutil.Base, 60)

	summary, err := session.NewOrchestrator(f.svc, session.BatchOptions{}).RunBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Items, 1)
	assert.Equal(t, sess.ID, summary.Items[0].SessionID)
	assert.Equal(t, session.StatusDetected, summary.Items[0].Status)
	assert.NotEmpty(t, f.logger.Messages("warn"))
}

func TestOrchestrator_RunBatchRequestDelay(t *testing.T) {
	f := setup(t)
	for i := 0; i < 3; i++ {
		testutil.CreateSession(t, f.repo, "cliff", cliffLink, testutil.Base.AddDate(0, 0, i), 60)
	}

	delay := 30 * time.Millisecond
	orch := session.NewOrchestrator(f.svc, session.BatchOptionsFromConfig(core.TelemetryConfig{
		RequestDelay:        delay,
		MetadataConcurrency: 3,
	}))
	summary, err := orch.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Detected)

	times := f.telemetry.ParticipantFetchTimes()
	require.Len(t, times, 3)
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), delay-5*time.Millisecond)
	}
}

func TestOrchestrator_RunBatchCancelled(t *testing.T) {
	f := setup(t)
	testutil.CreateSession(t, f.repo, "cliff", cliffLink, testutil.Base, 60)
	testutil.CreateSession(t, f.repo, "trickle", trickleLink, testutil.Base, 60)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := session.NewOrchestrator(f.svc, session.BatchOptions{}).RunBatch(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Total)
	assert.NotEmpty(t, summary.RunID)

	candidates, err := f.repo.QueryDetectionCandidates(context.Background())
	require.NoError(t, err)
	for _, c := range candidates {
		assert.Equal(t, session.StateUndetected, c.Detection.State)
	}
}

func TestOrchestrator_RunBatchEmpty(t *testing.T) {
	f := setup(t)
	summary, err := session.NewOrchestrator(f.svc, session.BatchOptions{}).RunBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.Empty(t, summary.Items)
	assert.Empty(t, summary.ByConfidence)
}

func TestOrchestrator_RunBatchEmptyWindow(t *testing.T) {
	f := setup(t)
	const meetingID = "85100000007"
	f.telemetry.AddMeeting(meetingID, testutil.Meeting(60), []attendance.ParticipantEvent{
		testutil.Event("c1", "a@example.com", 10, 10),
		testutil.Event("c2", "b@example.com", 10, 10),
		testutil.Event("c3", "c@example.com", 10, 10),
	})
	f.telemetry.FailMetadata(meetingID, errors.New("404 meeting not found"))
	withSchedule := testutil.CreateSession(t, f.repo, "scheduled", meetingID, testutil.Base.AddDate(0, 0, 1), 60)
	unscheduled := testutil.CreateSession(t, f.repo, "unscheduled", meetingID, testutil.Base, 0)

	summary, err := session.NewOrchestrator(f.svc, session.BatchOptions{}).RunBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Items, 2)
	assert.Equal(t, withSchedule.ID, summary.Items[0].SessionID)
	assert.NotEqual(t, session.StatusError, summary.Items[0].Status)
	assert.Equal(t, unscheduled.ID, summary.Items[1].SessionID)
	assert.Equal(t, session.StatusSkipped, summary.Items[1].Status)
	assert.Contains(t, summary.Items[1].Reason, "attendance window must end after it starts")
	assert.Zero(t, summary.Errors)
}
