// Package telemetry provides videoconference telemetry sources for the engine.
package telemetry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/attendance"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/session"
)

const (
	participantsFile = "participants.json"
	meetingFile      = "meeting.json"
)

var ErrNoMetadata = errors.New("meeting metadata not exported")

// participantsReport mirrors the provider's past-meeting participants report.
type participantsReport struct {
	Participants []struct {
		ID        string    `json:"id"`
		UserID    string    `json:"user_id"`
		Name      string    `json:"name"`
		UserEmail string    `json:"user_email"`
		JoinTime  time.Time `json:"join_time"`
		LeaveTime time.Time `json:"leave_time"`
	} `json:"participants"`
}

type meetingReport struct {
	UUID      string    `json:"uuid"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// FileProvider serves reports exported from the provider under `<dir>/<meeting id>/`.
type FileProvider struct {
	dir string
}

var _ session.Telemetry = (*FileProvider)(nil)

func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{dir: dir}
}

func NewFileProviderFromConfig(conf *core.Config) *FileProvider {
	dir := conf.Telemetry.DumpDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(conf.WorkDir, dir)
	}
	return NewFileProvider(dir)
}

func (p *FileProvider) path(meetingID, name string) string {
	return filepath.Join(p.dir, filepath.Base(meetingID), name)
}

func (p *FileProvider) read(ctx context.Context, path string, v interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "decoding %s", path)
	}
	return nil
}

// FetchParticipants returns no events when the meeting was never exported.
func (p *FileProvider) FetchParticipants(ctx context.Context, meetingID string) ([]attendance.ParticipantEvent, error) {
	var report participantsReport
	if err := p.read(ctx, p.path(meetingID, participantsFile), &report); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []attendance.ParticipantEvent{}, nil
		}
		return nil, errors.Wrap(err, "reading participants report")
	}

	events := make([]attendance.ParticipantEvent, 0, len(report.Participants))
	for _, rp := range report.Participants {
		connID := rp.UserID
		if connID == "" {
			connID = rp.ID
		}
		events = append(events, attendance.ParticipantEvent{
			ConnectionID: connID,
			Email:        rp.UserEmail,
			JoinTime:     rp.JoinTime.UTC(),
			LeaveTime:    rp.LeaveTime.UTC(),
		})
	}
	return events, nil
}

func (p *FileProvider) FetchMeetingMetadata(ctx context.Context, meetingID string) (attendance.Window, error) {
	var report meetingReport
	if err := p.read(ctx, p.path(meetingID, meetingFile), &report); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return attendance.Window{}, errors.Wrapf(ErrNoMetadata, "meeting %s", meetingID)
		}
		return attendance.Window{}, errors.Wrap(err, "reading meeting report")
	}
	return attendance.Window{Start: report.StartTime.UTC(), End: report.EndTime.UTC()}, nil
}
