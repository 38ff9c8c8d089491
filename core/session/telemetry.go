package session

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/attendance"
)

// Telemetry is the videoconference provider's reporting API.
type Telemetry interface {
	// FetchParticipants returns one event per connection; it may be empty for old meetings.
	FetchParticipants(ctx context.Context, meetingID string) ([]attendance.ParticipantEvent, error)
	// FetchMeetingMetadata returns the recorded start & end of the meeting.
	FetchMeetingMetadata(ctx context.Context, meetingID string) (attendance.Window, error)
}

var (
	meetingIDRegex = regexp.MustCompile(`^\d{9,12}$`)

	meetingLinkTag  = "meetinglink"
	meetingLinkText = "{0} must be a meeting id or a meeting join link"
)

func init() {
	_ = core.Validate.RegisterValidation(meetingLinkTag, meetingLinkValidation)
	core.RegisterCustomTranslation(meetingLinkTag, meetingLinkText)
}

func meetingLinkValidation(fl validator.FieldLevel) bool {
	_, err := ResolveMeetingID(fl.Field().String())
	return err == nil
}

// ResolveMeetingID extracts the provider's meeting id from a bare id
// ("851 2345 6789" or "85123456789") or a join link ("https://x.zoom.us/j/85123456789?pwd=...").
func ResolveMeetingID(link string) (string, error) {
	link = core.CleanString(link)
	if link == "" {
		return "", ErrNoMeetingLink
	}

	if id := strings.NewReplacer(" ", "", "-", "").Replace(link); meetingIDRegex.MatchString(id) {
		return id, nil
	}

	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return "", errors.Wrapf(ErrInvalidMeetingID, "%q", link)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		switch parts[i] {
		case "j", "w", "s", "wc":
			if meetingIDRegex.MatchString(parts[i+1]) {
				return parts[i+1], nil
			}
		}
	}
	return "", errors.Wrapf(ErrInvalidMeetingID, "%q", link)
}
