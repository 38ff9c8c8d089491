package attendance

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core"
)

const syntheticKeyPrefix = "anon:"

// namespace for synthetic identity keys; keys are stable for a given connection id & position.
var syntheticNamespace = uuid.MustParse("0f6c3d59-8f0b-4c1e-9b7a-2a4be1f0c7d1")

// Resolve groups raw events into one Participant per identity.
//
// The merge key is the normalized email. Events without an email each get their own
// synthetic key and are never merged with anybody.
func Resolve(events []ParticipantEvent) []Participant {
	byKey := make(map[string]*Participant, len(events))
	for i, ev := range events {
		email := core.CleanString(ev.Email, true /* lower */)
		key := email
		if email == "" {
			key = syntheticKey(ev.ConnectionID, i)
		}
		p, ok := byKey[key]
		if !ok {
			p = &Participant{IdentityKey: key, Email: email, Synthetic: email == ""}
			byKey[key] = p
		}
		p.Segments = append(p.Segments, Interval{Start: ev.JoinTime, End: ev.LeaveTime})
	}

	participants := make([]Participant, 0, len(byKey))
	for _, p := range byKey {
		sort.SliceStable(p.Segments, func(i, j int) bool { return p.Segments[i].Start.Before(p.Segments[j].Start) })
		participants = append(participants, *p)
	}
	sort.Slice(participants, func(i, j int) bool { return participants[i].IdentityKey < participants[j].IdentityKey })
	return participants
}

func syntheticKey(connectionID string, idx int) string {
	return syntheticKeyPrefix + uuid.NewSHA1(syntheticNamespace, []byte(fmt.Sprintf("%s#%d", connectionID, idx))).String()
}

// IsSyntheticKey reports whether key was generated for an event without email.
func IsSyntheticKey(key string) bool {
	return len(key) > len(syntheticKeyPrefix) && key[:len(syntheticKeyPrefix)] == syntheticKeyPrefix
}

// DerivedBounds returns [min(join), max(leave)] across all participants.
// It is the fallback when the provider's meeting metadata is unavailable.
func DerivedBounds(participants []Participant) (Window, bool) {
	var w Window
	var found bool
	for _, p := range participants {
		for _, seg := range p.Segments {
			end := seg.End
			if end.Before(seg.Start) {
				end = seg.Start
			}
			if !found || seg.Start.Before(w.Start) {
				w.Start = seg.Start
			}
			if !found || end.After(w.End) {
				w.End = end
			}
			found = true
		}
	}
	return w, found
}
