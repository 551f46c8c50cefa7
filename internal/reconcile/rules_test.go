package reconcile

import (
	"testing"
	"time"

	"coachsync/internal/domain"

	"github.com/stretchr/testify/assert"
)

func ts(minute int) *time.Time {
	t := time.Date(2026, 8, 20, 10, minute, 0, 0, time.UTC)
	return &t
}

func TestICalUIDEdges(t *testing.T) {
	meetings := []domain.Meeting{
		{MeetingID: "m-1", ICalUID: "uid-x"},
		{MeetingID: "m-2", ICalUID: "uid-x"},
		{MeetingID: "m-3", ICalUID: "uid-y"},
		{MeetingID: "m-4"}, // null uid never links
	}
	edges := icalUIDEdges(meetings)
	assert.Equal(t, [][2]int{{0, 1}}, edges)
}

func TestCrossRefEdges_ValueMatchesAcrossKeys(t *testing.T) {
	meetings := []domain.Meeting{
		{MeetingID: "m-1", ExternalRefs: map[string]string{domain.RefZoomMeetingID: "42"}},
		{MeetingID: "m-2", ExternalRefs: map[string]string{domain.RefFirefliesMeetingID: "42"}},
		{MeetingID: "m-3", ExternalRefs: map[string]string{domain.RefZoomMeetingID: "7"}},
		{MeetingID: "m-4", ExternalRefs: map[string]string{domain.RefGoogleEventID: "42"}}, // not a cross-ref key
	}
	edges := crossRefEdges(meetings)
	assert.Equal(t, [][2]int{{0, 1}}, edges)
}

func TestJoinURLProximityEdges(t *testing.T) {
	meetings := []domain.Meeting{
		{MeetingID: "m-1", CoachID: "coach-1", JoinURL: "https://zoom.us/j/1", StartedAt: ts(0)},
		{MeetingID: "m-2", CoachID: "coach-1", JoinURL: "https://ZOOM.us/j/2", StartedAt: ts(10)},
		{MeetingID: "m-3", CoachID: "coach-1", JoinURL: "https://zoom.us/j/3", StartedAt: ts(40)}, // out of tolerance
		{MeetingID: "m-4", CoachID: "coach-2", JoinURL: "https://zoom.us/j/4", StartedAt: ts(5)},  // other coach
		{MeetingID: "m-5", CoachID: "coach-1", JoinURL: "https://meet.google.com/abc", StartedAt: ts(5)},
		{MeetingID: "m-6", CoachID: "coach-1", JoinURL: "https://zoom.us/j/6"}, // no start time
	}
	edges := joinURLProximityEdges(meetings, 15*time.Minute)
	assert.Equal(t, [][2]int{{0, 1}}, edges)
}

func TestBuildEdges_RulesAccumulate(t *testing.T) {
	meetings := []domain.Meeting{
		{MeetingID: "m-1", ICalUID: "uid-x", StartedAt: ts(0)},
		{MeetingID: "m-2", ICalUID: "uid-x", ExternalRefs: map[string]string{domain.RefZoomMeetingID: "42"}, StartedAt: ts(1)},
		{MeetingID: "m-3", ExternalRefs: map[string]string{domain.RefFirefliesMeetingID: "42"}, StartedAt: ts(2)},
	}
	edges := BuildEdges(meetings, 15*time.Minute)
	comps := Components(len(meetings), edges)
	assert.Equal(t, [][]int{{0, 1, 2}}, comps)
}
