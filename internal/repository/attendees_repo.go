package repository

import (
	"context"

	"coachsync/internal/domain"
)

// AttendeesRepository MeetingAttendee 存取
type AttendeesRepository interface {
	ListByMeeting(ctx context.Context, meetingID string) ([]domain.MeetingAttendee, error)

	// ListUnresolved returns the meeting's attendees with no person_id yet.
	ListUnresolved(ctx context.Context, meetingID string) ([]domain.MeetingAttendee, error)

	// UpsertAttendee inserts a new attendee row or merges newly-provided
	// non-empty fields into the existing (meeting, source, identity_key) row
	// (last-write-wins per field). a.IdentityKey must already be derived.
	UpsertAttendee(ctx context.Context, a *domain.MeetingAttendee) (*domain.MeetingAttendee, error)

	SetPerson(ctx context.Context, attendeeID, personID string) error
}
