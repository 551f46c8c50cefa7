package repository

import (
	"context"
	"time"

	"coachsync/internal/domain"
)

// MeetingsRepository Meeting 存取与 reconciliation 合并
type MeetingsRepository interface {
	GetMeeting(ctx context.Context, meetingID string) (*domain.Meeting, error)

	// FindByICalUID is a global lookup (calendar UIDs are globally unique by
	// construction, not coach-scoped). Returns ErrNotFound on miss.
	FindByICalUID(ctx context.Context, icalUID string) (*domain.Meeting, error)

	CreateMeeting(ctx context.Context, m *domain.Meeting) error

	// UpdateMeeting writes the full mutable field set of m.
	UpdateMeeting(ctx context.Context, m *domain.Meeting) error

	// ListWindow returns meetings whose started_at falls in [since, until),
	// optionally scoped to one coach (coachID == "" means all coaches).
	ListWindow(ctx context.Context, since, until time.Time, coachID string) ([]domain.Meeting, error)

	// MergeComponent applies one reconciliation component atomically: the
	// keeper row is updated, migrated attendee rows are inserted against the
	// keeper (skipped when the keeper already has the same source+identity),
	// and the absorbed meetings are hard-deleted (their attendee rows cascade).
	MergeComponent(ctx context.Context, keeper *domain.Meeting, migrated []domain.MeetingAttendee, absorbedIDs []string) error
}
