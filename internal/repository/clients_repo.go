package repository

import (
	"context"

	"coachsync/internal/domain"
)

// ClientsRepository coach↔person 关系存取
type ClientsRepository interface {
	// EnsureClient idempotently creates the (coach, person) client row with
	// the given status, or returns the existing one untouched (status is
	// never silently downgraded by re-ensure).
	EnsureClient(ctx context.Context, coachID, personID, status string) (*domain.Client, error)

	// GetByCoachPerson returns ErrNotFound when no client row exists.
	GetByCoachPerson(ctx context.Context, coachID, personID string) (*domain.Client, error)

	// UpdateStatus sets a new status and appends a status-change audit row.
	UpdateStatus(ctx context.Context, coachID, clientID, status string) (*domain.Client, error)

	ListByCoach(ctx context.Context, coachID string) ([]domain.Client, error)
}
