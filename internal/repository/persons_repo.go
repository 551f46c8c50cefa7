package repository

import (
	"context"

	"coachsync/internal/domain"
)

// PersonsRepository canonical Person 存取
type PersonsRepository interface {
	GetPerson(ctx context.Context, personID string) (*domain.Person, error)

	// Hash-index lookups. Return ErrNotFound on miss.
	FindByEmailHash(ctx context.Context, hash []byte) (*domain.Person, error)
	FindByPhoneHash(ctx context.Context, hash []byte) (*domain.Person, error)

	// CreatePerson persists p with its identifier/hash rows. p.PersonID and
	// p.CreatedAt must be set by the caller.
	CreatePerson(ctx context.Context, p *domain.Person) error

	// AddEmail/AddPhone append an identifier (with its hash) to an existing
	// person. No-op when the identifier is already present (case-insensitive
	// for email). Backfills the primary identifier when it is still unset.
	AddEmail(ctx context.Context, personID, email string, hash []byte) error
	AddPhone(ctx context.Context, personID, phone string, hash []byte) error

	// MergePersons atomically consolidates mergee into survivor: identifier
	// union, primary backfill, attendee reassignment, client upsert-copy,
	// review-candidate substitution, then hard-deletes the mergee. Both rows
	// are locked up front; if either is missing the merge aborts with
	// ErrNotFound and no partial mutation.
	MergePersons(ctx context.Context, survivorID, mergeeID string) (*domain.Person, error)
}
