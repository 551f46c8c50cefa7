package repository

import (
	"context"

	"coachsync/internal/domain"
)

// ReviewRepository ReviewCandidate 存取（只追加，物理上从不删除）
type ReviewRepository interface {
	// FindOpenPair looks up an open candidate for the same coach + sorted
	// person pair + meeting. Returns ErrNotFound on miss.
	FindOpenPair(ctx context.Context, coachID, personAID, personBID, meetingID string) (*domain.ReviewCandidate, error)

	CreateCandidate(ctx context.Context, c *domain.ReviewCandidate) error

	ListOpen(ctx context.Context, coachID string) ([]domain.ReviewCandidate, error)

	// GetCandidate is coach-scoped: a candidate belonging to another coach is
	// ErrNotFound.
	GetCandidate(ctx context.Context, coachID, candidateID string) (*domain.ReviewCandidate, error)

	// Resolve marks the candidate resolved with the chosen person. Resolving
	// an already-resolved candidate is a no-op (never reopened).
	Resolve(ctx context.Context, candidateID, personID string) error
}
