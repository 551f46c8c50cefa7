package service

import (
	"context"
	"fmt"
	"time"

	"coachsync/internal/domain"
	"coachsync/internal/identity"
	"coachsync/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReviewService review 队列的对外操作（供 review UI 调用）
type ReviewService struct {
	review  repository.ReviewRepository
	persons repository.PersonsRepository
	hasher  *identity.Hasher
	region  string
	logger  *zap.Logger
}

func NewReviewService(
	review repository.ReviewRepository,
	persons repository.PersonsRepository,
	hasher *identity.Hasher,
	defaultRegion string,
	logger *zap.Logger,
) *ReviewService {
	return &ReviewService{
		review:  review,
		persons: persons,
		hasher:  hasher,
		region:  defaultRegion,
		logger:  logger,
	}
}

func (s *ReviewService) ListOpen(ctx context.Context, coachID string) ([]domain.ReviewCandidate, error) {
	if coachID == "" {
		return nil, fmt.Errorf("coach_id is required")
	}
	return s.review.ListOpen(ctx, coachID)
}

// ResolveExisting links the candidate to an existing person. Idempotent
// against an already-resolved candidate: the stored resolution is returned
// unchanged. A candidate belonging to another coach is a not-found.
func (s *ReviewService) ResolveExisting(ctx context.Context, coachID, candidateID, personID string) (*domain.ReviewCandidate, error) {
	c, err := s.review.GetCandidate(ctx, coachID, candidateID)
	if err != nil {
		return nil, err
	}
	if c.Status == domain.ReviewStatusResolved {
		return c, nil
	}

	// chosen person must exist
	if _, err := s.persons.GetPerson(ctx, personID); err != nil {
		return nil, err
	}

	if err := s.review.Resolve(ctx, candidateID, personID); err != nil {
		return nil, err
	}
	s.logger.Info("review candidate resolved",
		zap.String("candidate_id", candidateID),
		zap.String("person_id", personID),
	)
	return s.review.GetCandidate(ctx, coachID, candidateID)
}

// ResolveCreateNew resolves the candidate by creating a fresh Person from its
// raw fragments (the operator decided neither existing person matches).
func (s *ReviewService) ResolveCreateNew(ctx context.Context, coachID, candidateID string) (*domain.ReviewCandidate, error) {
	c, err := s.review.GetCandidate(ctx, coachID, candidateID)
	if err != nil {
		return nil, err
	}
	if c.Status == domain.ReviewStatusResolved {
		return c, nil
	}

	email := identity.NormalizeEmail(c.RawEmail)
	phone := identity.NormalizePhone(c.RawPhone, s.region)

	p := &domain.Person{
		PersonID:     uuid.NewString(),
		PrimaryEmail: email,
		PrimaryPhone: phone,
		CreatedAt:    time.Now().UTC(),
	}
	if email != "" {
		p.Emails = []string{email}
		p.EmailHashes = [][]byte{s.hasher.HashEmail(email)}
	}
	if phone != "" {
		p.Phones = []string{phone}
		p.PhoneHashes = [][]byte{s.hasher.HashPhone(phone)}
	}
	if err := s.persons.CreatePerson(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create person from candidate: %w", err)
	}

	if err := s.review.Resolve(ctx, candidateID, p.PersonID); err != nil {
		return nil, err
	}
	s.logger.Info("review candidate resolved with new person",
		zap.String("candidate_id", candidateID),
		zap.String("person_id", p.PersonID),
	)
	return s.review.GetCandidate(ctx, coachID, candidateID)
}
