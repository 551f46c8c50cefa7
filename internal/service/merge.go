package service

import (
	"context"
	"fmt"

	"coachsync/internal/domain"
	"coachsync/internal/repository"

	"go.uber.org/zap"
)

// MergeService operator 批准后的 Person 合并入口
type MergeService struct {
	persons repository.PersonsRepository
	logger  *zap.Logger
}

func NewMergeService(persons repository.PersonsRepository, logger *zap.Logger) *MergeService {
	return &MergeService{persons: persons, logger: logger}
}

// MergePersons consolidates mergee into survivor. Identical ids are an
// idempotent no-op. The repository performs the whole consolidation in one
// transaction; afterwards no reference to the mergee id remains anywhere.
func (s *MergeService) MergePersons(ctx context.Context, survivorID, mergeeID string) (*domain.Person, error) {
	if survivorID == "" || mergeeID == "" {
		return nil, fmt.Errorf("survivor_id and mergee_id are required")
	}

	survivor, err := s.persons.MergePersons(ctx, survivorID, mergeeID)
	if err != nil {
		return nil, err
	}

	if survivorID != mergeeID {
		s.logger.Info("merged persons",
			zap.String("survivor_id", survivorID),
			zap.String("mergee_id", mergeeID),
			zap.Int("email_count", len(survivor.Emails)),
			zap.Int("phone_count", len(survivor.Phones)),
		)
	}
	return survivor, nil
}
