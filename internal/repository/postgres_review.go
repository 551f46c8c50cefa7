package repository

import (
	"context"
	"database/sql"
	"fmt"

	"coachsync/internal/domain"
)

// PostgresReviewRepository ReviewCandidate Repository 实现
type PostgresReviewRepository struct {
	db *sql.DB
}

func NewPostgresReviewRepository(db *sql.DB) *PostgresReviewRepository {
	return &PostgresReviewRepository{db: db}
}

var _ ReviewRepository = (*PostgresReviewRepository)(nil)

const reviewColumns = `
	candidate_id::text,
	coach_id::text,
	COALESCE(meeting_id::text, '') AS meeting_id,
	COALESCE(attendee_source, '') AS attendee_source,
	COALESCE(raw_email, '') AS raw_email,
	COALESCE(raw_phone, '') AS raw_phone,
	COALESCE(raw_name, '') AS raw_name,
	person_a_id::text,
	person_b_id::text,
	COALESCE(reason, '') AS reason,
	status,
	COALESCE(resolved_person_id::text, '') AS resolved_person_id,
	created_at
`

func scanReviewCandidate(scan func(dest ...any) error) (*domain.ReviewCandidate, error) {
	var c domain.ReviewCandidate
	err := scan(
		&c.CandidateID,
		&c.CoachID,
		&c.MeetingID,
		&c.AttendeeSource,
		&c.RawEmail,
		&c.RawPhone,
		&c.RawName,
		&c.PersonAID,
		&c.PersonBID,
		&c.Reason,
		&c.Status,
		&c.ResolvedPersonID,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresReviewRepository) FindOpenPair(ctx context.Context, coachID, personAID, personBID, meetingID string) (*domain.ReviewCandidate, error) {
	a, b := domain.SortPair(personAID, personBID)

	row := r.db.QueryRowContext(ctx, `
		SELECT `+reviewColumns+`
		FROM review_candidates
		WHERE coach_id = $1
		  AND person_a_id = $2
		  AND person_b_id = $3
		  AND COALESCE(meeting_id::text, '') = $4
		  AND status = 'open'
		LIMIT 1
	`, coachID, a, b, meetingID)

	c, err := scanReviewCandidate(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("open review candidate: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find open review candidate: %w", err)
	}
	return c, nil
}

func (r *PostgresReviewRepository) CreateCandidate(ctx context.Context, c *domain.ReviewCandidate) error {
	a, b := domain.SortPair(c.PersonAID, c.PersonBID)
	c.PersonAID, c.PersonBID = a, b
	if c.Status == "" {
		c.Status = domain.ReviewStatusOpen
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO review_candidates (
			candidate_id, coach_id, meeting_id,
			attendee_source, raw_email, raw_phone, raw_name,
			person_a_id, person_b_id, reason, status, created_at
		) VALUES ($1, $2, NULLIF($3, '')::uuid,
			NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''),
			$8, $9, NULLIF($10, ''), $11, $12)
	`, c.CandidateID, c.CoachID, c.MeetingID,
		c.AttendeeSource, c.RawEmail, c.RawPhone, c.RawName,
		c.PersonAID, c.PersonBID, c.Reason, c.Status, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert review candidate: %w", err)
	}
	return nil
}

func (r *PostgresReviewRepository) ListOpen(ctx context.Context, coachID string) ([]domain.ReviewCandidate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reviewColumns+`
		FROM review_candidates
		WHERE coach_id = $1 AND status = 'open'
		ORDER BY created_at
	`, coachID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open review candidates: %w", err)
	}
	defer rows.Close()

	var candidates []domain.ReviewCandidate
	for rows.Next() {
		c, err := scanReviewCandidate(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review candidate: %w", err)
		}
		candidates = append(candidates, *c)
	}
	return candidates, rows.Err()
}

func (r *PostgresReviewRepository) GetCandidate(ctx context.Context, coachID, candidateID string) (*domain.ReviewCandidate, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+reviewColumns+`
		FROM review_candidates
		WHERE coach_id = $1 AND candidate_id = $2
	`, coachID, candidateID)

	c, err := scanReviewCandidate(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("review candidate %s: %w", candidateID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get review candidate: %w", err)
	}
	return c, nil
}

func (r *PostgresReviewRepository) Resolve(ctx context.Context, candidateID, personID string) error {
	// resolved 行不会被重开，重复 resolve 是 no-op
	_, err := r.db.ExecContext(ctx, `
		UPDATE review_candidates
		SET status = 'resolved', resolved_person_id = $2
		WHERE candidate_id = $1 AND status = 'open'
	`, candidateID, personID)
	if err != nil {
		return fmt.Errorf("failed to resolve review candidate: %w", err)
	}
	return nil
}
