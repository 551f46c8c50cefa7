package repository

import (
	"context"
	"database/sql"
	"fmt"

	"coachsync/internal/domain"

	"github.com/google/uuid"
)

// PostgresClientsRepository Client Repository 实现
type PostgresClientsRepository struct {
	db *sql.DB
}

func NewPostgresClientsRepository(db *sql.DB) *PostgresClientsRepository {
	return &PostgresClientsRepository{db: db}
}

var _ ClientsRepository = (*PostgresClientsRepository)(nil)

func (r *PostgresClientsRepository) EnsureClient(ctx context.Context, coachID, personID, status string) (*domain.Client, error) {
	if coachID == "" || personID == "" {
		return nil, fmt.Errorf("coach_id and person_id are required")
	}
	if status == "" {
		status = domain.ClientStatusProspect
	}
	if !domain.ValidClientStatus(status) {
		return nil, fmt.Errorf("invalid client status: %s", status)
	}

	// ON CONFLICT DO NOTHING：已有行时不改动既有 status
	query := `
		INSERT INTO clients (client_id, coach_id, person_id, status, first_seen_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (coach_id, person_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), coachID, personID, status); err != nil {
		return nil, fmt.Errorf("failed to ensure client: %w", err)
	}

	return r.GetByCoachPerson(ctx, coachID, personID)
}

func (r *PostgresClientsRepository) GetByCoachPerson(ctx context.Context, coachID, personID string) (*domain.Client, error) {
	query := `
		SELECT client_id::text, coach_id::text, person_id::text, status, first_seen_at
		FROM clients
		WHERE coach_id = $1 AND person_id = $2
	`

	var c domain.Client
	err := r.db.QueryRowContext(ctx, query, coachID, personID).Scan(
		&c.ClientID,
		&c.CoachID,
		&c.PersonID,
		&c.Status,
		&c.FirstSeenAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("client for coach %s person %s: %w", coachID, personID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &c, nil
}

// UpdateStatus 变更状态并写入 client_status_log 审计行（同一事务）
func (r *PostgresClientsRepository) UpdateStatus(ctx context.Context, coachID, clientID, status string) (*domain.Client, error) {
	if !domain.ValidClientStatus(status) {
		return nil, fmt.Errorf("invalid client status: %s", status)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var c domain.Client
	err = tx.QueryRowContext(ctx, `
		SELECT client_id::text, coach_id::text, person_id::text, status, first_seen_at
		FROM clients
		WHERE coach_id = $1 AND client_id = $2
		FOR UPDATE
	`, coachID, clientID).Scan(&c.ClientID, &c.CoachID, &c.PersonID, &c.Status, &c.FirstSeenAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("client %s: %w", clientID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock client: %w", err)
	}

	if c.Status != status {
		if _, err := tx.ExecContext(ctx, `
			UPDATE clients SET status = $2 WHERE client_id = $1
		`, clientID, status); err != nil {
			return nil, fmt.Errorf("failed to update client status: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO client_status_log (log_id, client_id, old_status, new_status, changed_at)
			VALUES ($1, $2, $3, $4, now())
		`, uuid.NewString(), clientID, c.Status, status); err != nil {
			return nil, fmt.Errorf("failed to log client status change: %w", err)
		}
		c.Status = status
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}
	return &c, nil
}

func (r *PostgresClientsRepository) ListByCoach(ctx context.Context, coachID string) ([]domain.Client, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT client_id::text, coach_id::text, person_id::text, status, first_seen_at
		FROM clients
		WHERE coach_id = $1
		ORDER BY first_seen_at
	`, coachID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []domain.Client
	for rows.Next() {
		var c domain.Client
		if err := rows.Scan(&c.ClientID, &c.CoachID, &c.PersonID, &c.Status, &c.FirstSeenAt); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}
