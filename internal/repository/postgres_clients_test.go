package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"coachsync/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockClientsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresClientsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresClientsRepository(db)
}

func clientRows(clientID, coachID, personID, status string, firstSeen time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"client_id", "coach_id", "person_id", "status", "first_seen_at",
	}).AddRow(clientID, coachID, personID, status, firstSeen)
}

func TestEnsureClient_InsertsThenFetches(t *testing.T) {
	db, mock, repo := setupMockClientsDB(t)
	defer db.Close()

	ctx := context.Background()
	coachID := uuid.New().String()
	personID := uuid.New().String()
	clientID := uuid.New().String()
	now := time.Now()

	mock.ExpectExec(`INSERT INTO clients`).
		WithArgs(sqlmock.AnyArg(), coachID, personID, domain.ClientStatusProspect).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT`).
		WithArgs(coachID, personID).
		WillReturnRows(clientRows(clientID, coachID, personID, domain.ClientStatusProspect, now))

	c, err := repo.EnsureClient(ctx, coachID, personID, "")

	require.NoError(t, err)
	assert.Equal(t, clientID, c.ClientID)
	assert.Equal(t, domain.ClientStatusProspect, c.Status)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureClient_InvalidStatus(t *testing.T) {
	db, mock, repo := setupMockClientsDB(t)
	defer db.Close()

	c, err := repo.EnsureClient(context.Background(), "coach-1", "p-1", "vip")

	assert.Error(t, err)
	assert.Nil(t, c)
	assert.Contains(t, err.Error(), "invalid client status")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByCoachPerson_NotFound(t *testing.T) {
	db, mock, repo := setupMockClientsDB(t)
	defer db.Close()

	coachID := uuid.New().String()
	personID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(coachID, personID).
		WillReturnError(sql.ErrNoRows)

	c, err := repo.GetByCoachPerson(context.Background(), coachID, personID)

	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_WritesAuditRow(t *testing.T) {
	db, mock, repo := setupMockClientsDB(t)
	defer db.Close()

	coachID := uuid.New().String()
	clientID := uuid.New().String()
	personID := uuid.New().String()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT`).
		WithArgs(coachID, clientID).
		WillReturnRows(clientRows(clientID, coachID, personID, domain.ClientStatusProspect, now))
	mock.ExpectExec(`UPDATE clients`).
		WithArgs(clientID, domain.ClientStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO client_status_log`).
		WithArgs(sqlmock.AnyArg(), clientID, domain.ClientStatusProspect, domain.ClientStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c, err := repo.UpdateStatus(context.Background(), coachID, clientID, domain.ClientStatusActive)

	require.NoError(t, err)
	assert.Equal(t, domain.ClientStatusActive, c.Status)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_SameStatusSkipsAudit(t *testing.T) {
	db, mock, repo := setupMockClientsDB(t)
	defer db.Close()

	coachID := uuid.New().String()
	clientID := uuid.New().String()
	personID := uuid.New().String()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT`).
		WithArgs(coachID, clientID).
		WillReturnRows(clientRows(clientID, coachID, personID, domain.ClientStatusActive, time.Now()))
	mock.ExpectCommit()

	c, err := repo.UpdateStatus(context.Background(), coachID, clientID, domain.ClientStatusActive)

	require.NoError(t, err)
	assert.Equal(t, domain.ClientStatusActive, c.Status)

	require.NoError(t, mock.ExpectationsWereMet())
}
