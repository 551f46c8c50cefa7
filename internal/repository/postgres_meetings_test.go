package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"coachsync/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockMeetingsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresMeetingsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresMeetingsRepository(db)
}

func meetingRows(meetingID, coachID string, startedAt any, icalUID, refsJSON string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"meeting_id", "coach_id", "started_at", "ended_at",
		"platform", "topic", "join_url", "location", "ical_uid",
		"external_refs", "transcript_status", "status",
	}).AddRow(
		meetingID, coachID, startedAt, nil,
		"zoom", "Weekly check-in", "https://zoom.us/j/42", "", icalUID,
		refsJSON, "", "scheduled",
	)
}

func TestFindByICalUID_DecodesRefs(t *testing.T) {
	db, mock, repo := setupMockMeetingsDB(t)
	defer db.Close()

	started := time.Now()
	mock.ExpectQuery(`SELECT`).
		WithArgs("uid-x").
		WillReturnRows(meetingRows("m-1", "coach-1", started, "uid-x", `{"zoom_meeting_id":"42"}`))

	m, err := repo.FindByICalUID(context.Background(), "uid-x")

	require.NoError(t, err)
	assert.Equal(t, "m-1", m.MeetingID)
	assert.Equal(t, "42", m.ExternalRefs[domain.RefZoomMeetingID])
	require.NotNil(t, m.StartedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByICalUID_NotFound(t *testing.T) {
	db, mock, repo := setupMockMeetingsDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("uid-missing").
		WillReturnError(sql.ErrNoRows)

	m, err := repo.FindByICalUID(context.Background(), "uid-missing")

	assert.Nil(t, m)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByICalUID_EmptyUID(t *testing.T) {
	db, mock, repo := setupMockMeetingsDB(t)
	defer db.Close()

	m, err := repo.FindByICalUID(context.Background(), "")

	assert.Nil(t, m)
	assert.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListWindow_CoachFilter(t *testing.T) {
	db, mock, repo := setupMockMeetingsDB(t)
	defer db.Close()

	since := time.Now().Add(-72 * time.Hour)
	until := time.Now()

	mock.ExpectQuery(`SELECT`).
		WithArgs(since, until, "coach-1").
		WillReturnRows(meetingRows("m-1", "coach-1", since.Add(time.Hour), "uid-x", `{}`))

	meetings, err := repo.ListWindow(context.Background(), since, until, "coach-1")

	require.NoError(t, err)
	require.Len(t, meetings, 1)
	assert.Equal(t, "m-1", meetings[0].MeetingID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMeeting_ICalUIDRaceMapsToConflict(t *testing.T) {
	db, mock, repo := setupMockMeetingsDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO meetings`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_meetings_ical_uid"})

	err := repo.CreateMeeting(context.Background(), &domain.Meeting{
		MeetingID: "m-1", CoachID: "coach-1", ICalUID: "uid-x",
	})

	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeComponent_CommitsAllSteps(t *testing.T) {
	db, mock, repo := setupMockMeetingsDB(t)
	defer db.Close()

	started := time.Now().Add(-time.Hour)
	keeper := &domain.Meeting{
		MeetingID: "m-1", CoachID: "coach-1", StartedAt: &started,
		ICalUID: "uid-x", Status: "scheduled",
		ExternalRefs: map[string]string{domain.RefZoomMeetingID: "42"},
	}
	migrated := []domain.MeetingAttendee{
		{AttendeeID: "a-9", MeetingID: "m-1", Source: "zoom", IdentityKey: "bob@example.com"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE meetings`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO meeting_attendees`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM meetings`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.MergeComponent(context.Background(), keeper, migrated, []string{"m-2", "m-3"})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeComponent_MissingKeeperRollsBack(t *testing.T) {
	db, mock, repo := setupMockMeetingsDB(t)
	defer db.Close()

	keeper := &domain.Meeting{MeetingID: "m-missing", CoachID: "coach-1", Status: "scheduled"}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE meetings`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.MergeComponent(context.Background(), keeper, nil, []string{"m-2"})

	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
