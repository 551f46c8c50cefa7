package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coachsync/internal/domain"

	"github.com/lib/pq"
)

// PostgresAttendeesRepository MeetingAttendee Repository 实现
type PostgresAttendeesRepository struct {
	db *sql.DB
}

func NewPostgresAttendeesRepository(db *sql.DB) *PostgresAttendeesRepository {
	return &PostgresAttendeesRepository{db: db}
}

var _ AttendeesRepository = (*PostgresAttendeesRepository)(nil)

const attendeeColumns = `
	attendee_id::text,
	meeting_id::text,
	source,
	identity_key,
	COALESCE(person_id::text, '') AS person_id,
	COALESCE(external_attendee_id, '') AS external_attendee_id,
	COALESCE(raw_email, '') AS raw_email,
	COALESCE(raw_phone, '') AS raw_phone,
	COALESCE(raw_name, '') AS raw_name,
	COALESCE(role, '') AS role,
	join_time,
	leave_time,
	COALESCE(duration_seconds, 0) AS duration_seconds
`

func scanAttendee(scan func(dest ...any) error) (*domain.MeetingAttendee, error) {
	var a domain.MeetingAttendee
	var joinTime, leaveTime sql.NullTime

	err := scan(
		&a.AttendeeID,
		&a.MeetingID,
		&a.Source,
		&a.IdentityKey,
		&a.PersonID,
		&a.ExternalAttendeeID,
		&a.RawEmail,
		&a.RawPhone,
		&a.RawName,
		&a.Role,
		&joinTime,
		&leaveTime,
		&a.DurationSeconds,
	)
	if err != nil {
		return nil, err
	}
	if joinTime.Valid {
		a.JoinTime = &joinTime.Time
	}
	if leaveTime.Valid {
		a.LeaveTime = &leaveTime.Time
	}
	return &a, nil
}

func (r *PostgresAttendeesRepository) ListByMeeting(ctx context.Context, meetingID string) ([]domain.MeetingAttendee, error) {
	return r.list(ctx, `
		SELECT `+attendeeColumns+`
		FROM meeting_attendees
		WHERE meeting_id = $1
		ORDER BY source, identity_key
	`, meetingID)
}

func (r *PostgresAttendeesRepository) ListUnresolved(ctx context.Context, meetingID string) ([]domain.MeetingAttendee, error) {
	return r.list(ctx, `
		SELECT `+attendeeColumns+`
		FROM meeting_attendees
		WHERE meeting_id = $1 AND person_id IS NULL
		ORDER BY source, identity_key
	`, meetingID)
}

func (r *PostgresAttendeesRepository) list(ctx context.Context, query string, args ...any) ([]domain.MeetingAttendee, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendees: %w", err)
	}
	defer rows.Close()

	var attendees []domain.MeetingAttendee
	for rows.Next() {
		a, err := scanAttendee(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendee: %w", err)
		}
		attendees = append(attendees, *a)
	}
	return attendees, rows.Err()
}

// UpsertAttendee 按 (meeting_id, source, identity_key) 幂等写入。
// 已存在时逐字段 last-write-wins（新值非空才覆盖）；插入撞唯一约束
// （并发竞态）时重新读取胜出行并合并一次。
func (r *PostgresAttendeesRepository) UpsertAttendee(ctx context.Context, a *domain.MeetingAttendee) (*domain.MeetingAttendee, error) {
	if a.MeetingID == "" || a.Source == "" || a.IdentityKey == "" {
		return nil, fmt.Errorf("meeting_id, source and identity_key are required")
	}

	existing, err := r.findByIdentity(ctx, a.MeetingID, a.Source, a.IdentityKey)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return r.mergeInto(ctx, existing, a)
	}

	if err := r.insert(ctx, a); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// race with a concurrent upsert for the same identity
			existing, ferr := r.findByIdentity(ctx, a.MeetingID, a.Source, a.IdentityKey)
			if ferr != nil {
				return nil, ferr
			}
			return r.mergeInto(ctx, existing, a)
		}
		return nil, err
	}
	return a, nil
}

func (r *PostgresAttendeesRepository) findByIdentity(ctx context.Context, meetingID, source, identityKey string) (*domain.MeetingAttendee, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+attendeeColumns+`
		FROM meeting_attendees
		WHERE meeting_id = $1 AND source = $2 AND identity_key = $3
	`, meetingID, source, identityKey)

	a, err := scanAttendee(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("attendee: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find attendee: %w", err)
	}
	return a, nil
}

func (r *PostgresAttendeesRepository) insert(ctx context.Context, a *domain.MeetingAttendee) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO meeting_attendees (
			attendee_id, meeting_id, source, identity_key, person_id,
			external_attendee_id, raw_email, raw_phone, raw_name, role,
			join_time, leave_time, duration_seconds
		) VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid,
			NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''),
			$11, $12, $13)
	`, a.AttendeeID, a.MeetingID, a.Source, a.IdentityKey, a.PersonID,
		a.ExternalAttendeeID, a.RawEmail, a.RawPhone, a.RawName, a.Role,
		a.JoinTime, a.LeaveTime, a.DurationSeconds)
	if err != nil {
		return fmt.Errorf("failed to insert attendee: %w", err)
	}
	return nil
}

func (r *PostgresAttendeesRepository) mergeInto(ctx context.Context, existing, incoming *domain.MeetingAttendee) (*domain.MeetingAttendee, error) {
	merged := *existing
	if incoming.ExternalAttendeeID != "" {
		merged.ExternalAttendeeID = incoming.ExternalAttendeeID
	}
	if incoming.RawEmail != "" {
		merged.RawEmail = incoming.RawEmail
	}
	if incoming.RawPhone != "" {
		merged.RawPhone = incoming.RawPhone
	}
	if incoming.RawName != "" {
		merged.RawName = incoming.RawName
	}
	if incoming.Role != "" {
		merged.Role = incoming.Role
	}
	if incoming.JoinTime != nil {
		merged.JoinTime = incoming.JoinTime
	}
	if incoming.LeaveTime != nil {
		merged.LeaveTime = incoming.LeaveTime
	}
	if incoming.DurationSeconds > 0 {
		merged.DurationSeconds = incoming.DurationSeconds
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE meeting_attendees SET
			external_attendee_id = NULLIF($2, ''),
			raw_email = NULLIF($3, ''),
			raw_phone = NULLIF($4, ''),
			raw_name = NULLIF($5, ''),
			role = NULLIF($6, ''),
			join_time = $7,
			leave_time = $8,
			duration_seconds = $9
		WHERE attendee_id = $1
	`, merged.AttendeeID, merged.ExternalAttendeeID, merged.RawEmail, merged.RawPhone,
		merged.RawName, merged.Role, merged.JoinTime, merged.LeaveTime, merged.DurationSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to merge attendee fields: %w", err)
	}
	return &merged, nil
}

func (r *PostgresAttendeesRepository) SetPerson(ctx context.Context, attendeeID, personID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE meeting_attendees SET person_id = $2 WHERE attendee_id = $1
	`, attendeeID, personID)
	if err != nil {
		return fmt.Errorf("failed to set attendee person: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("attendee %s: %w", attendeeID, ErrNotFound)
	}
	return nil
}
