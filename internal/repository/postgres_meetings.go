package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coachsync/internal/domain"

	"github.com/lib/pq"
)

// PostgresMeetingsRepository Meeting Repository 实现
// external_refs 存 JSONB；reconciliation 合并走 MergeComponent 单事务
type PostgresMeetingsRepository struct {
	db *sql.DB
}

func NewPostgresMeetingsRepository(db *sql.DB) *PostgresMeetingsRepository {
	return &PostgresMeetingsRepository{db: db}
}

var _ MeetingsRepository = (*PostgresMeetingsRepository)(nil)

const meetingColumns = `
	meeting_id::text,
	coach_id::text,
	started_at,
	ended_at,
	COALESCE(platform, '') AS platform,
	COALESCE(topic, '') AS topic,
	COALESCE(join_url, '') AS join_url,
	COALESCE(location, '') AS location,
	COALESCE(ical_uid, '') AS ical_uid,
	COALESCE(external_refs, '{}'::jsonb)::text AS external_refs,
	COALESCE(transcript_status, '') AS transcript_status,
	status
`

func scanMeeting(scan func(dest ...any) error) (*domain.Meeting, error) {
	var m domain.Meeting
	var startedAt, endedAt sql.NullTime
	var refsRaw string

	err := scan(
		&m.MeetingID,
		&m.CoachID,
		&startedAt,
		&endedAt,
		&m.Platform,
		&m.Topic,
		&m.JoinURL,
		&m.Location,
		&m.ICalUID,
		&refsRaw,
		&m.TranscriptStatus,
		&m.Status,
	)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		m.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		m.EndedAt = &endedAt.Time
	}
	m.ExternalRefs = map[string]string{}
	if refsRaw != "" {
		if err := json.Unmarshal([]byte(refsRaw), &m.ExternalRefs); err != nil {
			return nil, fmt.Errorf("failed to decode external_refs: %w", err)
		}
	}
	return &m, nil
}

func (r *PostgresMeetingsRepository) GetMeeting(ctx context.Context, meetingID string) (*domain.Meeting, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings
		WHERE meeting_id = $1
	`, meetingID)

	m, err := scanMeeting(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("meeting %s: %w", meetingID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}
	return m, nil
}

func (r *PostgresMeetingsRepository) FindByICalUID(ctx context.Context, icalUID string) (*domain.Meeting, error) {
	if icalUID == "" {
		return nil, fmt.Errorf("ical_uid is required")
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings
		WHERE ical_uid = $1
		LIMIT 1
	`, icalUID)

	m, err := scanMeeting(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("meeting by ical_uid: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find meeting by ical_uid: %w", err)
	}
	return m, nil
}

func encodeRefs(refs map[string]string) ([]byte, error) {
	if refs == nil {
		refs = map[string]string{}
	}
	b, err := json.Marshal(refs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode external_refs: %w", err)
	}
	return b, nil
}

func (r *PostgresMeetingsRepository) CreateMeeting(ctx context.Context, m *domain.Meeting) error {
	refs, err := encodeRefs(m.ExternalRefs)
	if err != nil {
		return err
	}
	if m.Status == "" {
		m.Status = "scheduled"
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO meetings (
			meeting_id, coach_id, started_at, ended_at,
			platform, topic, join_url, location, ical_uid,
			external_refs, transcript_status, status
		) VALUES ($1, $2, $3, $4,
			NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''),
			$10, NULLIF($11, ''), $12)
	`, m.MeetingID, m.CoachID, m.StartedAt, m.EndedAt,
		m.Platform, m.Topic, m.JoinURL, m.Location, m.ICalUID,
		refs, m.TranscriptStatus, m.Status)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// lost an ical_uid race with a concurrent ingest
			return fmt.Errorf("meeting ical_uid %s: %w", m.ICalUID, ErrConflict)
		}
		return fmt.Errorf("failed to insert meeting: %w", err)
	}
	return nil
}

func (r *PostgresMeetingsRepository) UpdateMeeting(ctx context.Context, m *domain.Meeting) error {
	refs, err := encodeRefs(m.ExternalRefs)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE meetings SET
			started_at = $2,
			ended_at = $3,
			platform = NULLIF($4, ''),
			topic = NULLIF($5, ''),
			join_url = NULLIF($6, ''),
			location = NULLIF($7, ''),
			ical_uid = NULLIF($8, ''),
			external_refs = $9,
			transcript_status = NULLIF($10, ''),
			status = $11
		WHERE meeting_id = $1
	`, m.MeetingID, m.StartedAt, m.EndedAt,
		m.Platform, m.Topic, m.JoinURL, m.Location, m.ICalUID,
		refs, m.TranscriptStatus, m.Status)
	if err != nil {
		return fmt.Errorf("failed to update meeting: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("meeting %s: %w", m.MeetingID, ErrNotFound)
	}
	return nil
}

func (r *PostgresMeetingsRepository) ListWindow(ctx context.Context, since, until time.Time, coachID string) ([]domain.Meeting, error) {
	query := `
		SELECT ` + meetingColumns + `
		FROM meetings
		WHERE started_at >= $1 AND started_at < $2
	`
	args := []any{since, until}
	if coachID != "" {
		query += ` AND coach_id = $3`
		args = append(args, coachID)
	}
	query += ` ORDER BY started_at, meeting_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings window: %w", err)
	}
	defer rows.Close()

	var meetings []domain.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meeting: %w", err)
		}
		meetings = append(meetings, *m)
	}
	return meetings, rows.Err()
}

// MergeComponent 落一个 reconciliation component：
// keeper 全行更新 → 迁移 attendee 插入（同 source+identity 已存在则跳过）→
// 删除被吸收 meeting（attendee 级联删除）。整体一个事务。
func (r *PostgresMeetingsRepository) MergeComponent(ctx context.Context, keeper *domain.Meeting, migrated []domain.MeetingAttendee, absorbedIDs []string) error {
	refs, err := encodeRefs(keeper.ExternalRefs)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin merge tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE meetings SET
			started_at = $2,
			ended_at = $3,
			platform = NULLIF($4, ''),
			topic = NULLIF($5, ''),
			join_url = NULLIF($6, ''),
			location = NULLIF($7, ''),
			ical_uid = NULLIF($8, ''),
			external_refs = $9,
			transcript_status = NULLIF($10, ''),
			status = $11
		WHERE meeting_id = $1
	`, keeper.MeetingID, keeper.StartedAt, keeper.EndedAt,
		keeper.Platform, keeper.Topic, keeper.JoinURL, keeper.Location, keeper.ICalUID,
		refs, keeper.TranscriptStatus, keeper.Status)
	if err != nil {
		return fmt.Errorf("failed to update keeper meeting: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("keeper meeting %s: %w", keeper.MeetingID, ErrNotFound)
	}

	for i := range migrated {
		a := &migrated[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO meeting_attendees (
				attendee_id, meeting_id, source, identity_key, person_id,
				external_attendee_id, raw_email, raw_phone, raw_name, role,
				join_time, leave_time, duration_seconds
			) VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid,
				NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''),
				$11, $12, $13)
			ON CONFLICT (meeting_id, source, identity_key) DO NOTHING
		`, a.AttendeeID, a.MeetingID, a.Source, a.IdentityKey, a.PersonID,
			a.ExternalAttendeeID, a.RawEmail, a.RawPhone, a.RawName, a.Role,
			a.JoinTime, a.LeaveTime, a.DurationSeconds)
		if err != nil {
			return fmt.Errorf("failed to migrate attendee: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM meetings WHERE meeting_id = ANY($1)
	`, pq.Array(absorbedIDs)); err != nil {
		return fmt.Errorf("failed to delete absorbed meetings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit meeting merge: %w", err)
	}
	return nil
}
