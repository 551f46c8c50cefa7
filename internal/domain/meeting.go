package domain

import "time"

// Meeting 一次日历/视频会议（对应 meetings 表）
type Meeting struct {
	// 主键
	MeetingID string `db:"meeting_id"` // UUID, PRIMARY KEY

	CoachID string `db:"coach_id"` // UUID, NOT NULL

	// 时间（timezone-aware, nullable）
	StartedAt *time.Time `db:"started_at"` // TIMESTAMPTZ
	EndedAt   *time.Time `db:"ended_at"`   // TIMESTAMPTZ

	Platform string `db:"platform"` // VARCHAR(50), nullable (zoom/google/calendly/fireflies/...)
	Topic    string `db:"topic"`    // TEXT, nullable
	JoinURL  string `db:"join_url"` // TEXT, nullable
	Location string `db:"location"` // TEXT, nullable

	// 跨 provider 稳定键（同一日历事件在各端共享）
	ICalUID string `db:"ical_uid"` // VARCHAR(255), nullable, globally unique when set

	// provider 自有标识与任意元数据（JSONB，reconciliation 时做并集）
	// Invariant: never nil.
	ExternalRefs map[string]string `db:"external_refs"`

	TranscriptStatus string `db:"transcript_status"` // VARCHAR(30), nullable
	Status           string `db:"status"`            // VARCHAR(30), NOT NULL, DEFAULT 'scheduled'
}

// MeetingAttendee 某 provider 报告的一条参会记录（对应 meeting_attendees 表）
// UNIQUE(meeting_id, source, identity_key)
type MeetingAttendee struct {
	AttendeeID string `db:"attendee_id"` // UUID, PRIMARY KEY
	MeetingID  string `db:"meeting_id"`  // UUID, NOT NULL, FK meetings ON DELETE CASCADE
	Source     string `db:"source"`      // VARCHAR(50), NOT NULL (zoom/google/calendly/fireflies)

	// 由 external_attendee_id > normalized email > raw name 推导（纯函数，写入时重算）
	IdentityKey string `db:"identity_key"` // VARCHAR(512), NOT NULL

	// 解析结果；为空表示尚未 resolve
	PersonID string `db:"person_id"` // UUID, nullable

	ExternalAttendeeID string `db:"external_attendee_id"` // VARCHAR(255), nullable
	RawEmail           string `db:"raw_email"`            // VARCHAR(320), nullable
	RawPhone           string `db:"raw_phone"`            // VARCHAR(64), nullable
	RawName            string `db:"raw_name"`             // VARCHAR(255), nullable
	Role               string `db:"role"`                 // VARCHAR(50), nullable

	// live-meeting provider 计时字段
	JoinTime        *time.Time `db:"join_time"`
	LeaveTime       *time.Time `db:"leave_time"`
	DurationSeconds int        `db:"duration_seconds"` // 0 = unknown
}
