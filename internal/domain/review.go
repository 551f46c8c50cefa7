package domain

import "time"

// Review candidate statuses. Once resolved a candidate is never reopened.
const (
	ReviewStatusOpen     = "open"
	ReviewStatusResolved = "resolved"
)

// Conflict reason codes.
const (
	ReasonEmailPhoneConflict = "email_phone_conflict"
)

// ReviewCandidate 待人工裁决的身份歧义（对应 review_candidates 表）
// PersonAID/PersonBID 按字节序排序存储，保证同一无序对只记录一次。
// Rows are never physically deleted (audit trail).
type ReviewCandidate struct {
	CandidateID string `db:"candidate_id"` // UUID, PRIMARY KEY
	CoachID     string `db:"coach_id"`     // UUID, NOT NULL
	MeetingID   string `db:"meeting_id"`   // UUID, nullable

	// 触发冲突的原始片段
	AttendeeSource string `db:"attendee_source"`
	RawEmail       string `db:"raw_email"`
	RawPhone       string `db:"raw_phone"`
	RawName        string `db:"raw_name"`

	// 候选 Person 对（sorted: PersonAID <= PersonBID）
	PersonAID string `db:"person_a_id"`
	PersonBID string `db:"person_b_id"`

	Reason string `db:"reason"` // free-text code, e.g. "email_phone_conflict"
	Status string `db:"status"` // open | resolved

	// operator 裁决结果（resolved 后有值）
	ResolvedPersonID string `db:"resolved_person_id"`

	CreatedAt time.Time `db:"created_at"`
}

// SortPair returns the two person ids in stable byte order, so the same
// unordered pair is recorded identically regardless of which field (email vs
// phone) was scanned first.
func SortPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
