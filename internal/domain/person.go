package domain

import "time"

// Person 一个真实个人（对应 persons 表 + person_emails/person_phones 子表）
// Raw identifiers live in the child tables together with their keyed hashes so
// exact-match lookup never scans raw PII.
type Person struct {
	// 主键
	PersonID string `db:"person_id"` // UUID, PRIMARY KEY

	// 首次获知的标识（一旦写入不再清空）
	PrimaryEmail string `db:"primary_email"` // VARCHAR(320), nullable
	PrimaryPhone string `db:"primary_phone"` // VARCHAR(32), nullable

	// 全部已知标识（有序、去重；email 大小写不敏感去重）
	Emails []string `db:"-"`
	Phones []string `db:"-"`

	// 查询索引：标准化标识的键控哈希，与 Emails/Phones 一一对应
	EmailHashes [][]byte `db:"-"` // BYTEA
	PhoneHashes [][]byte `db:"-"` // BYTEA

	CreatedAt time.Time `db:"created_at"`
}

// HasEmail reports whether the person already carries the email
// (case-insensitive, inputs are expected to be normalized).
func (p *Person) HasEmail(normalized string) bool {
	for _, e := range p.Emails {
		if equalFoldASCII(e, normalized) {
			return true
		}
	}
	return false
}

// HasPhone reports whether the person already carries the E.164 phone.
func (p *Person) HasPhone(normalized string) bool {
	for _, ph := range p.Phones {
		if ph == normalized {
			return true
		}
	}
	return false
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Client 教练与 Person 之间的关系（对应 clients 表）
// UNIQUE(coach_id, person_id)
type Client struct {
	ClientID    string    `db:"client_id"` // UUID, PRIMARY KEY
	CoachID     string    `db:"coach_id"`  // UUID, NOT NULL
	PersonID    string    `db:"person_id"` // UUID, NOT NULL
	Status      string    `db:"status"`    // VARCHAR(20), NOT NULL (prospect/active/inactive)
	FirstSeenAt time.Time `db:"first_seen_at"`
}

// Client status values.
const (
	ClientStatusProspect = "prospect"
	ClientStatusActive   = "active"
	ClientStatusInactive = "inactive"
)

// ValidClientStatus reports whether s is one of the allowed client statuses.
func ValidClientStatus(s string) bool {
	switch s {
	case ClientStatusProspect, ClientStatusActive, ClientStatusInactive:
		return true
	}
	return false
}

// ClientStatusChange 客户状态变更审计记录（对应 client_status_log 表）
type ClientStatusChange struct {
	LogID     string    `db:"log_id"`
	ClientID  string    `db:"client_id"`
	OldStatus string    `db:"old_status"`
	NewStatus string    `db:"new_status"`
	ChangedAt time.Time `db:"changed_at"`
}
