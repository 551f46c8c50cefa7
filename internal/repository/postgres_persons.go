package repository

import (
	"context"
	"database/sql"
	"fmt"

	"coachsync/internal/domain"

	"github.com/lib/pq"
)

// PostgresPersonsRepository Person Repository 实现
// persons 主表 + person_emails/person_phones 子表（标识与哈希一一对应）
type PostgresPersonsRepository struct {
	db *sql.DB
}

func NewPostgresPersonsRepository(db *sql.DB) *PostgresPersonsRepository {
	return &PostgresPersonsRepository{db: db}
}

var _ PersonsRepository = (*PostgresPersonsRepository)(nil)

func (r *PostgresPersonsRepository) GetPerson(ctx context.Context, personID string) (*domain.Person, error) {
	if personID == "" {
		return nil, fmt.Errorf("person_id is required")
	}

	query := `
		SELECT
			person_id::text,
			COALESCE(primary_email, '') AS primary_email,
			COALESCE(primary_phone, '') AS primary_phone,
			created_at
		FROM persons
		WHERE person_id = $1
	`

	var p domain.Person
	err := r.db.QueryRowContext(ctx, query, personID).Scan(
		&p.PersonID,
		&p.PrimaryEmail,
		&p.PrimaryPhone,
		&p.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("person %s: %w", personID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get person: %w", err)
	}

	if err := r.loadIdentifiers(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPersonsRepository) FindByEmailHash(ctx context.Context, hash []byte) (*domain.Person, error) {
	return r.findByHash(ctx, "person_emails", "email_hash", hash)
}

func (r *PostgresPersonsRepository) FindByPhoneHash(ctx context.Context, hash []byte) (*domain.Person, error) {
	return r.findByHash(ctx, "person_phones", "phone_hash", hash)
}

func (r *PostgresPersonsRepository) findByHash(ctx context.Context, table, column string, hash []byte) (*domain.Person, error) {
	if len(hash) == 0 {
		return nil, fmt.Errorf("hash is required")
	}

	// table/column come from the two fixed call sites above, never from input
	query := fmt.Sprintf(`
		SELECT p.person_id::text,
		       COALESCE(p.primary_email, '') AS primary_email,
		       COALESCE(p.primary_phone, '') AS primary_phone,
		       p.created_at
		FROM persons p
		JOIN %s i ON i.person_id = p.person_id
		WHERE i.%s = $1
		LIMIT 1
	`, table, column)

	var p domain.Person
	err := r.db.QueryRowContext(ctx, query, hash).Scan(
		&p.PersonID,
		&p.PrimaryEmail,
		&p.PrimaryPhone,
		&p.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("person by %s: %w", column, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find person by %s: %w", column, err)
	}

	if err := r.loadIdentifiers(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPersonsRepository) loadIdentifiers(ctx context.Context, p *domain.Person) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT email, email_hash
		FROM person_emails
		WHERE person_id = $1
		ORDER BY position
	`, p.PersonID)
	if err != nil {
		return fmt.Errorf("failed to load person emails: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var email string
		var hash []byte
		if err := rows.Scan(&email, &hash); err != nil {
			return fmt.Errorf("failed to scan person email: %w", err)
		}
		p.Emails = append(p.Emails, email)
		p.EmailHashes = append(p.EmailHashes, hash)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate person emails: %w", err)
	}

	prows, err := r.db.QueryContext(ctx, `
		SELECT phone, phone_hash
		FROM person_phones
		WHERE person_id = $1
		ORDER BY position
	`, p.PersonID)
	if err != nil {
		return fmt.Errorf("failed to load person phones: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var phone string
		var hash []byte
		if err := prows.Scan(&phone, &hash); err != nil {
			return fmt.Errorf("failed to scan person phone: %w", err)
		}
		p.Phones = append(p.Phones, phone)
		p.PhoneHashes = append(p.PhoneHashes, hash)
	}
	if err := prows.Err(); err != nil {
		return fmt.Errorf("failed to iterate person phones: %w", err)
	}
	return nil
}

func (r *PostgresPersonsRepository) CreatePerson(ctx context.Context, p *domain.Person) error {
	if p.PersonID == "" {
		return fmt.Errorf("person_id is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO persons (person_id, primary_email, primary_phone, created_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4)
	`, p.PersonID, p.PrimaryEmail, p.PrimaryPhone, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert person: %w", err)
	}

	for i, email := range p.Emails {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO person_emails (person_id, email, email_hash, position)
			VALUES ($1, $2, $3, $4)
		`, p.PersonID, email, p.EmailHashes[i], i)
		if err != nil {
			return fmt.Errorf("failed to insert person email: %w", err)
		}
	}
	for i, phone := range p.Phones {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO person_phones (person_id, phone, phone_hash, position)
			VALUES ($1, $2, $3, $4)
		`, p.PersonID, phone, p.PhoneHashes[i], i)
		if err != nil {
			return fmt.Errorf("failed to insert person phone: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit person: %w", err)
	}
	return nil
}

func (r *PostgresPersonsRepository) AddEmail(ctx context.Context, personID, email string, hash []byte) error {
	// 已存在（大小写不敏感）则不重复追加
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO person_emails (person_id, email, email_hash, position)
		SELECT $1, $2, $3, COALESCE(MAX(position) + 1, 0)
		FROM person_emails
		WHERE person_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM person_emails
			WHERE person_id = $1 AND lower(email) = lower($2)
		  )
		ON CONFLICT (person_id, email_hash) DO NOTHING
	`, personID, email, hash)
	if err != nil {
		return fmt.Errorf("failed to add person email: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		// 首个已知 email 作为 primary
		_, err = r.db.ExecContext(ctx, `
			UPDATE persons SET primary_email = $2
			WHERE person_id = $1 AND primary_email IS NULL
		`, personID, email)
		if err != nil {
			return fmt.Errorf("failed to backfill primary email: %w", err)
		}
	}
	return nil
}

func (r *PostgresPersonsRepository) AddPhone(ctx context.Context, personID, phone string, hash []byte) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO person_phones (person_id, phone, phone_hash, position)
		SELECT $1, $2, $3, COALESCE(MAX(position) + 1, 0)
		FROM person_phones
		WHERE person_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM person_phones
			WHERE person_id = $1 AND phone = $2
		  )
		ON CONFLICT (person_id, phone_hash) DO NOTHING
	`, personID, phone, hash)
	if err != nil {
		return fmt.Errorf("failed to add person phone: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		_, err = r.db.ExecContext(ctx, `
			UPDATE persons SET primary_phone = $2
			WHERE person_id = $1 AND primary_phone IS NULL
		`, personID, phone)
		if err != nil {
			return fmt.Errorf("failed to backfill primary phone: %w", err)
		}
	}
	return nil
}

// MergePersons 合并两个 Person（survivor 吸收 mergee），单事务完成：
// 标识并集 → primary 回填 → attendee 重指 → client 幂等复制 →
// review pair 替换 → 删除 mergee。
func (r *PostgresPersonsRepository) MergePersons(ctx context.Context, survivorID, mergeeID string) (*domain.Person, error) {
	if survivorID == mergeeID {
		return r.GetPerson(ctx, survivorID)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin merge tx: %w", err)
	}
	defer tx.Rollback()

	// 一次查询锁住双方，防止另一侧在合并途中被别处合并掉
	rows, err := tx.QueryContext(ctx, `
		SELECT person_id::text,
		       COALESCE(primary_email, '') AS primary_email,
		       COALESCE(primary_phone, '') AS primary_phone
		FROM persons
		WHERE person_id = ANY($1)
		FOR UPDATE
	`, pq.Array([]string{survivorID, mergeeID}))
	if err != nil {
		return nil, fmt.Errorf("failed to lock persons for merge: %w", err)
	}
	locked := map[string]struct{ email, phone string }{}
	for rows.Next() {
		var id, email, phone string
		if err := rows.Scan(&id, &email, &phone); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan locked person: %w", err)
		}
		locked[id] = struct{ email, phone string }{email, phone}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to lock persons for merge: %w", err)
	}
	if len(locked) != 2 {
		return nil, fmt.Errorf("merge persons %s <- %s: %w", survivorID, mergeeID, ErrNotFound)
	}

	// 1. 标识并集：mergee 的 email/phone 追加到 survivor（大小写碰撞时保留
	//    survivor 的写法，哈希唯一约束兜底）
	_, err = tx.ExecContext(ctx, `
		INSERT INTO person_emails (person_id, email, email_hash, position)
		SELECT $1, m.email, m.email_hash,
		       (SELECT COALESCE(MAX(position), -1) FROM person_emails WHERE person_id = $1) + row_number() OVER (ORDER BY m.position)
		FROM person_emails m
		WHERE m.person_id = $2
		  AND NOT EXISTS (
			SELECT 1 FROM person_emails s
			WHERE s.person_id = $1 AND lower(s.email) = lower(m.email)
		  )
		ON CONFLICT (person_id, email_hash) DO NOTHING
	`, survivorID, mergeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to union emails: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO person_phones (person_id, phone, phone_hash, position)
		SELECT $1, m.phone, m.phone_hash,
		       (SELECT COALESCE(MAX(position), -1) FROM person_phones WHERE person_id = $1) + row_number() OVER (ORDER BY m.position)
		FROM person_phones m
		WHERE m.person_id = $2
		  AND NOT EXISTS (
			SELECT 1 FROM person_phones s
			WHERE s.person_id = $1 AND s.phone = m.phone
		  )
		ON CONFLICT (person_id, phone_hash) DO NOTHING
	`, survivorID, mergeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to union phones: %w", err)
	}

	// 2. primary 回填（仅当 survivor 为空）
	_, err = tx.ExecContext(ctx, `
		UPDATE persons s SET
			primary_email = COALESCE(s.primary_email, m.primary_email),
			primary_phone = COALESCE(s.primary_phone, m.primary_phone)
		FROM persons m
		WHERE s.person_id = $1 AND m.person_id = $2
	`, survivorID, mergeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to backfill primaries: %w", err)
	}

	// 3. attendee 批量重指
	_, err = tx.ExecContext(ctx, `
		UPDATE meeting_attendees SET person_id = $1 WHERE person_id = $2
	`, survivorID, mergeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to reassign attendees: %w", err)
	}

	// 4. client 幂等复制（survivor 已有同 coach 的 client 时保持不动）
	_, err = tx.ExecContext(ctx, `
		INSERT INTO clients (client_id, coach_id, person_id, status, first_seen_at)
		SELECT gen_random_uuid(), c.coach_id, $1, c.status, c.first_seen_at
		FROM clients c
		WHERE c.person_id = $2
		ON CONFLICT (coach_id, person_id) DO NOTHING
	`, survivorID, mergeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to copy clients: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM clients WHERE person_id = $1
	`, mergeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete mergee clients: %w", err)
	}

	// 5. review pair 替换；两侧变相等的 open candidate 视为已被合并解决
	_, err = tx.ExecContext(ctx, `
		UPDATE review_candidates SET
			person_a_id = LEAST(
				CASE WHEN person_a_id = $2 THEN $1 ELSE person_a_id END,
				CASE WHEN person_b_id = $2 THEN $1 ELSE person_b_id END),
			person_b_id = GREATEST(
				CASE WHEN person_a_id = $2 THEN $1 ELSE person_a_id END,
				CASE WHEN person_b_id = $2 THEN $1 ELSE person_b_id END)
		WHERE person_a_id = $2 OR person_b_id = $2
	`, survivorID, mergeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to substitute review pairs: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE review_candidates
		SET status = 'resolved', resolved_person_id = $1
		WHERE status = 'open' AND person_a_id = $1 AND person_b_id = $1
	`, survivorID)
	if err != nil {
		return nil, fmt.Errorf("failed to self-resolve review pairs: %w", err)
	}

	// 6. 删除 mergee（person_emails/person_phones 级联）
	_, err = tx.ExecContext(ctx, `
		DELETE FROM persons WHERE person_id = $1
	`, mergeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete mergee: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit merge: %w", err)
	}

	return r.GetPerson(ctx, survivorID)
}
