package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/sequence-engine/internal/domain"
	"github.com/ignite/sequence-engine/internal/service/sequence"
	"github.com/lib/pq"
)

// EnrollmentRepo implements the scheduler and reconciler enrollment stores.
type EnrollmentRepo struct{ db *sql.DB }

// NewEnrollmentRepo creates a Postgres-backed enrollment repository.
func NewEnrollmentRepo(db *sql.DB) *EnrollmentRepo { return &EnrollmentRepo{db: db} }

const enrollmentColumns = `
	e.id, e.sequence_id, e.contact_id, e.email, e.current_step, e.status,
	COALESCE(e.exit_reason,''), e.last_sent_at, COALESCE(e.last_message_id,''),
	e.version, e.open_count, e.click_count, e.last_engaged_at,
	e.created_at, e.updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEnrollment(s rowScanner) (*domain.Enrollment, error) {
	var (
		e         domain.Enrollment
		lastSent  sql.NullTime
		lastEngag sql.NullTime
	)
	err := s.Scan(
		&e.ID, &e.SequenceID, &e.ContactID, &e.Email, &e.CurrentStep, &e.Status,
		&e.ExitReason, &lastSent, &e.LastMessageID,
		&e.Version, &e.OpenCount, &e.ClickCount, &lastEngag,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastSent.Valid {
		t := lastSent.Time
		e.LastSentAt = &t
	}
	if lastEngag.Valid {
		t := lastEngag.Time
		e.LastEngagedAt = &t
	}
	return &e, nil
}

func (r *EnrollmentRepo) ListActive(ctx context.Context) ([]domain.Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT`+enrollmentColumns+`
		FROM sequence_enrollments e
		WHERE e.status = 'active'
		ORDER BY e.created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	defer rows.Close()

	var out []domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *EnrollmentRepo) Get(ctx context.Context, id string) (*domain.Enrollment, error) {
	e, err := scanEnrollment(r.db.QueryRowContext(ctx, `
		SELECT`+enrollmentColumns+`
		FROM sequence_enrollments e
		WHERE e.id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return e, nil
}

func (r *EnrollmentRepo) FindByMessageID(ctx context.Context, messageID string) (*domain.Enrollment, error) {
	e, err := scanEnrollment(r.db.QueryRowContext(ctx, `
		SELECT`+enrollmentColumns+`
		FROM sequence_messages m
		JOIN sequence_enrollments e ON e.id = m.enrollment_id
		WHERE m.message_id = $1
	`, messageID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find enrollment by message: %w", err)
	}
	return e, nil
}

func (r *EnrollmentRepo) ClaimStep(ctx context.Context, c sequence.StepClaim) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sequence_enrollments
		SET claim_token = $3, claim_expires_at = $5
		WHERE id = $1 AND status = 'active' AND current_step = $2
		  AND (claim_token IS NULL OR claim_expires_at <= $4)
	`, c.EnrollmentID, c.StepIndex, c.Token, c.Now, c.Until)
	if err != nil {
		return fmt.Errorf("claim step: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrStaleEnrollment
	}
	return nil
}

func (r *EnrollmentRepo) ReleaseClaim(ctx context.Context, enrollmentID, token string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sequence_enrollments
		SET claim_token = NULL, claim_expires_at = NULL
		WHERE id = $1 AND claim_token = $2
	`, enrollmentID, token)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// CommitStep advances the enrollment and writes the message index row in
// one transaction.
func (r *EnrollmentRepo) CommitStep(ctx context.Context, c sequence.StepCommit) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit step: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE sequence_enrollments
		SET current_step = current_step + 1,
		    last_sent_at = $4,
		    last_message_id = $5,
		    status = CASE WHEN $6 AND status = 'active' THEN 'completed' ELSE status END,
		    claim_token = NULL,
		    claim_expires_at = NULL,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND current_step = $2 AND claim_token = $3
	`, c.EnrollmentID, c.StepIndex, c.Token, c.SentAt, c.MessageID, c.Complete)
	if err != nil {
		return fmt.Errorf("commit step: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrStaleEnrollment
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sequence_messages (message_id, enrollment_id, step_index, sent_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id) DO NOTHING
	`, c.MessageID, c.EnrollmentID, c.StepIndex, c.SentAt); err != nil {
		return fmt.Errorf("index sent message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit step tx: %w", err)
	}
	return nil
}

func (r *EnrollmentRepo) Transition(ctx context.Context, id string, from []domain.EnrollmentStatus, to domain.EnrollmentStatus, reason domain.ExitReason) error {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE sequence_enrollments
		SET status = $2,
		    exit_reason = CASE WHEN $2 = 'exited' THEN NULLIF($3, '') ELSE exit_reason END,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)
	`, id, string(to), string(reason), pq.Array(allowed))
	if err != nil {
		return fmt.Errorf("transition enrollment: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM sequence_enrollments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check enrollment: %w", err)
	}
	if !exists {
		return domain.ErrEnrollmentNotFound
	}
	return domain.ErrStaleEnrollment
}

func (r *EnrollmentRepo) RecordEngagement(ctx context.Context, id string, kind domain.EventKind, at time.Time) error {
	var opens, clicks int
	switch kind {
	case domain.EventOpened:
		opens = 1
	case domain.EventClicked:
		clicks = 1
	default:
		return nil
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE sequence_enrollments
		SET open_count = open_count + $2,
		    click_count = click_count + $3,
		    last_engaged_at = GREATEST(COALESCE(last_engaged_at, $4), $4)
		WHERE id = $1
	`, id, opens, clicks, at)
	if err != nil {
		return fmt.Errorf("record engagement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrEnrollmentNotFound
	}
	return nil
}

// Messages returns the message index rows for one enrollment.
func (r *EnrollmentRepo) Messages(ctx context.Context, enrollmentID string) ([]domain.SentMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT message_id, enrollment_id, step_index, sent_at
		FROM sequence_messages
		WHERE enrollment_id = $1
		ORDER BY step_index
	`, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("list sent messages: %w", err)
	}
	defer rows.Close()

	var out []domain.SentMessage
	for rows.Next() {
		var m domain.SentMessage
		if err := rows.Scan(&m.MessageID, &m.EnrollmentID, &m.StepIndex, &m.SentAt); err != nil {
			return nil, fmt.Errorf("scan sent message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
