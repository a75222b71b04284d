package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/sequence-engine/internal/domain"
	"github.com/ignite/sequence-engine/internal/service/sequence"
)

// SequenceRepo loads sequence definitions and their steps.
type SequenceRepo struct{ db *sql.DB }

// NewSequenceRepo creates a Postgres-backed sequence repository.
func NewSequenceRepo(db *sql.DB) *SequenceRepo { return &SequenceRepo{db: db} }

func (r *SequenceRepo) Get(ctx context.Context, id string) (*domain.Sequence, error) {
	s := &domain.Sequence{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(organization_id,''), name, created_at
		FROM sequences
		WHERE id = $1
	`, id).Scan(&s.ID, &s.OrganizationID, &s.Name, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrSequenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sequence: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT position, delay_seconds, anchor, content_ref
		FROM sequence_steps
		WHERE sequence_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list sequence steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			st    domain.Step
			delay int64
		)
		if err := rows.Scan(&st.Position, &delay, &st.Anchor, &st.ContentRef); err != nil {
			return nil, fmt.Errorf("scan sequence step: %w", err)
		}
		st.Delay = time.Duration(delay) * time.Second
		s.Steps = append(s.Steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sequence steps: %w", err)
	}
	return s, nil
}

// TemplateRepo resolves step content references from sequence_templates.
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed content resolver.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

func (r *TemplateRepo) Resolve(ctx context.Context, ref string) (*sequence.Content, error) {
	c := &sequence.Content{}
	err := r.db.QueryRowContext(ctx, `
		SELECT subject, COALESCE(html_content,''), COALESCE(text_content,'')
		FROM sequence_templates
		WHERE ref = $1
	`, ref).Scan(&c.Subject, &c.HTMLContent, &c.TextContent)
	if err == sql.ErrNoRows {
		return nil, domain.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve template: %w", err)
	}
	return c, nil
}
