package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/service/template"
)

// TemplateRepo implements template.Repository against PostgreSQL.
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed template repository.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

const templateColumns = `
	id, name, template_type, description, subject_template, html_content, plain_text_content,
	is_active, is_default, times_used, created_at, updated_at`

func scanTemplate(row scanner) (*domain.Template, error) {
	t := &domain.Template{}
	err := row.Scan(&t.ID, &t.Name, &t.Type, &t.Description, &t.SubjectTemplate, &t.HTMLContent,
		&t.PlainContent, &t.IsActive, &t.IsDefault, &t.TimesUsed, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TemplateRepo) Get(ctx context.Context, id string) (*domain.Template, error) {
	t, err := scanTemplate(r.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM newsletter_templates WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, template.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepo) List(ctx context.Context, typ domain.TemplateType) ([]domain.Template, error) {
	q := `SELECT ` + templateColumns + ` FROM newsletter_templates`
	args := []interface{}{}
	if typ != "" {
		q += ` WHERE template_type = $1`
		args = append(args, typ)
	}
	q += ` ORDER BY template_type, name`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *TemplateRepo) Create(ctx context.Context, t *domain.Template) error {
	if t.ID == "" {
		return fmt.Errorf("create template: id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO newsletter_templates
			(id, name, template_type, description, subject_template, html_content, plain_text_content,
			 is_active, is_default, times_used, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, 0, $9, $9)
	`, t.ID, t.Name, t.Type, t.Description, t.SubjectTemplate, t.HTMLContent, t.PlainContent,
		t.IsActive, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *TemplateRepo) SetDefault(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var typ domain.TemplateType
	err = tx.QueryRowContext(ctx,
		`SELECT template_type FROM newsletter_templates WHERE id = $1 FOR UPDATE`, id).Scan(&typ)
	if errors.Is(err, sql.ErrNoRows) {
		return template.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock template: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE newsletter_templates SET is_default = FALSE, updated_at = NOW()
		WHERE template_type = $1 AND is_default AND id <> $2
	`, typ, id); err != nil {
		return fmt.Errorf("clear default: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE newsletter_templates SET is_default = TRUE, updated_at = NOW() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("set default: %w", err)
	}
	return tx.Commit()
}

func (r *TemplateRepo) Default(ctx context.Context, typ domain.TemplateType) (*domain.Template, error) {
	t, err := scanTemplate(r.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM newsletter_templates WHERE template_type = $1 AND is_default`, typ))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, template.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("default template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepo) IncrementUsage(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE newsletter_templates SET times_used = times_used + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return template.ErrNotFound
	}
	return nil
}
