package send

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/relaysend/mailat/internal/model"
)

var uuidRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// templateStore adapts the database to render.Store, resolving by id
// before slug per spec.md §4.3. A non-UUID key skips the id lookup
// outright rather than letting Postgres reject the comparison.
type templateStore struct {
	db *sql.DB
}

func (s *templateStore) GetTemplateByIDOrSlug(ctx context.Context, userID, key string) (*model.EmailTemplate, error) {
	if uuidRe.MatchString(key) {
		t, err := s.queryOne(ctx, "id", userID, key)
		if err != nil {
			return nil, err
		}
		if t != nil {
			return t, nil
		}
	}
	return s.queryOne(ctx, "slug", userID, key)
}

func (s *templateStore) queryOne(ctx context.Context, column, userID, key string) (*model.EmailTemplate, error) {
	var t model.EmailTemplate
	query := fmt.Sprintf(`SELECT id, user_id, slug, subject, html_content, is_active, created_at, updated_at
		FROM email_templates WHERE user_id = $1 AND is_active = true AND %s = $2 LIMIT 1`, column)
	err := s.db.QueryRowContext(ctx, query, userID, key).Scan(
		&t.ID, &t.UserID, &t.Slug, &t.Subject, &t.HTMLContent, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("send: lookup template by %s: %w", column, err)
	}
	return &t, nil
}

func (s *templateStore) GetTemplateVariables(ctx context.Context, templateID string) ([]model.EmailTemplateVariable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT template_id, name, default_value FROM email_template_variables WHERE template_id = $1`, templateID)
	if err != nil {
		return nil, fmt.Errorf("send: load template variables: %w", err)
	}
	defer rows.Close()

	var out []model.EmailTemplateVariable
	for rows.Next() {
		var v model.EmailTemplateVariable
		var defaultValue sql.NullString
		if err := rows.Scan(&v.TemplateID, &v.Name, &defaultValue); err != nil {
			return nil, fmt.Errorf("send: scan template variable: %w", err)
		}
		v.DefaultValue = defaultValue.String
		out = append(out, v)
	}
	return out, rows.Err()
}
