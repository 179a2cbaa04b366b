// Package render resolves an emailTemplate by id-or-slug and substitutes
// {{var}} placeholders, grounded on the teacher's TransactionalService
// renderTemplate/extractVariables pair but reworked to HTML-escape
// substituted values (the teacher's own renderTemplate does not escape).
package render

import (
	"context"
	"database/sql"
	"fmt"
	"html"
	"regexp"

	"github.com/relaysend/mailat/internal/model"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Result is what the renderer hands back to the accept-and-enqueue path.
type Result struct {
	Subject    string
	HTML       string
	TemplateID string
}

// Store is the subset of data access the renderer needs.
type Store interface {
	GetTemplateByIDOrSlug(ctx context.Context, userID, key string) (*model.EmailTemplate, error)
	GetTemplateVariables(ctx context.Context, templateID string) ([]model.EmailTemplateVariable, error)
}

type Renderer struct {
	store Store
}

func New(store Store) *Renderer {
	return &Renderer{store: store}
}

// Render loads the active template for userID matching key (id checked
// before slug) and substitutes caller variables, then template defaults.
// Returns (nil, nil) when no matching template exists — callers map that
// to a 404, per spec.md §4.2 step 5.
func (r *Renderer) Render(ctx context.Context, userID, key string, variables map[string]string) (*Result, error) {
	tmpl, err := r.store.GetTemplateByIDOrSlug(ctx, userID, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("render: lookup template: %w", err)
	}
	if tmpl == nil {
		return nil, nil
	}

	subject := substitute(tmpl.Subject, variables)
	htmlBody := substitute(tmpl.HTMLContent, variables)

	defaults, err := r.store.GetTemplateVariables(ctx, tmpl.ID)
	if err != nil {
		return nil, fmt.Errorf("render: load template variables: %w", err)
	}
	for _, v := range defaults {
		subject = substituteOne(subject, v.Name, v.DefaultValue)
		htmlBody = substituteOne(htmlBody, v.Name, v.DefaultValue)
	}

	return &Result{Subject: subject, HTML: htmlBody, TemplateID: tmpl.ID}, nil
}

// substitute replaces every {{key}} placeholder whose key is present in
// vars with the HTML-escaped value. Unmatched placeholders are left
// untouched for the defaults pass (or left literal if never filled).
func substitute(s string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := vars[key]; ok {
			return html.EscapeString(v)
		}
		return match
	})
}

// substituteOne fills remaining occurrences of a single placeholder with
// an already-known value (used for template-declared defaults, applied
// after caller variables per spec.md §4.3).
func substituteOne(s, key, value string) string {
	re := regexp.MustCompile(`\{\{\s*` + regexp.QuoteMeta(key) + `\s*\}\}`)
	escaped := html.EscapeString(value)
	return re.ReplaceAllStringFunc(s, func(string) string { return escaped })
}
