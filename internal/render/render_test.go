package render

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaysend/mailat/internal/model"
)

type fakeStore struct {
	tmpl      *model.EmailTemplate
	variables []model.EmailTemplateVariable
	lookupErr error
}

func (f *fakeStore) GetTemplateByIDOrSlug(ctx context.Context, userID, key string) (*model.EmailTemplate, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.tmpl, nil
}

func (f *fakeStore) GetTemplateVariables(ctx context.Context, templateID string) ([]model.EmailTemplateVariable, error) {
	return f.variables, nil
}

func TestRenderSubstitutesCallerVariables(t *testing.T) {
	store := &fakeStore{tmpl: &model.EmailTemplate{
		ID: "tmpl-1", Subject: "Hi {{name}}", HTMLContent: "<p>Welcome, {{name}}!</p>",
	}}
	r := New(store)

	result, err := r.Render(context.Background(), "user-1", "tmpl-1", map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada", result.Subject)
	assert.Equal(t, "<p>Welcome, Ada!</p>", result.HTML)
}

func TestRenderEscapesCallerVariables(t *testing.T) {
	store := &fakeStore{tmpl: &model.EmailTemplate{
		ID: "tmpl-1", Subject: "Hi {{name}}", HTMLContent: "<p>{{name}}</p>",
	}}
	r := New(store)

	result, err := r.Render(context.Background(), "user-1", "tmpl-1", map[string]string{"name": "<script>"})
	require.NoError(t, err)
	assert.Equal(t, "<p>&lt;script&gt;</p>", result.HTML)
}

func TestRenderAppliesDefaultsForUnsetVariables(t *testing.T) {
	store := &fakeStore{
		tmpl: &model.EmailTemplate{ID: "tmpl-1", Subject: "Hi {{name}}", HTMLContent: "<p>{{name}} from {{company}}</p>"},
		variables: []model.EmailTemplateVariable{
			{TemplateID: "tmpl-1", Name: "company", DefaultValue: "Acme"},
		},
	}
	r := New(store)

	result, err := r.Render(context.Background(), "user-1", "tmpl-1", map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "<p>Ada from Acme</p>", result.HTML)
}

func TestRenderCallerVariableTakesPrecedenceOverDefault(t *testing.T) {
	store := &fakeStore{
		tmpl: &model.EmailTemplate{ID: "tmpl-1", Subject: "s", HTMLContent: "{{company}}"},
		variables: []model.EmailTemplateVariable{
			{TemplateID: "tmpl-1", Name: "company", DefaultValue: "Acme"},
		},
	}
	r := New(store)

	result, err := r.Render(context.Background(), "user-1", "tmpl-1", map[string]string{"company": "Caller Co"})
	require.NoError(t, err)
	assert.Equal(t, "Caller Co", result.HTML)
}

func TestRenderReturnsNilWhenTemplateNotFound(t *testing.T) {
	store := &fakeStore{tmpl: nil}
	r := New(store)

	result, err := r.Render(context.Background(), "user-1", "missing", nil)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestRenderPropagatesErrNoRowsAsNilResult(t *testing.T) {
	store := &fakeStore{lookupErr: sql.ErrNoRows}
	r := New(store)

	result, err := r.Render(context.Background(), "user-1", "missing", nil)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestRenderLeavesUnmatchedPlaceholderLiteral(t *testing.T) {
	store := &fakeStore{tmpl: &model.EmailTemplate{ID: "tmpl-1", Subject: "s", HTMLContent: "{{unknown}}"}}
	r := New(store)

	result, err := r.Render(context.Background(), "user-1", "tmpl-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "{{unknown}}", result.HTML)
}
