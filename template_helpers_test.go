package campus_test

import (
	"context"
	"testing"

	"github.com/flosch/pongo2/v6"
	"github.com/goliatone/go-campus"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderTemplate(t *testing.T, tpl string, data map[string]any) string {
	t.Helper()
	template, err := pongo2.FromString(tpl)
	require.NoError(t, err)
	out, err := template.Execute(pongo2.Context(data))
	require.NoError(t, err)
	return out
}

func TestTemplateHelpersWithAdmin(t *testing.T) {
	data := campus.TemplateHelpersWithState(adminState())

	out := renderTemplate(t, `{% if is_admin(current_user) %}admin{% else %}member{% endif %}`, data)
	assert.Equal(t, "admin", out)

	out = renderTemplate(t, `{{ first_name(current_user) }}|{{ initials(current_user) }}`, data)
	assert.Equal(t, "Administrador|AD", out)

	out = renderTemplate(t, `{% if has_role(current_user, roles.admin) %}yes{% endif %}`, data)
	assert.Equal(t, "yes", out)

	out = renderTemplate(t, `{{ roles.student }}|{{ roles.admin }}`, data)
	assert.Equal(t, "student|admin", out)
}

func TestTemplateHelpersWithStudent(t *testing.T) {
	data := campus.TemplateHelpersWithState(studentState())

	out := renderTemplate(t, `{% if is_admin(current_user) %}admin{% else %}member{% endif %}`, data)
	assert.Equal(t, "member", out)

	out = renderTemplate(t, `{% if is_authenticated(auth_state) %}in{% endif %}`, data)
	assert.Equal(t, "in", out)

	out = renderTemplate(t, `{% if has_role(current_user, "aluno") %}aluno{% endif %}`, data)
	assert.Equal(t, "aluno", out)
}

func TestTemplateHelpersAnonymous(t *testing.T) {
	data := campus.TemplateHelpersWithState(campus.Anonymous())
	_, ok := data[campus.TemplateUserKey]
	assert.False(t, ok)

	out := renderTemplate(t, `{% if is_authenticated(auth_state) %}in{% else %}out{% endif %}`, data)
	assert.Equal(t, "out", out)
}

func TestMergeTemplateDataNavActive(t *testing.T) {
	state := studentState()
	shell := campus.MemberShell(state, "/ferramentas")
	data := campus.MergeTemplateData(state, shell, nil, router.ViewContext{"title": "Ferramentas"})

	out := renderTemplate(t, `{{ title }}:{% for item in shell.Items %}{% if nav_active(shell, item.Path) %}[{{ item.Label }}]{% endif %}{% endfor %}`, data)
	assert.Equal(t, "Ferramentas:[Ferramentas]", out)
}

func TestMergeTemplateDataRequestDataWins(t *testing.T) {
	notices := []campus.Notification{campus.AccessDeniedNotice()}
	data := campus.MergeTemplateData(studentState(), campus.Shell{}, notices, router.ViewContext{
		"current_user": "override",
	})

	assert.Equal(t, "override", data["current_user"])
	assert.Equal(t, notices, data["notifications"])
	assert.Contains(t, data, "is_admin")
}

func TestTemplateHelpersWithRouter(t *testing.T) {
	store := campus.NewSessionStore(nil)
	require.NoError(t, store.SignIn(context.Background(), campus.DemoStudentEmail, campus.DemoPassword))

	ctx := NewMockContext()
	ctx.LocalsMock[campus.StoreLocalsKey] = store

	data := campus.TemplateHelpersWithRouter(ctx)
	profile, ok := data[campus.TemplateUserKey].(*campus.Profile)
	require.True(t, ok)
	assert.Equal(t, campus.DemoStudentID, profile.ID)
}
