package campus

import (
	"maps"
	"strings"

	"github.com/goliatone/go-router"
)

var TemplateUserKey = "current_user"

// TemplateHelpers returns a map of helper functions and data that can be
// handed to a view engine as global data.
//
// In templates, you can then use:
//
//	{% if is_authenticated(current_user) %}
//	{% if is_admin(current_user) %}
//	{% if has_role(current_user, roles.admin) %}
//	<a class="{% if nav_active(shell, "/perfil") %}active{% endif %}">
func TemplateHelpers() map[string]any {
	return map[string]any{
		"is_authenticated": isAuthenticated,
		"is_admin":         isAdmin,
		"has_role":         hasRole,
		"first_name":       firstName,
		"nav_active":       navActive,
		"initials":         initials,

		"roles": roleNames(),
	}
}

func roleNames() map[string]string {
	out := map[string]string{}
	for _, role := range GetAllRoles() {
		out[string(role)] = string(role)
	}
	return out
}

// TemplateHelpersWithState returns the helpers with the visitor's profile set
// as current_user and the raw state under auth_state.
func TemplateHelpersWithState(state AuthState) map[string]any {
	helpers := TemplateHelpers()
	helpers["auth_state"] = state
	if state.Profile != nil {
		helpers[TemplateUserKey] = state.Profile
	}
	return helpers
}

// TemplateHelpersWithRouter resolves the visitor's state from the router
// context and returns the matching helpers.
func TemplateHelpersWithRouter(ctx router.Context) map[string]any {
	return TemplateHelpersWithState(StateFromRouter(ctx))
}

// MergeTemplateData builds the view context for a page. Request data wins over
// helper data on key collisions.
func MergeTemplateData(state AuthState, shell Shell, notices []Notification, data router.ViewContext) router.ViewContext {
	out := router.ViewContext{}
	maps.Copy(out, TemplateHelpersWithState(state))
	out["shell"] = shell
	out["notifications"] = notices
	maps.Copy(out, data)
	return out
}

func asProfile(user any) *Profile {
	switch u := user.(type) {
	case *Profile:
		return u
	case Profile:
		return &u
	case AuthState:
		return u.Profile
	case *AuthState:
		if u == nil {
			return nil
		}
		return u.Profile
	}
	return nil
}

func isAuthenticated(user any) bool {
	switch u := user.(type) {
	case AuthState:
		return u.IsAuthenticated()
	case *AuthState:
		return u != nil && u.IsAuthenticated()
	}
	p := asProfile(user)
	return p != nil && p.ID != ""
}

func isAdmin(user any) bool {
	p := asProfile(user)
	return p != nil && p.IsAdmin()
}

func hasRole(user any, role string) bool {
	p := asProfile(user)
	if p == nil {
		return false
	}
	parsed, ok := ParseRole(role)
	if !ok {
		return false
	}
	return p.Role == parsed
}

func firstName(user any) string {
	p := asProfile(user)
	if p == nil {
		return ""
	}
	return p.FirstName()
}

func initials(user any) string {
	p := asProfile(user)
	if p == nil {
		return ""
	}
	var out strings.Builder
	for _, part := range strings.Fields(p.Name) {
		for _, r := range part {
			out.WriteString(strings.ToUpper(string(r)))
			break
		}
		if out.Len() >= 2 {
			break
		}
	}
	return out.String()
}

func navActive(shell any, path string) bool {
	var s Shell
	switch v := shell.(type) {
	case Shell:
		s = v
	case *Shell:
		if v == nil {
			return false
		}
		s = *v
	default:
		return false
	}
	for _, item := range s.Items {
		if item.Path == path {
			return item.Active
		}
	}
	for _, item := range s.Links {
		if item.Path == path {
			return item.Active
		}
	}
	return false
}
