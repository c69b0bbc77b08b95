package campus

import "strings"

// Action is the outcome of a route decision.
type Action int

const (
	ActionRender Action = iota
	ActionShowSpinner
	ActionRedirect
)

func (a Action) String() string {
	switch a {
	case ActionRender:
		return "render"
	case ActionShowSpinner:
		return "spinner"
	case ActionRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is what a guard wants done with a request.
type Decision struct {
	Action   Action
	Location string
	// Notice is set when the decision must be accompanied by a notification.
	Notice *Notification
}

func render() Decision             { return Decision{Action: ActionRender} }
func spinner() Decision            { return Decision{Action: ActionShowSpinner} }
func redirectTo(p string) Decision { return Decision{Action: ActionRedirect, Location: p} }

func deny(p string) Decision {
	notice := AccessDeniedNotice()
	return Decision{Action: ActionRedirect, Location: p, Notice: &notice}
}

// RoutePolicy holds the paths the redirect rules refer to.
type RoutePolicy struct {
	LoginPath  string
	MemberHome string
	AdminHome  string
	AdminArea  string
}

// DefaultRoutePolicy returns the portal paths.
func DefaultRoutePolicy() RoutePolicy {
	return RoutePolicy{
		LoginPath:  "/login",
		MemberHome: "/",
		AdminHome:  "/admin/dashboard",
		AdminArea:  "/admin",
	}
}

func (p RoutePolicy) withDefaults() RoutePolicy {
	def := DefaultRoutePolicy()
	if p.LoginPath == "" {
		p.LoginPath = def.LoginPath
	}
	if p.MemberHome == "" {
		p.MemberHome = def.MemberHome
	}
	if p.AdminHome == "" {
		p.AdminHome = def.AdminHome
	}
	if p.AdminArea == "" {
		p.AdminArea = def.AdminArea
	}
	return p
}

// Evaluate applies the redirect rules in order:
//  1. Loading shows the spinner.
//  2. Anonymous visitors off the login page go to login.
//  3. Authenticated visitors on the login page go home (admin home for admins).
//  4. Non admins in the admin area are denied and sent to the member home.
//  5. Anything else renders.
func (p RoutePolicy) Evaluate(state AuthState, path string) Decision {
	p = p.withDefaults()
	path = NormalizePath(path)

	switch {
	case state.IsLoading():
		return spinner()
	case state.IsAnonymous():
		if path == p.LoginPath {
			return render()
		}
		return redirectTo(p.LoginPath)
	}

	if path == p.LoginPath {
		if state.IsAdmin() {
			return redirectTo(p.AdminHome)
		}
		return redirectTo(p.MemberHome)
	}

	if p.IsAdminPath(path) && !state.IsAdmin() {
		return deny(p.MemberHome)
	}

	return render()
}

// EvaluateArea is the admin area boundary. It enforces the admin rule on its
// own, independent of Evaluate.
func (p RoutePolicy) EvaluateArea(state AuthState, path string) Decision {
	p = p.withDefaults()

	switch {
	case state.IsLoading():
		return spinner()
	case !state.IsAuthenticated():
		return redirectTo(p.LoginPath)
	case !state.IsAdmin():
		return deny(p.MemberHome)
	}

	if NormalizePath(path) == p.AdminArea {
		return redirectTo(p.AdminHome)
	}
	return render()
}

// IsAdminPath reports whether path is the admin area or below it.
func (p RoutePolicy) IsAdminPath(path string) bool {
	p = p.withDefaults()
	path = NormalizePath(path)
	return path == p.AdminArea || strings.HasPrefix(path, p.AdminArea+"/")
}

// NormalizePath strips query strings and trailing slashes.
func NormalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}
