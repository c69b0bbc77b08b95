package campus

// NavItem is one entry of a shell navigation menu.
type NavItem struct {
	Label  string `json:"label"`
	Path   string `json:"path"`
	Icon   string `json:"icon"`
	Active bool   `json:"active"`
}

// ShellKind identifies the page shell.
type ShellKind string

const (
	ShellMember ShellKind = "member"
	ShellAdmin  ShellKind = "admin"
)

// Shell is the navigation model of a rendered page.
type Shell struct {
	Kind  ShellKind `json:"kind"`
	Title string    `json:"title"`
	Items []NavItem `json:"items"`
	// Links are secondary links shown outside the main menu.
	Links      []NavItem `json:"links,omitempty"`
	User       *Profile  `json:"user,omitempty"`
	LogoutPath string    `json:"logout_path"`
}

// HasPath reports whether the shell links to path.
func (s Shell) HasPath(path string) bool {
	for _, item := range s.Items {
		if item.Path == path {
			return true
		}
	}
	for _, item := range s.Links {
		if item.Path == path {
			return true
		}
	}
	return false
}

var memberNav = []NavItem{
	{Label: "Início", Path: "/", Icon: "home"},
	{Label: "Conteúdo", Path: "/conteudo", Icon: "book-open"},
	{Label: "Ferramentas", Path: "/ferramentas", Icon: "wrench"},
	{Label: "Perfil", Path: "/perfil", Icon: "user"},
}

var adminNav = []NavItem{
	{Label: "Dashboard", Path: "/admin/dashboard", Icon: "layout-dashboard"},
	{Label: "Usuários", Path: "/admin/users", Icon: "users"},
	{Label: "Cursos", Path: "/admin/courses", Icon: "book-open"},
	{Label: "Ferramentas", Path: "/admin/tools", Icon: "wrench"},
}

const adminEntryPath = "/admin"

// MemberShell builds the member navigation. The admin entry is only listed
// for admins and stays active anywhere under the admin area.
func MemberShell(state AuthState, currentPath string) Shell {
	currentPath = NormalizePath(currentPath)

	items := make([]NavItem, 0, len(memberNav)+1)
	for _, item := range memberNav {
		item.Active = item.Path == currentPath
		items = append(items, item)
	}

	if state.IsAdmin() {
		items = append(items, NavItem{
			Label:  "Painel Admin",
			Path:   adminEntryPath,
			Icon:   "shield-check",
			Active: DefaultRoutePolicy().IsAdminPath(currentPath),
		})
	}

	return Shell{
		Kind:       ShellMember,
		Title:      "Universidade Digital",
		Items:      items,
		User:       state.Profile.Clone(),
		LogoutPath: "/logout",
	}
}

// AdminShell builds the admin navigation. Items are active on exact match;
// non admins get an empty menu.
func AdminShell(state AuthState, currentPath string) Shell {
	currentPath = NormalizePath(currentPath)

	items := []NavItem{}
	if state.IsAdmin() {
		for _, item := range adminNav {
			item.Active = item.Path == currentPath
			items = append(items, item)
		}
	}

	return Shell{
		Kind:  ShellAdmin,
		Title: "Painel Admin",
		Items: items,
		Links: []NavItem{
			{Label: "Voltar ao App", Path: "/", Icon: "arrow-left"},
		},
		User:       state.Profile.Clone(),
		LogoutPath: "/logout",
	}
}
