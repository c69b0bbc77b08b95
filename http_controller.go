package campus

import (
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

const (
	modeSignIn = "signin"
	modeSignUp = "signup"
)

// RegisterPortalRoutes mounts the portal pages behind the visitor and guard
// middleware.
func RegisterPortalRoutes[T any](app router.Router[T], mw *PortalMiddleware, opts ...PortalControllerOption) *PortalController {
	controller := NewPortalController(mw, opts...)
	r := controller.Routes

	visitor := mw.Visitor()
	guard := mw.Guard()
	admin := mw.AdminArea()

	app.Get(r.Login, controller.LoginShow, visitor, guard).SetName("login.get")
	app.Post(r.Login, controller.LoginPost, visitor, guard).SetName("login.post")

	app.Get(r.Logout, controller.LogOut, visitor).SetName("logout.get")
	app.Post(r.Logout, controller.LogOut, visitor).SetName("logout.post")

	app.Get(r.Home, controller.Home, visitor, guard).SetName("home.get")
	app.Get(r.Content, controller.Content, visitor, guard).SetName("content.get")
	app.Get(r.Course, controller.Course, visitor, guard).SetName("course.get")
	app.Get(r.Tools, controller.Tools, visitor, guard).SetName("tools.get")
	app.Get(r.Profile, controller.ProfileShow, visitor, guard).SetName("profile.get")
	app.Post(r.Profile, controller.ProfilePost, visitor, guard).SetName("profile.post")

	app.Get(r.Admin, controller.AdminIndex, visitor, guard, admin).SetName("admin.get")
	app.Get(r.AdminDashboard, controller.AdminDashboard, visitor, guard, admin).SetName("admin.dashboard.get")
	app.Get(r.AdminUsers, controller.AdminUsers, visitor, guard, admin).SetName("admin.users.get")
	app.Get(r.AdminCourses, controller.AdminCourses, visitor, guard, admin).SetName("admin.courses.get")
	app.Get(r.AdminTools, controller.AdminTools, visitor, guard, admin).SetName("admin.tools.get")

	app.Get("/*", controller.NotFound, visitor, guard).SetName("not-found.get")

	return controller
}

type PortalControllerRoutes struct {
	Login          string
	Logout         string
	Home           string
	Content        string
	Course         string
	Tools          string
	Profile        string
	Admin          string
	AdminDashboard string
	AdminUsers     string
	AdminCourses   string
	AdminTools     string
}

type PortalControllerViews struct {
	Login          string
	Home           string
	Content        string
	Course         string
	Tools          string
	Profile        string
	AdminDashboard string
	AdminUsers     string
	AdminCourses   string
	AdminTools     string
}

type PortalController struct {
	Debug        bool
	Logger       Logger
	Routes       *PortalControllerRoutes
	Views        *PortalControllerViews
	Middleware   *PortalMiddleware
	ErrorHandler router.ErrorHandler
}

type PortalControllerOption func(*PortalController) *PortalController

// WithControllerDebug dumps sanitized form payloads to the log.
func WithControllerDebug(debug bool) PortalControllerOption {
	return func(c *PortalController) *PortalController {
		c.Debug = debug
		return c
	}
}

// WithControllerLogger sets the controller logger.
func WithControllerLogger(logger Logger) PortalControllerOption {
	return func(c *PortalController) *PortalController {
		_, c.Logger = ResolveLogger("campus.controller", nil, logger)
		return c
	}
}

// WithControllerViews overrides the view names.
func WithControllerViews(views *PortalControllerViews) PortalControllerOption {
	return func(c *PortalController) *PortalController {
		if views != nil {
			c.Views = views
		}
		return c
	}
}

// WithControllerErrorHandler overrides the handler for unexpected errors.
func WithControllerErrorHandler(handler router.ErrorHandler) PortalControllerOption {
	return func(c *PortalController) *PortalController {
		if handler != nil {
			c.ErrorHandler = handler
		}
		return c
	}
}

func NewPortalController(mw *PortalMiddleware, opts ...PortalControllerOption) *PortalController {
	if mw == nil {
		panic("Missing PortalMiddleware in portal controller...")
	}

	policy := mw.Policy()
	_, logger := ResolveLogger("campus.controller", nil, nil)

	c := &PortalController{
		Logger:       logger,
		Middleware:   mw,
		ErrorHandler: defaultErrHandler,
		Routes: &PortalControllerRoutes{
			Login:          policy.LoginPath,
			Logout:         "/logout",
			Home:           policy.MemberHome,
			Content:        "/conteudo",
			Course:         "/curso/:id",
			Tools:          "/ferramentas",
			Profile:        "/perfil",
			Admin:          policy.AdminArea,
			AdminDashboard: policy.AdminHome,
			AdminUsers:     policy.AdminArea + "/users",
			AdminCourses:   policy.AdminArea + "/courses",
			AdminTools:     policy.AdminArea + "/tools",
		},
		Views: &PortalControllerViews{
			Login:          "login",
			Home:           "home",
			Content:        "content",
			Course:         "course",
			Tools:          "tools",
			Profile:        "profile",
			AdminDashboard: "admin/dashboard",
			AdminUsers:     "admin/users",
			AdminCourses:   "admin/courses",
			AdminTools:     "admin/tools",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	return c
}

func (a *PortalController) LoginShow(ctx router.Context) error {
	mode := modeSignIn
	if ctx.Query("mode", "") == modeSignUp {
		mode = modeSignUp
	}
	return a.render(ctx, a.Views.Login, "", router.ViewContext{
		"mode":   mode,
		"errors": map[string]string{},
		"record": LoginRequest{Mode: mode},
	})
}

// LoginRequest is the combined sign in and sign up form.
type LoginRequest struct {
	Mode     string `form:"mode" json:"mode"`
	FullName string `form:"full_name" json:"full_name"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Mode, validation.In(modeSignIn, modeSignUp)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (r LoginRequest) sanitized() LoginRequest {
	r.Password = ""
	return r
}

func (a *PortalController) LoginPost(ctx router.Context) error {
	store, err := a.store(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(LoginRequest)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Login, a.viewData(ctx, "", router.ViewContext{
			"mode":   modeSignIn,
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload.sanitized(),
		}))
	}

	payload.Email = strings.TrimSpace(payload.Email)
	payload.FullName = strings.TrimSpace(payload.FullName)
	if payload.Mode == "" {
		payload.Mode = modeSignIn
	}

	if a.Debug {
		a.Logger.Debug("login payload", "payload", print.MaybePrettyJSON(payload.sanitized()))
	}

	if payload.Mode == modeSignUp && payload.FullName == "" {
		store.Notify(ctx.Context(), RequiredFieldNotice("Por favor, insira seu nome completo."))
		return ctx.Status(fiber.StatusBadRequest).Render(a.Views.Login, a.viewData(ctx, "", router.ViewContext{
			"mode":   modeSignUp,
			"errors": map[string]string{"full_name": "required"},
			"record": payload.sanitized(),
		}))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Info("login validate payload", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Login, a.viewData(ctx, "", router.ViewContext{
			"mode":       payload.Mode,
			"record":     payload.sanitized(),
			"validation": FormatValidationErrorToMap(err),
		}))
	}

	if payload.Mode == modeSignUp {
		return a.signUp(ctx, store, payload)
	}

	if err := store.SignIn(ctx.Context(), payload.Email, payload.Password); err != nil {
		return ctx.Status(http.StatusUnauthorized).Render(a.Views.Login, a.viewData(ctx, "", router.ViewContext{
			"mode":   modeSignIn,
			"errors": map[string]string{"authentication": ErrorMessage(err)},
			"record": payload.sanitized(),
		}))
	}

	state := store.State()
	decision := a.Middleware.Policy().Evaluate(state, a.Routes.Login)
	redirect := decision.Location
	if decision.Action != ActionRedirect {
		redirect = a.Routes.Home
	}
	redirect = a.Middleware.ReturnPath(ctx, redirect)

	a.Logger.Debug("redirecting after sign in", "location", redirect)

	return ctx.Redirect(redirect, http.StatusSeeOther)
}

func (a *PortalController) signUp(ctx router.Context, store *SessionStore, payload *LoginRequest) error {
	metadata := map[string]any{"full_name": payload.FullName}
	if err := store.SignUp(ctx.Context(), payload.Email, payload.Password, metadata); err != nil {
		return ctx.Status(http.StatusBadRequest).Render(a.Views.Login, a.viewData(ctx, "", router.ViewContext{
			"mode":   modeSignUp,
			"errors": map[string]string{"registration": ErrorMessage(err)},
			"record": payload.sanitized(),
		}))
	}
	return ctx.Redirect(a.Routes.Login, http.StatusSeeOther)
}

func (a *PortalController) LogOut(ctx router.Context) error {
	store, err := a.store(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}
	if err := store.SignOut(ctx.Context()); err != nil {
		a.Logger.Warn("sign out failed", "error", err)
		return ctx.Redirect(a.Routes.Home, http.StatusSeeOther)
	}
	return ctx.Redirect(a.Routes.Login, http.StatusSeeOther)
}

func (a *PortalController) Home(ctx router.Context) error {
	return a.render(ctx, a.Views.Home, ShellMember, nil)
}

func (a *PortalController) Content(ctx router.Context) error {
	return a.render(ctx, a.Views.Content, ShellMember, nil)
}

func (a *PortalController) Course(ctx router.Context) error {
	return a.render(ctx, a.Views.Course, ShellMember, router.ViewContext{
		"course_id": ctx.Param("id"),
	})
}

func (a *PortalController) Tools(ctx router.Context) error {
	return a.render(ctx, a.Views.Tools, ShellMember, nil)
}

func (a *PortalController) ProfileShow(ctx router.Context) error {
	state := StateFromRouter(ctx)
	return a.render(ctx, a.Views.Profile, ShellMember, router.ViewContext{
		"errors": map[string]string{},
		"record": ProfileRequestFrom(state.Profile),
	})
}

// ProfileRequest is the profile edit form.
type ProfileRequest struct {
	Name            string `form:"name" json:"name"`
	Email           string `form:"email" json:"email"`
	NewPassword     string `form:"new_password" json:"new_password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// ProfileRequestFrom prefills the form from p.
func ProfileRequestFrom(p *Profile) ProfileRequest {
	if p == nil {
		return ProfileRequest{}
	}
	return ProfileRequest{Name: p.Name, Email: p.Email}
}

// Validate will validate the payload
func (r ProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 100), is.Email),
		validation.Field(&r.NewPassword, validation.Length(6, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.By(ValidateStringEquals(r.NewPassword)),
		),
	)
}

// PasswordsMatch reports whether the confirmation equals the new password.
func (r ProfileRequest) PasswordsMatch() bool {
	return r.NewPassword == r.ConfirmPassword
}

// Update builds the change set against current, leaving unchanged fields nil.
func (r ProfileRequest) Update(current *Profile) ProfileUpdate {
	var update ProfileUpdate
	name := strings.TrimSpace(r.Name)
	email := strings.TrimSpace(r.Email)
	if current == nil || name != current.Name {
		update.Name = StringPtr(name)
	}
	if current == nil || email != current.Email {
		update.Email = StringPtr(email)
	}
	if r.NewPassword != "" {
		update.Password = StringPtr(r.NewPassword)
	}
	return update
}

func (r ProfileRequest) sanitized() ProfileRequest {
	r.NewPassword = ""
	r.ConfirmPassword = ""
	return r
}

func (a *PortalController) ProfilePost(ctx router.Context) error {
	store, err := a.store(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(ProfileRequest)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("profile parse payload", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if a.Debug {
		a.Logger.Debug("profile payload", "payload", print.MaybePrettyJSON(payload.sanitized()))
	}

	if !payload.PasswordsMatch() {
		store.Notify(ctx.Context(), failure("Erro", "As senhas não coincidem"))
		return ctx.Status(fiber.StatusBadRequest).Render(a.Views.Profile, a.viewData(ctx, ShellMember, router.ViewContext{
			"errors": map[string]string{"confirm_password": "As senhas não coincidem"},
			"record": payload.sanitized(),
		}))
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Profile, a.viewData(ctx, ShellMember, router.ViewContext{
			"record":     payload.sanitized(),
			"validation": FormatValidationErrorToMap(err),
		}))
	}

	update := payload.Update(store.Profile())
	if update.IsEmpty() {
		return ctx.Redirect(a.Routes.Profile, http.StatusSeeOther)
	}

	if err := store.UpdateProfile(ctx.Context(), update); err != nil {
		return ctx.Status(fiber.StatusBadRequest).Render(a.Views.Profile, a.viewData(ctx, ShellMember, router.ViewContext{
			"errors": map[string]string{"profile": ErrorMessage(err)},
			"record": payload.sanitized(),
		}))
	}

	return ctx.Redirect(a.Routes.Profile, http.StatusSeeOther)
}

// AdminIndex sends the bare admin entry to the dashboard.
func (a *PortalController) AdminIndex(ctx router.Context) error {
	return ctx.Redirect(a.Routes.AdminDashboard, redirectStatus(ctx))
}

func (a *PortalController) AdminDashboard(ctx router.Context) error {
	return a.render(ctx, a.Views.AdminDashboard, ShellAdmin, nil)
}

func (a *PortalController) AdminUsers(ctx router.Context) error {
	return a.render(ctx, a.Views.AdminUsers, ShellAdmin, nil)
}

func (a *PortalController) AdminCourses(ctx router.Context) error {
	return a.render(ctx, a.Views.AdminCourses, ShellAdmin, nil)
}

func (a *PortalController) AdminTools(ctx router.Context) error {
	return a.render(ctx, a.Views.AdminTools, ShellAdmin, nil)
}

// NotFound sends unknown paths to the member home.
func (a *PortalController) NotFound(ctx router.Context) error {
	return ctx.Redirect(a.Routes.Home, redirectStatus(ctx))
}

func (a *PortalController) store(ctx router.Context) (*SessionStore, error) {
	store, ok := StoreFromRouter(ctx)
	if !ok {
		return nil, ErrBackendUnavailable.Clone()
	}
	return store, nil
}

func (a *PortalController) render(ctx router.Context, view string, kind ShellKind, data router.ViewContext) error {
	return ctx.Render(view, a.viewData(ctx, kind, data))
}

func (a *PortalController) viewData(ctx router.Context, kind ShellKind, data router.ViewContext) router.ViewContext {
	state := StateFromRouter(ctx)
	path := ctx.Path()

	var shell Shell
	switch kind {
	case ShellAdmin:
		shell = AdminShell(state, path)
	case ShellMember:
		shell = MemberShell(state, path)
	}

	var notices []Notification
	if store, ok := StoreFromRouter(ctx); ok {
		notices = store.Notifications()
	}

	return MergeTemplateData(state, shell, notices, data)
}

// FormatValidationErrorToMap flattens ozzo validation errors into a field to
// message map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}
	out["form"] = err.Error()
	return out
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": ErrorMessage(err),
	})
}
