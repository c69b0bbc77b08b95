package config

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
)

const (
	BackendModeRemote = "remote"
	BackendModeLocal  = "local"

	StorageMemory = "memory"
	StorageRedis  = "redis"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Environment variables that select the backend endpoint and key. The
// CAMPUS_ names win over the SUPABASE_ ones.
var (
	EnvBackendURL     = []string{"CAMPUS_BACKEND_URL", "SUPABASE_URL"}
	EnvBackendAnonKey = []string{"CAMPUS_BACKEND_ANON_KEY", "SUPABASE_ANON_KEY"}
)

type BaseConfig struct {
	Name     string   `koanf:"name" json:"name"`
	Debug    bool     `koanf:"debug" json:"debug"`
	Server   Server   `koanf:"server" json:"server"`
	Backend  Backend  `koanf:"backend" json:"backend"`
	Storage  Storage  `koanf:"storage" json:"storage"`
	Local    Local    `koanf:"local" json:"local"`
	Fixtures Fixtures `koanf:"fixtures" json:"fixtures"`
	Views    Views    `koanf:"views" json:"views"`
}

type Server struct {
	Address                 string `koanf:"address" json:"address"`
	VisitorCookie           string `koanf:"visitor_cookie" json:"visitor_cookie"`
	ReturnCookie            string `koanf:"return_cookie" json:"return_cookie"`
	SecureCookies           bool   `koanf:"secure_cookies" json:"secure_cookies"`
	VisitorTTLExpression    string `koanf:"visitor_ttl" json:"visitor_ttl"`
	IdleTTLExpression       string `koanf:"idle_ttl" json:"idle_ttl"`
	SweepIntervalExpression string `koanf:"sweep_interval" json:"sweep_interval"`
	LoadingRefresh          int    `koanf:"loading_refresh" json:"loading_refresh"`
}

type Backend struct {
	Mode                     string `koanf:"mode" json:"mode"`
	URL                      string `koanf:"url" json:"url"`
	AnonKey                  string `koanf:"anon_key" json:"anon_key"`
	JWKSURL                  string `koanf:"jwks_url" json:"jwks_url"`
	RequestTimeoutExpression string `koanf:"request_timeout" json:"request_timeout"`
	AutoRefresh              bool   `koanf:"auto_refresh" json:"auto_refresh"`
	RefreshMarginExpression  string `koanf:"refresh_margin" json:"refresh_margin"`
}

type Storage struct {
	Driver        string `koanf:"driver" json:"driver"`
	RedisAddr     string `koanf:"redis_addr" json:"redis_addr"`
	RedisPassword string `koanf:"redis_password" json:"redis_password"`
	RedisDB       int    `koanf:"redis_db" json:"redis_db"`
	Prefix        string `koanf:"prefix" json:"prefix"`
	TTLExpression string `koanf:"ttl" json:"ttl"`
}

type Local struct {
	Driver               string `koanf:"driver" json:"driver"`
	DSN                  string `koanf:"dsn" json:"dsn"`
	SigningKey           string `koanf:"signing_key" json:"signing_key"`
	AccessTTLExpression  string `koanf:"access_ttl" json:"access_ttl"`
	RefreshTTLExpression string `koanf:"refresh_ttl" json:"refresh_ttl"`
	AutoConfirm          bool   `koanf:"auto_confirm" json:"auto_confirm"`
	AdminEmail           string `koanf:"admin_email" json:"admin_email"`
	AdminPassword        string `koanf:"admin_password" json:"admin_password"`
	AdminName            string `koanf:"admin_name" json:"admin_name"`
}

type Fixtures struct {
	Enabled bool   `koanf:"enabled" json:"enabled"`
	Path    string `koanf:"path" json:"path"`
}

type Views struct {
	Dir       string `koanf:"dir" json:"dir"`
	Extension string `koanf:"extension" json:"extension"`
	Reload    bool   `koanf:"reload" json:"reload"`
	AssetsDir string `koanf:"assets_dir" json:"assets_dir"`
}

// Defaults returns the configuration used when app.json omits a value.
func Defaults() *BaseConfig {
	return &BaseConfig{
		Name: "campus",
		Server: Server{
			Address:                 ":8572",
			VisitorCookie:           "campus_visitor",
			ReturnCookie:            "campus_return_to",
			VisitorTTLExpression:    "720h",
			IdleTTLExpression:       "2h",
			SweepIntervalExpression: "5m",
			LoadingRefresh:          1,
		},
		Backend: Backend{
			Mode:                     BackendModeRemote,
			RequestTimeoutExpression: "10s",
			AutoRefresh:              true,
			RefreshMarginExpression:  "1m",
		},
		Storage: Storage{
			Driver:        StorageMemory,
			Prefix:        "campus:session:",
			TTLExpression: "168h",
		},
		Local: Local{
			Driver:               DriverSQLite,
			DSN:                  "file:campus.db?cache=shared",
			AccessTTLExpression:  "1h",
			RefreshTTLExpression: "720h",
			AutoConfirm:          true,
			AdminName:            "Administrador",
		},
		Fixtures: Fixtures{
			Enabled: true,
		},
		Views: Views{
			Dir:       "views",
			Extension: ".html",
			AssetsDir: "public",
		},
	}
}

// Validate will run validation rules
func (c BaseConfig) Validate() error {
	fields := []*validation.FieldRules{
		validation.Field(&c.Server),
		validation.Field(&c.Backend),
		validation.Field(&c.Storage),
		validation.Field(&c.Views),
	}
	// the local section only matters when it backs the portal
	if c.Backend.Mode == BackendModeLocal {
		fields = append(fields, validation.Field(&c.Local))
	}

	if err := validation.ValidateStruct(&c, fields...); err != nil {
		return goerrors.FromOzzoValidation(err, "invalid configuration")
	}
	return nil
}

func (s Server) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Address, validation.Required),
		validation.Field(&s.VisitorCookie, validation.Required),
		validation.Field(&s.VisitorTTLExpression, validation.By(duration)),
		validation.Field(&s.IdleTTLExpression, validation.By(duration)),
		validation.Field(&s.SweepIntervalExpression, validation.By(duration)),
	)
}

func (b Backend) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Mode, validation.Required, validation.In(BackendModeRemote, BackendModeLocal)),
		validation.Field(&b.URL, is.URL),
		validation.Field(&b.JWKSURL, is.URL),
		validation.Field(&b.RequestTimeoutExpression, validation.By(duration)),
		validation.Field(&b.RefreshMarginExpression, validation.By(duration)),
	)
}

func (s Storage) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Driver, validation.Required, validation.In(StorageMemory, StorageRedis)),
		validation.Field(&s.RedisAddr, validation.By(requiredIf(s.Driver == StorageRedis))),
		validation.Field(&s.TTLExpression, validation.By(duration)),
	)
}

func (l Local) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&l.DSN, validation.Required),
		validation.Field(&l.SigningKey, validation.Required, validation.Length(16, 0)),
		validation.Field(&l.AccessTTLExpression, validation.By(duration)),
		validation.Field(&l.RefreshTTLExpression, validation.By(duration)),
		validation.Field(&l.AdminEmail, is.Email),
		validation.Field(&l.AdminPassword, validation.By(requiredIf(l.AdminEmail != ""))),
	)
}

func (v Views) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.Dir, validation.Required),
		validation.Field(&v.Extension, validation.Required),
	)
}

// ApplyEnv overrides the backend endpoint and key from the environment.
func (c *BaseConfig) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := firstEnv(lookup, EnvBackendURL); ok {
		c.Backend.URL = v
	}
	if v, ok := firstEnv(lookup, EnvBackendAnonKey); ok {
		c.Backend.AnonKey = v
	}
}

func firstEnv(lookup func(string) (string, bool), names []string) (string, bool) {
	for _, name := range names {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func (c BaseConfig) GetServer() Server     { return c.Server }
func (c BaseConfig) GetBackend() Backend   { return c.Backend }
func (c BaseConfig) GetStorage() Storage   { return c.Storage }
func (c BaseConfig) GetLocal() Local       { return c.Local }
func (c BaseConfig) GetFixtures() Fixtures { return c.Fixtures }
func (c BaseConfig) GetViews() Views       { return c.Views }

func (s Server) GetVisitorTTL() time.Duration {
	return parseDuration(s.VisitorTTLExpression, 30*24*time.Hour)
}

func (s Server) GetIdleTTL() time.Duration {
	return parseDuration(s.IdleTTLExpression, 2*time.Hour)
}

func (s Server) GetSweepInterval() time.Duration {
	return parseDuration(s.SweepIntervalExpression, 5*time.Minute)
}

// Configured reports whether the remote endpoint and key are both present.
func (b Backend) Configured() bool {
	return strings.TrimSpace(b.URL) != "" && strings.TrimSpace(b.AnonKey) != ""
}

func (b Backend) GetRequestTimeout() time.Duration {
	return parseDuration(b.RequestTimeoutExpression, 10*time.Second)
}

func (b Backend) GetRefreshMargin() time.Duration {
	return parseDuration(b.RefreshMarginExpression, time.Minute)
}

func (s Storage) GetTTL() time.Duration {
	return parseDuration(s.TTLExpression, 7*24*time.Hour)
}

func (l Local) GetAccessTTL() time.Duration {
	return parseDuration(l.AccessTTLExpression, time.Hour)
}

func (l Local) GetRefreshTTL() time.Duration {
	return parseDuration(l.RefreshTTLExpression, 30*24*time.Hour)
}

func parseDuration(expr string, def time.Duration) time.Duration {
	if strings.TrimSpace(expr) == "" {
		return def
	}
	d, err := time.ParseDuration(expr)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func duration(value any) error {
	expr, _ := value.(string)
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	d, err := time.ParseDuration(expr)
	if err != nil {
		return goerrors.New("must be a duration such as 30s or 2h", goerrors.CategoryValidation)
	}
	if d <= 0 {
		return goerrors.New("must be positive", goerrors.CategoryValidation)
	}
	return nil
}

func requiredIf(cond bool) validation.RuleFunc {
	return func(value any) error {
		if !cond {
			return nil
		}
		s, _ := value.(string)
		if strings.TrimSpace(s) == "" {
			return goerrors.New("cannot be blank", goerrors.CategoryValidation)
		}
		return nil
	}
}

// Redacted returns a copy safe to print, with secrets masked.
func (c BaseConfig) Redacted() BaseConfig {
	c.Backend.AnonKey = mask(c.Backend.AnonKey)
	c.Storage.RedisPassword = mask(c.Storage.RedisPassword)
	c.Local.SigningKey = mask(c.Local.SigningKey)
	c.Local.AdminPassword = mask(c.Local.AdminPassword)
	return c
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
