package main

import (
	"context"
	"embed"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-campus"
	"github.com/goliatone/go-campus/activitymap"
	"github.com/goliatone/go-campus/config"
	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// Templates and assets are embedded so the binary runs from anywhere; a disk
// copy takes precedence during development.
//
//go:embed public views
var embeddedFS embed.FS

type App struct {
	config   *gconfig.Container[*config.BaseConfig]
	logger   *glog.BaseLogger
	srv      router.Server[*fiber.App]
	registry *campus.Registry
	backends *backends
}

func (a *App) Config() *config.BaseConfig {
	return a.config.Raw()
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

// Provider hands out named children of the root logger.
func (a *App) Provider() campus.LoggerProvider {
	return campus.ProviderFromRoot(a.logger)
}

func (a *App) SetHTTPServer(srv router.Server[*fiber.App]) {
	a.srv = srv
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Debug),
		glog.WithName("campus"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	// validation runs after the environment overrides are applied
	cfg, err := gconfig.New(config.Defaults(),
		gconfig.WithValidation[*config.BaseConfig](false),
	)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cfg.Load(ctx); err != nil {
		panic(err)
	}

	cfg.Raw().ApplyEnv(os.LookupEnv)
	if err := cfg.Raw().Validate(); err != nil {
		panic(err)
	}

	fmt.Println("============")
	fmt.Println(print.MaybePrettyJSON(cfg.Raw().Redacted()))
	fmt.Println("============")

	lgr.GetLogger("config").Debug("configuration loaded", "backend_mode", cfg.Raw().Backend.Mode)

	app := &App{
		config: cfg,
		logger: lgr,
	}

	if err := WithBackends(ctx, app); err != nil {
		panic(err)
	}
	defer app.backends.Close()

	if err := WithRegistry(ctx, app); err != nil {
		panic(err)
	}
	defer app.registry.Close()

	if err := WithHTTPServer(ctx, app); err != nil {
		panic(err)
	}

	PortalRoutes(app)

	app.srv.Serve(app.Config().GetServer().Address)

	sig := WaitExitSignal()
	app.GetLogger("app").Info("shutting down", "signal", sig.String())
}

// WithRegistry creates the per visitor store registry and its sweeper.
func WithRegistry(ctx context.Context, app *App) error {
	server := app.Config().GetServer()

	fixtures, err := loadFixtures(app.Config().GetFixtures())
	if err != nil {
		return err
	}

	app.registry = campus.NewRegistry(
		app.backends.StoreFactory(fixtures),
		campus.WithIdleTTL(server.GetIdleTTL()),
		campus.WithRegistryLoggerProvider(app.Provider()),
	)

	go app.registry.Run(ctx, server.GetSweepInterval())
	return nil
}

func loadFixtures(cfg config.Fixtures) ([]campus.Fixture, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Path == "" {
		return campus.DefaultFixtures(), nil
	}
	return campus.LoadFixturesFile(cfg.Path)
}

func PortalRoutes(app *App) {
	server := app.Config().GetServer()

	mw := campus.NewPortalMiddleware(app.registry, campus.HTTPConfig{
		VisitorCookie:  server.VisitorCookie,
		ReturnCookie:   server.ReturnCookie,
		CookieDuration: server.GetVisitorTTL(),
		SecureCookies:  server.SecureCookies,
		LoadingRefresh: server.LoadingRefresh,
	}).WithLoggerProvider(app.Provider()).
		WithActivitySink(activityLogger(app.GetLogger("activity")))

	campus.RegisterPortalRoutes(app.srv.Router(), mw,
		campus.WithControllerDebug(app.Config().Debug),
		campus.WithControllerLogger(app.GetLogger("campus.controller")),
	)
}

func activityLogger(logger glog.Logger) campus.ActivitySink {
	return campus.ActivitySinkFunc(func(_ context.Context, event campus.ActivityEvent) error {
		record := activitymap.Normalize(event)
		logger.Info("activity",
			"verb", record.Verb,
			"actor_id", record.ActorID,
			"object_type", record.ObjectType,
			"object_id", record.ObjectID,
			"at", record.OccurredAt.Format(time.RFC3339),
		)
		return nil
	})
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
