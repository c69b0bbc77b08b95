package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-campus"
	"github.com/goliatone/go-campus/config"
	cfs "github.com/goliatone/go-composite-fs"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// layeredFS scopes the embedded tree to dir and puts the disk copy of dir
// in front of it. A missing disk directory only yields the embedded files.
func layeredFS(dir string) (fs.FS, error) {
	dir = filepath.ToSlash(filepath.Clean(strings.TrimSpace(dir)))
	dir = strings.Trim(strings.TrimPrefix(dir, "./"), "/")
	if dir == "" || dir == "." {
		return nil, fmt.Errorf("empty directory")
	}

	embedded, err := fs.Sub(embeddedFS, dir)
	if err != nil {
		return nil, fmt.Errorf("unable to scope embedded files to %q: %w", dir, err)
	}

	diskPath := filepath.Join("cmd", "campus", dir)
	if _, err := os.Stat(dir); err == nil {
		diskPath = dir
	}

	// disk overrides embedded, so it comes first
	return cfs.NewCompositeFS(os.DirFS(diskPath), embedded), nil
}

func newViewEngine(vcfg config.Views) (*django.Engine, error) {
	templatesFS, err := layeredFS(vcfg.Dir)
	if err != nil {
		return nil, err
	}

	engine := django.NewFileSystem(http.FS(templatesFS), vcfg.Extension)
	engine.Reload(vcfg.Reload)
	engine.AddFuncMap(campus.TemplateHelpers())

	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("unable to load templates: %w", err)
	}
	return engine, nil
}

func WithHTTPServer(_ context.Context, app *App) error {
	vcfg := app.Config().GetViews()

	engine, err := newViewEngine(vcfg)
	if err != nil {
		return err
	}

	assetFS, err := layeredFS(vcfg.AssetsDir)
	if err != nil {
		return err
	}

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			EnablePrintRoutes: app.Config().Debug,
			StrictRouting:     false,
			PassLocalsToViews: true,
			Views:             engine,
		}))
	})

	srv.Router().Use(flash.ToMiddleware(flash.DefaultFlash, "flash"))

	srv.Router().Static("/static", ".", router.Static{
		FS:   assetFS,
		Root: ".",
	})

	app.SetHTTPServer(srv)

	return nil
}
