package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/ironsheep/snaptext/internal/browser"
	"github.com/ironsheep/snaptext/internal/capture"
	"github.com/ironsheep/snaptext/internal/config"
	"github.com/ironsheep/snaptext/internal/coordinator"
	"github.com/ironsheep/snaptext/internal/notify"
	"github.com/ironsheep/snaptext/internal/store"
)

// env is everything a command needs, opened from the global flags.
type env struct {
	cfg     *config.Config
	dataDir string
	logger  *slog.Logger
	store   *store.Store
	coord   *coordinator.Coordinator
	bridge  *notify.RedisBridge
	closers []func() error
}

// needs selects the optional parts of an env.
type needs struct {
	page   bool
	bridge bool

	// pageURL overrides the configured page_url.
	pageURL string
}

func openEnv(c *cli.Context, n needs) (*env, error) {
	if err := config.LoadDotEnv(c.String("env-file")); err != nil {
		return nil, err
	}

	dataDir := c.String("data-dir")
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}
	cfg, err := config.Load(dataDir, c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if n.pageURL != "" {
		cfg.PageURL = n.pageURL
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	// stdout carries the protocol and command output; logs go to stderr.
	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level}))

	backend, err := store.OpenSQLite(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	e := &env{
		cfg:     cfg,
		dataDir: dataDir,
		logger:  logger,
		store:   store.New(backend, store.Options{Capacity: cfg.MaxRecords, Logger: logger}),
	}
	e.closers = append(e.closers, e.store.Close)

	opts := coordinator.Options{Store: e.store, Logger: logger}
	if n.page {
		if page := e.openPage(c.Context); page != nil {
			opts.Page = page
		}
	}
	if n.bridge && cfg.RedisURL != "" {
		bridge, err := notify.NewRedisBridge(c.Context, cfg.RedisURL, cfg.RedisChannel, logger)
		if err != nil {
			logger.Warn("redis bridge disabled", "error", err)
		} else {
			e.bridge = bridge
			e.closers = append(e.closers, bridge.Close)
			opts.Announcer = bridge
		}
	}
	e.coord = coordinator.New(opts)
	return e, nil
}

// pageCloser is a capture source holding external resources.
type pageCloser interface {
	capture.Page
	Close() error
}

// openPage connects the configured capture source. Failures degrade to no
// page: captures then fall back to the placeholder tier.
func (e *env) openPage(ctx context.Context) capture.Page {
	var (
		page pageCloser
		err  error
	)
	switch e.cfg.CaptureSource {
	case config.SourceNone:
		return nil
	case config.SourceScreen:
		page = browser.NewScreenPage(e.cfg.ScreenScale)
	default:
		page, err = browser.Connect(ctx, browser.Options{
			ControlURL: e.cfg.BrowserURL,
			PageURL:    e.cfg.PageURL,
			Logger:     e.logger,
		})
	}
	if err != nil {
		e.logger.Warn("capture source unavailable", "source", e.cfg.CaptureSource, "error", err)
		return nil
	}
	e.closers = append(e.closers, page.Close)
	e.logger.Debug("capture source ready", "source", e.cfg.CaptureSource)
	return page
}

// Close releases resources in reverse order of acquisition.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Warn("close failed", "error", err)
		}
	}
	e.closers = nil
}

// startBackground runs the store watcher and the redis listener until ctx
// ends.
func (e *env) startBackground(ctx context.Context) {
	if iv := e.cfg.WatchInterval(); iv > 0 {
		go e.coord.Watch(ctx, iv)
	}
	if e.bridge != nil {
		go func() {
			err := e.bridge.Listen(ctx, func(version int64) {
				if err := e.coord.Refresh(ctx); err != nil {
					e.logger.Warn("refresh after remote change failed", "version", version, "error", err)
				}
			})
			if err != nil && ctx.Err() == nil {
				e.logger.Warn("redis listener stopped", "error", err)
			}
		}()
	}
}
