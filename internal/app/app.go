// Package app wires the conversation core into a running server:
// config, logging, storage, the service layer, scheduled maintenance
// and the HTTP surface.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"huddle/internal/sweeper"
	"huddle/pkg/config"
	"huddle/pkg/logger"
	"huddle/pkg/notify"
	"huddle/pkg/service"
	"huddle/pkg/store"
)

// Options carries the resolved startup parameters.
type Options struct {
	Config  *config.Config
	Addr    string
	DBPath  string
	Sources string
	Version string
}

// App encapsulates the server components and lifecycle.
type App struct {
	opts Options

	hub *notify.Hub
	svc *service.Service

	srv           *http.Server
	cancelSweeper context.CancelFunc
}

// New initializes everything that does not need a running context:
// runtime key sets, the audit sink, the store and the service layer.
// Call Run to start the scheduler and HTTP server.
func New(opts Options) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(opts.Config, opts.DBPath); err != nil {
		return nil, err
	}

	runtimeCfg := &config.RuntimeConfig{BackendKeys: map[string]struct{}{}, SigningKeys: map[string]struct{}{}}
	for _, k := range opts.Config.Security.APIKeys.Backend {
		runtimeCfg.BackendKeys[k] = struct{}{}
		runtimeCfg.SigningKeys[k] = struct{}{}
	}
	config.SetRuntime(runtimeCfg)

	if dir := opts.Config.Storage.AuditDir; dir != "" {
		if err := logger.AttachAuditFileSink(dir); err != nil {
			return nil, fmt.Errorf("failed to attach audit sink at %s: %w", dir, err)
		}
	}

	if err := store.Open(opts.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", opts.DBPath, err)
	}

	hub := notify.NewHub(opts.Config.Events.BufferSize)
	svc := service.New(opts.Config, hub)
	if err := svc.EnsureChannels(); err != nil {
		return nil, fmt.Errorf("failed to create fixed channels: %w", err)
	}

	return &App{opts: opts, hub: hub, svc: svc}, nil
}

// Service exposes the assembled conversation service (used by tests).
func (a *App) Service() *service.Service { return a.svc }

// Run starts the sweeper and HTTP server and blocks until ctx is
// cancelled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	cancelSweeper, err := sweeper.Start(ctx, a.opts.Config, a.svc.Limiter())
	if err != nil {
		return err
	}
	a.cancelSweeper = cancelSweeper

	a.printBanner()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

func (a *App) shutdown() {
	if a.cancelSweeper != nil {
		a.cancelSweeper()
	}
	if err := store.Close(); err != nil {
		logger.Error("store_close_failed", zap.Error(err))
	}
	logger.Sync()
}
