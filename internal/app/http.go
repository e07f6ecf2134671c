package app

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"huddle/pkg/api"
	"huddle/pkg/auth"
	"huddle/pkg/banner"
	"huddle/pkg/logger"
)

const docsPath = "./docs/openapi.yaml"

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	banner.Print(a.opts.Addr, a.opts.DBPath, a.opts.Sources, a.opts.Version, a.opts.Config.Channels)
}

// secConfig builds the gateway security settings from the effective
// config.
func (a *App) secConfig() auth.SecConfig {
	cfg := a.opts.Config
	sec := auth.SecConfig{
		RPS:          cfg.Security.RateLimit.RPS,
		Burst:        cfg.Security.RateLimit.Burst,
		BackendKeys:  map[string]struct{}{},
		FrontendKeys: map[string]struct{}{},
		AdminKeys:    map[string]struct{}{},
	}
	sec.AllowedOrigins = append(sec.AllowedOrigins, cfg.Security.CORS.AllowedOrigins...)
	sec.IPWhitelist = append(sec.IPWhitelist, cfg.Security.IPWhitelist...)
	for _, k := range cfg.Security.APIKeys.Backend {
		sec.BackendKeys[k] = struct{}{}
	}
	for _, k := range cfg.Security.APIKeys.Frontend {
		sec.FrontendKeys[k] = struct{}{}
	}
	for _, k := range cfg.Security.APIKeys.Admin {
		sec.AdminKeys[k] = struct{}{}
	}
	return sec
}

// startHTTP starts the HTTP server and returns a channel delivering the
// fatal serve error, if any. On ctx cancellation the server drains
// in-flight requests before returning.
func (a *App) startHTTP(ctx context.Context) <-chan error {
	handler := api.Handler(a.svc, a.hub, a.secConfig(), docsPath)

	a.srv = &http.Server{
		Addr:              a.opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		cfg := a.opts.Config
		var err error
		if cfg.Server.TLS.CertFile != "" && cfg.Server.TLS.KeyFile != "" {
			err = a.srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = a.srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	go func() {
		<-ctx.Done()
		shctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(shctx); err != nil {
			logger.Warn("http_shutdown_incomplete", zap.Error(err))
		}
	}()

	logger.Info("http_listening", zap.String("addr", a.opts.Addr))
	return errCh
}
