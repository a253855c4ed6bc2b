package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"jan-server/services/envchat-api/internal/config"
	"jan-server/services/envchat-api/internal/infrastructure/crontab"
	"jan-server/services/envchat-api/internal/infrastructure/logger"
	"jan-server/services/envchat-api/internal/infrastructure/mongostore"
	"jan-server/services/envchat-api/internal/infrastructure/observability"
	"jan-server/services/envchat-api/internal/interfaces/httpserver"
)

type Application struct {
	httpServer         *httpserver.HTTPServer
	crontab            *crontab.Crontab
	historyInitializer *mongostore.Initializer
	config             *config.Config
}

func init() {
	logger.GetLogger()
	if _, err := config.Load(); err != nil {
		log := logger.GetLogger()
		log.Fatal().Err(err).Msg("load config")
	}
}

// Start runs the HTTP server, the history initializer, the crontab and the
// diagnostics listener until one of them fails or the process is signalled.
func (application *Application) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return application.serveDiagnostics(ctx)
	})
	eg.Go(func() error {
		return application.historyInitializer.Run(ctx)
	})
	eg.Go(func() error {
		return application.crontab.Run(ctx)
	})
	eg.Go(func() error {
		return application.httpServer.Run(ctx)
	})
	return eg.Wait()
}

// serveDiagnostics exposes metrics and pprof on the metrics port.
func (application *Application) serveDiagnostics(ctx context.Context) error {
	http.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", application.config.MetricsPort),
		Handler:           http.DefaultServeMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	ctx := context.Background()
	log := logger.GetLogger()

	cfg := config.GetGlobal()
	if cfg == nil {
		log.Fatal().Msg("config not loaded")
	}

	otelShutdown, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("initialize observability")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelShutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("shutdown telemetry")
			}
		}()
	}

	dataInitializer, cleanupData, err := CreateDataInitializer()
	if err != nil {
		log.Fatal().Err(err).Msg("create data initializer")
	}
	err = dataInitializer.Install(ctx)
	cleanupData()
	if err != nil {
		log.Fatal().Err(err).Msg("install data")
	}

	application, cleanup, err := CreateApplication()
	if err != nil {
		log.Fatal().Err(err).Msg("create application")
	}
	defer cleanup()

	if err := application.Start(ctx); err != nil {
		log.Error().Err(err).Msg("application stopped")
	}
}
