package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"jan-server/services/envchat-api/internal/config"
	"jan-server/services/envchat-api/internal/infrastructure/auth"
	middleware "jan-server/services/envchat-api/internal/interfaces/httpserver/middlewares"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/routes"
	"jan-server/services/envchat-api/internal/utils/readiness"
	"jan-server/services/envchat-api/pkg/telemetry"
)

const shutdownTimeout = 15 * time.Second

type HTTPServer struct {
	engine   *gin.Engine
	apiRoute *routes.APIRoute
	gate     *readiness.Gate
	config   *config.Config
	logger   zerolog.Logger
}

func NewHttpServer(
	apiRoute *routes.APIRoute,
	validator *auth.Validator,
	gate *readiness.Gate,
	sanitizer *telemetry.Sanitizer,
	cfg *config.Config,
	logger zerolog.Logger,
) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	server := HTTPServer{
		engine:   gin.New(),
		apiRoute: apiRoute,
		gate:     gate,
		config:   cfg,
		logger:   logger,
	}
	server.engine.Use(gin.Recovery())
	server.engine.Use(middleware.RequestID())
	server.engine.Use(middleware.TracingMiddleware())
	server.engine.Use(middleware.LoggingMiddleware(logger, sanitizer))
	server.engine.Use(middleware.MetricsMiddleware())
	server.engine.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	server.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	server.engine.GET("/readyz", func(c *gin.Context) {
		if !server.gate.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "initializing"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	server.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	protected := server.engine.Group("/")
	protected.Use(middleware.IdentityMiddleware(validator, cfg, logger))
	server.apiRoute.RegisterRouter(protected)
	return &server
}

// Handler exposes the engine for tests.
func (httpServer *HTTPServer) Handler() http.Handler {
	return httpServer.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (httpServer *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpServer.config.HTTPPort),
		Handler:           httpServer.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		httpServer.logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
