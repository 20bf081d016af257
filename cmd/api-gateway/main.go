package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-exam-engine/api/swagger"
	"github.com/noah-isme/sma-exam-engine/internal/bootstrap"
	"github.com/noah-isme/sma-exam-engine/internal/middleware"
	"github.com/noah-isme/sma-exam-engine/pkg/config"
	"github.com/noah-isme/sma-exam-engine/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-exam-engine/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-exam-engine/pkg/middleware/requestid"
)

// @title SMA Exam Engine API
// @version 1.0.0
// @description Examinations, results, ranking, report cards and online attempts.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to build services", zap.Error(err))
	}
	defer app.Close()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(app.Metrics, "/health", "/ready"))

	registerRoutes(r, app)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	go every(ctx, cfg.Attempts.SweepInterval, func(ctx context.Context) {
		summary, err := app.Attempts.Sweep(ctx)
		if err != nil {
			logr.Warn("attempt sweep failed", zap.Error(err))
			return
		}
		if summary.TimedOut+summary.Finalized+summary.Failed > 0 {
			logr.Info("attempt sweep",
				zap.Int("timed_out", summary.TimedOut),
				zap.Int("finalized", summary.Finalized),
				zap.Int("failed", summary.Failed))
		}
	})
	go every(ctx, time.Hour, func(context.Context) {
		removed, err := app.Exports.Cleanup(cfg.Exports.SignedURLTTL)
		if err != nil {
			logr.Warn("export cleanup failed", zap.Error(err))
			return
		}
		if len(removed) > 0 {
			logr.Info("expired exports removed", zap.Int("count", len(removed)))
		}
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

// every runs fn on a fixed interval until ctx is cancelled. A non-positive interval disables it.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
