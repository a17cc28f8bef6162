package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/api"
	"github.com/yourname/focustracker/internal/auth"
	"github.com/yourname/focustracker/internal/config"
	"github.com/yourname/focustracker/internal/notify"
	"github.com/yourname/focustracker/internal/service"
	"github.com/yourname/focustracker/internal/storage"
)

type appContext struct {
	logger   internal.Logger
	repos    *storage.Repositories
	metrics  *service.MetricsService
	tools    *service.ToolTracker
	notifier *notify.Notifier
}

func (a *appContext) Logger() internal.Logger                  { return a.logger }
func (a *appContext) SessionRepo() storage.SessionRepository   { return a.repos.Sessions }
func (a *appContext) Metrics() *service.MetricsService         { return a.metrics }
func (a *appContext) Tools() *service.ToolTracker              { return a.tools }
func (a *appContext) AchievementFeed() storage.AchievementFeed { return a.repos.Achievements }
func (a *appContext) Notifier() *notify.Notifier               { return a.notifier }

func main() {
	cfg := config.Load()

	zapLogger, err := buildZap(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zapLogger.Sync()
	logger := internal.NewZapLogger(zapLogger.Sugar())

	var repos *storage.Repositories
	var closeStore func()
	switch cfg.DBType {
	case "postgres":
		r, store, err := storage.NewPostgresRepositories(cfg.DBDSN, logger)
		if err != nil {
			logger.Fatalf("failed to init postgres storage: %v", err)
		}
		repos, closeStore = r, store.Close
	default:
		if err := os.MkdirAll("data", 0755); err != nil {
			logger.Fatalf("failed to create data dir: %v", err)
		}
		r, store, err := storage.NewFileRepositories(cfg.FileSessions, cfg.FileMetrics, cfg.FileToolUse, logger)
		if err != nil {
			logger.Fatalf("failed to init file storage: %v", err)
		}
		repos, closeStore = r, func() {
			if err := store.Close(); err != nil {
				logger.Errorf("failed to close storage: %v", err)
			}
		}
	}

	app := &appContext{
		logger:   logger,
		repos:    repos,
		metrics:  service.NewMetricsService(repos.Metrics, logger),
		tools:    service.NewToolTracker(repos.ToolUsage, logger),
		notifier: notify.NewNotifier(repos.Achievements, &notify.LogSink{Logger: logger}, logger),
	}

	var provider auth.Provider
	if cfg.Env == "development" {
		provider = auth.NewLocalAuthProvider("MOCK-TOKEN", logger)
	} else {
		provider = auth.NewJWTAuthProvider(cfg.JWTSecret, logger)
	}

	r := gin.Default()
	r.Use(api.RequestIDMiddleware())
	api.RegisterRoutes(r, app, auth.AuthMiddleware(provider))

	go func() {
		logger.Infof("server running on %s", cfg.ListenAddr)
		if err := r.Run(cfg.ListenAddr); err != nil {
			logger.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Detach before closing the store so the listener is released first.
	app.notifier.Detach()
	closeStore()
}

func buildZap(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
