package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mihastele/social-space-harry/internal/auth"
	"github.com/mihastele/social-space-harry/internal/config"
	"github.com/mihastele/social-space-harry/internal/handler"
	"github.com/mihastele/social-space-harry/internal/hub"
	"github.com/mihastele/social-space-harry/internal/presence"
	"github.com/mihastele/social-space-harry/internal/service"
	"github.com/mihastele/social-space-harry/internal/store"
	"github.com/mihastele/social-space-harry/pkg/database"
	"github.com/mihastele/social-space-harry/pkg/jwt"
	pkglog "github.com/mihastele/social-space-harry/pkg/log"
	"github.com/mihastele/social-space-harry/pkg/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	logger := pkglog.Init(cfg.Log)

	if cfg.Auth.UsingDefaultSecret() {
		logger.Warn().Msg("JWT_SECRET not set, using the development secret")
	}

	// Initialize database
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db, store.Models()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database connected")

	messageStore := store.NewGormStore(db)

	// Initialize identity verifier
	jwtManager, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create JWT manager")
	}
	verifier := auth.NewJWTVerifier(jwtManager)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize presence mirror
	var notifier presence.Notifier = presence.Nop{}
	var mirror presence.Mirror
	if cfg.Redis.Enabled {
		redisMirror, err := presence.NewRedisMirror(cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		mirror = redisMirror
		if err := mirror.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start presence mirror")
		}
		defer mirror.Close()
		notifier = mirror
		logger.Info().Str("address", cfg.Redis.Address).Msg("presence mirror started")
	}

	// Initialize hub and relay service
	wsHub := hub.NewHub(notifier)
	relaySvc := service.NewRelayService(verifier, messageStore, wsHub)

	// Setup Gin router
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	handler.NewWSHandler(ctx, relaySvc, cfg.WebSocket).RegisterRoutes(r)
	httpHandler := handler.NewHTTPHandler(messageStore, messageStore, wsHub, middleware.NewAuthMiddleware(verifier))
	if mirror != nil {
		httpHandler.WithPresenceFallback(mirror)
	}
	httpHandler.RegisterRoutes(r)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("chat relay listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat relay")

	// Hijacked WebSocket connections are not tracked by Shutdown; cancelling
	// ctx closes them.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("chat relay stopped")
}
