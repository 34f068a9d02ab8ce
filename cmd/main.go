package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"randomchat/backend/internal/api/handler"
	"randomchat/backend/internal/api/middleware"
	"randomchat/backend/internal/chathub"
	"randomchat/backend/internal/config"
	"randomchat/backend/internal/localization"
	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/presence"
	"randomchat/backend/internal/session"
	"randomchat/backend/internal/storage"
	"randomchat/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func setupDependencies(ctx context.Context, cfg *config.Config) (*gorm.DB, *redis.Client) {
	// 1. PostgreSQL
	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
	if err != nil {
		logger.Fatalf("failed to connect PostgreSQL: %v", err)
	}

	// 2. Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Fatalf("failed to connect Redis: %v", err)
	}

	logger.Infof("database and redis connections established")
	return db, rdb
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.IsProduction())
	defer logger.Sync()
	logger.Infof("starting randomchat backend (%s)", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Ініціалізація залежностей
	db, rdb := setupDependencies(ctx, cfg)
	s := storage.NewStorageService(db, rdb)
	if err := s.AutoMigrate(); err != nil {
		logger.Fatalf("failed to run migrations: %v", err)
	}

	// 2. Chat Hub, Matcher, сесії
	reg := presence.NewRegistry(presence.NewRedisStore(rdb), cfg.Presence.TTL)
	sessions := session.NewStore(cfg.Matching.TypingQuietPeriod)
	hub := chathub.NewManagerService(sessions, reg, s, cfg.Matching.SearchTimeout, cfg.Matching.SweepInterval)
	hub.RecoverStaleSessions()
	go hub.Run(ctx)

	loc := localization.Bundled()

	// 3. Telegram is optional
	if cfg.Telegram.BotToken != "" {
		botService, err := telegram.NewBotService(cfg.Telegram.BotToken, hub, loc)
		if err != nil {
			logger.Fatalf("failed to start telegram bot: %v", err)
		}
		go botService.Run(ctx)
	} else {
		logger.Infof("TELEGRAM_BOT_TOKEN not set, telegram front-end disabled")
	}

	// 4. HTTP
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	limiter := middleware.NewInMemoryRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	go limiter.Run(ctx)

	r := handler.NewRouter(handler.NewHandler(hub, s, &cfg.JWT, loc), limiter)
	server := &http.Server{
		Addr:           cfg.Server.Addr,
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http shutdown: %v", err)
	}
	if err := rdb.Close(); err != nil {
		logger.Warnf("redis close: %v", err)
	}
}
