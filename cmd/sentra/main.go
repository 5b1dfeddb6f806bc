package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentra-auth/sentra/internal/app"
	"github.com/sentra-auth/sentra/internal/auth"
	"github.com/sentra-auth/sentra/internal/platform/cache"
	"github.com/sentra-auth/sentra/internal/platform/db"
	"github.com/sentra-auth/sentra/internal/rbac"
	"github.com/sentra-auth/sentra/internal/users"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var permCache *rbac.PermissionCache
	if cfg.RedisAddr != "" {
		redisClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		permCache = rbac.NewPermissionCache(redisClient, cfg.CacheTTL)
	}

	rbacService := rbac.NewService(rbac.NewRepository(pool), permCache, logger)
	rbacMW := rbac.Middleware{Service: rbacService, Logger: logger}

	store := users.NewStore(pool)
	usersService := users.NewService(store, rbacService)
	usersHandler := users.NewHandler(logger, usersService, rbacMW)

	codec := auth.NewTokenCodec(cfg.TokenSecret, cfg.TokenTTL)
	tokenMW := auth.Middleware{Codec: codec, Logger: logger}
	authService := auth.NewService(store, codec)
	authHandler := auth.NewHandler(logger, authService, tokenMW, rbacMW)

	rbacHandler := rbac.NewHandler(logger, rbacService, rbacMW)

	// Baseline roles, permissions and admin principal exist before the
	// listener accepts traffic.
	if err := app.Bootstrap(ctx, logger, cfg, rbacService, store); err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		os.Exit(1)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AuthHandler:  authHandler,
		UsersHandler: usersHandler,
		RBACHandler:  rbacHandler,
		TokenMW:      tokenMW,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("listening", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
	}
	logger.Info("stopped")
}
