// Package main запускает HTTP-сервер менеджера бонусов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/bonus-manager/internal/config"
	"github.com/mmeshcher/bonus-manager/internal/flash"
	"github.com/mmeshcher/bonus-manager/internal/handler"
	"github.com/mmeshcher/bonus-manager/internal/middleware"
	"github.com/mmeshcher/bonus-manager/internal/repository"
	"github.com/mmeshcher/bonus-manager/internal/service"
)

const sweepInterval = time.Minute

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	svc := service.NewService(repo, logger, cfg.ShareBaseURI)
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	var notices flash.Store
	if cfg.RedisAddress != "" {
		client, err := flash.NewRedisClient(ctx, cfg.RedisAddress)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		defer client.Close()
		notices = flash.NewRedisStore(client, flash.DefaultTTL)
	} else {
		memory := flash.NewMemoryStore(flash.DefaultTTL)
		notices = memory

		// Очистка неполученных уведомлений
		g.Go(func() error {
			memory.RunSweeper(ctx, sweepInterval)
			return nil
		})
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.SecretKey)
	h := handler.NewHandler(svc, logger, authMiddleware, notices, handler.Options{
		AdminURL:           cfg.AdminURL,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting bonus manager", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
