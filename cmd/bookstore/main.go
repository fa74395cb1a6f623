// Package main запускает HTTP-сервер книжного магазина.
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

	"github.com/mmeshcher/bookstore/internal/config"
	"github.com/mmeshcher/bookstore/internal/handler"
	"github.com/mmeshcher/bookstore/internal/middleware"
	"github.com/mmeshcher/bookstore/internal/realtime"
	"github.com/mmeshcher/bookstore/internal/repository"
	"github.com/mmeshcher/bookstore/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	var transports realtime.Fanout
	if cfg.AMQPURL != "" {
		publisher, err := realtime.ConnectAMQP(ctx, cfg.AMQPURL, logger)
		if err != nil {
			sugar.Fatalw("rabbitmq connection error", "error", err.Error())
		}
		defer publisher.Close()
		transports = append(transports, publisher)
	}
	if cfg.RealtimeGatewayAddress != "" {
		transports = append(transports, realtime.NewGatewayClient(cfg.RealtimeGatewayAddress))
	}

	var pusher service.Pusher
	if len(transports) > 0 {
		pusher = transports
	} else {
		sugar.Info("no realtime transport configured, notifications are stored only")
	}

	svc := service.NewService(repo, pusher, logger, service.MilestonePolicy{
		Threshold:  cfg.MilestoneThreshold,
		Percentage: cfg.MilestonePercentage,
	})
	defer svc.Close()

	if err := svc.EnsureAdmin(ctx, cfg.AdminLogin, cfg.AdminPassword); err != nil {
		sugar.Fatalw("admin bootstrap error", "error", err.Error())
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Повторная доставка уведомлений, не дошедших до живого соединения
	g.Go(func() error {
		svc.StartNotificationRedelivery(ctx, cfg.RedeliveryInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting bookstore server", "addr", cfg.RunAddress)
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
