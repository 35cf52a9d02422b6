package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"whatsapp-chat-parser/internal/adapters/parser"
	"whatsapp-chat-parser/internal/cache"
	"whatsapp-chat-parser/internal/core/services"
	"whatsapp-chat-parser/internal/events"
	"whatsapp-chat-parser/internal/log"
	"whatsapp-chat-parser/internal/pkg/config"
	"whatsapp-chat-parser/internal/server"
	"whatsapp-chat-parser/internal/server/usecase"
	"whatsapp-chat-parser/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}

// run инкапсулирует всю логику инициализации и запуска приложения.
func run() error {
	// 1. Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		// Логгер еще не инициализирован, выводим в stderr
		_, _ = fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализация логгера с маскировкой телефонов и токенов
	logger := log.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	// 3. Валидация конфигурации (после инициализации логгера)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// 4. Необязательные внешние сервисы
	opts := []usecase.Option{usecase.WithLogger(logger.With("component", "usecase"))}

	if cfg.NATS.URL != "" {
		publisher, err := events.Connect(cfg.NATS.URL, cfg.NATS.Timeout, logger.With("component", "events"))
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer publisher.Close()
		opts = append(opts, usecase.WithPublisher(publisher))
		slog.Info("event publishing enabled", "subject", cfg.NATS.Subject)
	}

	if cfg.Database.DSN != "" {
		db, err := store.New(appCtx, cfg.Database.DSN, cfg.Database.MaxConns)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(appCtx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		opts = append(opts, usecase.WithResultStore(db))
		slog.Info("result store enabled")
	}

	// 5. Инициализация зависимостей
	taskStore := server.NewTaskStore(logger.With("component", "tasks"))
	cacheStore := cache.NewCacheStore()
	processor := usecase.NewProcessChatUseCase(
		cfg,
		parser.NewWhatsAppParser(parser.WithLogger(logger.With("component", "parser"))),
		services.NewMediaResolver(),
		services.NewStatsService(),
		cacheStore,
		opts...,
	)

	// 6. Создание HTTP-сервера
	srv, err := server.New(cfg, processor, taskStore, cacheStore, logger.With("component", "http"))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	srv.StartCleanup(appCtx)

	// 7. Запуск сервера и graceful shutdown
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		slog.Info("Starting server", "addr", cfg.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		slog.Info("Signal received, shutting down...")
	case <-serverDone:
		return fmt.Errorf("server stopped unexpectedly")
	}

	// Сначала останавливаем фоновую очистку
	appCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	<-serverDone
	slog.Info("Application exited gracefully")
	return nil
}
