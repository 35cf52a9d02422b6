package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"whatsapp-chat-parser/cmd/bot/config"
	"whatsapp-chat-parser/internal/bot"
	"whatsapp-chat-parser/internal/bot/router"
	"whatsapp-chat-parser/internal/client"
	"whatsapp-chat-parser/internal/log"

	"github.com/sevlyar/go-daemon"
)

func main() {
	// Загрузка конфигурации бота
	cfg, err := config.LoadBotConfig("bot_config.yml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load bot config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.ValidateFull(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to validate bot config: %v\n", err)
		os.Exit(1)
	}

	if cfg.Daemon.Enabled {
		dctx := &daemon.Context{
			PidFileName: cfg.Daemon.PidFile,
			PidFilePerm: 0o644,
			LogFileName: cfg.Daemon.LogFile,
			LogFilePerm: 0o640,
			WorkDir:     cfg.Daemon.WorkDir,
			Umask:       0o27,
		}
		child, err := dctx.Reborn()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
			os.Exit(1)
		}
		if child != nil {
			// Родительский процесс завершается, работу продолжает потомок.
			return
		}
		defer dctx.Release()
	}

	// Логгер с маскировкой токенов и телефонов
	logger := log.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	// Инициализация компонентов
	taskStore := bot.NewTaskStore()
	backends := make([]router.Backend, 0, len(cfg.Bot.Backends()))
	for _, url := range cfg.Bot.Backends() {
		backends = append(backends, client.NewServerClient(url, cfg.Bot.HTTPTimeout))
	}
	pool, err := router.NewRouter(backends,
		router.WithHealthCheckInterval(cfg.Bot.HealthCheck),
		router.WithLogger(logger.With(slog.String("component", "router"))))
	if err != nil {
		slog.Error("failed to create backend router", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Stop()

	b, err := bot.NewBot(cfg.Bot, pool, taskStore, logger.With(slog.String("component", "bot")))
	if err != nil {
		slog.Error("failed to create bot", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("Bot created successfully, starting...", slog.Bool("daemon", cfg.Daemon.Enabled))

	// Ожидание сигналов для graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start возвращает управление после отмены ctx
	b.Start(ctx)

	slog.Info("Bot stopped gracefully")
}
