package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"whatsapp-chat-parser/internal/adapters/parser"
	"whatsapp-chat-parser/internal/adapters/source"
	"whatsapp-chat-parser/internal/cache"
	"whatsapp-chat-parser/internal/core/services"
	"whatsapp-chat-parser/internal/domain"
	"whatsapp-chat-parser/internal/log"
	"whatsapp-chat-parser/internal/pkg/config"
	"whatsapp-chat-parser/internal/pkg/term"
	"whatsapp-chat-parser/internal/server/usecase"

	"github.com/spf13/cobra"
)

// chooser выбирает транскрипт, когда в архиве их несколько.
type chooser interface {
	Interactive() bool
	Choose(prompt string, options []string) (string, error)
}

// newChooser подменяется в тестах.
var newChooser = func() chooser { return term.NewTerminal() }

const choosePrompt = "The archive contains several transcripts. Choose one:"

// loadConfig читает конфигурацию по пути из флага --config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil || path == "" {
		path = "config.yml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// processLocal разбирает файл без сервера. Если архив содержит несколько
// транскриптов и ввод интерактивный, предлагает выбрать один из них.
func processLocal(cmd *cobra.Command, path, transcript string) (*domain.ChatResult, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := log.New(cmd.ErrOrStderr(), cfg.Logging.Level, "text")
	uc := usecase.NewProcessChatUseCase(
		cfg,
		parser.NewWhatsAppParser(parser.WithLogger(logger)),
		services.NewMediaResolver(),
		services.NewStatsService(),
		cache.NewCacheStore(),
		usecase.WithLogger(logger),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Processing.TaskTimeout)
	defer cancel()

	upload := usecase.Upload{Path: path, Name: filepath.Base(path), Transcript: transcript}
	result, err := uc.ProcessChat(ctx, upload)

	var ambiguous *source.AmbiguousTranscriptError
	if errors.As(err, &ambiguous) {
		choice, chooseErr := chooseTranscript(ambiguous.Candidates)
		if chooseErr != nil {
			return nil, chooseErr
		}
		upload.Transcript = choice
		result, err = uc.ProcessChat(ctx, upload)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to process %s: %w", path, err)
	}
	return result, nil
}

// chooseTranscript спрашивает пользователя, если ввод интерактивный.
func chooseTranscript(candidates []string) (string, error) {
	t := newChooser()
	if !t.Interactive() {
		return "", &source.AmbiguousTranscriptError{Candidates: candidates}
	}
	return t.Choose(choosePrompt, candidates)
}
