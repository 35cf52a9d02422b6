package bot

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"whatsapp-chat-parser/cmd/bot/config"
	"whatsapp-chat-parser/internal/adapters/exporter"
	"whatsapp-chat-parser/internal/adapters/source"
	"whatsapp-chat-parser/internal/client"
	"whatsapp-chat-parser/internal/domain"
	"whatsapp-chat-parser/internal/log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	startCommand = "start"
	helpCommand  = "help"

	// Telegram ограничивает длину сообщения 4096 символами.
	maxMessageLength = 4096
)

const helpText = "Добро пожаловать! Я бот для анализа экспортов чатов WhatsApp.\n\n" +
	"Отправьте мне файл экспорта: .txt без вложений или .zip с вложениями. " +
	"В ответ я пришлю сводную статистику и Excel-файл со всеми сообщениями.\n\n" +
	"Пожалуйста, обратите внимание:\n" +
	"• Я обрабатываю только один файл за раз.\n" +
	"• Если в архиве несколько .txt файлов, отправьте архив еще раз и укажите имя нужного файла в подписи."

// ServerAPI — операции бэкенд-сервера, которые использует бот.
type ServerAPI interface {
	StartTask(ctx context.Context, file client.UploadFile) (*client.StartTaskResponse, error)
	GetTaskStatus(ctx context.Context, taskID string) (*client.TaskStatusResponse, error)
	GetTaskStats(ctx context.Context, taskID string) (*domain.ChatStats, error)
	GetTaskExport(ctx context.Context, taskID string) ([]byte, error)
}

// Bot представляет собой основной объект Telegram-бота.
type Bot struct {
	api          *tgbotapi.BotAPI
	cfg          config.BotConfig
	serverClient ServerAPI
	taskStore    *TaskStore
	logger       *slog.Logger
	httpClient   *http.Client

	sendMessageFunc      func(tgbotapi.Chattable) (tgbotapi.Message, error)
	getFileDirectURLFunc func(fileID string) (string, error)
}

// NewBot создает и инициализирует новый экземпляр бота.
func NewBot(cfg config.BotConfig, serverClient ServerAPI, taskStore *TaskStore, logger *slog.Logger) (*Bot, error) {
	// Сообщения библиотеки идут через маскирующий логгер: в URL запросов есть токен.
	if err := tgbotapi.SetLogger(&log.TGBotAPIAdapter{Logger: logger}); err != nil {
		return nil, fmt.Errorf("failed to set bot api logger: %w", err)
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot api: %w", err)
	}

	logger.Info("Authorized on account", slog.String("username", api.Self.UserName))

	return &Bot{
		api:                  api,
		cfg:                  cfg,
		serverClient:         serverClient,
		taskStore:            taskStore,
		logger:               logger,
		httpClient:           &http.Client{Timeout: cfg.HTTPTimeout},
		sendMessageFunc:      api.Send,
		getFileDirectURLFunc: api.GetFileDirectURL,
	}, nil
}

// Start запускает основной цикл обработки обновлений от Telegram.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Context cancelled, stopping bot...", slog.Int("active_tasks", b.taskStore.Len()))
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage обрабатывает входящее сообщение.
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}

	if msg.Document != nil {
		b.handleDocument(ctx, msg)
		return
	}

	b.reply(msg.Chat.ID, "Пожалуйста, отправьте мне файл экспорта чата WhatsApp (.txt или .zip).")
}

// handleCommand обрабатывает команды.
func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case startCommand, helpCommand:
		b.reply(msg.Chat.ID, helpText)
	default:
		b.reply(msg.Chat.ID, "Я не знаю такой команды.")
	}
}

// handleDocument обрабатывает входящий документ (файл).
func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	doc := msg.Document
	logger := b.logger.With(slog.Int64("chat_id", chatID), slog.String("file_name", doc.FileName))

	// 1. Проверяем, нет ли уже активной задачи.
	if _, ok := b.taskStore.Get(chatID); ok {
		logger.Warn("user tried to start a new task while another is active")
		b.reply(chatID, "Пожалуйста, подождите завершения предыдущей задачи, прежде чем начинать новую.")
		return
	}

	// 2. Проверяем тип и размер файла.
	if !isSupportedFile(doc.FileName) {
		b.reply(chatID, "Поддерживаются только файлы экспорта WhatsApp: .txt или .zip.")
		return
	}
	if int64(doc.FileSize) > b.cfg.MaxFileBytes() {
		b.reply(chatID, fmt.Sprintf("Файл слишком большой. Максимальный размер: %d МБ.", b.cfg.MaxFileSizeMB))
		return
	}

	// 3. Скачиваем файл.
	fileURL, err := b.getFileDirectURLFunc(doc.FileID)
	if err != nil {
		logger.Error("failed to get file direct url", slog.String("error", err.Error()))
		b.reply(chatID, "Не удалось получить доступ к файлу. Попробуйте отправить его еще раз.")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		logger.Error("failed to create download request", slog.String("error", err.Error()))
		b.reply(chatID, "Не удалось скачать файл. Попробуйте отправить его еще раз.")
		return
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		logger.Error("failed to download file", slog.String("error", err.Error()))
		b.reply(chatID, "Не удалось скачать файл. Попробуйте отправить его еще раз.")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Error("unexpected download status", slog.Int("status", resp.StatusCode))
		b.reply(chatID, "Не удалось скачать файл. Попробуйте отправить его еще раз.")
		return
	}

	// Файл держим в памяти, чтобы роутер мог повторить загрузку на другом сервере.
	content, err := source.ReadAll(resp.Body, b.cfg.MaxFileBytes())
	if err != nil {
		logger.Error("failed to read downloaded file", slog.String("error", err.Error()))
		b.reply(chatID, "Не удалось скачать файл. Попробуйте отправить его еще раз.")
		return
	}

	// 4. Запускаем задачу на бэкенде. Подпись к архиву задает имя транскрипта.
	startResp, err := b.serverClient.StartTask(ctx, client.UploadFile{
		Name:       doc.FileName,
		Content:    bytes.NewReader(content),
		Transcript: strings.TrimSpace(msg.Caption),
	})
	if err != nil {
		logger.Error("failed to start task on backend", slog.String("error", err.Error()))
		b.reply(chatID, "Не удалось начать обработку файла на сервере. Пожалуйста, попробуйте позже.")
		return
	}

	taskID := startResp.TaskID
	logger = logger.With(slog.String("task_id", taskID))
	logger.Info("task started on backend")

	// 5. Сохраняем task_id и запускаем опрос.
	b.taskStore.Set(chatID, taskID)
	go b.pollTaskStatus(ctx, chatID, taskID)

	b.reply(chatID, "✅ Файл получен и поставлен в очередь на обработку. Ожидайте результата.")
}

func isSupportedFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".zip":
		return true
	}
	return false
}

func (b *Bot) reply(chatID int64, text string) {
	b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) sendMessage(msg tgbotapi.Chattable) {
	if _, err := b.sendMessageFunc(msg); err != nil {
		b.logger.Error("failed to send message", slog.String("error", err.Error()))
	}
}

// pollTaskStatus асинхронно опрашивает статус задачи на бэкенд-сервере.
func (b *Bot) pollTaskStatus(ctx context.Context, chatID int64, taskID string) {
	logger := b.logger.With(slog.Int64("chat_id", chatID), slog.String("task_id", taskID))
	defer func() {
		elapsed := b.taskStore.Delete(chatID)
		logger.Debug("task released", slog.Duration("elapsed", elapsed))
	}()

	ticker := time.NewTicker(b.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Warn("polling cancelled by context")
			return
		case <-ticker.C:
			logger.Debug("polling task status")
			status, err := b.serverClient.GetTaskStatus(ctx, taskID)
			if err != nil {
				logger.Error("failed to get task status", slog.String("error", err.Error()))
				continue
			}

			switch status.Status {
			case client.StatusCompleted:
				logger.Info("task completed")
				b.processCompletedTask(ctx, chatID, taskID)
				return
			case client.StatusFailed:
				logger.Warn("task failed", slog.String("reason", status.ErrorMessage))
				b.reply(chatID, failureText(status))
				return
			case client.StatusPending, client.StatusProcessing:
				logger.Debug("task is in progress", slog.String("status", status.Status))
			default:
				logger.Warn("unknown task status", slog.String("status", status.Status))
			}
		}
	}
}

func failureText(status *client.TaskStatusResponse) string {
	if len(status.Transcripts) == 0 {
		return fmt.Sprintf("Произошла ошибка при обработке файла: %s", status.ErrorMessage)
	}
	var sb strings.Builder
	sb.WriteString("В архиве несколько файлов переписки:\n")
	for _, name := range status.Transcripts {
		sb.WriteString("• ")
		sb.WriteString(name)
		sb.WriteString("\n")
	}
	sb.WriteString("\nОтправьте архив еще раз и укажите имя нужного файла в подписи.")
	return sb.String()
}

// processCompletedTask обрабатывает успешно завершенную задачу.
func (b *Bot) processCompletedTask(ctx context.Context, chatID int64, taskID string) {
	logger := b.logger.With(slog.Int64("chat_id", chatID), slog.String("task_id", taskID))
	logger.Info("fetching results for completed task")

	stats, err := b.serverClient.GetTaskStats(ctx, taskID)
	if err != nil {
		logger.Error("failed to fetch stats", slog.String("error", err.Error()))
		b.reply(chatID, "Не удалось получить результаты для выполненной задачи. Пожалуйста, попробуйте позже.")
		return
	}
	b.sendStats(chatID, *stats)

	export, err := b.serverClient.GetTaskExport(ctx, taskID)
	if err != nil {
		logger.Error("failed to fetch export", slog.String("error", err.Error()))
		b.reply(chatID, "Не удалось сформировать Excel-файл.")
		return
	}

	fileName := fmt.Sprintf("whatsapp_chat_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: fileName, Bytes: export})
	doc.Caption = fmt.Sprintf("Анализ завершен. Сообщений: %d, участников: %d.", stats.TotalMessages, stats.ParticipantCount)
	b.sendMessage(doc)
}

// sendStats отправляет таблицу статистики моноширинным текстом.
func (b *Bot) sendStats(chatID int64, stats domain.ChatStats) {
	text := b.formatStats(stats)
	if len(text) > maxMessageLength {
		b.logger.Warn("stats text is too long, sending plain summary", slog.Int("length", len(text)))
		b.reply(chatID, fmt.Sprintf("Сообщений: %d, участников: %d.", stats.TotalMessages, stats.ParticipantCount))
		return
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	b.sendMessage(msg)
}

func (b *Bot) formatStats(stats domain.ChatStats) string {
	table := exporter.StatsTable(stats)
	table.Widths = []int{b.cfg.Render.Metric, b.cfg.Render.Value}
	rendered := strings.ToValidUTF8(table.Render(), "")
	return "<pre><code>" + html.EscapeString(rendered) + "</code></pre>"
}
