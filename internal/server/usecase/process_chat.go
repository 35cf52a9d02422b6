package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	"whatsapp-chat-parser/internal/adapters/source"
	"whatsapp-chat-parser/internal/cache"
	"whatsapp-chat-parser/internal/core/services"
	"whatsapp-chat-parser/internal/domain"
	"whatsapp-chat-parser/internal/pkg/config"
	"whatsapp-chat-parser/internal/ports"
)

var (
	// ErrEmptyChat возвращается, если в экспорте не найдено ни одного сообщения.
	ErrEmptyChat = errors.New("no messages found in chat export")
	// ErrNotFound возвращается, если результат по хешу отсутствует в кэше и хранилище.
	ErrNotFound = errors.New("result not found")
)

// Upload описывает загруженный файл экспорта.
type Upload struct {
	// Path — путь к файлу на диске (.txt или .zip).
	Path string
	// Name — исходное имя файла, используется для определения архива.
	Name string
	// Transcript — выбранный .txt внутри архива, если их несколько.
	Transcript string
}

// ChatParsedEvent публикуется после успешной обработки чата.
type ChatParsedEvent struct {
	Hash         string    `json:"hash"`
	Source       string    `json:"source"`
	Messages     int       `json:"messages"`
	Participants int       `json:"participants"`
	Unresolved   int       `json:"unresolved"`
	ParsedAt     time.Time `json:"parsed_at"`
}

// ProcessChatUseCase инкапсулирует бизнес-логику для обработки файла экспорта чата.
type ProcessChatUseCase struct {
	cfg        *config.Config
	parser     ports.Parser
	resolver   ports.MediaResolver
	stats      ports.StatsService
	cacheStore *cache.CacheStore
	publisher  ports.EventPublisher
	store      ports.ResultStore
	logger     *slog.Logger
}

// Option настраивает необязательные зависимости ProcessChatUseCase.
type Option func(*ProcessChatUseCase)

// WithPublisher включает публикацию событий о разобранных чатах.
func WithPublisher(p ports.EventPublisher) Option {
	return func(uc *ProcessChatUseCase) {
		uc.publisher = p
	}
}

// WithResultStore включает сохранение результатов в постоянное хранилище.
func WithResultStore(s ports.ResultStore) Option {
	return func(uc *ProcessChatUseCase) {
		uc.store = s
	}
}

// WithLogger задает логгер. По умолчанию используется slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(uc *ProcessChatUseCase) {
		uc.logger = l
	}
}

// NewProcessChatUseCase создает новый экземпляр ProcessChatUseCase.
func NewProcessChatUseCase(
	cfg *config.Config,
	parser ports.Parser,
	resolver ports.MediaResolver,
	stats ports.StatsService,
	cacheStore *cache.CacheStore,
	opts ...Option,
) *ProcessChatUseCase {
	uc := &ProcessChatUseCase{
		cfg:        cfg,
		parser:     parser,
		resolver:   resolver,
		stats:      stats,
		cacheStore: cacheStore,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// ProcessChat разбирает загруженный экспорт: текстовый файл или zip-архив с вложениями.
func (uc *ProcessChatUseCase) ProcessChat(ctx context.Context, upload Upload) (*domain.ChatResult, error) {
	logger := uc.logger.With(slog.String("file", upload.Name))

	hash, err := cache.CalculateFileHash(upload.Path, upload.Transcript)
	if err != nil {
		return nil, fmt.Errorf("failed to hash upload: %w", err)
	}
	logger = logger.With(slog.String("hash", hash))

	isArchive, err := detectArchive(upload)
	if err != nil {
		return nil, err
	}

	if cached, found := uc.cacheStore.Get(hash); found {
		logger.Info("cache hit")
		if isArchive {
			return rebindMedia(cached.Data, upload.Path), nil
		}
		return cached.Data, nil
	}

	var (
		text       []byte
		sourceName = upload.Name
		archive    *source.Archive
	)
	if isArchive {
		archive, err = source.OpenArchive(upload.Path)
		if err != nil {
			return nil, err
		}
		defer archive.Close()

		sourceName, err = archive.SelectTranscript(upload.Transcript)
		if err != nil {
			return nil, err
		}
		text, err = archive.ReadText(sourceName, uc.cfg.MaxTranscriptBytes())
	} else {
		text, err = source.NewFileSource(upload.Path, uc.cfg.MaxTranscriptBytes()).Fetch()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript %s: %w", sourceName, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chat, err := uc.parser.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", sourceName, err)
	}
	if len(chat.Messages) == 0 {
		return nil, ErrEmptyChat
	}
	logger.Info("chat parsed",
		slog.Int("message_count", len(chat.Messages)),
		slog.Int("participant_count", len(chat.Participants)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &domain.ChatResult{
		Hash:   hash,
		Source: sourceName,
		Chat:   chat,
		Media:  domain.ResolvedMediaMap{},
	}
	if archive != nil {
		result.Media = uc.resolver.Resolve(archive.Entries(), chat.Messages)
		result.Unresolved = services.Unresolved(chat.Messages, result.Media)
		logger.Info("media resolved",
			slog.Int("resolved", len(result.Media)),
			slog.Int("unresolved", len(result.Unresolved)))
	}
	result.Stats = uc.stats.Compute(chat)
	result.Gallery = uc.stats.Gallery(chat)

	ttl := uc.cfg.Processing.CacheTTL
	uc.cacheStore.Put(hash, result, ttl)
	logger.Info("result cached", slog.String("ttl", ttl.String()))

	uc.persist(ctx, logger, result)
	return result, nil
}

// ProcessByHash возвращает ранее обработанный результат: из кэша, затем из хранилища.
func (uc *ProcessChatUseCase) ProcessByHash(ctx context.Context, hash string) (*domain.ChatResult, error) {
	if cached, found := uc.cacheStore.Get(hash); found {
		// Архив исходной загрузки живет не дольше ее задачи.
		return detachMedia(cached.Data), nil
	}
	if uc.store == nil {
		return nil, ErrNotFound
	}

	result, err := uc.store.LoadChat(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to load result %s: %w", hash, err)
	}
	// Хранилище возвращает nil без ошибки, если записи нет.
	if result == nil {
		return nil, ErrNotFound
	}
	uc.cacheStore.Put(hash, result, uc.cfg.Processing.CacheTTL)
	return result, nil
}

// persist сохраняет результат и публикует событие. Ошибки только логируются.
func (uc *ProcessChatUseCase) persist(ctx context.Context, logger *slog.Logger, result *domain.ChatResult) {
	if uc.store != nil {
		if err := uc.store.SaveChat(ctx, result); err != nil {
			logger.Error("failed to save result", slog.String("error", err.Error()))
		}
	}
	if uc.publisher != nil {
		event := ChatParsedEvent{
			Hash:         result.Hash,
			Source:       result.Source,
			Messages:     len(result.Chat.Messages),
			Participants: len(result.Chat.Participants),
			Unresolved:   len(result.Unresolved),
			ParsedAt:     time.Now().UTC(),
		}
		if err := uc.publisher.Publish(uc.cfg.NATS.Subject, event); err != nil {
			logger.Error("failed to publish event", slog.String("error", err.Error()))
		}
	}
}

func detectArchive(upload Upload) (bool, error) {
	name := upload.Name
	if name == "" {
		name = filepath.Base(upload.Path)
	}

	f, err := os.Open(upload.Path)
	if err != nil {
		return false, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	head := make([]byte, 4)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read upload: %w", err)
	}
	return source.IsArchive(name, head[:n]), nil
}

// rebindMedia возвращает копию результата, вложения которой читаются из archivePath.
// Кэшированный результат может ссылаться на уже удаленный файл другой загрузки.
func rebindMedia(result *domain.ChatResult, archivePath string) *domain.ChatResult {
	rebound := *result
	rebound.Media = make(domain.ResolvedMediaMap, len(result.Media))
	for name, entry := range result.Media {
		rebound.Media[name] = domain.CandidateEntry{
			Filename: entry.Filename,
			Accessor: source.NewEntryAccessor(archivePath, entry.Filename),
		}
	}
	return &rebound
}

// detachMedia возвращает копию результата без доступа к содержимому вложений.
// Имена найденных вложений сохраняются, но отдать сами файлы нельзя.
func detachMedia(result *domain.ChatResult) *domain.ChatResult {
	detached := *result
	detached.Media = make(domain.ResolvedMediaMap, len(result.Media))
	for name, entry := range result.Media {
		detached.Media[name] = domain.CandidateEntry{Filename: entry.Filename}
	}
	return &detached
}
