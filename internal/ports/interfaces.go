package ports

import (
	"context"
	"whatsapp-chat-parser/internal/domain"
)

// DataSource определяет интерфейс для получения исходных данных чата.
type DataSource interface {
	// Fetch загружает данные из источника и возвращает их в виде байтового среза.
	Fetch() ([]byte, error)
}

// Parser определяет интерфейс для разбора текстового экспорта чата.
type Parser interface {
	// Parse преобразует сырые данные в упорядоченный список сообщений и участников.
	Parse(data []byte) (*domain.ParsedChat, error)
}

// MediaResolver сопоставляет ссылки на вложения с бинарными кандидатами.
type MediaResolver interface {
	Resolve(candidates []domain.CandidateEntry, messages []domain.Message) domain.ResolvedMediaMap
}

// StatsService вычисляет статистику и группировку галереи для разобранного чата.
type StatsService interface {
	Compute(chat *domain.ParsedChat) domain.ChatStats
	Gallery(chat *domain.ParsedChat) domain.Gallery
}

// Exporter определяет интерфейс для вывода результата.
type Exporter interface {
	// Export принимает обработанный чат и выводит его.
	Export(result *domain.ChatResult) error
}

// EventPublisher публикует события о завершенной обработке.
type EventPublisher interface {
	Publish(subject string, data any) error
}

// ResultStore сохраняет обработанные чаты между перезапусками.
type ResultStore interface {
	SaveChat(ctx context.Context, result *domain.ChatResult) error
	LoadChat(ctx context.Context, hash string) (*domain.ChatResult, error)
}
