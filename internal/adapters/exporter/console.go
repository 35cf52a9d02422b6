package exporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"whatsapp-chat-parser/internal/domain"
	"whatsapp-chat-parser/internal/ports"
)

// ConsoleExporter реализует интерфейс Exporter для вывода сводки в консоль.
type ConsoleExporter struct {
	out       io.Writer
	statsOnly bool
}

// ConsoleOption настраивает ConsoleExporter.
type ConsoleOption func(*ConsoleExporter)

// WithWriter перенаправляет вывод (по умолчанию os.Stdout).
func WithWriter(w io.Writer) ConsoleOption {
	return func(e *ConsoleExporter) {
		e.out = w
	}
}

// StatsOnly ограничивает вывод таблицей статистики.
func StatsOnly() ConsoleOption {
	return func(e *ConsoleExporter) {
		e.statsOnly = true
	}
}

// NewConsoleExporter создает новый экземпляр ConsoleExporter.
func NewConsoleExporter(opts ...ConsoleOption) ports.Exporter {
	e := &ConsoleExporter{out: os.Stdout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export выводит участников, таблицу статистики и неразрешенные вложения.
func (e *ConsoleExporter) Export(result *domain.ChatResult) error {
	if result == nil || result.Chat == nil {
		return fmt.Errorf("nothing to export")
	}

	var sb strings.Builder
	if !e.statsOnly {
		sb.WriteString(fmt.Sprintf("--- %s ---\n", sourceName(result)))
		if len(result.Chat.Participants) == 0 {
			sb.WriteString("No participants found.\n")
		}
		for i, p := range result.Chat.Participants {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, p))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(StatsTable(result.Stats).Render())

	if !e.statsOnly && len(result.Unresolved) > 0 {
		sb.WriteString(fmt.Sprintf("\nMissing attachments (%d):\n", len(result.Unresolved)))
		for _, name := range result.Unresolved {
			sb.WriteString("  " + name + "\n")
		}
	}

	_, err := io.WriteString(e.out, sb.String())
	return err
}

func sourceName(result *domain.ChatResult) string {
	if result.Source != "" {
		return result.Source
	}
	return "Chat"
}

// JSONExporter выводит результат целиком в формате JSON.
type JSONExporter struct {
	out io.Writer
}

// NewJSONExporter создает экспортер JSON. Пустой w означает os.Stdout.
func NewJSONExporter(w io.Writer) ports.Exporter {
	if w == nil {
		w = os.Stdout
	}
	return &JSONExporter{out: w}
}

// Export сериализует результат с отступами.
func (e *JSONExporter) Export(result *domain.ChatResult) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}
