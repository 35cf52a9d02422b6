package exporter

import (
	"fmt"
	"io"
	"os"
	"whatsapp-chat-parser/internal/domain"
	"whatsapp-chat-parser/internal/ports"

	"github.com/xuri/excelize/v2"
)

const (
	messagesSheet = "Messages"
	statsSheet    = "Stats"
)

var messageHeaders = []string{"Date", "Time", "Sender", "Text", "Media type", "Media name", "Edited", "Pinned"}

// ExcelExporter сохраняет сообщения и статистику в xlsx-файл.
type ExcelExporter struct {
	path string
}

// NewExcelExporter создает экспортер, пишущий в файл path.
func NewExcelExporter(path string) ports.Exporter {
	return &ExcelExporter{path: path}
}

// Export записывает книгу в файл.
func (e *ExcelExporter) Export(result *domain.ChatResult) error {
	f, err := os.Create(e.path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", e.path, err)
	}
	defer f.Close()

	return WriteXLSX(f, result)
}

// WriteXLSX формирует книгу с листами сообщений и статистики и пишет ее в w.
func WriteXLSX(w io.Writer, result *domain.ChatResult) error {
	if result == nil || result.Chat == nil {
		return fmt.Errorf("nothing to export")
	}

	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(messagesSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	if index, err := f.GetSheetIndex(messagesSheet); err == nil {
		f.SetActiveSheet(index)
	}

	if err := setRow(f, messagesSheet, 1, toAny(messageHeaders)); err != nil {
		return err
	}
	for i, msg := range result.Chat.Messages {
		mediaType, mediaName := "", ""
		if msg.Media != nil {
			mediaType, mediaName = string(msg.Media.Type), msg.Media.Name
		}
		row := []any{msg.Date, msg.Time, msg.Sender, msg.Text, mediaType, mediaName, msg.Edited, msg.Pinned}
		if err := setRow(f, messagesSheet, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(statsSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	table := StatsTable(result.Stats)
	if err := setRow(f, statsSheet, 1, toAny(table.Headers)); err != nil {
		return err
	}
	for i, row := range table.Rows {
		if err := setRow(f, statsSheet, i+2, toAny(row)); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("invalid row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
