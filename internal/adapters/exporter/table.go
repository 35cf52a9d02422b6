package exporter

import (
	"fmt"
	"strings"
	"unicode"
	"whatsapp-chat-parser/internal/domain"

	"github.com/mattn/go-runewidth"
)

// Table — моноширинная таблица для вывода в терминал и в Telegram (<pre>).
type Table struct {
	Headers []string
	Rows    [][]string
	// Widths задает ширину колонок. Колонка без ширины подгоняется под содержимое.
	Widths []int
}

// Render формирует таблицу. Длинные значения переносятся по словам.
func (t Table) Render() string {
	widths := t.columnWidths()

	var sb strings.Builder
	sb.WriteString(renderRow(t.Headers, widths))

	sb.WriteString("|")
	for _, w := range widths {
		sb.WriteString(strings.Repeat("-", w+2))
		sb.WriteString("|")
	}
	sb.WriteString("\n")

	for _, row := range t.Rows {
		sb.WriteString(renderRow(row, widths))
	}
	return sb.String()
}

func (t Table) columnWidths() []int {
	widths := make([]int, len(t.Headers))
	for i := range widths {
		if i < len(t.Widths) && t.Widths[i] > 0 {
			widths[i] = t.Widths[i]
			continue
		}
		widths[i] = runewidth.StringWidth(t.Headers[i])
		for _, row := range t.Rows {
			if i < len(row) {
				if w := runewidth.StringWidth(row[i]); w > widths[i] {
					widths[i] = w
				}
			}
		}
	}
	return widths
}

func renderRow(cells []string, widths []int) string {
	wrapped := make([][]string, len(widths))
	maxLines := 1
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = strings.ReplaceAll(cells[i], "\n", " ")
		}
		wrapped[i] = wrapString(cell, w)
		if len(wrapped[i]) > maxLines {
			maxLines = len(wrapped[i])
		}
	}

	var sb strings.Builder
	for line := 0; line < maxLines; line++ {
		for i, w := range widths {
			part := ""
			if line < len(wrapped[i]) {
				part = wrapped[i][line]
			}
			sb.WriteString("| ")
			sb.WriteString(part)
			sb.WriteString(generatePadding(part, w))
			sb.WriteString(" ")
		}
		sb.WriteString("|\n")
	}
	return sb.String()
}

// StatsTable строит таблицу «показатель / значение» по статистике чата.
func StatsTable(stats domain.ChatStats) Table {
	top := "n/a"
	if stats.TopSender.Count > 0 {
		top = fmt.Sprintf("%s (%d)", stats.TopSender.Sender, stats.TopSender.Count)
	}

	rows := [][]string{
		{"Messages", fmt.Sprint(stats.TotalMessages)},
		{"Participants", fmt.Sprint(stats.ParticipantCount)},
		{"Top sender", top},
	}
	for _, t := range domain.MediaTypes {
		rows = append(rows, []string{"Media: " + string(t), fmt.Sprint(stats.MediaCount[t])})
	}
	rows = append(rows,
		[]string{"Links", fmt.Sprint(stats.LinkCount)},
		[]string{"Edited", fmt.Sprint(stats.EditedCount)},
		[]string{"Pinned", fmt.Sprint(stats.PinnedCount)},
	)

	return Table{Headers: []string{"Metric", "Value"}, Rows: rows}
}

// generatePadding вычисляет отступ для строки с учетом поправки на CJK-символы.
func generatePadding(s string, colWidth int) string {
	paddingNeeded := colWidth - runewidth.StringWidth(s)

	// Некоторые клиенты Telegram рисуют CJK-символы чуть уже, чем runewidth.
	hasCJK := false
	for _, r := range s {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hangul, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) {
			hasCJK = true
			break
		}
	}

	if hasCJK && paddingNeeded >= 0 {
		paddingNeeded++
	}

	if paddingNeeded > 0 {
		return strings.Repeat(" ", paddingNeeded)
	}
	return ""
}

// wrapString переносит строку по словам в пределах ширины width.
// Слово длиннее ширины разбивается посередине.
func wrapString(s string, width int) []string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return []string{s}
	}

	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	var currentLine strings.Builder
	for _, word := range words {
		wordWidth := runewidth.StringWidth(word)

		if wordWidth > width {
			if currentLine.Len() > 0 {
				lines = append(lines, currentLine.String())
				currentLine.Reset()
			}
			lines = append(lines, splitByWidth(word, width)...)
			continue
		}

		lineLen := runewidth.StringWidth(currentLine.String())
		if lineLen > 0 && lineLen+1+wordWidth > width {
			lines = append(lines, currentLine.String())
			currentLine.Reset()
		}

		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}

	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}
	return lines
}

func splitByWidth(word string, width int) []string {
	var lines []string
	runes := []rune(word)
	for len(runes) > 0 {
		i := 0
		currentWidth := 0
		for i < len(runes) {
			rw := runewidth.RuneWidth(runes[i])
			if currentWidth+rw > width && i > 0 {
				break
			}
			currentWidth += rw
			i++
		}
		lines = append(lines, string(runes[:i]))
		runes = runes[i:]
	}
	return lines
}
