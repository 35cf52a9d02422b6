package parser

import (
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
	"whatsapp-chat-parser/internal/domain"
	"whatsapp-chat-parser/internal/ports"
)

// ErrInvalidInput возвращается, когда входные данные не являются текстом UTF-8.
var ErrInvalidInput = errors.New("invalid input: transcript must be utf-8 text")

// Пробельный символ экспорта: обычный пробел, неразрывный пробел или
// узкий неразрывный пробел (встречается в экспортах iOS).
const space = `[\s\x{00A0}\x{202F}]`

// Разделитель между датой и временем.
const dateTimeSep = space

var (
	// [D/M/Y, H:MM:SS] Name: message
	bracketHeaderPattern = regexp.MustCompile(`^\[(\d{1,2}/\d{1,2}/\d{2,4}),` + dateTimeSep + `(\d{1,2}:\d{2}:\d{2})\]` + dateTimeSep + `([^:]+): (.*)`)
	// D/M/Y, H.MM - Name: message  |  D/M/Y H:MM - Name: message
	dashHeaderPattern = regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{2,4}),?` + dateTimeSep + `(\d{1,2}[.:]\d{2}) - ([^:]+): (.*)`)

	pinNotificationPattern = regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{2,4}),?` + dateTimeSep + `\d{1,2}[.:]\d{2} - .+ menyematkan pesan$`)

	attachmentPattern = regexp.MustCompile(`(?i)([\w-]+\.\w+)` + space + `+\(file terlampir\)(?:\n(.*))?`)

	editedMarkerPattern = regexp.MustCompile(`(?is)^(.*?)` + space + `*(?:<Pesan ini diedit>|Pesan ini telah diedit|This message was edited|&lt;Pesan ini diedit&gt;)$`)

	htmlEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")
)

// Option определяет функциональную опцию для парсера.
type Option func(*WhatsAppParser)

// WithLogger задает логгер для диагностических сообщений парсера.
func WithLogger(logger *slog.Logger) Option {
	return func(p *WhatsAppParser) {
		if logger != nil {
			p.log = logger
		}
	}
}

// WhatsAppParser реализует интерфейс Parser для текстового экспорта WhatsApp.
// Парсер не хранит состояния между вызовами и безопасен для параллельного использования.
type WhatsAppParser struct {
	log *slog.Logger
}

// NewWhatsAppParser создает новый экземпляр WhatsAppParser.
func NewWhatsAppParser(opts ...Option) ports.Parser {
	p := &WhatsAppParser{log: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse проверяет, что данные являются текстом, и разбирает их.
// Пустой ввод дает пустой, но корректный результат.
func (p *WhatsAppParser) Parse(data []byte) (*domain.ParsedChat, error) {
	if !utf8.Valid(data) {
		return nil, ErrInvalidInput
	}
	chat, diag := parseText(string(data))
	if diag.droppedLines > 0 || diag.orphanPins > 0 {
		p.log.Debug("transcript lines ignored",
			"dropped_lines", diag.droppedLines,
			"orphan_pins", diag.orphanPins,
		)
	}
	return chat, nil
}

// ParseText разбирает текст экспорта за один проход по строкам.
func ParseText(raw string) *domain.ParsedChat {
	chat, _ := parseText(raw)
	return chat
}

type diagnostics struct {
	droppedLines int
	orphanPins   int
}

func parseText(raw string) (*domain.ParsedChat, diagnostics) {
	b := newChatBuilder()
	raw = strings.TrimPrefix(raw, "\uFEFF")

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")

		if m := matchHeader(line); m != nil {
			b.flush()
			b.open(m[1], m[2], m[3], m[4])
			continue
		}

		if m := pinNotificationPattern.FindStringSubmatch(line); m != nil {
			b.flush()
			b.pinLast(m[1])
			continue
		}

		if b.current != nil {
			b.current.Text += "\n" + sanitize(strings.TrimSpace(line))
			continue
		}

		if strings.TrimSpace(line) != "" {
			b.diag.droppedLines++
		}
	}
	b.flush()

	return &domain.ParsedChat{
		Messages:     b.messages,
		Participants: b.participants,
	}, b.diag
}

// matchHeader пробует обе нотации заголовка по порядку.
func matchHeader(line string) []string {
	if m := bracketHeaderPattern.FindStringSubmatch(line); m != nil {
		return m
	}
	return dashHeaderPattern.FindStringSubmatch(line)
}

// chatBuilder хранит единственное переносимое состояние — открытое сообщение.
type chatBuilder struct {
	current      *domain.Message
	messages     []domain.Message
	participants []string
	seen         map[string]struct{}
	diag         diagnostics
}

func newChatBuilder() *chatBuilder {
	return &chatBuilder{
		messages:     []domain.Message{},
		participants: []string{},
		seen:         make(map[string]struct{}),
	}
}

func (b *chatBuilder) open(date, clock, sender, body string) {
	sender = strings.TrimSpace(sender)
	b.current = &domain.Message{
		Date:   date,
		Time:   strings.Replace(clock, ".", ":", 1),
		Sender: sender,
		Text:   sanitize(strings.TrimSpace(body)),
	}
	if _, ok := b.seen[sender]; !ok {
		b.seen[sender] = struct{}{}
		b.participants = append(b.participants, sender)
	}
}

func (b *chatBuilder) pinLast(date string) {
	if len(b.messages) == 0 {
		b.diag.orphanPins++
		return
	}
	b.messages[len(b.messages)-1].Pinned = date
}

// flush закрывает открытое сообщение ровно один раз и добавляет его,
// если после обработки остался текст или вложение.
func (b *chatBuilder) flush() {
	if b.current == nil {
		return
	}
	msg := finalize(*b.current)
	b.current = nil

	if msg.Text != "" || msg.Media != nil {
		b.messages = append(b.messages, msg)
	}
}

// finalize применяет извлечение вложения, а если оно не сработало — снятие отметки о правке.
func finalize(msg domain.Message) domain.Message {
	if m := attachmentPattern.FindStringSubmatch(msg.Text); m != nil {
		msg.Media = &domain.MediaReference{
			Type: ClassifyMedia(m[1]),
			Name: m[1],
		}
		msg.Text = strings.TrimSpace(m[2])
		return msg
	}

	if m := editedMarkerPattern.FindStringSubmatch(msg.Text); m != nil {
		msg.Text = m[1]
		msg.Edited = true
	}
	msg.Text = strings.TrimSpace(msg.Text)
	return msg
}

func sanitize(s string) string {
	return htmlEscaper.Replace(s)
}
