package domain

import "io"

// MediaType определяет тип вложения, вычисленный по расширению файла.
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaSticker  MediaType = "sticker"
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
	MediaDocument MediaType = "document"
	MediaFile     MediaType = "file"
)

// MediaTypes перечисляет все типы вложений в фиксированном порядке.
var MediaTypes = []MediaType{MediaImage, MediaSticker, MediaVideo, MediaAudio, MediaDocument, MediaFile}

// MediaReference представляет ссылку на вложение внутри сообщения.
// Name — имя файла в том виде, в котором оно записано в переписке (не путь).
type MediaReference struct {
	Type MediaType `json:"type"`
	Name string    `json:"name"`
}

// Message представляет одно логическое сообщение из экспорта чата.
type Message struct {
	Date   string          `json:"date"`
	Time   string          `json:"time"`
	Sender string          `json:"sender"`
	Text   string          `json:"text"`
	Media  *MediaReference `json:"media,omitempty"`
	Edited bool            `json:"edited,omitempty"`
	// Pinned содержит дату из уведомления о закреплении. Пустая строка — не закреплено.
	Pinned string `json:"pinned,omitempty"`
}

// IsPinned сообщает, было ли сообщение закреплено.
func (m Message) IsPinned() bool {
	return m.Pinned != ""
}

// ParsedChat — результат разбора текстового экспорта.
// Participants хранит уникальных отправителей в порядке первого появления.
type ParsedChat struct {
	Messages     []Message `json:"messages"`
	Participants []string  `json:"participants"`
}

// EntryAccessor открывает бинарное содержимое записи-кандидата.
type EntryAccessor interface {
	Open() (io.ReadCloser, error)
}

// CandidateEntry представляет бинарный файл (обычно запись архива),
// который может соответствовать ссылке на вложение.
type CandidateEntry struct {
	Filename string        `json:"filename"`
	Accessor EntryAccessor `json:"-"`
}

// ResolvedMediaMap сопоставляет имя вложения с выбранным кандидатом.
// Неразрешенные имена в карте отсутствуют.
type ResolvedMediaMap map[string]CandidateEntry

// SenderCount — отправитель и количество его сообщений.
type SenderCount struct {
	Sender string `json:"sender"`
	Count  int    `json:"count"`
}

// ChatStats содержит сводную статистику по чату.
type ChatStats struct {
	TotalMessages    int               `json:"total_messages"`
	ParticipantCount int               `json:"participant_count"`
	TopSender        SenderCount       `json:"top_sender"`
	MediaCount       map[MediaType]int `json:"media_count"`
	LinkCount        int               `json:"link_count"`
	EditedCount      int               `json:"edited_count"`
	PinnedCount      int               `json:"pinned_count"`
}

// Gallery группирует вложения и ссылки так, как их показывает галерея:
// медиа, документы и ссылки.
type Gallery struct {
	Media []MediaReference `json:"media"`
	Docs  []MediaReference `json:"docs"`
	Links []string         `json:"links"`
}

// ChatResult — полностью обработанный экспорт, который кэшируется и отдается через API.
type ChatResult struct {
	Hash       string           `json:"hash"`
	Source     string           `json:"source"`
	Chat       *ParsedChat      `json:"chat"`
	Media      ResolvedMediaMap `json:"-"`
	Unresolved []string         `json:"unresolved,omitempty"`
	Stats      ChatStats        `json:"stats"`
	Gallery    Gallery          `json:"gallery"`
}

// ResolvedNames возвращает имена разрешенных вложений в порядке появления в чате.
func (r *ChatResult) ResolvedNames() []string {
	if r == nil || r.Chat == nil {
		return nil
	}
	var names []string
	seen := make(map[string]bool)
	for _, msg := range r.Chat.Messages {
		if msg.Media == nil || seen[msg.Media.Name] {
			continue
		}
		seen[msg.Media.Name] = true
		if _, ok := r.Media[msg.Media.Name]; ok {
			names = append(names, msg.Media.Name)
		}
	}
	return names
}
