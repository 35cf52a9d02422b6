package services

import (
	"regexp"
	"whatsapp-chat-parser/internal/domain"
	"whatsapp-chat-parser/internal/ports"
)

var linkPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// StatsServiceImpl реализует интерфейс StatsService.
type StatsServiceImpl struct{}

// NewStatsService создает новый экземпляр StatsServiceImpl.
func NewStatsService() ports.StatsService {
	return &StatsServiceImpl{}
}

// Compute собирает статистику по разобранному чату.
// При равном количестве сообщений самым активным считается тот, кто появился раньше.
func (s *StatsServiceImpl) Compute(chat *domain.ParsedChat) domain.ChatStats {
	stats := domain.ChatStats{MediaCount: make(map[domain.MediaType]int)}
	for _, t := range domain.MediaTypes {
		stats.MediaCount[t] = 0
	}
	if chat == nil {
		return stats
	}

	stats.TotalMessages = len(chat.Messages)
	stats.ParticipantCount = len(chat.Participants)

	perSender := make(map[string]int)
	var order []string
	for _, msg := range chat.Messages {
		if _, ok := perSender[msg.Sender]; !ok {
			order = append(order, msg.Sender)
		}
		perSender[msg.Sender]++

		if msg.Media != nil {
			stats.MediaCount[msg.Media.Type]++
		}
		if msg.Edited {
			stats.EditedCount++
		}
		if msg.IsPinned() {
			stats.PinnedCount++
		}
		stats.LinkCount += len(linkPattern.FindAllString(msg.Text, -1))
	}

	for _, sender := range order {
		if perSender[sender] > stats.TopSender.Count {
			stats.TopSender = domain.SenderCount{Sender: sender, Count: perSender[sender]}
		}
	}

	return stats
}

// Gallery раскладывает вложения и ссылки по вкладкам галереи.
func (s *StatsServiceImpl) Gallery(chat *domain.ParsedChat) domain.Gallery {
	gallery := domain.Gallery{
		Media: []domain.MediaReference{},
		Docs:  []domain.MediaReference{},
		Links: []string{},
	}
	if chat == nil {
		return gallery
	}

	for _, msg := range chat.Messages {
		if msg.Media != nil {
			switch msg.Media.Type {
			case domain.MediaDocument, domain.MediaFile:
				gallery.Docs = append(gallery.Docs, *msg.Media)
			default:
				gallery.Media = append(gallery.Media, *msg.Media)
			}
		}
		gallery.Links = append(gallery.Links, linkPattern.FindAllString(msg.Text, -1)...)
	}

	return gallery
}
