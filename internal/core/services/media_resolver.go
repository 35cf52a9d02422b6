package services

import (
	"strings"
	"whatsapp-chat-parser/internal/domain"
	"whatsapp-chat-parser/internal/ports"
)

// MediaResolverImpl реализует интерфейс MediaResolver.
type MediaResolverImpl struct{}

// NewMediaResolver создает новый экземпляр MediaResolverImpl.
func NewMediaResolver() ports.MediaResolver {
	return &MediaResolverImpl{}
}

// Resolve сопоставляет каждую ссылку на вложение с кандидатом.
// Сначала ищется кандидат, имя которого оканчивается на имя вложения,
// затем — содержащий его как подстроку. В обоих случаях побеждает первый
// кандидат в порядке списка. Отсутствие совпадения не является ошибкой.
func (r *MediaResolverImpl) Resolve(candidates []domain.CandidateEntry, messages []domain.Message) domain.ResolvedMediaMap {
	resolved := make(domain.ResolvedMediaMap)

	for _, msg := range messages {
		if msg.Media == nil || msg.Media.Name == "" {
			continue
		}
		name := msg.Media.Name

		if entry, ok := findCandidate(candidates, name, strings.HasSuffix); ok {
			resolved[name] = entry
			continue
		}
		if entry, ok := findCandidate(candidates, name, strings.Contains); ok {
			resolved[name] = entry
		}
	}

	return resolved
}

func findCandidate(candidates []domain.CandidateEntry, name string, match func(s, substr string) bool) (domain.CandidateEntry, bool) {
	for _, c := range candidates {
		if match(c.Filename, name) {
			return c, true
		}
	}
	return domain.CandidateEntry{}, false
}

// Unresolved возвращает уникальные имена вложений, для которых не нашлось кандидата,
// в порядке первого появления.
func Unresolved(messages []domain.Message, resolved domain.ResolvedMediaMap) []string {
	var names []string
	seen := make(map[string]bool)
	for _, msg := range messages {
		if msg.Media == nil || seen[msg.Media.Name] {
			continue
		}
		seen[msg.Media.Name] = true
		if _, ok := resolved[msg.Media.Name]; !ok {
			names = append(names, msg.Media.Name)
		}
	}
	return names
}
