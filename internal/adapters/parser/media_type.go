package parser

import (
	"path"
	"strings"
	"whatsapp-chat-parser/internal/domain"
)

var mediaTypeByExtension = map[string]domain.MediaType{
	"png":  domain.MediaImage,
	"jpg":  domain.MediaImage,
	"jpeg": domain.MediaImage,

	"webp": domain.MediaSticker,

	"mp4": domain.MediaVideo,
	"mov": domain.MediaVideo,
	"3gp": domain.MediaVideo,
	"mkv": domain.MediaVideo,

	"opus": domain.MediaAudio,
	"mp3":  domain.MediaAudio,
	"wav":  domain.MediaAudio,
	"ogg":  domain.MediaAudio,
	"aac":  domain.MediaAudio,
	"m4a":  domain.MediaAudio,

	"docx": domain.MediaDocument,
	"doc":  domain.MediaDocument,
	"xlsx": domain.MediaDocument,
	"xls":  domain.MediaDocument,
	"pdf":  domain.MediaDocument,
	"ppt":  domain.MediaDocument,
	"pptx": domain.MediaDocument,
	"csv":  domain.MediaDocument,
}

// ClassifyMedia определяет тип вложения по расширению имени файла.
// Неизвестные расширения относятся к типу file.
func ClassifyMedia(filename string) domain.MediaType {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if t, ok := mediaTypeByExtension[ext]; ok {
		return t
	}
	return domain.MediaFile
}
