package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"whatsapp-chat-parser/internal/ports"
)

// ErrTooLarge возвращается, когда источник превышает допустимый размер.
var ErrTooLarge = errors.New("source exceeds size limit")

// FileSource реализует интерфейс DataSource для чтения экспорта из файла.
type FileSource struct {
	filePath string
	maxBytes int64
}

// NewFileSource создает новый экземпляр FileSource.
// maxBytes <= 0 означает отсутствие ограничения.
func NewFileSource(filePath string, maxBytes int64) ports.DataSource {
	return &FileSource{filePath: filePath, maxBytes: maxBytes}
}

// Fetch читает файл по указанному пути и возвращает его содержимое.
func (s *FileSource) Fetch() ([]byte, error) {
	if s.filePath == "" {
		return nil, fmt.Errorf("file path is empty")
	}

	f, err := os.Open(s.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", s.filePath, err)
	}
	defer f.Close()

	return readLimited(f, s.maxBytes)
}

// MemorySource реализует интерфейс DataSource для данных, уже находящихся в памяти
// (например, текст, прочитанный из архива или stdin).
type MemorySource struct {
	data []byte
}

// NewMemorySource создает новый экземпляр MemorySource.
func NewMemorySource(data []byte) ports.DataSource {
	return &MemorySource{data: data}
}

// Fetch возвращает копию данных, чтобы вызывающий код не изменял исходный срез.
func (s *MemorySource) Fetch() ([]byte, error) {
	if s.data == nil {
		return nil, fmt.Errorf("data not set")
	}
	dataCopy := make([]byte, len(s.data))
	copy(dataCopy, s.data)
	return dataCopy, nil
}

// ReadAll читает r целиком с учетом ограничения размера.
func ReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	return readLimited(r, maxBytes)
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read source: %w", err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}
