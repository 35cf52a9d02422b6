package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"whatsapp-chat-parser/internal/domain"

	"github.com/klauspost/compress/zip"
)

// ErrNoTranscript возвращается, если в архиве нет ни одного .txt файла.
var ErrNoTranscript = errors.New("no .txt transcript found in archive")

var zipMagic = []byte("PK\x03\x04")

// AmbiguousTranscriptError возвращается, когда в архиве несколько .txt файлов
// и вызывающий код не указал, какой из них разбирать.
type AmbiguousTranscriptError struct {
	Candidates []string
}

func (e *AmbiguousTranscriptError) Error() string {
	return fmt.Sprintf("archive contains %d transcripts, choose one of: %s",
		len(e.Candidates), strings.Join(e.Candidates, ", "))
}

// IsArchive определяет zip-архив по расширению имени или по сигнатуре содержимого.
func IsArchive(name string, head []byte) bool {
	if strings.HasSuffix(strings.ToLower(name), ".zip") {
		return true
	}
	return bytes.HasPrefix(head, zipMagic)
}

// Archive — открытый zip-архив экспорта чата.
type Archive struct {
	path   string
	reader *zip.ReadCloser
}

// OpenArchive открывает zip-архив по пути.
func OpenArchive(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	return &Archive{path: path, reader: rc}, nil
}

// Close закрывает архив. Аксессоры записей остаются рабочими:
// каждый из них открывает архив заново.
func (a *Archive) Close() error {
	return a.reader.Close()
}

// Entries возвращает все записи-файлы архива в порядке их следования.
func (a *Archive) Entries() []domain.CandidateEntry {
	var entries []domain.CandidateEntry
	for _, f := range a.reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		entries = append(entries, domain.CandidateEntry{
			Filename: f.Name,
			Accessor: &entryAccessor{archivePath: a.path, name: f.Name},
		})
	}
	return entries
}

// TextFiles возвращает имена всех .txt записей архива.
func (a *Archive) TextFiles() []string {
	var names []string
	for _, f := range a.reader.File {
		if !f.FileInfo().IsDir() && strings.HasSuffix(f.Name, ".txt") {
			names = append(names, f.Name)
		}
	}
	return names
}

// SelectTranscript выбирает .txt файл для разбора.
// Если файл один, он выбирается независимо от preferred.
func (a *Archive) SelectTranscript(preferred string) (string, error) {
	texts := a.TextFiles()
	switch len(texts) {
	case 0:
		return "", ErrNoTranscript
	case 1:
		return texts[0], nil
	}
	for _, name := range texts {
		if name == preferred {
			return name, nil
		}
	}
	return "", &AmbiguousTranscriptError{Candidates: texts}
}

// ReadText читает содержимое записи целиком, не более maxBytes (0 — без ограничения).
func (a *Archive) ReadText(name string, maxBytes int64) ([]byte, error) {
	f := a.find(name)
	if f == nil {
		return nil, fmt.Errorf("entry %s not found in archive", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open entry %s: %w", name, err)
	}
	defer rc.Close()
	return readLimited(rc, maxBytes)
}

func (a *Archive) find(name string) *zip.File {
	for _, f := range a.reader.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// NewEntryAccessor возвращает аксессор записи name архива по пути archivePath.
func NewEntryAccessor(archivePath, name string) domain.EntryAccessor {
	return &entryAccessor{archivePath: archivePath, name: name}
}

// entryAccessor открывает запись архива по требованию.
type entryAccessor struct {
	archivePath string
	name        string
}

func (e *entryAccessor) Open() (io.ReadCloser, error) {
	archive, err := OpenArchive(e.archivePath)
	if err != nil {
		return nil, err
	}
	f := archive.find(e.name)
	if f == nil {
		archive.Close()
		return nil, fmt.Errorf("entry %s not found in archive", e.name)
	}
	rc, err := f.Open()
	if err != nil {
		archive.Close()
		return nil, fmt.Errorf("failed to open entry %s: %w", e.name, err)
	}
	return &entryReadCloser{ReadCloser: rc, archive: archive}, nil
}

type entryReadCloser struct {
	io.ReadCloser
	archive *Archive
}

func (r *entryReadCloser) Close() error {
	err := r.ReadCloser.Close()
	if cerr := r.archive.Close(); err == nil {
		err = cerr
	}
	return err
}
