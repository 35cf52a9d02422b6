package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"whatsapp-chat-parser/internal/adapters/exporter"
	"whatsapp-chat-parser/internal/adapters/source"
	"whatsapp-chat-parser/internal/domain"
	"whatsapp-chat-parser/internal/server/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 500

	multipartMemory = 32 << 20
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Pagination — метаданные постраничной выдачи.
type Pagination struct {
	CurrentPage int `json:"current_page"`
	PageSize    int `json:"page_size"`
	TotalItems  int `json:"total_items"`
	TotalPages  int `json:"total_pages"`
}

// ResultResponse — страница сообщений завершенной задачи.
type ResultResponse struct {
	Hash         string           `json:"hash"`
	Source       string           `json:"source"`
	Participants []string         `json:"participants"`
	Pagination   Pagination       `json:"pagination"`
	Data         []domain.Message `json:"data"`
}

// TaskStatusResponse — состояние задачи.
type TaskStatusResponse struct {
	TaskID       string     `json:"task_id"`
	Status       TaskStatus `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Transcripts  []string   `json:"transcripts,omitempty"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			http.Error(w, "File is too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Failed to get file from form", http.StatusBadRequest)
		return
	}
	defer file.Close()

	taskID := uuid.NewString()
	uploadPath, err := s.saveUpload(taskID, header.Filename, file)
	if err != nil {
		s.logger.Error("failed to save upload", slog.String("task_id", taskID), slog.String("error", err.Error()))
		http.Error(w, "Failed to save uploaded file", http.StatusInternalServerError)
		return
	}

	upload := usecase.Upload{
		Path:       uploadPath,
		Name:       header.Filename,
		Transcript: r.FormValue("transcript"),
	}

	s.taskStore.CreateTask(taskID, uploadPath, s.cfg.Processing.TaskTTL)
	go s.runTask(taskID, func(ctx context.Context) (*domain.ChatResult, error) {
		return s.processor.ProcessChat(ctx, upload)
	})

	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (s *Server) handleProcessByHash(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hash string `json:"hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Failed to decode request body", http.StatusBadRequest)
		return
	}
	if req.Hash == "" {
		http.Error(w, "Hash is required", http.StatusBadRequest)
		return
	}

	taskID := uuid.NewString()
	s.taskStore.CreateTask(taskID, "", s.cfg.Processing.TaskTTL)
	go s.runTask(taskID, func(ctx context.Context) (*domain.ChatResult, error) {
		return s.processor.ProcessByHash(ctx, req.Hash)
	})

	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

// runTask выполняет обработку в фоне и записывает итог в хранилище задач.
func (s *Server) runTask(taskID string, process func(ctx context.Context) (*domain.ChatResult, error)) {
	logger := s.logger.With(slog.String("task_id", taskID))
	_ = s.taskStore.UpdateTaskStatus(taskID, TaskStatusProcessing)

	ctx := context.Background()
	if s.cfg.Processing.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Processing.TaskTimeout)
		defer cancel()
	}

	started := time.Now()
	result, err := process(ctx)
	if err != nil {
		logger.Warn("task failed", slog.String("error", err.Error()))
		s.removeUpload(taskID)
		var ambiguous *source.AmbiguousTranscriptError
		if errors.As(err, &ambiguous) {
			_ = s.taskStore.UpdateTaskError(taskID, err.Error(), ambiguous.Candidates...)
		} else {
			_ = s.taskStore.UpdateTaskError(taskID, err.Error())
		}
		return
	}

	_ = s.taskStore.UpdateTaskResult(taskID, result)
	logger.Info("task completed",
		slog.String("hash", result.Hash),
		slog.Duration("elapsed", time.Since(started)))
}

func (s *Server) saveUpload(taskID, filename string, src io.Reader) (string, error) {
	dir := s.cfg.Server.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if ext != ".zip" && ext != ".txt" {
		ext = ".upload"
	}
	uploadPath := filepath.Join(dir, fmt.Sprintf("chat_%s%s", taskID, ext))

	out, err := os.Create(uploadPath)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(uploadPath)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(uploadPath)
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return uploadPath, nil
}

func (s *Server) removeUpload(taskID string) {
	task, err := s.taskStore.GetTask(taskID)
	if err != nil || task.UploadPath == "" {
		return
	}
	if err := os.Remove(task.UploadPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove upload", slog.String("path", task.UploadPath), slog.String("error", err.Error()))
	}
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	task, err := s.taskStore.GetTask(chi.URLParam(r, "taskID"))
	if err != nil {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, TaskStatusResponse{
		TaskID:       task.ID,
		Status:       task.Status,
		ErrorMessage: task.ErrorMessage,
		Transcripts:  task.Candidates,
	})
}

// completedResult возвращает результат задачи или пишет ошибку в ответ.
func (s *Server) completedResult(w http.ResponseWriter, r *http.Request) (*domain.ChatResult, bool) {
	task, err := s.taskStore.GetTask(chi.URLParam(r, "taskID"))
	if err != nil {
		http.Error(w, "Task not found", http.StatusNotFound)
		return nil, false
	}
	if task.Status != TaskStatusCompleted || task.Result == nil {
		http.Error(w, "Task is not completed", http.StatusBadRequest)
		return nil, false
	}
	return task.Result, true
}

func (s *Server) handleTaskResult(w http.ResponseWriter, r *http.Request) {
	result, ok := s.completedResult(w, r)
	if !ok {
		return
	}

	page, pageSize, err := parsePagination(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	messages := result.Chat.Messages
	total := len(messages)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, ResultResponse{
		Hash:         result.Hash,
		Source:       result.Source,
		Participants: result.Chat.Participants,
		Pagination: Pagination{
			CurrentPage: page,
			PageSize:    pageSize,
			TotalItems:  total,
			TotalPages:  (total + pageSize - 1) / pageSize,
		},
		Data: messages[start:end],
	})
}

// parsePagination разбирает page и page_size. Размер страницы ограничен maxPageSize.
func parsePagination(q url.Values) (int, int, error) {
	page, pageSize := defaultPage, defaultPageSize

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, fmt.Errorf("invalid page: %q", v)
		}
		page = n
	}
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, fmt.Errorf("invalid page_size: %q", v)
		}
		pageSize = min(n, maxPageSize)
	}
	return page, pageSize, nil
}

func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	result, ok := s.completedResult(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"participants": result.Chat.Participants})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	result, ok := s.completedResult(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, result.Stats)
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	result, ok := s.completedResult(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, struct {
		domain.Gallery
		Resolved   []string `json:"resolved"`
		Unresolved []string `json:"unresolved"`
	}{
		Gallery:    result.Gallery,
		Resolved:   nonNil(result.ResolvedNames()),
		Unresolved: nonNil(result.Unresolved),
	})
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	result, ok := s.completedResult(w, r)
	if !ok {
		return
	}

	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		http.Error(w, "Invalid media name", http.StatusBadRequest)
		return
	}
	// У результатов, полученных по хешу, вложения без содержимого.
	entry, found := result.Media[name]
	if !found || entry.Accessor == nil {
		http.Error(w, "Media not found", http.StatusNotFound)
		return
	}

	rc, err := entry.Accessor.Open()
	if err != nil {
		s.logger.Error("failed to open media", slog.String("name", name), slog.String("error", err.Error()))
		http.Error(w, "Media is no longer available", http.StatusGone)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(strings.ToLower(path.Ext(name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("failed to stream media", slog.String("name", name), slog.String("error", err.Error()))
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	result, ok := s.completedResult(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := exporter.WriteXLSX(&buf, result); err != nil {
		s.logger.Error("failed to build xlsx", slog.String("error", err.Error()))
		http.Error(w, "Failed to build export", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": "chat.xlsx"}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
