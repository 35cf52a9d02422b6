package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
	"whatsapp-chat-parser/internal/domain"
)

// Статусы задач, которые возвращает сервер.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const defaultTimeout = 30 * time.Second

// ErrTaskFailed возвращается WaitForTask, если сервер завершил задачу с ошибкой.
var ErrTaskFailed = errors.New("task failed")

// ServerClient — клиент для взаимодействия с API бэкенд-сервера.
type ServerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewServerClient создает новый экземпляр ServerClient.
// timeout <= 0 заменяется значением по умолчанию.
func NewServerClient(baseURL string, timeout time.Duration) *ServerClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ServerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ID возвращает адрес сервера, которым клиент идентифицируется в пуле.
func (c *ServerClient) ID() string {
	return c.baseURL
}

// Health проверяет доступность сервера.
func (c *ServerClient) Health(ctx context.Context) error {
	var result struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", &result); err != nil {
		return err
	}
	if result.Status != "ok" {
		return fmt.Errorf("server reports status %q", result.Status)
	}
	return nil
}

// API-ответы
type StartTaskResponse struct {
	TaskID string `json:"task_id"`
}

type TaskStatusResponse struct {
	TaskID       string   `json:"task_id"`
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Transcripts  []string `json:"transcripts,omitempty"`
}

// UploadFile описывает экспорт чата для загрузки на сервер.
// Transcript задает имя .txt файла, если в архиве их несколько.
type UploadFile struct {
	Name       string
	Content    io.Reader
	Transcript string
}

// StartTask отправляет экспорт на сервер для начала обработки.
func (c *ServerClient) StartTask(ctx context.Context, file UploadFile) (*StartTaskResponse, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", file.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file for %s: %w", file.Name, err)
	}
	if _, err = io.Copy(fw, file.Content); err != nil {
		return nil, fmt.Errorf("failed to copy file content for %s: %w", file.Name, err)
	}
	if file.Transcript != "" {
		if err := w.WriteField("transcript", file.Transcript); err != nil {
			return nil, fmt.Errorf("failed to write transcript field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/process", &b)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var result StartTaskResponse
	if err := c.do(req, http.StatusAccepted, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StartTaskByHash запускает задачу по хэшу ранее обработанного экспорта.
func (c *ServerClient) StartTaskByHash(ctx context.Context, hash string) (*StartTaskResponse, error) {
	body, err := json.Marshal(map[string]string{"hash": hash})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/process-by-hash", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result StartTaskResponse
	if err := c.do(req, http.StatusAccepted, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTaskStatus запрашивает статус задачи.
func (c *ServerClient) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatusResponse, error) {
	var result TaskStatusResponse
	if err := c.get(ctx, "/api/v1/tasks/"+taskID, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTaskStats запрашивает статистику выполненной задачи.
func (c *ServerClient) GetTaskStats(ctx context.Context, taskID string) (*domain.ChatStats, error) {
	var result domain.ChatStats
	if err := c.get(ctx, "/api/v1/tasks/"+taskID+"/stats", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTaskExport скачивает xlsx-выгрузку выполненной задачи.
func (c *ServerClient) GetTaskExport(ctx context.Context, taskID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/tasks/"+taskID+"/export.xlsx", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	return data, nil
}

// WaitForTask опрашивает статус задачи с интервалом interval, пока она не завершится.
// Для упавшей задачи возвращает последний статус вместе с ErrTaskFailed.
func (c *ServerClient) WaitForTask(ctx context.Context, taskID string, interval time.Duration) (*TaskStatusResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.GetTaskStatus(ctx, taskID)
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case StatusCompleted:
			return status, nil
		case StatusFailed:
			return status, fmt.Errorf("%w: %s", ErrTaskFailed, status.ErrorMessage)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *ServerClient) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, http.StatusOK, v)
}

func (c *ServerClient) do(req *http.Request, want int, v any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, msg)
}
