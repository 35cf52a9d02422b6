package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
	"whatsapp-chat-parser/internal/domain"
)

// ErrTaskNotFound возвращается для неизвестного или удаленного ID задачи.
var ErrTaskNotFound = errors.New("task not found")

// TaskStatus представляет статус задачи обработки
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task представляет собой одну задачу обработки
type Task struct {
	ID           string
	Status       TaskStatus
	Result       *domain.ChatResult
	ErrorMessage string
	// Candidates — .txt файлы архива, если задача упала из-за неоднозначного выбора транскрипта.
	Candidates []string
	// UploadPath — загруженный файл. Он нужен, пока задача жива:
	// из него отдаются вложения архива.
	UploadPath string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// TaskStore управляет хранением и извлечением задач
type TaskStore struct {
	tasks  map[string]*Task
	mutex  sync.RWMutex
	logger *slog.Logger
}

// NewTaskStore создает новый экземпляр TaskStore
func NewTaskStore(logger *slog.Logger) *TaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskStore{
		tasks:  make(map[string]*Task),
		logger: logger,
	}
}

// CreateTask создает новую задачу со статусом 'pending'
func (ts *TaskStore) CreateTask(taskID, uploadPath string, ttl time.Duration) {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	now := time.Now()
	ts.tasks[taskID] = &Task{
		ID:         taskID,
		Status:     TaskStatusPending,
		UploadPath: uploadPath,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}

// UpdateTaskStatus обновляет статус задачи
func (ts *TaskStore) UpdateTaskStatus(taskID string, status TaskStatus) error {
	return ts.update(taskID, func(task *Task) {
		task.Status = status
	})
}

// UpdateTaskResult сохраняет результат и переводит задачу в 'completed'
func (ts *TaskStore) UpdateTaskResult(taskID string, result *domain.ChatResult) error {
	return ts.update(taskID, func(task *Task) {
		task.Status = TaskStatusCompleted
		task.Result = result
	})
}

// UpdateTaskError сохраняет сообщение об ошибке и переводит задачу в 'failed'
func (ts *TaskStore) UpdateTaskError(taskID string, errorMessage string, candidates ...string) error {
	return ts.update(taskID, func(task *Task) {
		task.Status = TaskStatusFailed
		task.ErrorMessage = errorMessage
		task.Candidates = candidates
	})
}

func (ts *TaskStore) update(taskID string, fn func(*Task)) error {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	task, exists := ts.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	fn(task)
	return nil
}

// GetTask возвращает снимок задачи по ее ID
func (ts *TaskStore) GetTask(taskID string) (Task, error) {
	ts.mutex.RLock()
	defer ts.mutex.RUnlock()

	task, exists := ts.tasks[taskID]
	if !exists {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return *task, nil
}

// CleanupExpired удаляет просроченные задачи вместе с загруженными файлами
func (ts *TaskStore) CleanupExpired() {
	ts.mutex.Lock()
	var uploads []string
	now := time.Now()
	for taskID, task := range ts.tasks {
		if now.After(task.ExpiresAt) {
			if task.UploadPath != "" {
				uploads = append(uploads, task.UploadPath)
			}
			delete(ts.tasks, taskID)
		}
	}
	ts.mutex.Unlock()

	for _, path := range uploads {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			ts.logger.Warn("failed to remove upload", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
}

// StartCleanupTicker запускает тикер для периодической очистки просроченных задач
func (ts *TaskStore) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ts.CleanupExpired()
			}
		}
	}()
}
