package bot

import (
	"sync"
	"time"
)

type activeTask struct {
	taskID    string
	startedAt time.Time
}

// TaskStore — потокобезопасное in-memory хранилище активных задач:
// в каждом чате Telegram одновременно обрабатывается не больше одного экспорта.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[int64]activeTask
}

// NewTaskStore создает новый экземпляр TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[int64]activeTask),
	}
}

// Set сохраняет задачу чата, перезаписывая предыдущую.
func (s *TaskStore) Set(chatID int64, taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[chatID] = activeTask{taskID: taskID, startedAt: time.Now()}
}

// Get возвращает идентификатор активной задачи чата.
func (s *TaskStore) Get(chatID int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[chatID]
	return task.taskID, ok
}

// Delete удаляет задачу чата и возвращает время ее выполнения.
func (s *TaskStore) Delete(chatID int64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[chatID]
	if !ok {
		return 0
	}
	delete(s.tasks, chatID)
	return time.Since(task.startedAt)
}

// Len возвращает количество активных задач.
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
