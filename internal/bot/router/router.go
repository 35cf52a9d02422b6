package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
	"whatsapp-chat-parser/internal/client"
	"whatsapp-chat-parser/internal/domain"
)

var (
	// ErrNoHealthyBackends возвращается, когда в пуле нет доступных серверов.
	ErrNoHealthyBackends = errors.New("no healthy backends available")
	// ErrTaskNotRouted возвращается для задачи, запущенной не через этот роутер.
	ErrTaskNotRouted = errors.New("task is not bound to any backend")
)

const (
	defaultHealthCheckInterval = 30 * time.Second
	defaultRouteTTL            = 2 * time.Hour
)

// Backend — бэкенд-сервер, на который роутер распределяет задачи.
type Backend interface {
	ID() string
	Health(ctx context.Context) error
	StartTask(ctx context.Context, file client.UploadFile) (*client.StartTaskResponse, error)
	GetTaskStatus(ctx context.Context, taskID string) (*client.TaskStatusResponse, error)
	GetTaskStats(ctx context.Context, taskID string) (*domain.ChatStats, error)
	GetTaskExport(ctx context.Context, taskID string) ([]byte, error)
}

// Strategy выбирает сервер для новой задачи.
type Strategy interface {
	Next(backends []Backend) (Backend, error)
}

// Option определяет функциональную опцию для конфигурации роутера.
type Option func(*Router)

// WithHealthCheckInterval — опция для установки интервала проверки работоспособности.
func WithHealthCheckInterval(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.healthCheckInterval = d
		}
	}
}

// WithRouteTTL задает, сколько роутер помнит, на каком сервере запущена задача.
func WithRouteTTL(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.routeTTL = d
		}
	}
}

// WithStrategy — опция для установки стратегии выбора сервера.
func WithStrategy(s Strategy) Option {
	return func(r *Router) {
		if s != nil {
			r.strategy = s
		}
	}
}

// WithLogger — опция для установки логгера.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

type route struct {
	backend   Backend
	createdAt time.Time
}

// Router распределяет задачи между несколькими серверами и следит за их состоянием.
// Задача всегда опрашивается на том сервере, где была запущена.
type Router struct {
	mu        sync.RWMutex
	order     []string
	healthy   map[string]Backend
	unhealthy map[string]Backend
	routes    map[string]route
	strategy  Strategy
	log       *slog.Logger

	healthCheckInterval time.Duration
	routeTTL            time.Duration
	ticker              *time.Ticker
	done                chan struct{}
	wg                  sync.WaitGroup
}

// NewRouter создает роутер и запускает фоновую проверку работоспособности.
func NewRouter(backends []Backend, opts ...Option) (*Router, error) {
	r := &Router{
		healthy:             make(map[string]Backend),
		unhealthy:           make(map[string]Backend),
		routes:              make(map[string]route),
		strategy:            NewRoundRobinStrategy(),
		healthCheckInterval: defaultHealthCheckInterval,
		routeTTL:            defaultRouteTTL,
		done:                make(chan struct{}),
		log:                 slog.Default().With("component", "router"),
	}

	for _, opt := range opts {
		opt(r)
	}

	if len(backends) == 0 {
		return nil, errors.New("no backends provided to router")
	}
	for _, b := range backends {
		if _, dup := r.healthy[b.ID()]; dup {
			continue
		}
		r.order = append(r.order, b.ID())
		r.healthy[b.ID()] = b
	}

	r.ticker = time.NewTicker(r.healthCheckInterval)
	r.wg.Add(1)
	go r.healthCheckLoop()

	return r, nil
}

// Stop останавливает фоновую проверку работоспособности.
func (r *Router) Stop() {
	r.log.Info("stopping router...")
	r.ticker.Stop()
	close(r.done)
	r.wg.Wait()
	r.log.Info("router stopped")
}

// StartTask запускает задачу на сервере, выбранном стратегией.
// При ошибке сервер уходит на проверку, а задача пробуется на следующем.
func (r *Router) StartTask(ctx context.Context, file client.UploadFile) (*client.StartTaskResponse, error) {
	attempts := r.healthyCount()
	var lastErr error
	for i := 0; i < attempts; i++ {
		backend, err := r.next()
		if err != nil {
			break
		}

		resp, err := backend.StartTask(ctx, file)
		if err == nil {
			r.bind(resp.TaskID, backend)
			r.log.DebugContext(ctx, "task routed", "backend", backend.ID(), "task_id", resp.TaskID)
			return resp, nil
		}

		r.log.WarnContext(ctx, "StartTask call failed", "backend", backend.ID(), "error", err)
		r.setUnhealthy(backend.ID())
		lastErr = err

		// Тело файла уже прочитано, повторить можно только перематываемый поток.
		if !rewind(file) {
			break
		}
	}
	if lastErr == nil {
		lastErr = ErrNoHealthyBackends
	}
	return nil, fmt.Errorf("failed to start task: %w", lastErr)
}

// GetTaskStatus запрашивает статус задачи у ее сервера.
func (r *Router) GetTaskStatus(ctx context.Context, taskID string) (*client.TaskStatusResponse, error) {
	backend, err := r.backendFor(taskID)
	if err != nil {
		return nil, err
	}
	return backend.GetTaskStatus(ctx, taskID)
}

// GetTaskStats запрашивает статистику задачи у ее сервера.
func (r *Router) GetTaskStats(ctx context.Context, taskID string) (*domain.ChatStats, error) {
	backend, err := r.backendFor(taskID)
	if err != nil {
		return nil, err
	}
	return backend.GetTaskStats(ctx, taskID)
}

// GetTaskExport скачивает выгрузку задачи с ее сервера.
func (r *Router) GetTaskExport(ctx context.Context, taskID string) ([]byte, error) {
	backend, err := r.backendFor(taskID)
	if err != nil {
		return nil, err
	}
	return backend.GetTaskExport(ctx, taskID)
}

func (r *Router) healthyCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.healthy)
}

func (r *Router) next() (Backend, error) {
	r.mu.RLock()
	backends := make([]Backend, 0, len(r.healthy))
	for _, id := range r.order {
		if b, ok := r.healthy[id]; ok {
			backends = append(backends, b)
		}
	}
	strategy := r.strategy
	r.mu.RUnlock()

	return strategy.Next(backends)
}

func (r *Router) bind(taskID string, backend Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[taskID] = route{backend: backend, createdAt: time.Now()}
}

func (r *Router) backendFor(taskID string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routes[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotRouted, taskID)
	}
	return rt.backend, nil
}

// healthCheckLoop периодически проверяет нездоровые серверы и забывает старые маршруты.
func (r *Router) healthCheckLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ticker.C:
			r.checkUnhealthy()
			r.pruneRoutes(time.Now())
		case <-r.done:
			return
		}
	}
}

func (r *Router) checkUnhealthy() {
	r.mu.RLock()
	toCheck := make([]Backend, 0, len(r.unhealthy))
	for _, b := range r.unhealthy {
		toCheck = append(toCheck, b)
	}
	r.mu.RUnlock()

	for _, b := range toCheck {
		ctx, cancel := context.WithTimeout(context.Background(), r.healthCheckInterval)
		err := b.Health(ctx)
		cancel()
		if err == nil {
			r.setHealthy(b.ID())
		} else {
			r.log.Debug("backend remains unhealthy", "backend", b.ID(), "reason", err)
		}
	}
}

func (r *Router) pruneRoutes(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for taskID, rt := range r.routes {
		if now.Sub(rt.createdAt) > r.routeTTL {
			delete(r.routes, taskID)
		}
	}
}

// setUnhealthy перемещает сервер из пула здоровых в пул нездоровых.
func (r *Router) setUnhealthy(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.healthy[id]
	if !ok {
		return
	}
	delete(r.healthy, id)
	r.unhealthy[id] = b

	r.log.Warn("backend moved to unhealthy pool", "backend", id, "healthy_count", len(r.healthy), "unhealthy_count", len(r.unhealthy))
}

// setHealthy возвращает сервер в пул здоровых.
func (r *Router) setHealthy(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.unhealthy[id]
	if !ok {
		return
	}
	delete(r.unhealthy, id)
	r.healthy[id] = b

	r.log.Info("backend moved back to healthy pool", "backend", id, "healthy_count", len(r.healthy), "unhealthy_count", len(r.unhealthy))
}

// rewind перематывает содержимое файла в начало, если поток это поддерживает.
func rewind(file client.UploadFile) bool {
	seeker, ok := file.Content.(io.Seeker)
	if !ok {
		return false
	}
	_, err := seeker.Seek(0, io.SeekStart)
	return err == nil
}
