package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
	"whatsapp-chat-parser/internal/domain"
)

// CacheItem представляет кэшированный результат обработки чата.
type CacheItem struct {
	Data      *domain.ChatResult
	ExpiresAt time.Time
}

// CacheStore хранит результаты по хешу загруженного файла.
type CacheStore struct {
	cache map[string]*CacheItem
	mutex sync.RWMutex
}

// NewCacheStore создает новый экземпляр CacheStore.
func NewCacheStore() *CacheStore {
	return &CacheStore{
		cache: make(map[string]*CacheItem),
	}
}

// Get извлекает кэшированный элемент по его ключу (хешу).
func (cs *CacheStore) Get(key string) (*CacheItem, bool) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	item, exists := cs.cache[key]
	if !exists || time.Now().After(item.ExpiresAt) {
		return nil, false
	}

	return item, true
}

// Put сохраняет результат в кэш с указанным сроком действия.
func (cs *CacheStore) Put(key string, data *domain.ChatResult, ttl time.Duration) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.cache[key] = &CacheItem{
		Data:      data,
		ExpiresAt: time.Now().Add(ttl),
	}
}

// Len возвращает число элементов, включая еще не очищенные просроченные.
func (cs *CacheStore) Len() int {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()
	return len(cs.cache)
}

// CleanupExpired удаляет просроченные элементы из кэша.
func (cs *CacheStore) CleanupExpired() {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	now := time.Now()
	for key, item := range cs.cache {
		if now.After(item.ExpiresAt) {
			delete(cs.cache, key)
		}
	}
}

// StartCleanupTicker запускает периодическую очистку просроченных элементов.
func (cs *CacheStore) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cs.CleanupExpired()
			}
		}
	}()
}

// CalculateFileHash вычисляет SHA-256 содержимого файла.
// Дополнительные строки (например, выбранный транскрипт архива) входят в хеш,
// чтобы разные выборки из одного архива не делили запись кэша.
func CalculateFileHash(filePath string, extra ...string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	for _, s := range extra {
		if s == "" {
			continue
		}
		hasher.Write([]byte{0})
		hasher.Write([]byte(s))
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// CalculateHashFromString вычисляет SHA-256 строки.
func CalculateHashFromString(s string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(s)))
}
