package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
	"whatsapp-chat-parser/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(hash string) *domain.ChatResult {
	return &domain.ChatResult{Hash: hash, Chat: &domain.ParsedChat{Participants: []string{"Ann"}}}
}

func TestCacheStore(t *testing.T) {
	t.Run("Создание нового хранилища кэша", func(t *testing.T) {
		cs := NewCacheStore()
		assert.NotNil(t, cs)
		assert.Equal(t, 0, cs.Len())
	})

	t.Run("Запись и чтение из кэша", func(t *testing.T) {
		cs := NewCacheStore()
		data := result("k")
		ttl := time.Minute

		cs.Put("k", data, ttl)

		item, found := cs.Get("k")
		require.True(t, found)
		assert.Same(t, data, item.Data)
		assert.WithinDuration(t, time.Now().Add(ttl), item.ExpiresAt, time.Second)
	})

	t.Run("Чтение несуществующего ключа", func(t *testing.T) {
		_, found := NewCacheStore().Get("missing")
		assert.False(t, found)
	})

	t.Run("Чтение просроченного ключа", func(t *testing.T) {
		cs := NewCacheStore()
		cs.Put("expired", result("expired"), -time.Second)

		_, found := cs.Get("expired")
		assert.False(t, found)
	})

	t.Run("Очистка просроченных ключей", func(t *testing.T) {
		cs := NewCacheStore()
		cs.Put("expired", result("expired"), -time.Minute)
		cs.Put("valid", result("valid"), time.Minute)

		cs.CleanupExpired()

		assert.Equal(t, 1, cs.Len())
		_, found := cs.Get("valid")
		assert.True(t, found)
	})
}

func TestStartCleanupTicker(t *testing.T) {
	cs := NewCacheStore()
	cs.Put("expired", result("expired"), 20*time.Millisecond)
	cs.Put("valid", result("valid"), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cs.StartCleanupTicker(ctx, 50*time.Millisecond)

	assert.Eventually(t, func() bool { return cs.Len() == 1 }, time.Second, 10*time.Millisecond)
	_, found := cs.Get("valid")
	assert.True(t, found)
}

func TestCalculateFileHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o600))

	t.Run("Успешное вычисление хеша", func(t *testing.T) {
		hash, err := CalculateFileHash(path)
		require.NoError(t, err)
		assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", hash)
	})

	t.Run("Имя транскрипта меняет хеш", func(t *testing.T) {
		plain, err := CalculateFileHash(path)
		require.NoError(t, err)
		withEmpty, err := CalculateFileHash(path, "")
		require.NoError(t, err)
		withName, err := CalculateFileHash(path, "a.txt")
		require.NoError(t, err)

		assert.Equal(t, plain, withEmpty)
		assert.NotEqual(t, plain, withName)
	})

	t.Run("Файл не найден", func(t *testing.T) {
		_, err := CalculateFileHash(filepath.Join(t.TempDir(), "missing.txt"))
		assert.Error(t, err)
	})

	t.Run("Директория вместо файла", func(t *testing.T) {
		_, err := CalculateFileHash(t.TempDir())
		assert.Error(t, err)
	})
}

func TestCalculateHashFromString(t *testing.T) {
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", CalculateHashFromString("hello world"))
}
