// Package config предоставляет управление конфигурацией приложения
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// DefaultConfigFile — файл конфигурации, который ищется в рабочей директории.
const DefaultConfigFile = "config.yml"

// Server содержит конфигурацию HTTP-сервера
type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadSizeMB int64         `yaml:"max_upload_size_mb"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	// UploadDir — каталог для загруженных файлов. Пустое значение — os.TempDir().
	UploadDir string `yaml:"upload_dir"`
}

// Processing содержит конфигурацию обработки
type Processing struct {
	TaskTimeout time.Duration `yaml:"task_timeout"` // 0 - без ограничений
	TaskTTL     time.Duration `yaml:"task_ttl"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	// MaxTranscriptMB ограничивает размер текстового транскрипта.
	MaxTranscriptMB int64 `yaml:"max_transcript_mb"`
}

// Logging содержит конфигурацию логирования
type Logging struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// NATS содержит настройки публикации событий. Пустой URL отключает публикацию.
type NATS struct {
	URL     string        `yaml:"url"`
	Subject string        `yaml:"subject"`
	Timeout time.Duration `yaml:"timeout"`
}

// Database содержит настройки PostgreSQL. Пустой DSN отключает хранилище.
type Database struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

// Config содержит конфигурацию приложения
type Config struct {
	Server     Server     `yaml:"server"`
	Processing Processing `yaml:"processing"`
	Logging    Logging    `yaml:"logging"`
	NATS       NATS       `yaml:"nats"`
	Database   Database   `yaml:"database"`
}

func defaultConfig() *Config {
	return &Config{
		Server: Server{
			Host:            DefaultServerHost,
			Port:            DefaultServerPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			MaxUploadSizeMB: DefaultMaxUploadSizeMB,
			CleanupInterval: DefaultCleanupInterval,
		},
		Processing: Processing{
			TaskTimeout:     DefaultTaskTimeout,
			TaskTTL:         DefaultTaskTTL,
			CacheTTL:        DefaultCacheTTL,
			MaxTranscriptMB: DefaultMaxTranscriptSize,
		},
		Logging: Logging{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		NATS: NATS{
			Subject: DefaultNATSSubject,
			Timeout: DefaultNATSTimeout,
		},
		Database: Database{
			MaxConns: DefaultDBMaxConns,
		},
	}
}

// LoadConfig собирает конфигурацию: значения по умолчанию, затем config.yml,
// затем переменные окружения (включая .env).
func LoadConfig() (*Config, error) {
	return Load(DefaultConfigFile)
}

// Load работает как LoadConfig, но читает YAML из указанного файла.
func Load(path string) (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	cfg := defaultConfig()
	if err := loadFromYAML(path, cfg); err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromYAML накладывает значения из YAML-файла поверх cfg.
// Отсутствие файла ошибкой не считается.
func loadFromYAML(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// applyEnv переопределяет значения из переменных окружения.
func applyEnv(cfg *Config) error {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.UploadDir = getEnv("UPLOAD_DIR", cfg.Server.UploadDir)
	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.Subject = getEnv("NATS_SUBJECT", cfg.NATS.Subject)
	cfg.Database.DSN = getEnv("DATABASE_URL", cfg.Database.DSN)

	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("MAX_UPLOAD_SIZE_MB"); v != "" {
		size, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_UPLOAD_SIZE_MB: %w", err)
		}
		cfg.Server.MaxUploadSizeMB = size
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"TASK_TIMEOUT", &cfg.Processing.TaskTimeout},
		{"TASK_TTL", &cfg.Processing.TaskTTL},
		{"CACHE_TTL", &cfg.Processing.CacheTTL},
		{"SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

// Address возвращает адрес сервера в формате "host:port"
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// MaxUploadBytes возвращает лимит загрузки в байтах.
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadSizeMB << 20
}

// MaxTranscriptBytes возвращает лимит размера транскрипта в байтах.
func (c *Config) MaxTranscriptBytes() int64 {
	return c.Processing.MaxTranscriptMB << 20
}

// Validate проверяет, являются ли значения конфигурации допустимыми
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid port number (1-65535)")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	if c.Server.MaxUploadSizeMB <= 0 {
		return fmt.Errorf("server.max_upload_size_mb must be positive")
	}
	if c.Server.CleanupInterval <= 0 {
		return fmt.Errorf("server.cleanup_interval must be positive")
	}
	if c.Processing.TaskTimeout < 0 {
		return fmt.Errorf("processing.task_timeout must be non-negative (0 for no limit)")
	}
	if c.Processing.TaskTTL <= 0 {
		return fmt.Errorf("processing.task_ttl must be positive")
	}
	if c.Processing.CacheTTL <= 0 {
		return fmt.Errorf("processing.cache_ttl must be positive")
	}
	if c.Processing.MaxTranscriptMB < 0 {
		return fmt.Errorf("processing.max_transcript_mb must be non-negative (0 for no limit)")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.NATS.URL != "" && c.NATS.Subject == "" {
		return fmt.Errorf("nats.subject must not be empty when nats.url is set")
	}
	if c.Database.DSN != "" && c.Database.MaxConns <= 0 {
		return fmt.Errorf("database.max_conns must be positive")
	}
	return nil
}

// getEnv извлекает значение переменной окружения или возвращает значение по умолчанию, если она не установлена
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
