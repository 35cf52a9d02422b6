package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// ColumnWidths определяет ширину колонок таблицы статистики.
type ColumnWidths struct {
	Metric int `yaml:"metric"`
	Value  int `yaml:"value"`
}

// BotConfig содержит конфигурацию для Telegram-бота
type BotConfig struct {
	Token           string        `yaml:"token"`
	BackendURL      string        `yaml:"backend_url"`
	BackendURLs     []string      `yaml:"backend_urls"`
	HealthCheck     time.Duration `yaml:"health_check_interval"`
	PollingInterval time.Duration `yaml:"polling_interval"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
	MaxFileSizeMB   int64         `yaml:"max_file_size_mb"`
	Render          ColumnWidths  `yaml:"render"`
}

// Logging — настройки журнала.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Daemon — настройки запуска в фоне.
type Daemon struct {
	Enabled bool   `yaml:"enabled"`
	PidFile string `yaml:"pid_file"`
	LogFile string `yaml:"log_file"`
	WorkDir string `yaml:"work_dir"`
}

// Config является оберткой для соответствия структуре YAML файла.
type Config struct {
	Bot     BotConfig `yaml:"bot"`
	Logging Logging   `yaml:"logging"`
	Daemon  Daemon    `yaml:"daemon"`
}

// LoadBotConfig загружает конфигурацию бота из указанного файла.
// Токен из переменной окружения BOT_TOKEN (в том числе из .env) имеет приоритет над файлом.
func LoadBotConfig(filename string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read bot config file %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bot config: %w", err)
	}

	if token := os.Getenv("BOT_TOKEN"); token != "" {
		cfg.Bot.Token = token
	}
	if url := os.Getenv("BACKEND_URL"); url != "" {
		cfg.Bot.BackendURL = url
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	bot := &c.Bot
	if bot.PollingInterval == 0 {
		bot.PollingInterval = DefaultPollingInterval
	}
	if bot.HealthCheck == 0 {
		bot.HealthCheck = DefaultHealthCheckInterval
	}
	if bot.HTTPTimeout == 0 {
		bot.HTTPTimeout = DefaultHTTPTimeout
	}
	if bot.MaxFileSizeMB == 0 {
		bot.MaxFileSizeMB = DefaultMaxFileSizeMB
	}
	if bot.Render.Metric == 0 {
		bot.Render.Metric = DefaultMetricColumnWidth
	}
	if bot.Render.Value == 0 {
		bot.Render.Value = DefaultValueColumnWidth
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	if c.Daemon.PidFile == "" {
		c.Daemon.PidFile = DefaultPidFile
	}
	if c.Daemon.LogFile == "" {
		c.Daemon.LogFile = DefaultLogFile
	}
}

// MaxFileBytes возвращает допустимый размер документа в байтах.
func (c *BotConfig) MaxFileBytes() int64 {
	return c.MaxFileSizeMB << 20
}

// Backends возвращает адреса всех бэкенд-серверов:
// список backend_urls, а при его отсутствии backend_url.
func (c *BotConfig) Backends() []string {
	var urls []string
	for _, u := range c.BackendURLs {
		if u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 && c.BackendURL != "" {
		urls = append(urls, c.BackendURL)
	}
	return urls
}

// Validate проверяет корректность конфигурации бота.
func (c *BotConfig) Validate() error {
	if c.Token == "" || c.Token == "YOUR_TELEGRAM_BOT_TOKEN" {
		return fmt.Errorf("bot.token is not configured")
	}
	if len(c.Backends()) == 0 {
		return fmt.Errorf("bot.backend_url cannot be empty")
	}
	if c.PollingInterval <= 0 {
		return fmt.Errorf("bot.polling_interval must be positive")
	}
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("bot.max_file_size_mb must be positive")
	}
	return nil
}

// ValidateFull проверяет всю конфигурацию, включая журнал и режим демона.
func (c *Config) ValidateFull() error {
	if err := c.Bot.Validate(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	if c.Daemon.Enabled && c.Daemon.PidFile == "" {
		return fmt.Errorf("daemon.pid_file cannot be empty in daemon mode")
	}
	return nil
}
