package config

import "time"

const (
	DefaultPollingInterval     = 2 * time.Second
	DefaultHTTPTimeout         = 60 * time.Second
	DefaultHealthCheckInterval = 30 * time.Second
	// Bot API не отдает файлы больше 20 МБ.
	DefaultMaxFileSizeMB = 20

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultPidFile = "bot.pid"
	DefaultLogFile = "bot.log"
)

// Ширина колонок таблицы статистики.
const (
	DefaultMetricColumnWidth = 16
	DefaultValueColumnWidth  = 20
)
