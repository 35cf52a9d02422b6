package config

import "time"

// Default values for configuration.
const (
	// Server defaults
	DefaultServerHost      = "0.0.0.0"
	DefaultServerPort      = 8080
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxUploadSizeMB = 200
	DefaultCleanupInterval = 10 * time.Minute

	// Processing defaults
	DefaultTaskTimeout       = 120 * time.Second
	DefaultCacheTTL          = 60 * time.Minute
	DefaultTaskTTL           = 60 * time.Minute
	DefaultMaxTranscriptSize = 64

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// NATS defaults
	DefaultNATSSubject = "chat.parsed"
	DefaultNATSTimeout = 5 * time.Second

	// Database defaults
	DefaultDBMaxConns = 4
)
