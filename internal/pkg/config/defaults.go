package config

import "time"

// Default values for configuration.
const (
	// Gateway defaults
	DefaultRoomType         = "live"
	DefaultHistoryPageSize  = 100
	DefaultTokenTimeout     = 10 * time.Second
	DefaultHandshakeTimeout = 15 * time.Second
	DefaultWriteTimeout     = 10 * time.Second

	// Reconnect defaults; 0 attempts keeps a dropped session idle
	DefaultReconnectAttempts        = 0
	DefaultReconnectInitialInterval = 1 * time.Second
	DefaultReconnectMaxInterval     = 30 * time.Second

	// Backend defaults
	DefaultBackendTimeout = 30 * time.Second

	// Translation defaults
	DefaultTargetLanguage  = "en"
	DefaultCacheTTL        = 30 * time.Minute
	DefaultCleanupInterval = 10 * time.Minute

	// Send throttle defaults
	DefaultSendRate  = 2.0
	DefaultSendBurst = 5

	// Status server defaults
	DefaultStatusHost      = "127.0.0.1"
	DefaultStatusPort      = 8090
	DefaultReadTimeout     = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 5 * time.Second

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)
