// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// UploadTimeout applies to attachment uploads and downloads
	UploadTimeout = 2 * time.Minute

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// WebSocket constants
const (
	// WebSocketWriteWait is the time allowed to write a frame to the peer
	WebSocketWriteWait = 10 * time.Second

	// WebSocketPongWait is the time allowed to read the next pong from the peer
	WebSocketPongWait = 60 * time.Second

	// WebSocketPingInterval must be shorter than WebSocketPongWait
	WebSocketPingInterval = (WebSocketPongWait * 9) / 10

	// WebSocketMaxMessageSize caps inbound frames; clients only send control messages
	WebSocketMaxMessageSize = 4096

	// WebSocketSendBuffer is the per-connection outbound queue length
	WebSocketSendBuffer = 64
)

// Redis-backed state
const (
	// PushTokenExpiry is the validity period for push notification tokens
	PushTokenExpiry = 30 * 24 * time.Hour // 30 days

	// PresenceTTL is how long a user stays online without a heartbeat
	PresenceTTL = 2 * time.Minute

	// StreamerSettingsCacheTTL bounds how stale cached privacy settings can be
	StreamerSettingsCacheTTL = 30 * time.Second

	// RedisHealthCheckInterval is the interval between Redis pings
	RedisHealthCheckInterval = 10 * time.Second

	// AuditLogRetention is how long audit trails are kept
	AuditLogRetention = 90 * 24 * time.Hour
)

// Rate limiting constants
const (
	// DefaultRequestsPerMinute applies to every API route per client
	DefaultRequestsPerMinute = 300

	// RateLimitWindow is the sliding window for Redis-backed limits
	RateLimitWindow = time.Minute
)
