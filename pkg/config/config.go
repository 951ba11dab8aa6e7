package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"

	"streamchat-backend/pkg/env"
)

// Config holds all configuration for the chat service
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	MinIO    MinIOConfig
	JWT      JWTConfig
	Log      LogConfig
	Push     PushConfig
	Chat     ChatConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Environment    string // development, staging, production
	ServiceName    string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// DatabaseConfig holds CockroachDB configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// MinIOConfig holds attachment storage configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret   string
	Audience string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// PushConfig selects and configures the push provider used for notifications
type PushConfig struct {
	Provider            string // fcm, apns, mock
	FCMProjectID        string
	FCMCredentialsPath  string
	APNsBundleID        string
	APNsKeyPath         string
	APNsKeyID           string
	APNsTeamID          string
	APNsCertificatePath string
	APNsCertificatePass string
	APNsProduction      bool
}

// ChatConfig holds messaging limits and background intervals
type ChatConfig struct {
	SettingsRefreshInterval time.Duration
	SendRatePerMinute       int
	EventQueueSize          int
	EventWorkers            int
	MaxAttachmentBytes      int64
}

// Load loads configuration from environment variables. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           env.GetInt("PORT", 8082),
			Environment:    env.GetString("ENV", "development"),
			ServiceName:    env.GetString("SERVICE_NAME", "chat-service"),
			AllowedOrigins: env.GetStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			RequestTimeout: env.GetDuration("REQUEST_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     env.GetString("DB_HOST", "localhost"),
			Port:     env.GetInt("DB_PORT", 26257),
			User:     env.GetString("DB_USER", "root"),
			Password: env.GetStringFromFile("DB_PASSWORD", ""),
			Database: env.GetString("DB_NAME", "streamchat"),
			SSLMode:  env.GetString("DB_SSL_MODE", "disable"),
			MaxConns: env.GetInt("DB_MAX_CONNS", 25),
			MinConns: env.GetInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		MinIO: MinIOConfig{
			Endpoint:  env.GetString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env.GetStringFromFile("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env.GetStringFromFile("MINIO_SECRET_KEY", "minioadmin"),
			UseSSL:    env.GetBool("MINIO_USE_SSL", false),
			Bucket:    env.GetString("MINIO_BUCKET", "message-attachments"),
		},
		JWT: JWTConfig{
			Secret:   env.GetStringFromFile("JWT_SECRET", ""),
			Audience: env.GetString("JWT_AUDIENCE", "streamchat-api"),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "/logs/chat.log"),
		},
		Push: PushConfig{
			Provider:            env.GetString("PUSH_PROVIDER", "mock"),
			FCMProjectID:        env.GetString("FCM_PROJECT_ID", ""),
			FCMCredentialsPath:  env.GetString("FCM_CREDENTIALS_PATH", ""),
			APNsBundleID:        env.GetString("APNS_BUNDLE_ID", ""),
			APNsKeyPath:         env.GetString("APNS_KEY_PATH", ""),
			APNsKeyID:           env.GetString("APNS_KEY_ID", ""),
			APNsTeamID:          env.GetString("APNS_TEAM_ID", ""),
			APNsCertificatePath: env.GetString("APNS_CERT_PATH", ""),
			APNsCertificatePass: env.GetStringFromFile("APNS_CERT_PASSWORD", ""),
			APNsProduction:      env.GetBool("APNS_PRODUCTION", false),
		},
		Chat: ChatConfig{
			SettingsRefreshInterval: env.GetDuration("CHAT_SETTINGS_REFRESH", time.Minute),
			SendRatePerMinute:       env.GetInt("CHAT_SEND_RATE_PER_MINUTE", 30),
			EventQueueSize:          env.GetInt("CHAT_EVENT_QUEUE_SIZE", 1024),
			EventWorkers:            env.GetInt("CHAT_EVENT_WORKERS", 2),
			MaxAttachmentBytes:      env.GetInt64("CHAT_MAX_ATTACHMENT_BYTES", 10<<20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Environment == "production" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Chat.EventWorkers < 1 {
		return fmt.Errorf("CHAT_EVENT_WORKERS must be at least 1")
	}
	if c.Chat.SendRatePerMinute < 1 {
		return fmt.Errorf("CHAT_SEND_RATE_PER_MINUTE must be at least 1")
	}
	return nil
}
