package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/snaproll/server/internal/validation"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Logging     LoggingConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Storage     StorageConfig
	Upload      UploadConfig
	Sweep       SweepConfig
	Email       EmailConfig
	CORS        CORSConfig
	Environment string
}

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdle        int
}

type LoggingConfig struct {
	Level  string
	Format string
}

type AuthConfig struct {
	JWTSecret string
	JWTExpiry time.Duration
	JWTIssuer string
}

type RateLimitConfig struct {
	UploadsPerMinute int
	Window           time.Duration
}

// StorageConfig selects the blob backend. Backend is "s3" or "local"; the S3
// fields are ignored for local storage and vice versa.
type StorageConfig struct {
	Backend     string
	LocalPath   string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3PathStyle bool
}

type UploadConfig struct {
	MaxPhotoBytes int64
	MaxVideoBytes int64
}

type SweepConfig struct {
	DeleteContent        bool
	Workers              int
	BlobDeletesPerSecond int
	NoticeThreshold      time.Duration
}

type EmailConfig struct {
	Enabled bool
	APIKey  string
	From    string
}

type CORSConfig struct {
	AllowedOrigins  []string
	AllowAllOrigins bool
}

func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvInt("SERVER_PORT", 8080),
			BaseURL: getEnv("SERVER_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
			MaxIdle:        getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTExpiry: time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
			JWTIssuer: getEnv("JWT_ISSUER", "snaproll"),
		},
		RateLimit: RateLimitConfig{
			UploadsPerMinute: getEnvInt("RATE_LIMIT_UPLOADS_PER_MINUTE", 10),
			Window:           time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		},
		Storage: StorageConfig{
			Backend:     getEnv("STORAGE_BACKEND", "local"),
			LocalPath:   getEnv("STORAGE_LOCAL_PATH", "./data/media"),
			S3Bucket:    getEnv("S3_BUCKET", ""),
			S3Region:    getEnv("S3_REGION", "us-east-1"),
			S3Endpoint:  getEnv("S3_ENDPOINT", ""),
			S3AccessKey: getEnv("S3_ACCESS_KEY_ID", ""),
			S3SecretKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			S3PathStyle: getEnvBool("S3_USE_PATH_STYLE", false),
		},
		Upload: UploadConfig{
			MaxPhotoBytes: int64(getEnvInt("UPLOAD_MAX_PHOTO_MB", 25)) << 20,
			MaxVideoBytes: int64(getEnvInt("UPLOAD_MAX_VIDEO_MB", 512)) << 20,
		},
		Sweep: SweepConfig{
			DeleteContent:        getEnvBool("SWEEP_DELETE_CONTENT", true),
			Workers:              getEnvInt("SWEEP_WORKERS", 4),
			BlobDeletesPerSecond: getEnvInt("SWEEP_BLOB_DELETES_PER_SECOND", 50),
			NoticeThreshold:      time.Duration(getEnvInt("SWEEP_NOTICE_HOURS", 48)) * time.Hour,
		},
		Email: EmailConfig{
			Enabled: getEnvBool("EMAIL_ENABLED", false),
			APIKey:  getEnv("RESEND_API_KEY", ""),
			From:    getEnv("EMAIL_FROM", "Snaproll <noreply@snaproll.app>"),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	origins := strings.Split(getEnv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, trimmed)
		}
	}
	cfg.CORS.AllowAllOrigins = cfg.Environment != "production"

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Environment == "production" && len(cfg.CORS.AllowedOrigins) == 0 {
		return Config{}, fmt.Errorf("CORS_ALLOWED_ORIGINS is required in production")
	}
	switch cfg.Storage.Backend {
	case "local", "s3":
	default:
		return Config{}, fmt.Errorf("STORAGE_BACKEND must be local or s3, got %q", cfg.Storage.Backend)
	}
	if cfg.Sweep.Workers < 1 {
		return Config{}, fmt.Errorf("SWEEP_WORKERS must be at least 1")
	}
	if err := validation.ValidateURL(cfg.Server.BaseURL, "SERVER_BASE_URL", cfg.Environment == "production"); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
