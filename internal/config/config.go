package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const maxWorkers = 16

type Config struct {
	Addr        string
	DatabaseURL string
	LogLevel    string
	AutoMigrate bool

	Workers            int
	BatchSize          int
	PollInterval       time.Duration
	StaleThreshold     time.Duration
	MaxRecoveryAttempt int
	// RecoverySchedule is a cron spec. Empty disables the scheduled sweep.
	RecoverySchedule string

	UploadTimeout  time.Duration
	UploadMaxBytes int64
	StreamInterval time.Duration
	UploadDir      string

	Minio MinioConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Enabled reports whether uploads go to MinIO instead of local disk.
func (c MinioConfig) Enabled() bool {
	return c.Endpoint != ""
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:               getEnv("API_ADDR", ":8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		AutoMigrate:        getEnvBool("DB_AUTO_MIGRATE", true),
		Workers:            getEnvInt("MIGRATION_WORKERS", 4),
		BatchSize:          getEnvInt("MIGRATION_BATCH_SIZE", 500),
		PollInterval:       getEnvDuration("MIGRATION_POLL_INTERVAL_MS", 500, time.Millisecond),
		StaleThreshold:     getEnvDuration("MIGRATION_STALE_THRESHOLD_SEC", 300, time.Second),
		MaxRecoveryAttempt: getEnvInt("MIGRATION_MAX_RECOVERY_ATTEMPTS", 3),
		RecoverySchedule:   getEnvAllowEmpty("MIGRATION_RECOVERY_SCHEDULE", "@every 1m"),
		UploadTimeout:      getEnvDuration("UPLOAD_TIMEOUT_SEC", 300, time.Second),
		UploadMaxBytes:     int64(getEnvInt("UPLOAD_MAX_MB", 200)) * 1024 * 1024,
		StreamInterval:     getEnvDuration("PROGRESS_STREAM_INTERVAL_MS", 1000, time.Millisecond),
		UploadDir:          getEnv("UPLOAD_DIR", "./uploads"),
		Minio: MinioConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnv("MINIO_BUCKET", "migration-uploads"),
			Region:    os.Getenv("MINIO_REGION"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Workers > maxWorkers {
		cfg.Workers = maxWorkers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.MaxRecoveryAttempt <= 0 {
		cfg.MaxRecoveryAttempt = 3
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// getEnvAllowEmpty returns fallback only when key is unset, so an explicit empty
// value can switch a feature off.
func getEnvAllowEmpty(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration reads a whole number of unit.
func getEnvDuration(key string, fallback int, unit time.Duration) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * unit
}
