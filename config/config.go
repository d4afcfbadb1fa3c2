package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	PendingHighQueue string
	PendingLowQueue  string
	ProcessingQueue  string
	DelayedSet       string
	FailedQueue      string
	JobStatePrefix   string

	WorkerCount int

	OfficeConverterURL string
	ImageConverterURL  string

	S3Bucket       string
	S3Region       string
	AWSS3AccessKey string
	AWSS3SecretKey string
	S3Endpoint     string
	S3UsePathStyle bool

	DatabaseURL string

	ConversionTimeout time.Duration // base; scaled by pair complexity
	MaxRetries        int
	RetryBackoffBase  time.Duration
	RetryBackoffCap   time.Duration
	MaxStalls         int
	StallAfter        time.Duration
	DequeueWait       time.Duration
	PromoteInterval   time.Duration
	RecoveryInterval  time.Duration

	CompletedRetention time.Duration
	FailedRetention    time.Duration

	WebhookURL string

	RateLimitPerSecond float64
	RateLimitBurst     int
}

func Load() *Config {
	redisPrefix := getEnv("REDIS_PREFIX", "")
	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbName := getEnv("DB_DATABASE", "conversions")
	dbUser := getEnv("DB_USERNAME", "conversions")
	dbPassword := getEnv("DB_PASSWORD", "")
	dbSSLMode := getEnv("DB_SSLMODE", "disable")
	dbSSLCert := getEnv("DB_SSLCERT", "")
	dbSSLKey := getEnv("DB_SSLKEY", "")
	dbSSLRootCert := getEnv("DB_SSLROOTCERT", "")

	// lib/pq supports "key=value" connection strings and this avoids
	// URI escaping issues for special characters in passwords.
	var dbURL string
	if dbPassword != "" {
		dbURL = fmt.Sprintf(
			"host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
			dbHost, dbPort, dbName, dbUser, dbPassword, dbSSLMode,
		)
	} else {
		dbURL = fmt.Sprintf(
			"host=%s port=%s dbname=%s user=%s sslmode=%s",
			dbHost, dbPort, dbName, dbUser, dbSSLMode,
		)
	}
	if dbSSLCert != "" {
		dbURL += fmt.Sprintf(" sslcert=%s", dbSSLCert)
	}
	if dbSSLKey != "" {
		dbURL += fmt.Sprintf(" sslkey=%s", dbSSLKey)
	}
	if dbSSLRootCert != "" {
		dbURL += fmt.Sprintf(" sslrootcert=%s", dbSSLRootCert)
	}

	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_CONVERSION_DB", 3),
		RedisPrefix:   redisPrefix,

		PendingHighQueue: applyPrefix(getEnv("CONVERSION_PENDING_HIGH_QUEUE", "conversion:pending:high"), redisPrefix),
		PendingLowQueue:  applyPrefix(getEnv("CONVERSION_PENDING_LOW_QUEUE", "conversion:pending:low"), redisPrefix),
		ProcessingQueue:  applyPrefix(getEnv("CONVERSION_PROCESSING_QUEUE", "conversion:processing"), redisPrefix),
		DelayedSet:       applyPrefix(getEnv("CONVERSION_DELAYED_SET", "conversion:delayed"), redisPrefix),
		FailedQueue:      applyPrefix(getEnv("CONVERSION_FAILED_QUEUE", "conversion:failed"), redisPrefix),
		JobStatePrefix:   applyPrefix(getEnv("CONVERSION_JOB_STATE_PREFIX", "conversion:job:"), redisPrefix),

		WorkerCount: getEnvInt("CONVERSION_WORKER_COUNT", 5),

		OfficeConverterURL: getEnv("OFFICE_CONVERTER_URL", "http://gotenberg:3000"),
		ImageConverterURL:  getEnv("IMAGE_CONVERTER_URL", "http://imagetool:3000"),

		S3Bucket: getEnv("AWS_BUCKET", "conversions"),
		// Prefer unified S3_* vars, fall back to legacy AWS_* vars for compatibility
		S3Region:       getEnvWithFallback("S3_REGION", "AWS_DEFAULT_REGION", "us-east-1"),
		AWSS3AccessKey: getEnvWithFallback("S3_KEY", "AWS_ACCESS_KEY_ID", ""),
		AWSS3SecretKey: getEnvWithFallback("S3_SECRET", "AWS_SECRET_ACCESS_KEY", ""),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3UsePathStyle: getEnvBool("S3_USE_PATH_STYLE_ENDPOINT", false),

		DatabaseURL: dbURL,

		ConversionTimeout: getEnvSeconds("CONVERSION_TIMEOUT", 120),
		MaxRetries:        getEnvInt("CONVERSION_MAX_RETRIES", 3),
		RetryBackoffBase:  getEnvSeconds("RETRY_BACKOFF_BASE", 2),
		RetryBackoffCap:   getEnvSeconds("RETRY_BACKOFF_CAP", 30),
		MaxStalls:         getEnvInt("MAX_STALLED_COUNT", 1),
		StallAfter:        getEnvSeconds("STALL_AFTER", 600),
		DequeueWait:       getEnvSeconds("DEQUEUE_WAIT", 5),
		PromoteInterval:   getEnvSeconds("PROMOTE_INTERVAL", 1),
		RecoveryInterval:  getEnvSeconds("RECOVERY_INTERVAL", 60),

		CompletedRetention: getEnvSeconds("COMPLETED_RETENTION", 24*3600),
		FailedRetention:    getEnvSeconds("FAILED_RETENTION", 7*24*3600),

		WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),

		RateLimitPerSecond: getEnvFloat("RATE_LIMIT_PER_SECOND", 20),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 40),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvWithFallback(primaryKey, secondaryKey, fallback string) string {
	if value := os.Getenv(primaryKey); value != "" {
		return value
	}
	if value := os.Getenv(secondaryKey); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

func applyPrefix(key string, prefix string) string {
	if prefix == "" {
		return key
	}
	return prefix + key
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}
