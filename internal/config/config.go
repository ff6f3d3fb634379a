package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool
	S3Bucket    string

	IngestWorkers      int
	IngestLeaseSeconds int
	IngestMaxAttempts  int
	IngestPollInterval time.Duration

	NotifyDebounce time.Duration
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:          mustGetenv("DATABASE_URL"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",

		S3Endpoint:  getenv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey: getenv("S3_ACCESS_KEY", ""),
		S3SecretKey: getenv("S3_SECRET_KEY", ""),
		S3Region:    getenv("S3_REGION", "us-east-1"),
		S3UseSSL:    getenv("S3_USE_SSL", "false") == "true",
		S3Bucket:    getenv("S3_BUCKET", "satchel-files"),

		IngestWorkers:      getenvInt("INGEST_WORKERS", 2),
		IngestLeaseSeconds: getenvInt("INGEST_LEASE_SECONDS", 120),
		IngestMaxAttempts:  getenvInt("INGEST_MAX_ATTEMPTS", 5),
		IngestPollInterval: getenvDuration("INGEST_POLL_INTERVAL", 800*time.Millisecond),

		NotifyDebounce: getenvDuration("NOTIFY_DEBOUNCE", 30*time.Second),
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	cfg.JWTSecret = mustGetenv("JWT_SECRET")
	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func mustGetenv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		panic("missing env: " + key)
	}
	return v
}
