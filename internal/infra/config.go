package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv              string
	Port                string
	DownloadDir         string
	YtDlpPath           string
	DownloadRoutePrefix string
	DatabaseURL         string
	CORSAllowedOrigins  []string
	JobTTL              time.Duration
	ReaperInterval      time.Duration
	MetadataTimeout     time.Duration
	DownloadTimeout     time.Duration
	QueueMaxPending     int
	ProgressStep        int
	HTTPReadTimeout     time.Duration
	HTTPWriteTimeout    time.Duration
	HTTPIdleTimeout     time.Duration
	RateLimitPerMin     int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		Port:                getEnv("PORT", "8080"),
		DownloadDir:         getEnv("DOWNLOAD_DIR", "./downloads"),
		YtDlpPath:           getEnv("YTDLP_PATH", "yt-dlp"),
		DownloadRoutePrefix: strings.TrimRight(getEnv("DOWNLOAD_ROUTE_PREFIX", "/api/download"), "/"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		CORSAllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		QueueMaxPending:     getEnvInt("QUEUE_MAX_PENDING", 100),
		ProgressStep:        getEnvInt("PROGRESS_STEP", 5),
		HTTPReadTimeout:     time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:    time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 600)),
		HTTPIdleTimeout:     time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:     getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	var err error
	if cfg.JobTTL, err = getEnvSeconds("JOB_TTL_SECONDS", 24*60*60); err != nil {
		return nil, err
	}
	if cfg.ReaperInterval, err = getEnvSeconds("REAPER_INTERVAL_SECONDS", 60); err != nil {
		return nil, err
	}
	if cfg.MetadataTimeout, err = getEnvSeconds("METADATA_TIMEOUT_SECONDS", 120); err != nil {
		return nil, err
	}
	if cfg.DownloadTimeout, err = getEnvSeconds("DOWNLOAD_TIMEOUT_SECONDS", 30*60); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.DownloadDir) == "" {
		return nil, fmt.Errorf("DOWNLOAD_DIR is required")
	}
	if cfg.DownloadRoutePrefix == "" {
		return nil, fmt.Errorf("DOWNLOAD_ROUTE_PREFIX must not be empty")
	}
	if cfg.QueueMaxPending <= 0 {
		return nil, fmt.Errorf("QUEUE_MAX_PENDING must be positive")
	}
	if cfg.ProgressStep <= 0 {
		cfg.ProgressStep = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvSeconds reads a strictly positive number of seconds. Durations that
// gate expiry and timeouts must never silently fall back on a typo.
func getEnvSeconds(key string, fallback int) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return time.Duration(fallback) * time.Second, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero", key)
	}
	return time.Duration(n) * time.Second, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
