package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	LogLevel           string
	Port               string
	PublicBaseURL      string
	StoreDriver        string
	DatabaseURL        string
	DBMaxConns         int
	DBStatementTimeout time.Duration
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	JWTSecret          string
	JWTTTL             time.Duration
	CallbackSecret     string
	AdminToken         string
	StoragePath        string
	StorageBaseURL     string
	GeoIPDBPath        string
	KieAPIKey          string
	KieBaseURL         string
	KieImageSize       string
	KieVideoModel      string
	SMSAPIKey          string
	SMSTemplate        string
	CORSOrigins        []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	OTPRateLimit       int
	PollStaleAfter     time.Duration
	SnowflakeNode      int64
	WorkerConcurrency  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		Port:               port,
		PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DBMaxConns:         getEnvInt("DB_MAX_CONNS", 10),
		DBStatementTimeout: getEnvDuration("DB_STATEMENT_TIMEOUT", 15*time.Second),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTTTL:             getEnvDuration("JWT_TTL", 30*24*time.Hour),
		CallbackSecret:     os.Getenv("CALLBACK_SECRET"),
		AdminToken:         os.Getenv("ADMIN_TOKEN"),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:     getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		KieAPIKey:          os.Getenv("KIE_API_KEY"),
		KieBaseURL:         getEnv("KIE_BASE_URL", "https://api.kie.ai"),
		KieImageSize:       getEnv("KIE_IMAGE_SIZE", "1:1"),
		KieVideoModel:      getEnv("KIE_VIDEO_MODEL", "veo3_fast"),
		SMSAPIKey:          os.Getenv("SMS_API_KEY"),
		SMSTemplate:        getEnv("SMS_TEMPLATE", "verify"),
		CORSOrigins:        getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		OTPRateLimit:       getEnvInt("OTP_RATE_LIMIT_PER_MINUTE", 5),
		PollStaleAfter:     getEnvDuration("POLL_STALE_AFTER", 10*time.Minute),
		SnowflakeNode:      int64(getEnvInt("SNOWFLAKE_NODE", 1)),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 10),
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER %q is not supported", cfg.StoreDriver)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.CallbackSecret == "" {
		cfg.CallbackSecret = cfg.JWTSecret
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
