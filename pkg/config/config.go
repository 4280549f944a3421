package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Driver names shared by the cache and realtime sections.
const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Transfers   TransfersConfig
	Realtime    RealtimeConfig
	RateLimit   RateLimitConfig
	Cache       CacheConfig
	Reports     ReportsConfig
	AccessCodes []AccessCodeConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
	KeyPrefix   string
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
	Audience   string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level       string
	Format      string
	ServiceName string
}

// TransfersConfig bounds the history listing and labels cancellation reasons.
type TransfersConfig struct {
	HistoryPageSize    int
	HistoryMaxPageSize int
	CancelLabel        string
}

// RealtimeConfig selects the change-notification bus and stream tuning.
type RealtimeConfig struct {
	Driver           string
	Channel          string
	Heartbeat        time.Duration
	SubscriberBuffer int
}

// RateLimitConfig throttles mutating routes per client IP.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

// CacheConfig governs read-through caching of statistics and reference data.
type CacheConfig struct {
	Enabled    bool
	Driver     string
	DefaultTTL time.Duration
}

// ReportsConfig configures asynchronous transfer exports.
type ReportsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
	QueueSize         int
}

// AccessCodeConfig is one bootstrap login code, written as role[:sector]=code.
type AccessCodeConfig struct {
	Role     string
	SectorID string
	Code     string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:        v.GetString("REDIS_HOST"),
		Port:        v.GetInt("REDIS_PORT"),
		Password:    v.GetString("REDIS_PASSWORD"),
		DB:          v.GetInt("REDIS_DB"),
		PoolSize:    v.GetInt("REDIS_POOL_SIZE"),
		DialTimeout: parseDuration(v.GetString("REDIS_DIAL_TIMEOUT"), 5*time.Second),
		KeyPrefix:   v.GetString("REDIS_KEY_PREFIX"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
		Audience:   v.GetString("JWT_AUDIENCE"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:       v.GetString("LOG_LEVEL"),
		Format:      v.GetString("LOG_FORMAT"),
		ServiceName: v.GetString("SERVICE_NAME"),
	}

	cfg.Transfers = TransfersConfig{
		HistoryPageSize:    v.GetInt("TRANSFERS_HISTORY_PAGE_SIZE"),
		HistoryMaxPageSize: v.GetInt("TRANSFERS_HISTORY_MAX_PAGE_SIZE"),
		CancelLabel:        v.GetString("TRANSFERS_CANCEL_LABEL"),
	}

	cfg.Realtime = RealtimeConfig{
		Driver:           strings.ToLower(v.GetString("REALTIME_DRIVER")),
		Channel:          v.GetString("REALTIME_CHANNEL"),
		Heartbeat:        parseDuration(v.GetString("REALTIME_HEARTBEAT"), 25*time.Second),
		SubscriberBuffer: v.GetInt("REALTIME_SUBSCRIBER_BUFFER"),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:           v.GetBool("RATE_LIMIT_ENABLED"),
		RequestsPerSecond: v.GetFloat64("RATE_LIMIT_RPS"),
		Burst:             v.GetInt("RATE_LIMIT_BURST"),
	}

	cfg.Cache = CacheConfig{
		Enabled:    v.GetBool("CACHE_ENABLED"),
		Driver:     strings.ToLower(v.GetString("CACHE_DRIVER")),
		DefaultTTL: parseDuration(v.GetString("CACHE_DEFAULT_TTL"), 30*time.Second),
	}

	cfg.Reports = ReportsConfig{
		Enabled:           v.GetBool("ENABLE_REPORTS"),
		StorageDir:        v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("REPORTS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("REPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("REPORTS_WORKER_RETRIES"),
		QueueSize:         v.GetInt("REPORTS_QUEUE_SIZE"),
	}

	codes, err := parseAccessCodes(v.GetString("ACCESS_CODES"))
	if err != nil {
		return nil, err
	}
	cfg.AccessCodes = codes

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "transfer_board")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_KEY_PREFIX", "transfer-board:")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("JWT_ISSUER", "transfer-board-api")
	v.SetDefault("JWT_AUDIENCE", "transfer-board")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SERVICE_NAME", "transfer-board-api")

	v.SetDefault("TRANSFERS_HISTORY_PAGE_SIZE", 20)
	v.SetDefault("TRANSFERS_HISTORY_MAX_PAGE_SIZE", 200)
	v.SetDefault("TRANSFERS_CANCEL_LABEL", "CANCELLATION REASON: ")

	v.SetDefault("REALTIME_DRIVER", DriverMemory)
	v.SetDefault("REALTIME_CHANNEL", "transfers:changes")
	v.SetDefault("REALTIME_HEARTBEAT", "25s")
	v.SetDefault("REALTIME_SUBSCRIBER_BUFFER", 32)

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 20)

	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_DRIVER", DriverMemory)
	v.SetDefault("CACHE_DEFAULT_TTL", "30s")

	v.SetDefault("ENABLE_REPORTS", true)
	v.SetDefault("REPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("REPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("REPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("REPORTS_WORKER_RETRIES", 3)
	v.SetDefault("REPORTS_QUEUE_SIZE", 64)

	v.SetDefault("ACCESS_CODES", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// parseAccessCodes reads "admin=1234,requester-sector:sec-er=5678".
func parseAccessCodes(raw string) ([]AccessCodeConfig, error) {
	entries := splitAndTrim(raw)
	codes := make([]AccessCodeConfig, 0, len(entries))
	for _, entry := range entries {
		key, code, ok := strings.Cut(entry, "=")
		key, code = strings.TrimSpace(key), strings.TrimSpace(code)
		if !ok || key == "" || code == "" {
			return nil, errors.New("ACCESS_CODES entries must look like role[:sector]=code")
		}
		role, sector, _ := strings.Cut(key, ":")
		codes = append(codes, AccessCodeConfig{
			Role:     strings.TrimSpace(role),
			SectorID: strings.TrimSpace(sector),
			Code:     code,
		})
	}
	return codes, nil
}
