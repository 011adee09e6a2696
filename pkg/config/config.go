package config

import (
	"errors"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	Mongo     MongoConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Analytics AnalyticsConfig
	Face      FaceServiceConfig
	Mail      MailConfig
	Reports   ReportsConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

// MongoConfig points at the activity event store.
type MongoConfig struct {
	Enabled  bool
	URI      string
	Database string
	Timeout  time.Duration
}

// JWTConfig validates operator tokens issued by the identity provider.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// ReportsConfig configures asynchronous report generation.
type ReportsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

// AnalyticsConfig governs the analytics engine policy and report caching.
type AnalyticsConfig struct {
	Enabled                  bool
	CacheTTL                 time.Duration
	ReportOffset             string
	ViewPolicies             string
	DefaultWindowDays        int
	GroupCompletionMinutes   float64
	UntimedCompletionMinutes float64
	PeakRatio                float64
}

// FaceServiceConfig points at the external face matching service.
type FaceServiceConfig struct {
	URL              string
	Skip             bool
	Timeout          time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// MailConfig controls visit summary emails sent through SES.
type MailConfig struct {
	Enabled bool
	Region  string
	Sender  string
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

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSL_MODE"),
		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		ConnectTimeout:  v.GetDuration("DB_CONNECT_TIMEOUT"),
	}

	cfg.Redis = RedisConfig{
		Host:        v.GetString("REDIS_HOST"),
		Port:        v.GetInt("REDIS_PORT"),
		Password:    v.GetString("REDIS_PASSWORD"),
		DB:          v.GetInt("REDIS_DB"),
		PoolSize:    v.GetInt("REDIS_POOL_SIZE"),
		DialTimeout: v.GetDuration("REDIS_DIAL_TIMEOUT"),
	}

	cfg.Mongo = MongoConfig{
		Enabled:  v.GetBool("ENABLE_EVENT_LOG"),
		URI:      v.GetString("MONGO_URI"),
		Database: v.GetString("MONGO_DATABASE"),
		Timeout:  parseDuration(v.GetString("MONGO_TIMEOUT"), 5*time.Second),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{
		AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS")),
		MaxAge:         v.GetDuration("CORS_MAX_AGE"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Analytics = AnalyticsConfig{
		Enabled:                  v.GetBool("ENABLE_ANALYTICS"),
		CacheTTL:                 parseDuration(v.GetString("ANALYTICS_CACHE_TTL"), 10*time.Minute),
		ReportOffset:             v.GetString("ANALYTICS_REPORT_OFFSET"),
		ViewPolicies:             v.GetString("ANALYTICS_VIEW_POLICIES"),
		DefaultWindowDays:        v.GetInt("ANALYTICS_DEFAULT_WINDOW_DAYS"),
		GroupCompletionMinutes:   parseFloat(v.GetString("ANALYTICS_GROUP_COMPLETION_MINUTES"), 0.5),
		UntimedCompletionMinutes: parseFloat(v.GetString("ANALYTICS_UNTIMED_COMPLETION_MINUTES"), 1.0),
		PeakRatio:                parseFloat(v.GetString("ANALYTICS_PEAK_RATIO"), 0.8),
	}

	cfg.Face = FaceServiceConfig{
		URL:              v.GetString("FACE_SERVICE_URL"),
		Skip:             v.GetBool("FACE_SERVICE_SKIP"),
		Timeout:          parseDuration(v.GetString("FACE_SERVICE_TIMEOUT"), 10*time.Second),
		FailureThreshold: uint32(v.GetInt("FACE_SERVICE_FAILURE_THRESHOLD")),
		OpenTimeout:      parseDuration(v.GetString("FACE_SERVICE_OPEN_TIMEOUT"), 30*time.Second),
	}

	cfg.Mail = MailConfig{
		Enabled: v.GetBool("ENABLE_MAIL"),
		Region:  v.GetString("AWS_REGION"),
		Sender:  v.GetString("MAIL_SENDER"),
	}

	cfg.Reports = ReportsConfig{
		Enabled:           v.GetBool("ENABLE_REPORTS"),
		StorageDir:        v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("REPORTS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("REPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("REPORTS_WORKER_RETRIES"),
	}

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
	v.SetDefault("DB_NAME", "visitor_attendance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DB_CONNECT_TIMEOUT", "5s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CORS_MAX_AGE", "10m")
	v.SetDefault("REDIS_POOL_SIZE", 20)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "3s")

	v.SetDefault("ENABLE_EVENT_LOG", false)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "visitor_attendance")
	v.SetDefault("MONGO_TIMEOUT", "5s")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_ANALYTICS", true)
	v.SetDefault("ANALYTICS_CACHE_TTL", "10m")
	v.SetDefault("ANALYTICS_REPORT_OFFSET", "+05:30")
	v.SetDefault("ANALYTICS_VIEW_POLICIES", "summary=local,detailed=utc,overview=utc,trends=utc,user=utc")
	v.SetDefault("ANALYTICS_DEFAULT_WINDOW_DAYS", 30)
	v.SetDefault("ANALYTICS_GROUP_COMPLETION_MINUTES", "0.5")
	v.SetDefault("ANALYTICS_UNTIMED_COMPLETION_MINUTES", "1.0")
	v.SetDefault("ANALYTICS_PEAK_RATIO", "0.8")

	v.SetDefault("FACE_SERVICE_URL", "http://localhost:5001")
	v.SetDefault("FACE_SERVICE_SKIP", false)
	v.SetDefault("FACE_SERVICE_TIMEOUT", "10s")
	v.SetDefault("FACE_SERVICE_FAILURE_THRESHOLD", 5)
	v.SetDefault("FACE_SERVICE_OPEN_TIMEOUT", "30s")

	v.SetDefault("ENABLE_MAIL", false)
	v.SetDefault("AWS_REGION", "ap-south-1")
	v.SetDefault("MAIL_SENDER", "")

	v.SetDefault("ENABLE_REPORTS", false)
	v.SetDefault("REPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("REPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("REPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("REPORTS_WORKER_RETRIES", 3)
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

func parseFloat(raw string, fallback float64) float64 {
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
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
