// Package config provides configuration management and environment variable handling for the application
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	Security   SecurityConfig   `json:"security"`
	JWT        JWTConfig        `json:"jwt"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Cache      CacheConfig      `json:"cache"`
	Tracking   TrackingConfig   `json:"tracking"`
	Deployment DeploymentConfig `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host" env:"DB_HOST" env-default:"localhost"`
	Port            int           `json:"port" env:"DB_PORT" env-default:"5432"`
	Name            string        `json:"name" env:"DB_NAME" env-default:"postgres"`
	User            string        `json:"user" env:"DB_USER" env-default:"postgres"`
	Password        string        `json:"-" env:"DB_PASSWORD"`
	SSLMode         string        `json:"ssl_mode" env:"DB_SSL_MODE" env-default:"require"`
	MaxOpenConns    int           `json:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"100"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"30m"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" env:"DB_CONN_MAX_IDLE_TIME" env-default:"15m"`
	SlowQueryLog    bool          `json:"slow_query_log" env:"DB_SLOW_QUERY_LOG" env-default:"true"`
	SlowQueryTime   time.Duration `json:"slow_query_time" env:"DB_SLOW_QUERY_TIME" env-default:"1s"`
	AutoMigrate     bool          `json:"auto_migrate" env:"DB_AUTO_MIGRATE" env-default:"true"`
}

type ServerConfig struct {
	Host              string        `json:"host" env:"SERVER_HOST" env-default:"0.0.0.0"`
	Port              int           `json:"port" env:"SERVER_PORT" env-default:"8080"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"30s"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"30s"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" env-default:"120s"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"30s"`
	BodyLimit         int           `json:"body_limit" env:"SERVER_BODY_LIMIT" env-default:"1048576"`
	EnableMetrics     bool          `json:"enable_metrics" env:"SERVER_ENABLE_METRICS" env-default:"true"`
	TrustedProxies    []string      `json:"trusted_proxies" env:"SERVER_TRUSTED_PROXIES" env-separator:"," env-default:"127.0.0.1"`
	ProxyHeader       string        `json:"proxy_header" env:"SERVER_PROXY_HEADER" env-default:"X-Real-IP"`
	EnableCompression bool          `json:"enable_compression" env:"SERVER_ENABLE_COMPRESSION" env-default:"true"`
	// PublicBaseURL prefixes the webhook URLs handed out for webhook sources
	PublicBaseURL string `json:"public_base_url" env:"SERVER_PUBLIC_BASE_URL" env-default:"http://localhost:8080"`
}

type SecurityConfig struct {
	// CORS
	AllowedOrigins   []string `json:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
	AllowedMethods   []string `json:"allowed_methods" env:"CORS_ALLOWED_METHODS" env-separator:"," env-default:"GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	AllowedHeaders   []string `json:"allowed_headers" env:"CORS_ALLOWED_HEADERS" env-separator:"," env-default:"Origin,Content-Type,Accept,Authorization,X-Requested-With,X-Signature"`
	AllowCredentials bool     `json:"allow_credentials" env:"CORS_ALLOW_CREDENTIALS" env-default:"false"`
	CORSMaxAge       int      `json:"cors_max_age" env:"CORS_MAX_AGE" env-default:"86400"`

	// Rate Limiting
	TrackRateLimit  int           `json:"track_rate_limit" env:"TRACK_RATE_LIMIT" env-default:"600"`   // requests per minute per IP
	GlobalRateLimit int           `json:"global_rate_limit" env:"GLOBAL_RATE_LIMIT" env-default:"2000"` // requests per minute per IP
	RateLimitWindow time.Duration `json:"rate_limit_window" env:"RATE_LIMIT_WINDOW" env-default:"1m"`

	// Content Security
	XFrameOptions       string `json:"x_frame_options" env:"X_FRAME_OPTIONS" env-default:"DENY"`
	XContentTypeOptions string `json:"x_content_type_options" env:"X_CONTENT_TYPE_OPTIONS" env-default:"nosniff"`
	ReferrerPolicy      string `json:"referrer_policy" env:"REFERRER_POLICY" env-default:"strict-origin-when-cross-origin"`
}

type JWTConfig struct {
	SecretKey       string        `json:"-" env:"JWT_SECRET_KEY"`
	PrivateKey      string        `json:"-" env:"JWT_PRIVATE_KEY"` // RSA private key in PEM format
	PublicKey       string        `json:"-" env:"JWT_PUBLIC_KEY"`  // RSA public key in PEM format
	UseRSAKeys      bool          `json:"use_rsa_keys" env:"JWT_USE_RSA_KEYS" env-default:"false"`
	AccessTokenTTL  time.Duration `json:"access_token_ttl" env:"JWT_ACCESS_TOKEN_TTL" env-default:"24h"`
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl" env:"JWT_REFRESH_TOKEN_TTL" env-default:"168h"`
	Issuer          string        `json:"issuer" env:"JWT_ISSUER" env-default:"trackrelay"`
	Audience        string        `json:"audience" env:"JWT_AUDIENCE" env-default:"trackrelay-api"`
}

type LoggingConfig struct {
	Level            string `json:"level" env:"LOG_LEVEL" env-default:"info"`     // debug, info, warn, error
	Format           string `json:"format" env:"LOG_FORMAT" env-default:"json"`   // json, console
	Output           string `json:"output" env:"LOG_OUTPUT" env-default:"stdout"` // stdout, file, both
	FilePath         string `json:"file_path" env:"LOG_FILE_PATH" env-default:"/var/log/trackrelay/app.log"`
	MaxSize          int    `json:"max_size" env:"LOG_MAX_SIZE" env-default:"100"` // MB
	MaxBackups       int    `json:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"10"`
	MaxAge           int    `json:"max_age" env:"LOG_MAX_AGE" env-default:"30"` // days
	Compress         bool   `json:"compress" env:"LOG_COMPRESS" env-default:"true"`
	EnableCaller     bool   `json:"enable_caller" env:"LOG_ENABLE_CALLER" env-default:"true"`
	EnableStacktrace bool   `json:"enable_stacktrace" env:"LOG_ENABLE_STACKTRACE" env-default:"false"`
	EnableAccessLog  bool   `json:"enable_access_log" env:"LOG_ENABLE_ACCESS" env-default:"true"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	Path    string `json:"path" env:"METRICS_PATH" env-default:"/metrics"`
}

type CacheConfig struct {
	Enabled     bool   `json:"enabled" env:"CACHE_ENABLED" env-default:"true"`
	RedisURL    string `json:"redis_url" env:"CACHE_REDIS_URL" env-default:"redis://localhost:6379"`
	RedisDB     int    `json:"redis_db" env:"CACHE_REDIS_DB" env-default:"0"`
	RedisPrefix string `json:"redis_prefix" env:"CACHE_REDIS_PREFIX" env-default:"trackrelay:"`
}

// TrackingConfig tunes ingestion and delivery
type TrackingConfig struct {
	AdapterTimeout     time.Duration `json:"adapter_timeout" env:"TRACKING_ADAPTER_TIMEOUT" env-default:"10s"`
	ProcessTimeout     time.Duration `json:"process_timeout" env:"TRACKING_PROCESS_TIMEOUT" env-default:"60s"`
	DedupWindow        time.Duration `json:"dedup_window" env:"TRACKING_DEDUP_WINDOW" env-default:"120s"`
	DefaultCurrency    string        `json:"default_currency" env:"TRACKING_DEFAULT_CURRENCY" env-default:"BRL"`
	MetaGraphBaseURL   string        `json:"meta_graph_base_url" env:"META_GRAPH_BASE_URL" env-default:"https://graph.facebook.com"`
	MetaGraphVersion   string        `json:"meta_graph_api_version" env:"META_GRAPH_API_VERSION" env-default:"v18.0"`
	TikTokEventsURL    string        `json:"tiktok_events_url" env:"TIKTOK_EVENTS_URL" env-default:"https://business-api.tiktok.com/open_api/v1.3/event/track/"`
	BreakerFailures    uint32        `json:"breaker_failures" env:"TRACKING_BREAKER_FAILURES" env-default:"5"`
	BreakerCooldown    time.Duration `json:"breaker_cooldown" env:"TRACKING_BREAKER_COOLDOWN" env-default:"1m"`
	ReaperInterval     time.Duration `json:"reaper_interval" env:"TRACKING_REAPER_INTERVAL" env-default:"5m"`
	ReaperStaleAfter   time.Duration `json:"reaper_stale_after" env:"TRACKING_REAPER_STALE_AFTER" env-default:"15m"`
	WebhookBodyMaxSize int           `json:"webhook_body_max_size" env:"TRACKING_WEBHOOK_BODY_MAX_SIZE" env-default:"262144"`
}

type DeploymentConfig struct {
	Domain      string `json:"domain" env:"DOMAIN" env-default:"localhost"`
	Environment string `json:"environment" env:"APP_ENV" env-default:"production"`
	Version     string `json:"version" env:"VERSION" env-default:"1.0.0"`
	CommitHash  string `json:"commit_hash" env:"COMMIT_HASH" env-default:"unknown"`
	BuildTime   string `json:"build_time" env:"BUILD_TIME" env-default:"unknown"`
}

// IsDevelopment reports whether the service runs outside production
func (d DeploymentConfig) IsDevelopment() bool {
	return d.Environment == "development" || d.Environment == "local" || d.Environment == "test"
}

// LoadProductionConfig loads and validates configuration from environment variables.
// A .env file in the working directory, if present, is exported into the environment first.
func LoadProductionConfig() (*ProductionConfig, error) {
	cfg, err := readConfig(".env")
	if err != nil {
		return nil, err
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readConfig(envFile string) (*ProductionConfig, error) {
	cfg := &ProductionConfig{}
	if _, err := os.Stat(envFile); err == nil {
		if err := cleanenv.ReadConfig(envFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		return cfg, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat %s: %w", envFile, err)
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return cfg, nil
}

// ConfigUsage renders the help text of every supported environment variable
func ConfigUsage() string {
	var b strings.Builder
	cleanenv.FUsage(&b, &ProductionConfig{}, nil)()
	return b.String()
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errs []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errs = append(errs, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errs = append(errs, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errs = append(errs, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errs = append(errs, "DB_USER is required")
	}
	if cfg.Database.Password == "" && !cfg.Deployment.IsDevelopment() {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Validate JWT configuration
	if cfg.JWT.UseRSAKeys {
		if cfg.JWT.PrivateKey == "" || cfg.JWT.PublicKey == "" {
			errs = append(errs, "JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required when JWT_USE_RSA_KEYS is set")
		}
	} else if len(cfg.JWT.SecretKey) < 32 {
		errs = append(errs, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, "JWT_ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.JWT.RefreshTokenTTL <= 0 {
		errs = append(errs, "JWT_REFRESH_TOKEN_TTL must be positive")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errs = append(errs, "SERVER_WRITE_TIMEOUT must be positive")
	}
	if u, err := url.Parse(cfg.Server.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "SERVER_PUBLIC_BASE_URL must be an absolute URL")
	}

	// Validate logging configuration
	validLevels := []string{"debug", "info", "warn", "error"}
	if cfg.Logging.Level != "" && !slices.Contains(validLevels, cfg.Logging.Level) {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
	}
	validOutputs := []string{"stdout", "file", "both"}
	if !slices.Contains(validOutputs, cfg.Logging.Output) {
		errs = append(errs, fmt.Sprintf("LOG_OUTPUT must be one of: %v", validOutputs))
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.FilePath == "" {
		errs = append(errs, "LOG_FILE_PATH is required when logging to a file")
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled && cfg.Cache.RedisURL == "" {
		errs = append(errs, "CACHE_REDIS_URL is required when cache is enabled")
	}

	// Validate tracking configuration
	if cfg.Tracking.AdapterTimeout <= 0 {
		errs = append(errs, "TRACKING_ADAPTER_TIMEOUT must be positive")
	}
	if cfg.Tracking.ProcessTimeout < cfg.Tracking.AdapterTimeout {
		errs = append(errs, "TRACKING_PROCESS_TIMEOUT must not be shorter than TRACKING_ADAPTER_TIMEOUT")
	}
	if len(cfg.Tracking.DefaultCurrency) != 3 {
		errs = append(errs, "TRACKING_DEFAULT_CURRENCY must be a 3-letter ISO 4217 code")
	}
	if cfg.Tracking.ReaperInterval <= 0 {
		errs = append(errs, "TRACKING_REAPER_INTERVAL must be positive")
	}
	if cfg.Tracking.ReaperStaleAfter <= cfg.Tracking.AdapterTimeout {
		errs = append(errs, "TRACKING_REAPER_STALE_AFTER must exceed TRACKING_ADAPTER_TIMEOUT")
	}

	// Return validation errors if any
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}
