// Package config loads settings from an optional config.yaml, the
// environment and a .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	StorageS3       = "s3"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageFS       = "fs"
)

// Session backends.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	CoinGecko  CoinGeckoConfig  `mapstructure:"coingecko"`
	Bubblemaps BubblemapsConfig `mapstructure:"bubblemaps"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Resolver   ResolverConfig   `mapstructure:"resolver"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Session    SessionConfig    `mapstructure:"session"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	Debug    bool   `mapstructure:"debug"`
}

type CoinGeckoConfig struct {
	APIKey    string `mapstructure:"api_key"`
	SearchURL string `mapstructure:"search_url"`
	BaseURL   string `mapstructure:"base_url"`
}

type BubblemapsConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type HTTPConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	Fingerprint string        `mapstructure:"fingerprint"`
	UserAgent   string        `mapstructure:"user_agent"`
}

// RateLimitConfig is the CoinGecko quota shared by every caller.
type RateLimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type ResolverConfig struct {
	BatchSize         int           `mapstructure:"batch_size"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BaseBackoff       time.Duration `mapstructure:"base_backoff"`
	DefaultRetryAfter time.Duration `mapstructure:"default_retry_after"`
	MaxRateLimitWaits int           `mapstructure:"max_rate_limit_waits"`
}

type BrowserConfig struct {
	ExecPath   string        `mapstructure:"exec_path"`
	NoSandbox  bool          `mapstructure:"no_sandbox"`
	Width      int64         `mapstructure:"width"`
	Height     int64         `mapstructure:"height"`
	Scale      float64       `mapstructure:"scale"`
	NavTimeout time.Duration `mapstructure:"nav_timeout"`
	Noise      []string      `mapstructure:"noise"`
}

type PipelineConfig struct {
	TemplateDir    string        `mapstructure:"template_dir"`
	GraphSettle    time.Duration `mapstructure:"graph_settle"`
	CardSettle     time.Duration `mapstructure:"card_settle"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	// PublicBaseURL is where published artifacts are reachable. For the
	// database and filesystem backends this is the bot's own HTTP server.
	PublicBaseURL string `mapstructure:"public_base_url"`
	// Retention drops artifacts older than this on PruneSchedule. Zero keeps
	// everything.
	Retention     time.Duration  `mapstructure:"retention"`
	PruneSchedule string         `mapstructure:"prune_schedule"`
	S3            S3Config       `mapstructure:"s3"`
	SQLite        SQLiteConfig   `mapstructure:"sqlite"`
	Postgres      PostgresConfig `mapstructure:"postgres"`
	FS            FSConfig       `mapstructure:"fs"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type FSConfig struct {
	Root string `mapstructure:"root"`
}

type SessionConfig struct {
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	Size          int           `mapstructure:"size"`
	RedisURL      string        `mapstructure:"redis_url"`
	PurgeSchedule string        `mapstructure:"purge_schedule"`
}

type MetricsConfig struct {
	Port int `mapstructure:"port"` // 0 disables the HTTP server
}

// legacyEnv maps keys to the environment names used by earlier deployments.
var legacyEnv = map[string]string{
	"telegram.bot_token":    "TELEGRAM_BOT_TOKEN",
	"coingecko.api_key":     "COIN_GECKO_API_KEY",
	"storage.s3.endpoint":   "IBM_SERVICE_ENDPOINT",
	"storage.s3.bucket":     "IBM_BUCKET_NAME",
	"storage.s3.access_key": "IBM_ACCESS_KEY_ID",
	"storage.s3.secret_key": "IBM_SECRET_ACCESS_KEY",
	"session.redis_url":     "REDIS_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("coingecko.search_url", "https://pro-api.coingecko.com/api/v3")
	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("bubblemaps.base_url", "https://api-legacy.bubblemaps.io")

	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.fingerprint", "go")
	v.SetDefault("http.user_agent", "bubblescope/1.0")

	v.SetDefault("ratelimit.limit", 30)
	v.SetDefault("ratelimit.window", time.Minute)

	v.SetDefault("resolver.batch_size", 5)
	v.SetDefault("resolver.max_attempts", 3)
	v.SetDefault("resolver.base_backoff", 2*time.Second)
	v.SetDefault("resolver.default_retry_after", 10*time.Second)
	v.SetDefault("resolver.max_rate_limit_waits", 5)

	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.width", 1080)
	v.SetDefault("browser.height", 1080)
	v.SetDefault("browser.scale", 2.0)
	v.SetDefault("browser.nav_timeout", time.Minute)
	v.SetDefault("browser.noise", []string{})

	v.SetDefault("pipeline.template_dir", "")
	v.SetDefault("pipeline.graph_settle", 15*time.Second)
	v.SetDefault("pipeline.card_settle", time.Second)
	v.SetDefault("pipeline.request_timeout", 3*time.Minute)

	v.SetDefault("storage.backend", StorageS3)
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.retention", time.Duration(0))
	v.SetDefault("storage.prune_schedule", "0 3 * * *")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.access_key", "")
	v.SetDefault("storage.s3.secret_key", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.sqlite.path", "bubblescope.db")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.fs.root", "artifacts")

	v.SetDefault("session.backend", SessionMemory)
	v.SetDefault("session.ttl", 10*time.Minute)
	v.SetDefault("session.size", 10000)
	v.SetDefault("session.redis_url", "")
	v.SetDefault("session.purge_schedule", "@every 1m")

	v.SetDefault("metrics.port", 9090)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.debug", false)
	v.SetDefault("coingecko.api_key", "")
}

// Load reads .env (if present), then config.yaml from path (if present),
// then the environment. Environment names are the upper-cased keys with
// dots replaced by underscores, e.g. STORAGE_S3_BUCKET.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, nil
}

// Validate checks what the bot needs to serve requests. CLI commands that
// only resolve or render may run with an incomplete config.
func (c *Config) Validate() error {
	var errs []error

	if c.Telegram.BotToken == "" {
		errs = append(errs, errors.New("telegram.bot_token is required"))
	}
	if c.CoinGecko.APIKey == "" {
		errs = append(errs, errors.New("coingecko.api_key is required"))
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("ratelimit.limit and ratelimit.window must be positive"))
	}
	errs = append(errs, c.Storage.validate()...)

	switch c.Session.Backend {
	case SessionMemory:
	case SessionRedis:
		if c.Session.RedisURL == "" {
			errs = append(errs, errors.New("session.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.backend %q is not one of memory, redis", c.Session.Backend))
	}

	return errors.Join(errs...)
}

func (s *StorageConfig) validate() []error {
	var errs []error
	switch s.Backend {
	case StorageS3:
		if s.S3.Endpoint == "" || s.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.endpoint and storage.s3.bucket are required"))
		}
		if s.S3.AccessKey == "" || s.S3.SecretKey == "" {
			errs = append(errs, errors.New("storage.s3.access_key and storage.s3.secret_key are required"))
		}
	case StorageSQLite, StoragePostgres, StorageFS:
		if s.PublicBaseURL == "" {
			errs = append(errs, fmt.Errorf("storage.public_base_url is required for the %s backend", s.Backend))
		}
		if s.Backend == StoragePostgres && s.Postgres.DSN == "" {
			errs = append(errs, errors.New("storage.postgres.dsn is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of s3, sqlite, postgres, fs", s.Backend))
	}
	return errs
}
