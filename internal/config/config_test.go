package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test from an empty directory so no stray .env or
// config.yaml is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 30, cfg.RateLimit.Limit)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 5, cfg.Resolver.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.Resolver.DefaultRetryAfter)
	assert.Equal(t, int64(1080), cfg.Browser.Width)
	assert.Equal(t, 15*time.Second, cfg.Pipeline.GraphSettle)
	assert.Equal(t, 3*time.Minute, cfg.Pipeline.RequestTimeout)
	assert.Equal(t, StorageS3, cfg.Storage.Backend)
	assert.Equal(t, SessionMemory, cfg.Session.Backend)
	assert.Equal(t, "https://api-legacy.bubblemaps.io", cfg.Bubblemaps.BaseURL)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := isolate(t)

	yaml := `
log:
  level: debug
ratelimit:
  limit: 10
  window: 30s
storage:
  backend: sqlite
  public_base_url: https://bot.example.com
browser:
  noise: [".cookie-banner", "#chat"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	t.Setenv("RATELIMIT_LIMIT", "25")
	t.Setenv("PIPELINE_GRAPH_SETTLE", "5s")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg-token")
	t.Setenv("COIN_GECKO_API_KEY", "cg-key")
	t.Setenv("IBM_BUCKET_NAME", "bubbles")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 25, cfg.RateLimit.Limit, "env overrides the file")
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.GraphSettle)
	assert.Equal(t, StorageSQLite, cfg.Storage.Backend)
	assert.Equal(t, []string{".cookie-banner", "#chat"}, cfg.Browser.Noise)
	assert.Equal(t, "tg-token", cfg.Telegram.BotToken)
	assert.Equal(t, "cg-key", cfg.CoinGecko.APIKey)
	assert.Equal(t, "bubbles", cfg.Storage.S3.Bucket)

	require.NoError(t, cfg.Validate())
}

func TestCanonicalEnvWinsOverLegacy(t *testing.T) {
	isolate(t)
	t.Setenv("COINGECKO_API_KEY", "canonical")
	t.Setenv("COIN_GECKO_API_KEY", "legacy")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "canonical", cfg.CoinGecko.APIKey)
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SESSION_BACKEND=redis\nREDIS_URL=redis://localhost:6379/0\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("SESSION_BACKEND")
		os.Unsetenv("REDIS_URL")
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, SessionRedis, cfg.Session.Backend)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Session.RedisURL)
}

func TestLoadBadFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0o600))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Telegram:  TelegramConfig{BotToken: "t"},
			CoinGecko: CoinGeckoConfig{APIKey: "k"},
			RateLimit: RateLimitConfig{Limit: 30, Window: time.Minute},
			Storage: StorageConfig{
				Backend: StorageS3,
				S3:      S3Config{Endpoint: "s3.example.com", Bucket: "b", AccessKey: "a", SecretKey: "s"},
			},
			Session: SessionConfig{Backend: SessionMemory},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{"valid", func(*Config) {}, nil},
		{"missing token", func(c *Config) { c.Telegram.BotToken = "" }, []string{"telegram.bot_token"}},
		{"zero limit", func(c *Config) { c.RateLimit.Limit = 0 }, []string{"ratelimit.limit"}},
		{"s3 without bucket", func(c *Config) { c.Storage.S3.Bucket = "" }, []string{"storage.s3.bucket"}},
		{"fs without base url", func(c *Config) { c.Storage.Backend = StorageFS }, []string{"storage.public_base_url"}},
		{
			"postgres without dsn",
			func(c *Config) { c.Storage.Backend = StoragePostgres; c.Storage.PublicBaseURL = "https://x" },
			[]string{"storage.postgres.dsn"},
		},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "ftp" }, []string{`"ftp"`}},
		{"redis without url", func(c *Config) { c.Session.Backend = SessionRedis }, []string{"session.redis_url"}},
		{
			"several problems",
			func(c *Config) { c.Telegram.BotToken = ""; c.CoinGecko.APIKey = "" },
			[]string{"telegram.bot_token", "coingecko.api_key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, w := range tt.want {
				assert.True(t, strings.Contains(err.Error(), w), "expected %q in %q", w, err.Error())
			}
		})
	}
}
