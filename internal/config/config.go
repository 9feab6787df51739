package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config covers both binaries. The server reads the backend fields, the
// terminal reads the API and scanner fields.
type Config struct {
	AppEnv        string `envconfig:"APP_ENV" default:"development"`
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`

	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	AuthSecret     string        `envconfig:"AUTH_SECRET"`
	AccessTokenTTL time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"8h"`
	LoginRateLimit int           `envconfig:"LOGIN_RATE_LIMIT" default:"5"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	Locale    string `envconfig:"LOCALE" default:"id"`

	CatalogCacheTTL time.Duration `envconfig:"CATALOG_CACHE_TTL" default:"30s"`

	APIBaseURL  string        `envconfig:"API_BASE_URL" default:"http://127.0.0.1:8080"`
	APITimeout  time.Duration `envconfig:"API_TIMEOUT" default:"10s"`
	APIUsername string        `envconfig:"API_USERNAME"`
	APIPassword string        `envconfig:"API_PASSWORD"`

	ScanMinLength    int           `envconfig:"SCAN_MIN_LENGTH" default:"3"`
	ScanTimeout      time.Duration `envconfig:"SCAN_TIMEOUT" default:"50ms"`
	ScanCooldown     time.Duration `envconfig:"SCAN_COOLDOWN" default:"300ms"`
	ScanReplayWindow time.Duration `envconfig:"SCAN_REPLAY_WINDOW" default:"2s"`
	AddLockWindow    time.Duration `envconfig:"ADD_LOCK_WINDOW" default:"500ms"`
	SearchMaxResults int           `envconfig:"SEARCH_MAX_RESULTS" default:"20"`
}

// Load reads an optional .env file and then the environment. Variables that
// are already set win over the file. Weak auth defaults are never injected.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	if cfg.ScanMinLength < 1 {
		return Config{}, errors.New("SCAN_MIN_LENGTH must be at least 1")
	}
	if cfg.SearchMaxResults < 1 {
		return Config{}, errors.New("SEARCH_MAX_RESULTS must be at least 1")
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}
