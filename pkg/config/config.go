package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App         AppConfig
	Backend     BackendConfig
	Redis       RedisConfig
	Cart        CartConfig
	Checkout    CheckoutConfig
	Returns     ReturnsConfig
	Sweeper     SweeperConfig
	Locale      LocaleConfig
	CORS        CORSConfig
	Idempotency IdempotencyConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Backend.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// BackendConfig points at the remote storefront REST API.
type BackendConfig struct {
	BaseURL           string        `envconfig:"STOREFRONT_BACKEND_BASE_URL" required:"true"`
	Timeout           time.Duration `envconfig:"STOREFRONT_BACKEND_TIMEOUT" default:"10s"`
	BreakerMaxFailure uint32        `envconfig:"STOREFRONT_BACKEND_BREAKER_MAX_FAILURES" default:"5"`
	BreakerOpenFor    time.Duration `envconfig:"STOREFRONT_BACKEND_BREAKER_OPEN_FOR" default:"30s"`
	BreakerInterval   time.Duration `envconfig:"STOREFRONT_BACKEND_BREAKER_INTERVAL" default:"60s"`
}

func (b BackendConfig) validate() error {
	parsed, err := url.Parse(strings.TrimSpace(b.BaseURL))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", EnvBackendBaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url", EnvBackendBaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", EnvBackendBaseURL)
	}
	if b.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvBackendTimeout)
	}
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type CartConfig struct {
	// CacheIdleTTL evicts per-user cart snapshots nobody has read for this long.
	CacheIdleTTL time.Duration `envconfig:"STOREFRONT_CART_CACHE_IDLE_TTL" default:"30m"`
}

type CheckoutConfig struct {
	SessionIdleTTL time.Duration `envconfig:"STOREFRONT_CHECKOUT_SESSION_IDLE_TTL" default:"2h"`
}

type ReturnsConfig struct {
	DraftTTL       time.Duration `envconfig:"STOREFRONT_RETURNS_DRAFT_TTL" default:"720h"`
	MaxImageMB     int           `envconfig:"STOREFRONT_RETURNS_MAX_IMAGE_MB" default:"8"`
	MaxUploadItems int           `envconfig:"STOREFRONT_RETURNS_MAX_ITEMS" default:"50"`
}

// MaxImageBytes returns the per-image upload cap.
func (r ReturnsConfig) MaxImageBytes() int64 {
	if r.MaxImageMB <= 0 {
		return 0
	}
	return int64(r.MaxImageMB) << 20
}

type SweeperConfig struct {
	Interval time.Duration `envconfig:"STOREFRONT_SWEEPER_INTERVAL" default:"5m"`
}

type LocaleConfig struct {
	Supported []string `envconfig:"STOREFRONT_LOCALES" default:"en,ar"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"STOREFRONT_IDEMPOTENCY_TTL" default:"168h"`
}
