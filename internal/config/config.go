// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvTest = "test"
	EnvLive = "live"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type NMIConfig struct {
	URL             string `yaml:"url"`
	TestSecurityKey string `yaml:"test_security_key"`
	LiveSecurityKey string `yaml:"live_security_key"`
	WebhookSecret   string `yaml:"webhook_secret"`

	// SecurityKey is picked from the test or live key at load time.
	SecurityKey string `yaml:"-"`
}

type StripeConfig struct {
	TestSecretKey string `yaml:"test_secret_key"`
	LiveSecretKey string `yaml:"live_secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	ProductID     string `yaml:"product_id"` // recurring prices are created inline on this product
	APIURL        string `yaml:"api_url"`    // override for tests / stripe-mock

	SecretKey string `yaml:"-"`
}

type PaymentConfig struct {
	Provider string        `yaml:"provider"` // nmi | stripe | simulated
	Currency string        `yaml:"currency"`
	Timeout  time.Duration `yaml:"timeout"`
	NMI      NMIConfig     `yaml:"nmi"`
	Stripe   StripeConfig  `yaml:"stripe"`
}

type WebhookConfig struct {
	// AllowUnsigned accepts webhooks for a provider with no secret configured.
	AllowUnsigned bool          `yaml:"allow_unsigned"`
	DedupTTL      time.Duration `yaml:"dedup_ttl"`
}

type APIConfig struct {
	JWTSecret      string        `yaml:"jwt_secret"`
	RateLimit      int           `yaml:"rate_limit"` // requests per window per business/email
	RateWindow     time.Duration `yaml:"rate_window"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

type NotifyConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
	MinSeverity    string `yaml:"min_severity"` // info | critical
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"` // encrypts raw provider responses at rest
}

type ReconcileConfig struct {
	BatchSize int           `yaml:"batch_size"`
	Interval  time.Duration `yaml:"interval"` // 0 disables the in-process drift loop
}

type Config struct {
	Env       string          `yaml:"env"` // test | live
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Payment   PaymentConfig   `yaml:"payment"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	API       APIConfig       `yaml:"api"`
	Notify    NotifyConfig    `yaml:"notify"`
	Security  SecurityConfig  `yaml:"security"`
	Reconcile ReconcileConfig `yaml:"reconcile"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies .env and environment
// overrides, fills defaults and validates. The result is not mutated afterwards.
func LoadConfig(path string, dev bool) (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	resolveKeys(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Env, "BILLING_ENV")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.API.JWTSecret, "JWT_SECRET")
	setString(&cfg.Payment.Provider, "PAYMENT_PROVIDER")
	setString(&cfg.Payment.NMI.TestSecurityKey, "NMI_TEST_SECURITY_KEY")
	setString(&cfg.Payment.NMI.LiveSecurityKey, "NMI_LIVE_SECURITY_KEY")
	setString(&cfg.Payment.Stripe.TestSecretKey, "STRIPE_TEST_SECRET_KEY")
	setString(&cfg.Payment.Stripe.LiveSecretKey, "STRIPE_LIVE_SECRET_KEY")
	setString(&cfg.Security.EncryptionKey, "ENCRYPTION_KEY")
	setString(&cfg.Notify.TelegramToken, "TELEGRAM_TOKEN")
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Notify.TelegramChatID = id
		}
	}
	// WEBHOOK_SECRET is the shared fallback for providers without their own secret
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		if cfg.Payment.NMI.WebhookSecret == "" {
			cfg.Payment.NMI.WebhookSecret = v
		}
		if cfg.Payment.Stripe.WebhookSecret == "" {
			cfg.Payment.Stripe.WebhookSecret = v
		}
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if cfg.Env == "" {
		cfg.Env = EnvTest
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 45 * time.Second
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Payment.Provider == "" {
		cfg.Payment.Provider = "nmi"
	}
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = "usd"
	}
	if cfg.Payment.Timeout <= 0 {
		cfg.Payment.Timeout = 20 * time.Second
	}
	if cfg.Payment.NMI.URL == "" {
		cfg.Payment.NMI.URL = "https://secure.nmi.com/api/transact.php"
	}
	if cfg.Webhook.DedupTTL <= 0 {
		cfg.Webhook.DedupTTL = 24 * time.Hour
	}
	if cfg.API.RateLimit <= 0 {
		cfg.API.RateLimit = 10
	}
	if cfg.API.RateWindow <= 0 {
		cfg.API.RateWindow = time.Minute
	}
	if cfg.API.IdempotencyTTL <= 0 {
		cfg.API.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Notify.MinSeverity == "" {
		cfg.Notify.MinSeverity = "info"
	}
	if cfg.Reconcile.BatchSize <= 0 {
		cfg.Reconcile.BatchSize = 200
	}
}

func resolveKeys(cfg *Config) {
	if cfg.Env == EnvLive {
		cfg.Payment.NMI.SecurityKey = cfg.Payment.NMI.LiveSecurityKey
		cfg.Payment.Stripe.SecretKey = cfg.Payment.Stripe.LiveSecretKey
		return
	}
	cfg.Payment.NMI.SecurityKey = cfg.Payment.NMI.TestSecurityKey
	cfg.Payment.Stripe.SecretKey = cfg.Payment.Stripe.TestSecretKey
}

// Validate checks the fields every command needs.
func (c *Config) Validate() error {
	if c.Env != EnvTest && c.Env != EnvLive {
		return fmt.Errorf("env must be %q or %q, got %q", EnvTest, EnvLive, c.Env)
	}
	switch c.Payment.Provider {
	case "nmi", "stripe", "simulated":
	default:
		return fmt.Errorf("payment.provider %q is not supported", c.Payment.Provider)
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.API.JWTSecret == "" {
		return errors.New("api.jwt_secret is required")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
