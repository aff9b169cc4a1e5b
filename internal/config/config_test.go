//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

const baseYAML = `
database:
  url: postgres://localhost/billing
redis:
  url: localhost:6379
api:
  jwt_secret: s3cret
payment:
  provider: nmi
  nmi:
    test_security_key: test-key
    live_security_key: live-key
  stripe:
    test_secret_key: sk_test_1
    live_secret_key: sk_live_1
`

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("BILLING_ENV", "")
	cfg, err := LoadConfig(writeConfig(t, baseYAML), false)
	require.NoError(t, err)

	assert.Equal(t, EnvTest, cfg.Env)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 20*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Webhook.DedupTTL)
	assert.Equal(t, "usd", cfg.Payment.Currency)
	assert.False(t, cfg.Webhook.AllowUnsigned)
	assert.Equal(t, "test-key", cfg.Payment.NMI.SecurityKey)
	assert.Equal(t, "sk_test_1", cfg.Payment.Stripe.SecretKey)
}

func TestLoadConfigLiveKeysFromEnv(t *testing.T) {
	t.Setenv("BILLING_ENV", "live")
	t.Setenv("WEBHOOK_SECRET", "whsec")
	t.Setenv("DATABASE_URL", "postgres://override/billing")

	cfg, err := LoadConfig(writeConfig(t, baseYAML), false)
	require.NoError(t, err)

	assert.Equal(t, "live-key", cfg.Payment.NMI.SecurityKey)
	assert.Equal(t, "sk_live_1", cfg.Payment.Stripe.SecretKey)
	assert.Equal(t, "whsec", cfg.Payment.NMI.WebhookSecret)
	assert.Equal(t, "whsec", cfg.Payment.Stripe.WebhookSecret)
	assert.Equal(t, "postgres://override/billing", cfg.Database.URL)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("BILLING_ENV", "")
	t.Setenv("JWT_SECRET", "")
	_, err := LoadConfig(writeConfig(t, "database:\n  url: x\nredis:\n  url: y\n"), false)
	assert.ErrorContains(t, err, "jwt_secret")

	t.Setenv("BILLING_ENV", "staging")
	_, err = LoadConfig(writeConfig(t, baseYAML), false)
	assert.ErrorContains(t, err, "env must be")
}
