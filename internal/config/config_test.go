package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, int64(DefaultPackPriceDollars), cfg.PackPriceDollars)
	assert.Equal(t, int64(DefaultPanelsPerPack), cfg.PanelsPerPack)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PACK_PRICE_DOLLARS", "10")
	t.Setenv("PANELS_PER_PACK", "120")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, int64(10), cfg.PackPriceDollars)
	assert.Equal(t, int64(120), cfg.PanelsPerPack)
}

func TestLoad_BadIntFallsBack(t *testing.T) {
	t.Setenv("PANELS_PER_PACK", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultPanelsPerPack), cfg.PanelsPerPack)
}

func TestValidate_RejectsNonPositivePricing(t *testing.T) {
	cfg := &Config{Env: "development", PackPriceDollars: 0, PanelsPerPack: 50}
	assert.Error(t, cfg.Validate())

	cfg = &Config{Env: "development", PackPriceDollars: 5, PanelsPerPack: -1}
	assert.Error(t, cfg.Validate())
}

func TestValidate_ProductionRequiresSecrets(t *testing.T) {
	cfg := &Config{Env: "production", PackPriceDollars: 5, PanelsPerPack: 50}
	assert.Error(t, cfg.Validate())

	cfg.StripeWebhookSecret = "whsec_test"
	assert.Error(t, cfg.Validate())

	cfg.AdminSecret = "s3cret"
	assert.NoError(t, cfg.Validate())
}
