package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.True(t, decimal.RequireFromString("0.08").Equal(cfg.Business.TaxRate))
	assert.True(t, decimal.NewFromInt(50000).Equal(cfg.Business.FreeShippingThreshold))
	assert.Equal(t, 30*time.Second, cfg.Business.SubmitTimeout)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TAX_RATE", "0.19")
	t.Setenv("FREE_SHIPPING_THRESHOLD", "150000")
	t.Setenv("DEFAULT_ALLOW_COD", "true")
	t.Setenv("SUBMIT_TIMEOUT_SECONDS", "5")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := Load()

	assert.True(t, decimal.RequireFromString("0.19").Equal(cfg.Business.TaxRate))
	assert.True(t, decimal.NewFromInt(150000).Equal(cfg.Business.FreeShippingThreshold))
	assert.True(t, cfg.Business.DefaultAllowCOD)
	assert.Equal(t, 5*time.Second, cfg.Business.SubmitTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("TAX_RATE", "-1")
	t.Setenv("DEFAULT_SHIPPING_COST", "abc")
	t.Setenv("REDIS_DB", "x")

	cfg := Load()

	assert.True(t, decimal.RequireFromString("0.08").Equal(cfg.Business.TaxRate))
	assert.True(t, decimal.NewFromInt(15000).Equal(cfg.Business.DefaultShippingCost))
	assert.Equal(t, 0, cfg.Redis.DB)
}
