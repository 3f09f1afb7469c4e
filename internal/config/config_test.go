package config_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pastelnetwork/go-inference-client/internal/config"
)

func TestDefaultClientConfigFromEnv(t *testing.T) {
	cfg := config.DefaultClientConfigFromEnv()

	_, err := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, err)

	assert.Equal(t, 0.75, cfg.Routing.MinPerformanceRatio)
	assert.Equal(t, 60*time.Second, cfg.Routing.HealthCacheTTL)
	assert.Equal(t, 12, cfg.Purchase.MaxCandidates)
	assert.Equal(t, 0.05, cfg.Purchase.MaxPriceDeviation)
	assert.Equal(t, 5, cfg.Purchase.PaymentDecimalPlaces)
	assert.Equal(t, "PtpasteLBurnAddressXXXXXXXXXXbJ5ndd", cfg.Purchase.BurnAddress)
	assert.Equal(t, 3*time.Second, cfg.Inference.PollInitialWait)
	assert.Equal(t, 1.04, cfg.Inference.PollGrowthFactor)
	assert.Equal(t, 60, cfg.Inference.PollMaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Validation.TimestampTolerance)
	assert.Equal(t, int64(2), cfg.Validation.BlockHeightTolerance)
}

func TestClientConfigEnvOverrides(t *testing.T) {
	t.Setenv("ROUTING_MIN_PERFORMANCE_RATIO", "0.9")
	t.Setenv("PURCHASE_MAX_CANDIDATES", "6")
	t.Setenv("INFERENCE_POLL_INITIAL_WAIT", "500ms")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")

	cfg := config.DefaultClientConfigFromEnv()
	assert.Equal(t, 0.9, cfg.Routing.MinPerformanceRatio)
	assert.Equal(t, 6, cfg.Purchase.MaxCandidates)
	assert.Equal(t, 500*time.Millisecond, cfg.Inference.PollInitialWait)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
}
