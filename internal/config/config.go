package config

import (
	"time"

	"github.com/pastelnetwork/go-inference-client/internal/util"
)

// Routing holds supernode ranking and health-filter tunables.
type Routing struct {
	MinPerformanceRatio float64
	HealthCacheTTL      time.Duration
	ProbeTimeout        time.Duration
	MaxFilteredNodes    int
	ProbesPerSecond     float64
}

// Purchase holds credit-pack negotiation tunables.
type Purchase struct {
	MaxCandidates        int
	MaxPerCreditPrice    float64
	MaxTotalPrice        float64
	MaxPriceDeviation    float64
	PaymentDecimalPlaces int
	BurnAddress          string
	TransportRetries     int
	RequestTimeout       time.Duration
	StatusPollInterval   time.Duration
	StatusPollAttempts   int
}

// Inference holds inference-request tunables.
type Inference struct {
	MaxCandidates    int
	MaxAttempts      int
	PollInitialWait  time.Duration
	PollGrowthFactor float64
	PollMaxAttempts  int
	AuditEnabled     bool
	AuditQuorumSize  int
	AuditGracePeriod time.Duration
	RequestTimeout   time.Duration
}

// Validation holds message freshness tolerances.
type Validation struct {
	TimestampTolerance   time.Duration
	BlockHeightTolerance int64
}

// Redis holds connection settings for the record store.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Client is the root configuration for the inference client.
type Client struct {
	Routing    Routing
	Purchase   Purchase
	Inference  Inference
	Validation Validation
	Redis      Redis
}

// DefaultClientConfigFromEnv builds a Client config from environment
// variables, falling back to protocol defaults for anything unset.
func DefaultClientConfigFromEnv() Client {
	return Client{
		Routing: Routing{
			MinPerformanceRatio: util.GetEnvAsFloat("ROUTING_MIN_PERFORMANCE_RATIO", 0.75),
			HealthCacheTTL:      util.GetEnvAsDuration("ROUTING_HEALTH_CACHE_TTL", 60*time.Second),
			ProbeTimeout:        util.GetEnvAsDuration("ROUTING_PROBE_TIMEOUT", 2*time.Second),
			MaxFilteredNodes:    util.GetEnvAsInt("ROUTING_MAX_FILTERED_NODES", 24),
			ProbesPerSecond:     util.GetEnvAsFloat("ROUTING_PROBES_PER_SECOND", 50),
		},
		Purchase: Purchase{
			MaxCandidates:        util.GetEnvAsInt("PURCHASE_MAX_CANDIDATES", 12),
			MaxPerCreditPrice:    util.GetEnvAsFloat("PURCHASE_MAX_PER_CREDIT_PRICE", 0),
			MaxTotalPrice:        util.GetEnvAsFloat("PURCHASE_MAX_TOTAL_PRICE", 0),
			MaxPriceDeviation:    util.GetEnvAsFloat("PURCHASE_MAX_PRICE_DEVIATION", 0.05),
			PaymentDecimalPlaces: util.GetEnvAsInt("PURCHASE_PAYMENT_DECIMAL_PLACES", 5),
			BurnAddress:          util.GetEnv("PURCHASE_BURN_ADDRESS", "PtpasteLBurnAddressXXXXXXXXXXbJ5ndd"),
			TransportRetries:     util.GetEnvAsInt("PURCHASE_TRANSPORT_RETRIES", 2),
			RequestTimeout:       util.GetEnvAsDuration("PURCHASE_REQUEST_TIMEOUT", 30*time.Second),
			StatusPollInterval:   util.GetEnvAsDuration("PURCHASE_STATUS_POLL_INTERVAL", 10*time.Second),
			StatusPollAttempts:   util.GetEnvAsInt("PURCHASE_STATUS_POLL_ATTEMPTS", 6),
		},
		Inference: Inference{
			MaxCandidates:    util.GetEnvAsInt("INFERENCE_MAX_CANDIDATES", 12),
			MaxAttempts:      util.GetEnvAsInt("INFERENCE_MAX_ATTEMPTS", 5),
			PollInitialWait:  util.GetEnvAsDuration("INFERENCE_POLL_INITIAL_WAIT", 3*time.Second),
			PollGrowthFactor: util.GetEnvAsFloat("INFERENCE_POLL_GROWTH_FACTOR", 1.04),
			PollMaxAttempts:  util.GetEnvAsInt("INFERENCE_POLL_MAX_ATTEMPTS", 60),
			AuditEnabled:     util.GetEnvAsBool("INFERENCE_AUDIT_ENABLED", false),
			AuditQuorumSize:  util.GetEnvAsInt("INFERENCE_AUDIT_QUORUM_SIZE", 5),
			AuditGracePeriod: util.GetEnvAsDuration("INFERENCE_AUDIT_GRACE_PERIOD", 20*time.Second),
			RequestTimeout:   util.GetEnvAsDuration("INFERENCE_REQUEST_TIMEOUT", 30*time.Second),
		},
		Validation: Validation{
			TimestampTolerance:   util.GetEnvAsDuration("VALIDATION_TIMESTAMP_TOLERANCE", 2*time.Minute),
			BlockHeightTolerance: int64(util.GetEnvAsInt("VALIDATION_BLOCK_HEIGHT_TOLERANCE", 2)),
		},
		Redis: Redis{
			Addr:     util.GetEnv("REDIS_ADDR", "localhost:6379"),
			Password: util.GetEnv("REDIS_PASSWORD", ""),
			DB:       util.GetEnvAsInt("REDIS_DB", 0),
		},
	}
}
