package config

import (
	"time"

	"github.com/joho/godotenv"

	pkgconfig "github.com/Checker-Finance/marketplace/pkg/config"
)

// Config holds the runtime configuration for a ledger-service instance.
// Everything is read from the environment (and .env when present) with
// defaults suitable for local development.
type Config struct {
	ServiceName string // e.g. "ledger-service"
	Env         string // "dev", "uat", "prod"
	LogLevel    string
	Port        int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	HTTPBodyLimit    int

	// DatabaseURL enables the Postgres journal and projections. Empty keeps
	// the ledger in memory.
	DatabaseURL         string
	PGMaxConns          int
	PGMinConns          int
	PGMaxConnLifetime   time.Duration
	PGMaxConnIdleTime   time.Duration
	PGHealthCheckPeriod time.Duration

	RedisAddr string
	RedisDB   int
	RedisPass string

	NATSURL            string
	EventSubjectPrefix string // e.g. evt.marketplace
	EventStream        string

	RabbitMQURL      string // empty disables the broker mirror
	RabbitMQExchange string

	AWSRegion     string
	JWTSecret     string // static signing key; wins over JWTSecretName
	JWTSecretName string // Secrets Manager name holding jwt_secret
	CacheTTL      time.Duration
	CleanupFreq   time.Duration

	MaxProducts       int
	RewardPerPurchase string

	PayoutURL      string // empty settles withdrawals internally
	PayoutRetryMax int
	PayoutTimeout  time.Duration
	PayoutRPS      float64
	PayoutBurst    int

	RateLimitRPS   float64
	RateLimitBurst int
	IdempotencyTTL time.Duration
	AuditInterval  time.Duration

	// ReconcileInterval paces resends of withdrawals with an unknown payout outcome.
	ReconcileInterval time.Duration
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	// load .env silently (no error if missing)
	_ = godotenv.Load()

	return &Config{
		ServiceName:      pkgconfig.GetEnv("SERVICE_NAME", "ledger-service"),
		Env:              pkgconfig.GetEnv("ENV", "dev"),
		LogLevel:         pkgconfig.GetEnv("LOG_LEVEL", "info"),
		Port:             pkgconfig.GetEnvInt("LEDGER_PORT", 9030),
		HTTPReadTimeout:  pkgconfig.GetEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		HTTPWriteTimeout: pkgconfig.GetEnvDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
		HTTPIdleTimeout:  pkgconfig.GetEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		HTTPBodyLimit:    pkgconfig.GetEnvInt("HTTP_BODY_LIMIT", 1*1024*1024),

		DatabaseURL:         pkgconfig.GetEnv("DATABASE_URL", ""),
		PGMaxConns:          pkgconfig.GetEnvInt("PG_MAX_CONNS", 10),
		PGMinConns:          pkgconfig.GetEnvInt("PG_MIN_CONNS", 2),
		PGMaxConnLifetime:   pkgconfig.GetEnvDuration("PG_MAX_CONN_LIFETIME", 30*time.Minute),
		PGMaxConnIdleTime:   pkgconfig.GetEnvDuration("PG_MAX_CONN_IDLE_TIME", 5*time.Minute),
		PGHealthCheckPeriod: pkgconfig.GetEnvDuration("PG_HEALTH_CHECK_PERIOD", 1*time.Minute),

		RedisAddr: pkgconfig.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:   pkgconfig.GetEnvInt("REDIS_DB", 0),
		RedisPass: pkgconfig.GetEnv("REDIS_PASS", ""),

		NATSURL:            pkgconfig.GetEnv("NATS_URL", "nats://localhost:4222"),
		EventSubjectPrefix: pkgconfig.GetEnv("EVENT_SUBJECT_PREFIX", "evt.marketplace"),
		EventStream:        pkgconfig.GetEnv("EVENT_STREAM", "MARKETPLACE_EVENTS"),

		RabbitMQURL:      pkgconfig.GetEnv("RABBITMQ_URL", ""),
		RabbitMQExchange: pkgconfig.GetEnv("RABBITMQ_EXCHANGE", "marketplace.events"),

		AWSRegion:     pkgconfig.GetEnv("AWS_REGION", "us-east-2"),
		JWTSecret:     pkgconfig.GetEnv("JWT_SECRET", ""),
		JWTSecretName: pkgconfig.GetEnv("JWT_SECRET_NAME", ""),
		CacheTTL:      pkgconfig.GetEnvDuration("CACHE_TTL", 1*time.Hour),
		CleanupFreq:   pkgconfig.GetEnvDuration("CACHE_CLEANUP_FREQ", 10*time.Minute),

		MaxProducts:       pkgconfig.GetEnvInt("MAX_PRODUCTS", 100000),
		RewardPerPurchase: pkgconfig.GetEnv("REWARD_PER_PURCHASE", "1"),

		PayoutURL:      pkgconfig.GetEnv("PAYOUT_URL", ""),
		PayoutRetryMax: pkgconfig.GetEnvInt("PAYOUT_RETRY_MAX", 3),
		PayoutTimeout:  pkgconfig.GetEnvDuration("PAYOUT_TIMEOUT", 10*time.Second),
		PayoutRPS:      pkgconfig.GetEnvFloat("PAYOUT_RPS", 5),
		PayoutBurst:    pkgconfig.GetEnvInt("PAYOUT_BURST", 10),

		RateLimitRPS:   pkgconfig.GetEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: pkgconfig.GetEnvInt("RATE_LIMIT_BURST", 40),
		IdempotencyTTL: pkgconfig.GetEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		AuditInterval:  pkgconfig.GetEnvDuration("AUDIT_INTERVAL", 1*time.Minute),

		ReconcileInterval: pkgconfig.GetEnvDuration("PAYOUT_RECONCILE_INTERVAL", 30*time.Second),
	}
}
