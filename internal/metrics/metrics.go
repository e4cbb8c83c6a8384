package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	// Counts ledger operations by operation and outcome kind.
	LedgerOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Total number of ledger operations (by operation and result kind).",
		},
		[]string{"op", "result"},
	)

	LedgerOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations in seconds, journal append included.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15), // 100µs → ~1.6s
		},
		[]string{"op"},
	)

	// Measures outbound payout transfers.
	PayoutDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_payout_duration_seconds",
			Help:    "Duration of payout transfers in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"result"},
	)

	// Tracks NATS messages published by subject and result.
	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "Total number of NATS messages processed.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_message_latency_seconds",
			Help:    "Time taken to publish NATS messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	RabbitMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitmq_messages_total",
			Help: "Total number of RabbitMQ messages published.",
		},
		[]string{"routing_key", "result"},
	)

	// Idempotency-Key lookups on mutating routes.
	IdempotencyLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_idempotency_lookups_total",
			Help: "Number of idempotency cache hits/misses.",
		},
		[]string{"result"}, // hit | miss
	)

	SecretsCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secrets_cache_access_total",
			Help: "Number of cache hits/misses in secret cache.",
		},
		[]string{"result"},
	)

	// Tracks total errors (aggregated).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_errors_total",
			Help: "Count of infrastructure errors by component.",
		},
		[]string{"component", "reason"},
	)

	// Solvency gauges, refreshed by the auditor. Values are in the smallest unit
	// and lose precision above 2^53.
	HeldFunds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_held_funds",
		Help: "Funds received by purchases minus funds paid out.",
	})

	OutstandingEscrow = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_outstanding_escrow",
		Help: "Sum of all pending escrow balances.",
	})

	RewardSupply = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_reward_supply",
		Help: "Total reward units minted.",
	})

	AuditViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_audit_violations_total",
		Help: "Invariant violations found by the solvency auditor.",
	})

	LastAuditTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_last_audit_timestamp",
		Help: "Timestamp (unix seconds) of the last completed audit.",
	})

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "HTTP requests served, by route and status code.",
		},
		[]string{"method", "route", "status"},
	)

	FeedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_feed_clients",
		Help: "Connected live event feed clients.",
	})

	FeedDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_feed_dropped_clients_total",
		Help: "Feed clients disconnected because they could not keep up.",
	})
)

// ObserveDuration records the time taken since start on the given histogram.
func ObserveDuration(v interface{}, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// counters are not meant for duration tracking
	}
}

func IncLedgerOp(op, result string) {
	LedgerOpsTotal.WithLabelValues(op, result).Inc()
}

func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

func IncRabbitMessage(routingKey, result string) {
	RabbitMessageCount.WithLabelValues(routingKey, result).Inc()
}

func IncIdempotency(result string) {
	IdempotencyLookups.WithLabelValues(result).Inc()
}

func IncCacheHit(result string) {
	SecretsCacheHits.WithLabelValues(result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func IncHTTPRequest(method, route string, status int) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// SetSolvency publishes the audited totals.
func SetSolvency(held, outstanding, rewards decimal.Decimal, at time.Time) {
	HeldFunds.Set(held.InexactFloat64())
	OutstandingEscrow.Set(outstanding.InexactFloat64())
	RewardSupply.Set(rewards.InexactFloat64())
	LastAuditTimestamp.Set(float64(at.Unix()))
}
