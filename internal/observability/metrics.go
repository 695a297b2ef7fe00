package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrh_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hrh_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	HoldsAcquired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hrh_holds_acquired_total",
			Help: "Room holds granted",
		},
	)

	HoldConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hrh_hold_conflicts_total",
			Help: "Hold requests rejected because a room was held by another guest",
		},
	)

	HoldsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hrh_holds_released_total",
			Help: "Room holds released before expiry",
		},
	)

	HoldsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hrh_holds_expired_total",
			Help: "Room holds swept by the expiry worker",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hrh_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hrh_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hrh_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
