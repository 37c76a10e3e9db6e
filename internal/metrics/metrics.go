package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Pool transitions
	// ============================================
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shieldpool_transitions_total",
			Help: "Total number of pool transitions by operation and result",
		},
		[]string{"op", "result"},
	)

	TransitionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shieldpool_transition_failures_total",
			Help: "Total number of rejected pool transitions by error code",
		},
		[]string{"op", "code"},
	)

	TransitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shieldpool_transition_duration_seconds",
			Help:    "Pool transition duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	TreeNextIndex = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shieldpool_tree_next_index",
		Help: "Next leaf index of the commitment tree",
	})

	RootRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shieldpool_root_rotations_total",
		Help: "Total number of root updates",
	})

	NullifiersSpent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shieldpool_nullifiers_spent_total",
		Help: "Total number of nullifiers consumed",
	})

	CustodyBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shieldpool_custody_balance",
			Help: "Pool vault balance per asset in base units",
		},
		[]string{"asset"},
	)

	PoolPaused = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shieldpool_paused",
		Help: "Pool pause flag (1=paused, 0=active)",
	})

	// ============================================
	// Event outbox and sinks
	// ============================================
	OutboxBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shieldpool_outbox_backlog",
		Help: "Number of committed events waiting to be published",
	})

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shieldpool_events_published_total",
			Help: "Total number of events published by sink and kind",
		},
		[]string{"sink", "kind"},
	)

	EventPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shieldpool_event_publish_failures_total",
			Help: "Total number of failed event publications by sink",
		},
		[]string{"sink"},
	)

	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shieldpool_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shieldpool_websocket_clients",
		Help: "Number of connected websocket event subscribers",
	})

	// ============================================
	// Database connection
	// ============================================
	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shieldpool_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	DBConnectionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shieldpool_db_connection_active",
		Help: "Number of active database connections",
	})

	DBConnectionIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shieldpool_db_connection_idle",
		Help: "Number of idle database connections",
	})
)

// RecordTransition records the outcome of one pool transition. code is
// empty on success.
func RecordTransition(op string, start time.Time, code string) {
	TransitionDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if code == "" {
		TransitionsTotal.WithLabelValues(op, "success").Inc()
		return
	}
	TransitionsTotal.WithLabelValues(op, "failure").Inc()
	TransitionFailures.WithLabelValues(op, code).Inc()
}
