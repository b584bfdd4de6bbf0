package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	queueLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "turn_queue_length",
			Help: "Current waiting queue length per lottery set",
		},
		[]string{"lottery_set_id"},
	)

	activeTurns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_turns_total",
			Help: "Lottery sets that currently have an active turn holder",
		},
	)

	drawOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draw_operations_total",
			Help: "Total draw attempts by outcome",
		},
		[]string{"lottery_set_id", "outcome"},
	)

	lockOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_lock_operations_total",
			Help: "Total ticket lock operations",
		},
		[]string{"operation", "status"},
	)

	ticketsPerDraw = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tickets_per_draw",
			Help:    "Number of tickets consumed per draw transaction",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	turnSweepExpirations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turn_sweep_expirations_total",
			Help: "Active turns reclaimed by the expiry sweep",
		},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.collectQueueMetrics(context.Background())
	}
}

func (m *Monitor) collectQueueMetrics(ctx context.Context) {
	waitingKeys, _ := m.redis.Keys(ctx, "queue:waiting:*").Result()
	for _, key := range waitingKeys {
		setID := key[len("queue:waiting:"):]
		length, _ := m.redis.LLen(ctx, key).Result()
		queueLength.WithLabelValues(setID).Set(float64(length))
	}

	activeKeys, _ := m.redis.Keys(ctx, "queue:active:*").Result()
	activeTurns.Set(float64(len(activeKeys)))
}

// TrackDraw records one draw attempt. Outcome is "success" or the error class.
func (m *Monitor) TrackDraw(setID, outcome string, tickets int) {
	drawOperations.WithLabelValues(setID, outcome).Inc()
	if outcome == "success" {
		ticketsPerDraw.Observe(float64(tickets))
	}
}

// TrackLockOperation records one acquire/release call.
func (m *Monitor) TrackLockOperation(operation, status string) {
	lockOperations.WithLabelValues(operation, status).Inc()
}

// TrackSweepExpiration counts an active turn reclaimed by the sweep.
func (m *Monitor) TrackSweepExpiration() {
	turnSweepExpirations.Inc()
}
