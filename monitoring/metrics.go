package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var (
	ordersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total orders created per event",
		},
		[]string{"event_id"},
	)

	orderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Order state machine transitions",
		},
		[]string{"from", "to"},
	)

	paymentOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_outcomes_total",
			Help: "Payment confirmations processed, by outcome and result",
		},
		[]string{"outcome", "result"},
	)

	compensationRequired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "compensation_required_total",
			Help: "Payments received for orders whose hold had already lapsed",
		},
	)

	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Tickets issued per event",
		},
		[]string{"event_id"},
	)

	broadcastSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_sends_total",
			Help: "Broadcast delivery attempts by result",
		},
		[]string{"result"},
	)

	availableTickets = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "available_tickets_total",
			Help: "Current available ticket count per event",
		},
		[]string{"event_id"},
	)

	checkoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "checkout_session_duration_seconds",
			Help:    "Duration of checkout session creation",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.collectAvailability(context.Background())
	}
}

func (m *Monitor) collectAvailability(ctx context.Context) {
	eventIDs, err := m.redis.SMembers(ctx, "ledger:events").Result()
	if err != nil {
		return
	}
	for _, eventID := range eventIDs {
		capacity, _ := m.redis.Get(ctx, "ledger:capacity:"+eventID).Int()
		confirmed, _ := m.redis.Get(ctx, "ledger:confirmed:"+eventID).Int()
		held, _ := m.redis.Get(ctx, "ledger:held:"+eventID).Int()
		availableTickets.WithLabelValues(eventID).Set(float64(capacity - confirmed - held))
	}
}

func TrackOrderCreated(eventID string)         { ordersCreated.WithLabelValues(eventID).Inc() }
func TrackTransition(from, to string)          { orderTransitions.WithLabelValues(from, to).Inc() }
func TrackPaymentOutcome(outcome, result string) {
	paymentOutcomes.WithLabelValues(outcome, result).Inc()
}
func TrackCompensationRequired()               { compensationRequired.Inc() }
func TrackTicketsIssued(eventID string, n int) {
	ticketsIssued.WithLabelValues(eventID).Add(float64(n))
}
func TrackBroadcastSend(result string)         { broadcastSends.WithLabelValues(result).Inc() }
func TrackCheckoutDuration(d time.Duration)    { checkoutDuration.Observe(d.Seconds()) }

// ServeMetrics exposes /metrics on its own port, separate from the app router.
func ServeMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%s", port), mux); err != nil {
			slog.Error("metrics server stopped", "error", err)
		}
	}()
}
