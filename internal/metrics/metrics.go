package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SeatLockAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_seat_lock_attempts_total",
			Help: "Seat lock attempts by result",
		},
		[]string{"result"},
	)

	SeatsReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_seats_reclaimed_total",
			Help: "Seats released by the expired lock sweep",
		},
	)

	ReclaimRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_reclaim_runs_total",
			Help: "Expired lock sweeps by result",
		},
		[]string{"result"},
	)

	SalesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_sales_created_total",
			Help: "Committed sales by selection mode and channel",
		},
		[]string{"mode", "channel"},
	)

	SaleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "booking_sale_duration_seconds",
			Help:    "Time spent creating a sale",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	WebhooksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_webhooks_processed_total",
			Help: "Gateway notifications by gateway and outcome",
		},
		[]string{"gateway", "outcome"},
	)
)
