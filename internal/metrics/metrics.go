package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrderCreateFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_create_failures_total",
			Help: "Order creations rejected, by reason",
		},
		[]string{"reason"},
	)

	OrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Committed order status transitions",
		},
		[]string{"from", "to"},
	)

	StockReservedUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reserved_units_total",
		Help: "Units of stock reserved by committed orders",
	})

	StockReleasedUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_released_units_total",
		Help: "Units of stock returned by cancellations and refunds",
	})

	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_sweep_runs_total",
			Help: "Expiry sweep runs, by trigger",
		},
		[]string{"trigger"},
	)

	SweepOrders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_sweep_orders_total",
			Help: "Orders visited by the expiry sweep, by outcome",
		},
		[]string{"outcome"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_events_published_total",
			Help: "Lifecycle events handed to the broker, by result",
		},
		[]string{"result"},
	)

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_sweep_duration_seconds",
		Help:    "Duration of expiry sweep runs",
		Buckets: prometheus.DefBuckets,
	})
)
