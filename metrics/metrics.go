// Package metrics exposes the engine's Prometheus instrumentation.
// Counters live on the default registry; cmd/server serves them on the
// metrics listener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lyra_orders_accepted_total",
		Help: "Orders that passed validation and risk and reached matching.",
	}, []string{"symbol"})

	OrdersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lyra_orders_rejected_total",
		Help: "Orders rejected before matching, by reason.",
	}, []string{"symbol", "reason"})

	Trades = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lyra_trades_total",
		Help: "Trades emitted by the matching engine.",
	}, []string{"symbol"})

	Cancels = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lyra_cancels_total",
		Help: "Successful cancellations.",
	}, []string{"symbol"})

	EngineQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lyra_engine_queue_depth",
		Help: "Commands waiting in an instrument worker's inbound channel.",
	}, []string{"symbol"})

	OutboxBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lyra_outbox_backlog",
		Help: "Trades not yet committed by the settlement sink.",
	})

	SettlementFatal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lyra_settlement_fatal_total",
		Help: "Trades parked for manual reconciliation.",
	})
)
