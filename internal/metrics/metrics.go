// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/fjod/go_cart/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "store"

var (
	CartOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cart_operations_total",
		Help:      "Cart mutations by operation and result.",
	}, []string{"operation", "result"})

	Checkouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkouts_total",
		Help:      "Checkout attempts by result.",
	}, []string{"result"})

	TxRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tx_retries_total",
		Help:      "Transactions retried after a concurrent update conflict.",
	}, []string{"operation"})

	CartCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cart_cache_lookups_total",
		Help:      "Cart view cache lookups by result (hit, miss, error).",
	}, []string{"result"})

	OutboxEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_events_total",
		Help:      "Outbox events handled by the publisher, by result.",
	}, []string{"result"})

	CheckoutDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "checkout_duration_seconds",
		Help:      "Time spent in checkout, retries included.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Result labels an outcome: "ok", the domain error kind, or "error".
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := domain.KindOf(err); kind != domain.KindUnknown {
		return kind.String()
	}
	return "error"
}
