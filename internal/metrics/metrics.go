// Package metrics exposes the server's Prometheus collectors: dispatch
// latency, inspector scan/match counts, and the two registry gauges
// (protection cache size, spawn registry size).
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	regOK atomic.Bool

	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "secdevmgr",
			Name:      "dispatch_duration_seconds",
			Help:      "Observed elapsed time per dispatched operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"},
	)
	inspectScanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "secdevmgr",
			Name:      "inspect_scanned_total",
			Help:      "Processes examined by the inspector, by detail tier.",
		}, []string{"tier"},
	)
	inspectMatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "secdevmgr",
			Name:      "inspect_matched_total",
			Help:      "Processes matching a find_process query, by detail tier.",
		}, []string{"tier"},
	)
	protectionCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "secdevmgr",
			Name:      "protection_cache_entries",
			Help:      "Current entry count in the protection verdict cache.",
		},
	)
	spawnRegistrySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "secdevmgr",
			Name:      "spawn_registry_size",
			Help:      "Current entry count in the spawn registry.",
		},
	)
)

// Register registers every collector with r. Safe to call more than once;
// AlreadyRegisteredError is swallowed so tests may register against the
// default registry repeatedly.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{dispatchDuration, inspectScanned, inspectMatched, protectionCacheEntries, spawnRegistrySize}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler registers this package's collectors with the default registerer
// and serves the default gatherer. The caller wires this into the
// diagnostic HTTP surface.
func Handler() http.Handler {
	_ = Register(prometheus.DefaultRegisterer)
	return promhttp.Handler()
}

// ObserveDispatch records one completed operation's elapsed time and
// outcome class.
func ObserveDispatch(operation, outcome string, seconds float64) {
	if regOK.Load() {
		dispatchDuration.WithLabelValues(operation, outcome).Observe(seconds)
	}
}

// IncScanned records tier-scoped inspector scan activity.
func IncScanned(tier string, n int) {
	if regOK.Load() {
		inspectScanned.WithLabelValues(tier).Add(float64(n))
	}
}

// IncMatched records tier-scoped inspector match activity.
func IncMatched(tier string, n int) {
	if regOK.Load() {
		inspectMatched.WithLabelValues(tier).Add(float64(n))
	}
}

// SetProtectionCacheEntries publishes the classifier cache's current size.
func SetProtectionCacheEntries(n int) {
	if regOK.Load() {
		protectionCacheEntries.Set(float64(n))
	}
}

// SetSpawnRegistrySize publishes the spawn registry's current size.
func SetSpawnRegistrySize(n int) {
	if regOK.Load() {
		spawnRegistrySize.Set(float64(n))
	}
}
