// pkg/metrics/metrics.go
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// Singleton metrics registry
	registry    *prometheus.Registry
	metricsOnce sync.Once

	// Dispatcher metrics
	dispatchEvents  *prometheus.CounterVec
	dispatchDropped *prometheus.CounterVec
	dispatchPanics  *prometheus.CounterVec

	// Event pump metrics
	pumpIterations *prometheus.CounterVec

	// Handle registry metrics
	activeHandles *prometheus.GaugeVec

	// Global nodeID and version
	globalNodeID  string
	globalVersion string
)

// InitMetrics initializes the Prometheus metrics
func InitMetrics(version, nodeID string) {
	globalVersion = version
	globalNodeID = nodeID

	metricsOnce.Do(func() {
		registry = prometheus.NewRegistry()

		// Dispatcher metrics
		dispatchEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "softphone_dispatch_events_total",
				Help: "Number of engine events dispatched, by callback slot",
			},
			[]string{"slot", "node_id"},
		)
		registry.MustRegister(dispatchEvents)

		dispatchDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "softphone_dispatch_dropped_total",
				Help: "Number of engine events resolved by a default policy instead of a handler",
			},
			[]string{"slot", "reason", "node_id"},
		)
		registry.MustRegister(dispatchDropped)

		dispatchPanics = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "softphone_dispatch_panics_total",
				Help: "Number of panics recovered from application handlers",
			},
			[]string{"slot", "node_id"},
		)
		registry.MustRegister(dispatchPanics)

		// Event pump metrics
		pumpIterations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "softphone_pump_iterations_total",
				Help: "Number of event pump polls",
			},
			[]string{"node_id"},
		)
		registry.MustRegister(pumpIterations)

		// Handle registry metrics
		activeHandles = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "softphone_handles",
				Help: "Number of live wrapper objects in the handle registry",
			},
			[]string{"kind", "node_id"},
		)
		registry.MustRegister(activeHandles)
	})
}

// StartMetricsServer starts an HTTP server to expose Prometheus metrics
func StartMetricsServer(addr string, logger *zap.Logger) *http.Server {
	// InitMetrics should have been called before this

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Health endpoint that just returns 200 OK
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Status endpoint that provides a JSON summary
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"active", "node_id":"` + globalNodeID + `", "version":"` + globalVersion + `", "timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
	})

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("Starting metrics server", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	return server
}

// Shutdown stops the metrics server
func Shutdown(ctx context.Context, server *http.Server, logger *zap.Logger) {
	logger.Info("Shutting down metrics server")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down metrics server", zap.Error(err))
	}
}

// RecordDispatch counts an engine event entering the dispatcher
func RecordDispatch(slot string) {
	if dispatchEvents != nil {
		dispatchEvents.WithLabelValues(slot, globalNodeID).Inc()
	}
}

// RecordDrop counts an event that no handler received
func RecordDrop(slot, reason string) {
	if dispatchDropped != nil {
		dispatchDropped.WithLabelValues(slot, reason, globalNodeID).Inc()
	}
}

// RecordDispatchPanic counts a recovered handler panic
func RecordDispatchPanic(slot string) {
	if dispatchPanics != nil {
		dispatchPanics.WithLabelValues(slot, globalNodeID).Inc()
	}
}

// RecordPumpIteration counts one event pump poll
func RecordPumpIteration() {
	if pumpIterations != nil {
		pumpIterations.WithLabelValues(globalNodeID).Inc()
	}
}

// SetHandleCounts updates the registry size gauges
func SetHandleCounts(calls, accounts, buddies int) {
	if activeHandles == nil {
		return
	}
	activeHandles.WithLabelValues("call", globalNodeID).Set(float64(calls))
	activeHandles.WithLabelValues("account", globalNodeID).Set(float64(accounts))
	activeHandles.WithLabelValues("buddy", globalNodeID).Set(float64(buddies))
}
